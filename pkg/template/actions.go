package template

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/robfig/cron/v3"
)

type ActionType string

const (
	ActionTaskCreate ActionType = "TASK_CREATE"
	ActionNotify     ActionType = "NOTIFY"
	ActionEscalate   ActionType = "ESCALATE"
	ActionWebhook    ActionType = "WEBHOOK"
	ActionSchedule   ActionType = "SCHEDULE"
)

// EntryAction is executed when a deal enters a status. The set of
// implementations is closed: TaskCreateAction, NotifyAction, WebhookAction
// and ScheduleAction.
type EntryAction interface {
	Type() ActionType
	// Key identifies the action within its status; it feeds the action hash.
	Key() string
	entryAction()
}

type TaskCreateAction struct {
	ActionType ActionType     `json:"type"`
	Task       TaskDefinition `json:"task"`
}

func (a *TaskCreateAction) Type() ActionType { return ActionTaskCreate }
func (a *TaskCreateAction) Key() string      { return string(ActionTaskCreate) + ":" + a.Task.TemplateID }
func (a *TaskCreateAction) entryAction()     {}

// TaskDefinition is the task template instantiated by a TASK_CREATE action.
type TaskDefinition struct {
	TemplateID       string            `json:"template_id" yaml:"template_id"`
	Type             string            `json:"type" yaml:"type"`
	Title            string            `json:"title" yaml:"title"`
	AssigneeRole     string            `json:"assignee_role" yaml:"assignee_role"`
	SLA              *TaskSLA          `json:"sla,omitempty" yaml:"sla"`
	GuardKey         string            `json:"guard_key,omitempty" yaml:"guard_key"`
	RequiresDocument bool              `json:"requires_document,omitempty" yaml:"requires_document"`
	Schema           *TaskSchema       `json:"schema,omitempty" yaml:"schema"`
	Bindings         map[string]string `json:"bindings,omitempty" yaml:"bindings"`
	Defaults         map[string]any    `json:"defaults,omitempty" yaml:"defaults"`
}

type TaskSLA struct {
	Hours int `json:"hours" yaml:"hours"`
}

type TaskSchema struct {
	Version string      `json:"version" yaml:"version"`
	Fields  []TaskField `json:"fields" yaml:"fields"`
}

type TaskField struct {
	ID       string            `json:"id" yaml:"id"`
	Type     string            `json:"type" yaml:"type"`
	Label    string            `json:"label,omitempty" yaml:"label"`
	Required bool              `json:"required,omitempty" yaml:"required"`
	Options  []TaskFieldOption `json:"options,omitempty" yaml:"options"`
}

type TaskFieldOption struct {
	Value string `json:"value" yaml:"value"`
	Label string `json:"label,omitempty" yaml:"label"`
}

// NotifyAction covers both NOTIFY and ESCALATE.
type NotifyAction struct {
	ActionType ActionType `json:"type"`
	ToRoles    []string   `json:"to_roles"`
	Template   string     `json:"template"`
}

func (a *NotifyAction) Type() ActionType { return a.ActionType }
func (a *NotifyAction) Key() string      { return definitionKey(a.ActionType, a.Template, a) }
func (a *NotifyAction) entryAction()     {}

type WebhookAction struct {
	ActionType ActionType     `json:"type"`
	Endpoint   string         `json:"endpoint"`
	Payload    map[string]any `json:"payload,omitempty"`
}

func (a *WebhookAction) Type() ActionType { return ActionWebhook }
func (a *WebhookAction) Key() string      { return definitionKey(ActionWebhook, a.Endpoint, a) }
func (a *WebhookAction) entryAction()     {}

type ScheduleAction struct {
	ActionType ActionType  `json:"type"`
	Job        ScheduleJob `json:"job"`
}

func (a *ScheduleAction) Type() ActionType { return ActionSchedule }
func (a *ScheduleAction) Key() string      { return definitionKey(ActionSchedule, a.Job.Type, a) }
func (a *ScheduleAction) entryAction()     {}

// definitionKey is "<type>:<name>:<digest>", the digest covering the whole
// action definition so that two actions sharing a name stay distinct.
func definitionKey(actionType ActionType, name string, definition any) string {
	raw, err := json.Marshal(definition)
	if err != nil {
		return string(actionType) + ":" + name
	}

	sum := sha256.Sum256(raw)

	return string(actionType) + ":" + name + ":" + hex.EncodeToString(sum[:6])
}

// ScheduleJob fires after Delay, or at the next Cron occurrence, or at the
// next occurrence after Delay when both are set.
type ScheduleJob struct {
	Type     string         `json:"type"`
	Cron     string         `json:"cron,omitempty"`
	Delay    string         `json:"delay,omitempty"`
	Template string         `json:"template,omitempty"`
	Payload  map[string]any `json:"payload,omitempty"`

	delay    time.Duration
	schedule cron.Schedule
}

// DueAt computes when the job becomes due for a deal entering the status at from.
func (j ScheduleJob) DueAt(from time.Time, location *time.Location) time.Time {
	if location == nil {
		location = time.UTC
	}

	due := from.Add(j.delay)
	if j.schedule != nil {
		due = j.schedule.Next(due.In(location))
	}

	return due.UTC()
}
