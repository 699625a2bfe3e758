package template

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/xeipuuv/gojsonschema"
	"github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaSource string

var (
	schemaLoader = gojsonschema.NewStringLoader(schemaSource)
	cronParser   = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
)

type rawTemplate struct {
	Workflow      WorkflowInfo          `yaml:"workflow"`
	Roles         []RoleDefinition      `yaml:"roles"`
	KanbanOrder   []string              `yaml:"kanban_order"`
	Statuses      map[string]*rawStatus `yaml:"statuses"`
	Transitions   []rawTransition       `yaml:"transitions"`
	Notifications Notifications         `yaml:"notifications"`
	Integrations  Integrations          `yaml:"integrations"`
	DocumentTypes DocumentTypes         `yaml:"document_types"`
}

type rawStatus struct {
	Title            string           `yaml:"title"`
	Description      string           `yaml:"description"`
	Terminal         bool             `yaml:"terminal"`
	EntryActions     []rawAction      `yaml:"entry_actions"`
	ExitRequirements []rawRequirement `yaml:"exit_requirements"`
	Webhooks         struct {
		OnEvent []rawEventRule `yaml:"on_event"`
	} `yaml:"webhooks"`
}

type rawAction struct {
	Type     string          `yaml:"type"`
	Task     *TaskDefinition `yaml:"task"`
	ToRoles  []string        `yaml:"to_roles"`
	Template string          `yaml:"template"`
	Endpoint string          `yaml:"endpoint"`
	Payload  map[string]any  `yaml:"payload"`
	Job      *struct {
		Type     string         `yaml:"type"`
		Cron     string         `yaml:"cron"`
		Delay    string         `yaml:"delay"`
		Template string         `yaml:"template"`
		Payload  map[string]any `yaml:"payload"`
	} `yaml:"job"`
}

type rawRequirement struct {
	Type      string   `yaml:"type"`
	Key       string   `yaml:"key"`
	Rule      string   `yaml:"rule"`
	Message   string   `yaml:"message"`
	Documents []string `yaml:"documents"`
	GuardKey  string   `yaml:"guard_key"`
	Task      string   `yaml:"task"`
}

type rawCondition struct {
	Key  string `yaml:"key"`
	Rule string `yaml:"rule"`
}

type rawTransition struct {
	From    string         `yaml:"from"`
	To      string         `yaml:"to"`
	ByRoles []string       `yaml:"by_roles"`
	Guards  []rawCondition `yaml:"guards"`
}

type rawEventRule struct {
	Event        string         `yaml:"event"`
	TransitionTo string         `yaml:"transition_to"`
	ActorRole    string         `yaml:"actor_role"`
	Conditions   []rawCondition `yaml:"conditions"`
}

// Load reads and parses a template file.
func Load(path string) (*WorkflowTemplate, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, newParseError(err, "failed to read template %s", path)
	}

	return Parse(source)
}

// Parse turns template source into a WorkflowTemplate. Every failure is a *ParseError.
func Parse(source []byte) (*WorkflowTemplate, error) {
	var root yaml.Node

	err := yaml.Unmarshal(source, &root)
	if err != nil {
		return nil, newParseError(err, "malformed YAML")
	}

	if len(root.Content) == 0 {
		return nil, Errorf("template is empty")
	}

	document := root.Content[0]

	err = checkDuplicateStatuses(document)
	if err != nil {
		return nil, err
	}

	err = validateStructure(document)
	if err != nil {
		return nil, err
	}

	var raw rawTemplate

	err = document.Decode(&raw)
	if err != nil {
		return nil, newParseError(err, "failed to decode template")
	}

	return convert(&raw)
}

func checkDuplicateStatuses(document *yaml.Node) error {
	statuses := mappingValue(document, "statuses")
	if statuses == nil || statuses.Kind != yaml.MappingNode {
		return nil
	}

	seen := make(map[string]int, len(statuses.Content)/2)

	for i := 0; i+1 < len(statuses.Content); i += 2 {
		key := statuses.Content[i]
		if line, ok := seen[key.Value]; ok {
			return Errorf("duplicate status key %q (lines %d and %d)", key.Value, line, key.Line)
		}

		seen[key.Value] = key.Line
	}

	return nil
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	if node.Kind != yaml.MappingNode {
		return nil
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}

	return nil
}

func validateStructure(document *yaml.Node) error {
	var generic any

	err := document.Decode(&generic)
	if err != nil {
		return newParseError(err, "failed to decode template")
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(generic))
	if err != nil {
		return newParseError(err, "failed to validate template structure")
	}

	if result.Valid() {
		return nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, violation := range result.Errors() {
		violations = append(violations, violation.String())
	}

	return Errorf("structural errors: %s", strings.Join(violations, "; "))
}

func convert(raw *rawTemplate) (*WorkflowTemplate, error) {
	_, err := time.LoadLocation(raw.Workflow.Timezone)
	if err != nil {
		return nil, newParseError(err, "unknown timezone %q", raw.Workflow.Timezone)
	}

	tmpl := &WorkflowTemplate{
		Workflow:      raw.Workflow,
		Roles:         raw.Roles,
		KanbanOrder:   raw.KanbanOrder,
		Statuses:      make(map[string]*Status, len(raw.Statuses)),
		Transitions:   make([]Transition, 0, len(raw.Transitions)),
		Notifications: raw.Notifications,
		Integrations:  raw.Integrations,
		DocumentTypes: raw.DocumentTypes,
	}

	for key, rawStatus := range raw.Statuses {
		status, err := convertStatus(key, rawStatus)
		if err != nil {
			return nil, err
		}

		tmpl.Statuses[key] = status
	}

	for i, rawTransition := range raw.Transitions {
		guards, err := convertConditions(rawTransition.Guards)
		if err != nil {
			return nil, newParseError(err, "transition #%d %s -> %s", i+1, rawTransition.From, rawTransition.To)
		}

		tmpl.Transitions = append(tmpl.Transitions, Transition{
			From:    rawTransition.From,
			To:      rawTransition.To,
			ByRoles: rawTransition.ByRoles,
			Guards:  guards,
		})
	}

	for _, status := range tmpl.Statuses {
		for _, rule := range status.Webhooks.OnEvent {
			if _, ok := tmpl.Statuses[rule.TransitionTo]; !ok {
				return nil, Errorf("status %s: webhook event %s targets undefined status %s", status.Key, rule.Event, rule.TransitionTo)
			}
		}
	}

	return tmpl, nil
}

func convertStatus(key string, raw *rawStatus) (*Status, error) {
	if raw == nil {
		return nil, Errorf("status %s has no definition", key)
	}

	status := &Status{
		Key:         key,
		Title:       raw.Title,
		Description: raw.Description,
		Terminal:    raw.Terminal,
	}

	for i, rawAction := range raw.EntryActions {
		action, err := convertAction(rawAction)
		if err != nil {
			return nil, newParseError(err, "status %s: entry action #%d", key, i+1)
		}

		status.EntryActions = append(status.EntryActions, action)
	}

	for i, rawRequirement := range raw.ExitRequirements {
		requirement, err := convertRequirement(rawRequirement)
		if err != nil {
			return nil, newParseError(err, "status %s: exit requirement #%d", key, i+1)
		}

		status.ExitRequirements = append(status.ExitRequirements, requirement)
	}

	for i, rawRule := range raw.Webhooks.OnEvent {
		conditions, err := convertConditions(rawRule.Conditions)
		if err != nil {
			return nil, newParseError(err, "status %s: webhook event #%d", key, i+1)
		}

		status.Webhooks.OnEvent = append(status.Webhooks.OnEvent, WebhookEventRule{
			Event:        rawRule.Event,
			TransitionTo: rawRule.TransitionTo,
			ActorRole:    rawRule.ActorRole,
			Conditions:   conditions,
		})
	}

	return status, nil
}

func convertAction(raw rawAction) (EntryAction, error) {
	switch ActionType(raw.Type) {
	case ActionTaskCreate:
		if raw.Task == nil {
			return nil, errors.New("TASK_CREATE requires a task definition")
		}

		task := *raw.Task
		if task.TemplateID == "" || task.Type == "" || task.Title == "" || task.AssigneeRole == "" {
			return nil, errors.New("task requires template_id, type, title and assignee_role")
		}

		if task.SLA != nil && task.SLA.Hours <= 0 {
			return nil, fmt.Errorf("task %s: sla hours must be positive", task.TemplateID)
		}

		if task.Schema != nil && task.Schema.Version == "" {
			task.Schema.Version = "1.0"
		}

		return &TaskCreateAction{ActionType: ActionTaskCreate, Task: task}, nil

	case ActionNotify, ActionEscalate:
		if len(raw.ToRoles) == 0 || raw.Template == "" {
			return nil, fmt.Errorf("%s requires to_roles and template", raw.Type)
		}

		return &NotifyAction{ActionType: ActionType(raw.Type), ToRoles: raw.ToRoles, Template: raw.Template}, nil

	case ActionWebhook:
		if raw.Endpoint == "" {
			return nil, errors.New("WEBHOOK requires an endpoint")
		}

		return &WebhookAction{ActionType: ActionWebhook, Endpoint: raw.Endpoint, Payload: raw.Payload}, nil

	case ActionSchedule:
		return convertSchedule(raw)

	default:
		return nil, fmt.Errorf("unknown action type %q", raw.Type)
	}
}

func convertSchedule(raw rawAction) (EntryAction, error) {
	if raw.Job == nil || raw.Job.Type == "" {
		return nil, errors.New("SCHEDULE requires a job with a type")
	}

	if raw.Job.Cron == "" && raw.Job.Delay == "" {
		return nil, fmt.Errorf("schedule %s requires cron or delay", raw.Job.Type)
	}

	job := ScheduleJob{
		Type:     raw.Job.Type,
		Cron:     raw.Job.Cron,
		Delay:    raw.Job.Delay,
		Template: raw.Job.Template,
		Payload:  raw.Job.Payload,
	}

	if job.Delay != "" {
		delay, err := str2duration.ParseDuration(job.Delay)
		if err != nil {
			return nil, fmt.Errorf("schedule %s: invalid delay %q: %w", job.Type, job.Delay, err)
		}

		if delay < 0 {
			return nil, fmt.Errorf("schedule %s: delay must not be negative", job.Type)
		}

		job.delay = delay
	}

	if job.Cron != "" {
		schedule, err := cronParser.Parse(job.Cron)
		if err != nil {
			return nil, fmt.Errorf("schedule %s: invalid cron %q: %w", job.Type, job.Cron, err)
		}

		job.schedule = schedule
	}

	return &ScheduleAction{ActionType: ActionSchedule, Job: job}, nil
}

func convertRequirement(raw rawRequirement) (Requirement, error) {
	requirementType := RequirementType(raw.Type)
	if requirementType == "" {
		requirementType = RequirementField
	}

	switch requirementType {
	case RequirementField:
		if raw.Key == "" || raw.Rule == "" {
			return nil, errors.New("field requirement requires key and rule")
		}

		rule, err := ParseRule(raw.Rule)
		if err != nil {
			return nil, fmt.Errorf("requirement %s: %w", raw.Key, err)
		}

		return &FieldRequirement{RequirementType: RequirementField, Path: raw.Key, Rule: rule, FailureMessage: raw.Message}, nil

	case RequirementDocumentPresent:
		if len(raw.Documents) == 0 {
			return nil, errors.New("DOCUMENT_PRESENT requires a documents list")
		}

		return &DocumentRequirement{RequirementType: RequirementDocumentPresent, Documents: raw.Documents, FailureMessage: raw.Message}, nil

	case RequirementTaskComplete:
		if raw.GuardKey == "" && raw.Task == "" {
			return nil, errors.New("TASK_COMPLETE requires guard_key or task")
		}

		return &TaskRequirement{
			RequirementType: RequirementTaskComplete,
			GuardKey:        raw.GuardKey,
			TaskTemplateID:  raw.Task,
			FailureMessage:  raw.Message,
		}, nil

	default:
		return nil, fmt.Errorf("unknown requirement type %q", raw.Type)
	}
}

func convertConditions(raw []rawCondition) ([]Condition, error) {
	conditions := make([]Condition, 0, len(raw))

	for _, condition := range raw {
		rule, err := ParseRule(condition.Rule)
		if err != nil {
			return nil, fmt.Errorf("condition %s: %w", condition.Key, err)
		}

		conditions = append(conditions, Condition{Key: condition.Key, Rule: rule})
	}

	return conditions, nil
}

// Location returns the workflow timezone. Parse rejects unknown zones, so
// the fallback to UTC only applies to hand-built templates.
func (t *WorkflowTemplate) Location() *time.Location {
	location, err := time.LoadLocation(t.Workflow.Timezone)
	if err != nil {
		return time.UTC
	}

	return location
}

// Status returns the status definition for key.
func (t *WorkflowTemplate) Status(key string) (*Status, bool) {
	status, ok := t.Statuses[key]

	return status, ok
}
