package models

import "time"

type TaskStatus string

const (
	TaskStatusOpen       TaskStatus = "OPEN"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusDone       TaskStatus = "DONE"
	TaskStatusBlocked    TaskStatus = "BLOCKED"
	TaskStatusCancelled  TaskStatus = "CANCELLED"
)

type SLAStatus string

const (
	SLAStatusOnTime SLAStatus = "ON_TIME"
	SLAStatusLate   SLAStatus = "LATE"
)

// guardKeysByTaskType maps task types to the payload flag their completion
// sets when the task template declares no guard_key.
var guardKeysByTaskType = map[string]string{
	"CONFIRM_CAR":       "tasks.confirmCar.completed",
	"PREPARE_QUOTE":     "quotationPrepared",
	"VERIFY_VEHICLE":    "vehicle.verified",
	"COLLECT_DOCS":      "docs.required.allUploaded",
	"AECB_CHECK":        "risk.approved",
	"FIN_CALC":          "finance.approved",
	"INVESTOR_APPROVAL": "investor.approved",
	"PREPARE_CONTRACT":  "legal.contractReady",
	"RECEIVE_ADVANCE":   "payments.advanceReceived",
	"PAY_SUPPLIER":      "payments.supplierPaid",
	"ARRANGE_DELIVERY":  "delivery.confirmed",
}

// Task is a unit of work created by a TASK_CREATE entry action.
type Task struct {
	ID             string         `json:"id"`
	DealID         string         `json:"deal_id"`
	Type           string         `json:"type"`
	Status         TaskStatus     `json:"status"`
	AssigneeRole   string         `json:"assignee_role"`
	AssigneeUserID string         `json:"assignee_user_id,omitempty"`
	SLADueAt       *time.Time     `json:"sla_due_at,omitempty"`
	SLAStatus      SLAStatus      `json:"sla_status,omitempty"`
	Payload        map[string]any `json:"payload"`

	// ActionHash is the idempotency key of the entry action that created the task.
	ActionHash string `json:"action_hash"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// GuardKey is the payload flag set when the task completes: the template's
// guard_key, or the default for the task type.
func (t *Task) GuardKey() string {
	if key, ok := t.Payload["guard_key"].(string); ok && key != "" {
		return key
	}

	return DefaultGuardKey(t.Type)
}

// TemplateID returns the task template id recorded in the payload.
func (t *Task) TemplateID() string {
	id, _ := t.Payload["template_id"].(string)

	return id
}

// StatusKey returns the deal status whose entry actions created the task.
func (t *Task) StatusKey() string {
	key, _ := t.Payload["status_key"].(string)

	return key
}

func (t *Task) IsDone() bool {
	return t.Status == TaskStatusDone
}

// DefaultGuardKey is the guard flag of a task type whose template sets none.
func DefaultGuardKey(taskType string) string {
	return guardKeysByTaskType[taskType]
}
