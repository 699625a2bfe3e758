package models

import "time"

// Queue names one of the three side-effect outboxes.
type Queue string

const (
	QueueNotifications Queue = "notifications"
	QueueWebhooks      Queue = "webhooks"
	QueueSchedules     Queue = "schedules"
)

func (q Queue) Valid() bool {
	switch q {
	case QueueNotifications, QueueWebhooks, QueueSchedules:
		return true
	default:
		return false
	}
}

type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "PENDING"
	QueueStatusProcessing QueueStatus = "PROCESSING"
	QueueStatusSent       QueueStatus = "SENT"
	QueueStatusFailed     QueueStatus = "FAILED"
)

// QueueEntry is a pending side effect written by an entry action and drained
// by the queue processors.
type QueueEntry struct {
	ID     string `json:"id"`
	Queue  Queue  `json:"queue"`
	DealID string `json:"deal_id"`

	// Kind is NOTIFY or ESCALATE for notifications, WEBHOOK for webhooks and
	// the job type for schedules.
	Kind string `json:"kind"`

	// Target is the notification template name, the resolved webhook URL or
	// the schedule template.
	Target  string   `json:"target"`
	ToRoles []string `json:"to_roles,omitempty"`
	Cron    string   `json:"cron,omitempty"`

	Payload    map[string]any `json:"payload"`
	ActionHash string         `json:"action_hash"`
	Status     QueueStatus    `json:"status"`
	Error      string         `json:"error,omitempty"`
	Attempts   int            `json:"attempts"`

	// DueAt delays processing; nil means due immediately.
	DueAt *time.Time `json:"due_at,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// IsDue reports whether the entry may be processed at now.
func (e *QueueEntry) IsDue(now time.Time) bool {
	return e.DueAt == nil || !e.DueAt.After(now)
}
