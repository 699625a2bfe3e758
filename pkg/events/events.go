// Package events defines the deal lifecycle events published on the event bus.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic carries every deal lifecycle event.
const Topic = "dealflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	DealCreatedEvent      EventType = "deal.created"
	DealTransitionedEvent EventType = "deal.transitioned"
	DealResyncedEvent     EventType = "deal.resynced"
	DealCancelledEvent    EventType = "deal.cancelled"
	TaskCompletedEvent    EventType = "task.completed"
	ScheduleFiredEvent    EventType = "schedule.fired"
)

type BaseEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	DealID     string    `json:"deal_id"`
	WorkflowID string    `json:"workflow_id,omitempty"`
}

// NewBaseEvent stamps a new event of eventType for dealID.
func NewBaseEvent(eventType EventType, dealID, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		DealID:     dealID,
		WorkflowID: workflowID,
	}
}

type DealCreated struct {
	BaseEvent

	Status            string `json:"status"`
	WorkflowVersionID string `json:"workflow_version_id"`
	ActorRole         string `json:"actor_role,omitempty"`
}

func (e DealCreated) GetType() EventType {
	return DealCreatedEvent
}

type DealTransitioned struct {
	BaseEvent

	From              string `json:"from"`
	To                string `json:"to"`
	ActorRole         string `json:"actor_role,omitempty"`
	ActorID           string `json:"actor_id,omitempty"`
	WorkflowVersionID string `json:"workflow_version_id"`
	TransitionSeq     int64  `json:"transition_seq"`
}

func (e DealTransitioned) GetType() EventType {
	return DealTransitionedEvent
}

type DealResynced struct {
	BaseEvent

	Status            string `json:"status"`
	WorkflowVersionID string `json:"workflow_version_id"`
	ActionsInserted   int    `json:"actions_inserted"`
}

func (e DealResynced) GetType() EventType {
	return DealResyncedEvent
}

type DealCancelled struct {
	BaseEvent

	From      string `json:"from"`
	Reason    string `json:"reason,omitempty"`
	ActorRole string `json:"actor_role,omitempty"`
}

func (e DealCancelled) GetType() EventType {
	return DealCancelledEvent
}

type TaskCompleted struct {
	BaseEvent

	TaskID   string `json:"task_id"`
	TaskType string `json:"task_type"`
	GuardKey string `json:"guard_key,omitempty"`
}

func (e TaskCompleted) GetType() EventType {
	return TaskCompletedEvent
}

type ScheduleFired struct {
	BaseEvent

	JobType string         `json:"job_type"`
	Cron    string         `json:"cron,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

func (e ScheduleFired) GetType() EventType {
	return ScheduleFiredEvent
}
