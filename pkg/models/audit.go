package models

import "time"

type AuditKind string

const (
	AuditKindTransition AuditKind = "TRANSITION"
	AuditKindAction     AuditKind = "ACTION"
)

// AuditEntry records a status transition or a newly executed entry action.
type AuditEntry struct {
	ID                string         `json:"id"`
	DealID            string         `json:"deal_id"`
	Kind              AuditKind      `json:"kind"`
	ActorID           string         `json:"actor_id,omitempty"`
	ActorRole         string         `json:"actor_role,omitempty"`
	FromStatus        string         `json:"from_status,omitempty"`
	ToStatus          string         `json:"to_status,omitempty"`
	WorkflowVersionID string         `json:"workflow_version_id,omitempty"`
	Context           map[string]any `json:"context,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}
