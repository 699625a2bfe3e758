// Package models defines the persisted records of the deal lifecycle engine.
package models

import "time"

const StatusCancelled = "CANCELLED"

// Deal is one leasing deal moving through a workflow.
type Deal struct {
	ID string `json:"id" validate:"required"`

	WorkflowID string `json:"workflow_id" validate:"required"`

	// WorkflowVersionID is the version that performed the last transition.
	WorkflowVersionID string `json:"workflow_version_id"`

	Status string `json:"status" validate:"required"`

	// Payload holds computed guard flags (esign.allSigned, risk.approved, ...)
	// and free-form snapshot data. Guard evaluation reads from it.
	Payload map[string]any `json:"payload"`

	// TransitionSeq counts the transitions the deal went through. It is bumped
	// by every status update and scopes entry-action hashes to one entry.
	TransitionSeq int64 `json:"transition_seq"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
