// Package web provides HTTP request and response types for the deal lifecycle API.
package web

import (
	"github.com/dukex/dealflow/pkg/workflow"
	"github.com/shopspring/decimal"
)

type CreateDealRequest struct {
	DealID     string         `json:"deal_id,omitempty"`
	WorkflowID string         `json:"workflow_id"          validate:"required"`
	Payload    map[string]any `json:"payload,omitempty"`
	ActorRole  string         `json:"actor_role,omitempty"`
	ActorID    string         `json:"actor_id,omitempty"`
}

type TransitionRequest struct {
	ToStatus     string         `json:"to_status"               validate:"required"`
	ActorRole    string         `json:"actor_role,omitempty"`
	ActorID      string         `json:"actor_id,omitempty"`
	GuardContext map[string]any `json:"guard_context,omitempty"`
	Comment      string         `json:"comment,omitempty"       validate:"max=2000"`

	// DryRun only validates the transition.
	DryRun bool `json:"dry_run,omitempty"`
}

// TransitionResponse is a successful transition. AuditUnconfirmed is set when
// the status changed but its audit entry could not be written.
type TransitionResponse struct {
	*workflow.TransitionResult

	AuditUnconfirmed bool `json:"audit_unconfirmed,omitempty"`
}

type CancelRequest struct {
	Reason    string `json:"reason"               validate:"required"`
	Notes     string `json:"notes,omitempty"`
	ActorRole string `json:"actor_role,omitempty"`
	ActorID   string `json:"actor_id,omitempty"`
}

type AddDocumentRequest struct {
	DocumentType string `json:"document_type"          validate:"required"`
	Title        string `json:"title,omitempty"`
	StoragePath  string `json:"storage_path,omitempty"`
}

type CompleteTaskRequest struct {
	Payload   map[string]any `json:"payload,omitempty"`
	ActorRole string         `json:"actor_role,omitempty"`
	ActorID   string         `json:"actor_id,omitempty"`
}

type ESignWebhookRequest struct {
	DealID     string `json:"deal_id"               validate:"required"`
	Status     string `json:"status"                validate:"required,oneof=COMPLETED DECLINED"`
	EnvelopeID string `json:"envelope_id,omitempty"`
}

type BankWebhookRequest struct {
	DealID      string           `json:"deal_id"                validate:"required"`
	Kind        string           `json:"kind"                   validate:"required,oneof=ADVANCE SUPPLIER"`
	Status      string           `json:"status"                 validate:"required,oneof=CONFIRMED FAILED"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	Currency    string           `json:"currency,omitempty"     validate:"omitempty,len=3,uppercase"`
	ExternalRef string           `json:"external_ref,omitempty"`
}

type AECBWebhookRequest struct {
	DealID    string `json:"deal_id"         validate:"required"`
	AECBScore *int   `json:"aecb_score"      validate:"required,gte=0,lte=1000"`
	Approved  *bool  `json:"approved"        validate:"required"`
	Notes     string `json:"notes,omitempty"`
}

type SyncVersionRequest struct {
	// SourceYAML registers this template instead of the configured file.
	SourceYAML  string `json:"source_yaml,omitempty"`
	Version     string `json:"version,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Activate    *bool  `json:"activate,omitempty"`
	CreatedBy   string `json:"created_by,omitempty"`
}
