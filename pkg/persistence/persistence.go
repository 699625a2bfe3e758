// Package persistence provides the storage abstraction consumed by the deal lifecycle engine.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/dealflow/pkg/models"
)

type Persistence interface {
	DealRepository() DealRepository
	WorkflowVersionRepository() WorkflowVersionRepository
	TaskRepository() TaskRepository
	QueueRepository() QueueRepository
	AuditLogger() AuditLogger
	DocumentRepository() DocumentRepository
	IntegrationRepository() IntegrationRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// UpdateDealStatusInput describes a conditional status update: it only
// applies while the deal is still in PreviousStatus. PayloadPatch, when set,
// is merged into the payload in the same write.
type UpdateDealStatusInput struct {
	DealID            string
	PreviousStatus    string
	Status            string
	WorkflowVersionID string
	PayloadPatch      map[string]any
}

type ListDealsOptions struct {
	ExcludeStatuses []string
}

type DealRepository interface {
	GetDealByID(ctx context.Context, id string) (*models.Deal, error)
	CreateDeal(ctx context.Context, deal *models.Deal) error

	// UpdateDealStatus sets status and version and bumps TransitionSeq. It
	// returns ErrDealStatusConflict when the deal left PreviousStatus.
	UpdateDealStatus(ctx context.Context, input UpdateDealStatusInput) (*models.Deal, error)

	// UpdateDealPayload deep-merges patch into the stored payload atomically.
	UpdateDealPayload(ctx context.Context, id string, patch map[string]any) (*models.Deal, error)

	ListDeals(ctx context.Context, opts ListDealsOptions) ([]*models.Deal, error)
}

type InsertVersionInput struct {
	WorkflowID  string
	Version     string
	Title       string
	Description string
	SourceYAML  string
	Checksum    string
	IsActive    bool
	CreatedBy   string
}

type WorkflowVersionRepository interface {
	// Insert stores a new version. With IsActive set it deactivates every
	// other version of the workflow in the same operation.
	Insert(ctx context.Context, input InsertVersionInput) (*models.WorkflowVersion, error)
	List(ctx context.Context, workflowID string) ([]*models.WorkflowVersion, error)
	FindActive(ctx context.Context, workflowID string) (*models.WorkflowVersion, error)
	FindByVersion(ctx context.Context, workflowID, version string) (*models.WorkflowVersion, error)
	FindByID(ctx context.Context, id string) (*models.WorkflowVersion, error)
	// MarkActive atomically clears the active flag of every other version of
	// the workflow and sets it on versionID.
	MarkActive(ctx context.Context, workflowID, versionID string) (*models.WorkflowVersion, error)
}

type CompleteTaskInput struct {
	TaskID      string
	Payload     map[string]any
	CompletedAt time.Time
}

type TaskRepository interface {
	// InsertIfAbsent stores the task unless one with the same action hash
	// exists. inserted reports which happened.
	InsertIfAbsent(ctx context.Context, task *models.Task) (inserted bool, err error)
	GetByID(ctx context.Context, id string) (*models.Task, error)
	ListByDeal(ctx context.Context, dealID string) ([]*models.Task, error)
	UpdateStatus(ctx context.Context, id string, status models.TaskStatus) (*models.Task, error)
	Complete(ctx context.Context, input CompleteTaskInput) (*models.Task, error)
}

type QueueRepository interface {
	// Enqueue stores the entry unless one with the same action hash exists
	// in that queue. inserted reports which happened.
	Enqueue(ctx context.Context, entry *models.QueueEntry) (inserted bool, err error)

	// ClaimPending atomically moves up to limit due PENDING entries, oldest
	// first, to PROCESSING and returns them.
	ClaimPending(ctx context.Context, queue models.Queue, limit int, now time.Time) ([]*models.QueueEntry, error)

	// MarkResult records SENT or FAILED for a claimed entry.
	MarkResult(ctx context.Context, queue models.Queue, id string, status models.QueueStatus, errMessage string) error

	// ListByStatus returns entries oldest first. A limit <= 0 means no limit.
	ListByStatus(ctx context.Context, queue models.Queue, status models.QueueStatus, limit int) ([]*models.QueueEntry, error)

	// Requeue resets a FAILED entry to PENDING.
	Requeue(ctx context.Context, queue models.Queue, id string) (*models.QueueEntry, error)
}

type AuditLogger interface {
	LogTransition(ctx context.Context, entry *models.AuditEntry) error
	LogAction(ctx context.Context, entry *models.AuditEntry) error
	ListByDeal(ctx context.Context, dealID string) ([]*models.AuditEntry, error)
}

type DocumentRepository interface {
	AddDocument(ctx context.Context, document *models.Document) error
	ListByDeal(ctx context.Context, dealID string) ([]*models.Document, error)
}

type IntegrationRepository interface {
	InsertPayment(ctx context.Context, payment *models.Payment) error
	ListPayments(ctx context.Context, dealID string) ([]*models.Payment, error)
	InsertRiskReport(ctx context.Context, report *models.RiskReport) error
}
