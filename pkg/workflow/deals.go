package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/dealflow/pkg/documents"
	"github.com/dukex/dealflow/pkg/events"
	"github.com/dukex/dealflow/pkg/models"
	"github.com/dukex/dealflow/pkg/persistence"
	"github.com/google/uuid"
)

type CreateDealInput struct {
	DealID     string
	WorkflowID string
	Payload    map[string]any
	ActorRole  string
	ActorID    string
}

type CreateDealResult struct {
	Deal    *models.Deal    `json:"deal"`
	Actions []ActionOutcome `json:"actions,omitempty"`
}

// CreateDeal registers a deal in the first status of the active workflow
// version and runs that status's entry actions.
func (s *Service) CreateDeal(ctx context.Context, input CreateDealInput) (*CreateDealResult, error) {
	version, cat, err := s.versions.ActiveCatalog(ctx, input.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workflow %s: %w", input.WorkflowID, err)
	}

	initial := cat.InitialStatus()
	if initial == nil {
		return nil, fmt.Errorf("workflow %s has no statuses", input.WorkflowID)
	}

	deal := &models.Deal{
		ID:                input.DealID,
		WorkflowID:        cat.WorkflowID(),
		WorkflowVersionID: version.ID,
		Status:            initial.Key,
		Payload:           models.MergePayload(defaultGuardFlags(cat), input.Payload),
	}

	if deal.ID == "" {
		deal.ID = uuid.NewString()
	}

	if err := s.persistence.DealRepository().CreateDeal(ctx, deal); err != nil {
		return nil, fmt.Errorf("failed to create deal: %w", err)
	}

	by := actor{Role: input.ActorRole, ID: input.ActorID}
	actions := s.executeEntryActions(ctx, deal, cat, initial, version.ID, by)

	err = s.persistence.AuditLogger().LogTransition(ctx, &models.AuditEntry{
		DealID:            deal.ID,
		ActorID:           input.ActorID,
		ActorRole:         input.ActorRole,
		ToStatus:          deal.Status,
		WorkflowVersionID: version.ID,
		Context:           map[string]any{"created": true},
	})
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to audit deal creation", "deal_id", deal.ID, "error", err)
	}

	s.publish(ctx, deal.ID, events.DealCreated{
		BaseEvent:         events.NewBaseEvent(events.DealCreatedEvent, deal.ID, deal.WorkflowID),
		Status:            deal.Status,
		WorkflowVersionID: version.ID,
		ActorRole:         input.ActorRole,
	})

	s.logger.InfoContext(ctx, "Deal created", "deal_id", deal.ID, "status", deal.Status)

	return &CreateDealResult{Deal: deal, Actions: actions}, nil
}

func (s *Service) GetDeal(ctx context.Context, dealID string) (*models.Deal, error) {
	return s.persistence.DealRepository().GetDealByID(ctx, dealID)
}

type CancelInput struct {
	DealID    string
	Reason    string
	Notes     string
	ActorRole string
	ActorID   string
}

// CancelDeal moves a deal from any non-terminal status to CANCELLED.
// Cancelling a cancelled deal is a no-op.
func (s *Service) CancelDeal(ctx context.Context, input CancelInput) (*TransitionResult, error) {
	deal, err := s.persistence.DealRepository().GetDealByID(ctx, input.DealID)
	if err != nil {
		return nil, err
	}

	from := deal.Status
	if from == models.StatusCancelled {
		return &TransitionResult{Deal: deal, From: from, To: from, NoOp: true}, nil
	}

	version, cat, err := s.versions.ActiveCatalog(ctx, deal.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workflow for deal %s: %w", deal.ID, err)
	}

	if cat.IsTerminal(from) {
		return nil, newTransitionError(TransitionValidation{
			Reason:  ReasonTerminalStatus,
			Message: fmt.Sprintf("deal is in terminal status %s", from),
			From:    from,
			To:      models.StatusCancelled,
		})
	}

	updated, err := s.persistence.DealRepository().UpdateDealStatus(ctx, persistence.UpdateDealStatusInput{
		DealID:            deal.ID,
		PreviousStatus:    from,
		Status:            models.StatusCancelled,
		WorkflowVersionID: version.ID,
		PayloadPatch: map[string]any{
			"cancelled_reason": input.Reason,
			"cancelled_notes":  input.Notes,
			"cancelled_at":     s.now().Format(time.RFC3339),
			"cancelled_by":     input.ActorID,
		},
	})
	if err != nil {
		if persistence.IsDealStatusConflict(err) {
			return nil, fmt.Errorf("%w: deal %s left %s", ErrTransitionConflict, deal.ID, from)
		}

		return nil, fmt.Errorf("failed to cancel deal: %w", err)
	}

	result := &TransitionResult{Deal: updated, From: from, To: models.StatusCancelled}

	if status, ok := cat.Status(models.StatusCancelled); ok {
		result.Actions = s.executeEntryActions(ctx, updated, cat, status, version.ID, actor{Role: input.ActorRole, ID: input.ActorID})
	}

	auditErr := s.persistence.AuditLogger().LogTransition(ctx, &models.AuditEntry{
		DealID:            deal.ID,
		ActorID:           input.ActorID,
		ActorRole:         input.ActorRole,
		FromStatus:        from,
		ToStatus:          models.StatusCancelled,
		WorkflowVersionID: version.ID,
		Context:           map[string]any{"reason": input.Reason, "notes": input.Notes},
	})

	s.publish(ctx, deal.ID, events.DealCancelled{
		BaseEvent: events.NewBaseEvent(events.DealCancelledEvent, deal.ID, deal.WorkflowID),
		From:      from,
		Reason:    input.Reason,
		ActorRole: input.ActorRole,
	})

	if auditErr != nil {
		return result, fmt.Errorf("%w: %w", ErrAuditUnconfirmed, auditErr)
	}

	s.logger.InfoContext(ctx, "Deal cancelled", "deal_id", deal.ID, "from", from, "reason", input.Reason)

	return result, nil
}

func (s *Service) ListTasks(ctx context.Context, dealID string) ([]*models.Task, error) {
	if _, err := s.persistence.DealRepository().GetDealByID(ctx, dealID); err != nil {
		return nil, err
	}

	return s.persistence.TaskRepository().ListByDeal(ctx, dealID)
}

func (s *Service) AuditTrail(ctx context.Context, dealID string) ([]*models.AuditEntry, error) {
	return s.persistence.AuditLogger().ListByDeal(ctx, dealID)
}

type AddDocumentInput struct {
	DealID       string
	DocumentType string
	Title        string
	StoragePath  string
}

// AddDocument records document metadata for a deal. Known document types are
// stored in their canonical form.
func (s *Service) AddDocument(ctx context.Context, input AddDocumentInput) (*models.Document, error) {
	deal, err := s.persistence.DealRepository().GetDealByID(ctx, input.DealID)
	if err != nil {
		return nil, err
	}

	registry, err := s.documentRegistry(ctx, deal)
	if err != nil {
		return nil, err
	}

	documentType := input.DocumentType
	if normalized := registry.Normalize(documentType); normalized != "" {
		documentType = normalized
	}

	document := &models.Document{
		DealID:       deal.ID,
		DocumentType: documentType,
		Title:        input.Title,
		StoragePath:  input.StoragePath,
		UploadedAt:   s.now(),
	}

	if err := s.persistence.DocumentRepository().AddDocument(ctx, document); err != nil {
		return nil, fmt.Errorf("failed to add document: %w", err)
	}

	return document, nil
}

// Checklist evaluates required document types against the deal's documents.
// With no explicit list, the checklists of the deal's open document tasks
// are used.
func (s *Service) Checklist(ctx context.Context, dealID string, required []string) (documents.Checklist, error) {
	deal, err := s.persistence.DealRepository().GetDealByID(ctx, dealID)
	if err != nil {
		return documents.Checklist{}, err
	}

	registry, err := s.documentRegistry(ctx, deal)
	if err != nil {
		return documents.Checklist{}, err
	}

	if len(required) == 0 {
		tasks, err := s.persistence.TaskRepository().ListByDeal(ctx, deal.ID)
		if err != nil {
			return documents.Checklist{}, err
		}

		for _, task := range tasks {
			if task.IsDone() {
				continue
			}

			required = append(required, documents.ChecklistFromTaskPayload(task.Payload)...)
		}
	}

	docs, err := s.persistence.DocumentRepository().ListByDeal(ctx, deal.ID)
	if err != nil {
		return documents.Checklist{}, err
	}

	return registry.Evaluate(documents.FilterDisabled(required), docs), nil
}

func (s *Service) documentRegistry(ctx context.Context, deal *models.Deal) (*documents.Registry, error) {
	_, cat, err := s.versions.ActiveCatalog(ctx, deal.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workflow for deal %s: %w", deal.ID, err)
	}

	return documents.NewRegistry(cat.Template().DocumentTypes), nil
}
