// Package workflow runs deals through their workflow graph: guard evaluation,
// transitions, entry actions, task completion and resync.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/dealflow/pkg/catalog"
	"github.com/dukex/dealflow/pkg/eventbus"
	"github.com/dukex/dealflow/pkg/events"
	"github.com/dukex/dealflow/pkg/models"
	"github.com/dukex/dealflow/pkg/otelhelper"
	"github.com/dukex/dealflow/pkg/persistence"
	"github.com/dukex/dealflow/pkg/template"
	"github.com/dukex/dealflow/pkg/versioning"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Service struct {
	persistence       persistence.Persistence
	versions          *versioning.Service
	publisher         eventbus.EventPublisher
	tracer            trace.Tracer
	logger            *slog.Logger
	now               func() time.Time
	resyncConcurrency int
}

type Option func(*Service)

// WithPublisher publishes lifecycle events on publisher. Without it no
// events are emitted.
func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(s *Service) {
		s.publisher = publisher
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithResyncConcurrency bounds the number of deals ResyncAll processes at once.
func WithResyncConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.resyncConcurrency = n
		}
	}
}

func NewService(
	persistence persistence.Persistence,
	versions *versioning.Service,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	service := &Service{
		persistence:       persistence,
		versions:          versions,
		tracer:            otelhelper.NoopTracer(),
		logger:            logger.With("module", "workflow"),
		now:               func() time.Time { return time.Now().UTC() },
		resyncConcurrency: 1,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service
}

// TransitionInput asks to move a deal to TargetStatus.
type TransitionInput struct {
	DealID       string
	TargetStatus string
	ActorRole    string
	ActorID      string

	// GuardContext overrides deal payload fields for this evaluation only.
	GuardContext map[string]any
	Comment      string
}

type TransitionResult struct {
	Deal    *models.Deal    `json:"deal"`
	From    string          `json:"from"`
	To      string          `json:"to"`
	NoOp    bool            `json:"no_op,omitempty"`
	Actions []ActionOutcome `json:"actions,omitempty"`
}

// transitionPlan is a validated transition ready to be applied.
type transitionPlan struct {
	deal       *models.Deal
	version    *models.WorkflowVersion
	catalog    *catalog.Catalog
	target     *template.Status
	guard      *GuardContext
	validation TransitionValidation
}

// TransitionDeal validates and applies a status change. Rejections are
// returned as *TransitionError, a lost race as ErrTransitionConflict. When the
// audit entry cannot be written the result is returned together with an
// error wrapping ErrAuditUnconfirmed.
func (s *Service) TransitionDeal(ctx context.Context, input TransitionInput) (*TransitionResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "workflow.transition",
		attribute.String(otelhelper.DealIDKey, input.DealID),
		attribute.String(otelhelper.ToStatusKey, input.TargetStatus),
		attribute.String(otelhelper.ActorRoleKey, input.ActorRole),
	)
	defer span.End()

	result, err := s.transition(ctx, input)
	if err != nil && !IsTransitionError(err) {
		otelhelper.SetError(span, err)
	}

	return result, err
}

func (s *Service) transition(ctx context.Context, input TransitionInput) (*TransitionResult, error) {
	logger := s.logger.With("deal_id", input.DealID, "to", input.TargetStatus, "actor_role", input.ActorRole)

	p, err := s.planTransition(ctx, input)
	if err != nil {
		return nil, err
	}

	from := p.deal.Status

	if from == input.TargetStatus && from == models.StatusCancelled {
		return &TransitionResult{Deal: p.deal, From: from, To: from, NoOp: true}, nil
	}

	if !p.validation.Allowed {
		logger.InfoContext(ctx, "Transition rejected", "from", from, "reason", p.validation.Reason)

		return nil, newTransitionError(p.validation)
	}

	updated, err := s.persistence.DealRepository().UpdateDealStatus(ctx, persistence.UpdateDealStatusInput{
		DealID:            p.deal.ID,
		PreviousStatus:    from,
		Status:            input.TargetStatus,
		WorkflowVersionID: p.version.ID,
	})
	if err != nil {
		if persistence.IsDealStatusConflict(err) {
			logger.WarnContext(ctx, "Transition lost a concurrent update", "from", from)

			return nil, fmt.Errorf("%w: deal %s left %s", ErrTransitionConflict, p.deal.ID, from)
		}

		return nil, fmt.Errorf("failed to update deal status: %w", err)
	}

	by := actor{Role: input.ActorRole, ID: input.ActorID}
	actions := s.executeEntryActions(ctx, updated, p.catalog, p.target, p.version.ID, by)

	result := &TransitionResult{Deal: updated, From: from, To: updated.Status, Actions: actions}

	auditErr := s.persistence.AuditLogger().LogTransition(ctx, &models.AuditEntry{
		DealID:            updated.ID,
		ActorID:           input.ActorID,
		ActorRole:         input.ActorRole,
		FromStatus:        from,
		ToStatus:          updated.Status,
		WorkflowVersionID: p.version.ID,
		Context:           auditContext(p, input, actions),
	})

	s.publish(ctx, updated.ID, events.DealTransitioned{
		BaseEvent:         events.NewBaseEvent(events.DealTransitionedEvent, updated.ID, updated.WorkflowID),
		From:              from,
		To:                updated.Status,
		ActorRole:         input.ActorRole,
		ActorID:           input.ActorID,
		WorkflowVersionID: p.version.ID,
		TransitionSeq:     updated.TransitionSeq,
	})

	if auditErr != nil {
		logger.ErrorContext(ctx, "Transition persisted without audit entry", "from", from, "error", auditErr)

		return result, fmt.Errorf("%w: %w", ErrAuditUnconfirmed, auditErr)
	}

	logger.InfoContext(ctx, "Deal transitioned", "from", from, "seq", updated.TransitionSeq)

	return result, nil
}

// ValidateTransition runs every check of TransitionDeal without changing
// anything.
func (s *Service) ValidateTransition(ctx context.Context, input TransitionInput) (TransitionValidation, error) {
	p, err := s.planTransition(ctx, input)
	if err != nil {
		return TransitionValidation{}, err
	}

	return p.validation, nil
}

// planTransition loads the deal and its catalog and evaluates the transition.
func (s *Service) planTransition(ctx context.Context, input TransitionInput) (*transitionPlan, error) {
	deal, err := s.persistence.DealRepository().GetDealByID(ctx, input.DealID)
	if err != nil {
		return nil, err
	}

	version, cat, err := s.versions.ActiveCatalog(ctx, deal.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workflow for deal %s: %w", deal.ID, err)
	}

	p := &transitionPlan{
		deal:    deal,
		version: version,
		catalog: cat,
		validation: TransitionValidation{
			From: deal.Status,
			To:   input.TargetStatus,
		},
	}

	reject := func(reason Reason, message string, failed []FailedRequirement) (*transitionPlan, error) {
		p.validation.Reason = reason
		p.validation.Message = message
		p.validation.FailedRequirements = failed

		return p, nil
	}

	if _, ok := cat.Status(deal.Status); !ok {
		return reject(ReasonUnknownStatus, fmt.Sprintf("deal status %s is not part of workflow %s", deal.Status, cat.WorkflowID()), nil)
	}

	target, ok := cat.Status(input.TargetStatus)
	if !ok {
		return reject(ReasonUnknownStatus, fmt.Sprintf("status %s is not part of workflow %s", input.TargetStatus, cat.WorkflowID()), nil)
	}

	p.target = target

	if cat.IsTerminal(deal.Status) {
		return reject(ReasonTerminalStatus, fmt.Sprintf("deal is in terminal status %s", deal.Status), nil)
	}

	requirements := cat.ExitRequirements(deal.Status)

	guard, err := s.assembleGuardContext(ctx, deal, input.GuardContext, requirements)
	if err != nil {
		return nil, err
	}

	p.guard = guard

	if failed := checkRequirements(cat, guard, requirements); len(failed) > 0 {
		return reject(ReasonExitRequirementFailed, failed[0].Message, failed)
	}

	transition, ok := cat.Transition(deal.Status, input.TargetStatus)
	if !ok {
		return reject(ReasonUnknownTransition, fmt.Sprintf("no transition from %s to %s", deal.Status, input.TargetStatus), nil)
	}

	if !transition.AllowsRole(input.ActorRole) {
		return reject(ReasonRoleNotAllowed, fmt.Sprintf("role %q may not move a deal from %s to %s", input.ActorRole, deal.Status, input.TargetStatus), nil)
	}

	if failed := checkGuards(guard, transition.Guards); len(failed) > 0 {
		return reject(ReasonGuardFailed, failed[0].Message, failed)
	}

	p.validation.Allowed = true

	return p, nil
}

// AvailableTransitions lists the edges leaving the deal's status that role
// may take, regardless of guards.
func (s *Service) AvailableTransitions(ctx context.Context, dealID, role string) ([]template.Transition, error) {
	deal, err := s.persistence.DealRepository().GetDealByID(ctx, dealID)
	if err != nil {
		return nil, err
	}

	_, cat, err := s.versions.ActiveCatalog(ctx, deal.WorkflowID)
	if err != nil {
		return nil, err
	}

	if role == "" {
		return cat.TransitionsFrom(deal.Status), nil
	}

	return cat.AvailableTransitions(deal.Status, role), nil
}

func auditContext(p *transitionPlan, input TransitionInput, actions []ActionOutcome) map[string]any {
	details := map[string]any{}

	if len(input.GuardContext) > 0 {
		details["guard_context"] = input.GuardContext
	}

	if input.Comment != "" {
		details["comment"] = input.Comment
	}

	if transition, ok := p.catalog.Transition(p.deal.Status, input.TargetStatus); ok && len(transition.Guards) > 0 {
		guards := make(map[string]any, len(transition.Guards))
		for _, condition := range transition.Guards {
			guards[condition.Key] = p.guard.Field(condition.Key)
		}

		details["guards"] = guards
	}

	if len(actions) > 0 {
		hashes := make([]string, 0, len(actions))
		for _, action := range actions {
			hashes = append(hashes, action.Hash)
		}

		details["actions"] = hashes
	}

	return details
}

// publish sends event on the bus. Publishing is best effort: the deal state
// is already persisted.
func (s *Service) publish(ctx context.Context, dealID string, event eventbus.Event) {
	if s.publisher == nil {
		return
	}

	if err := s.publisher.Publish(ctx, dealID, event); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish event", "deal_id", dealID, "event_type", event.GetType(), "error", err)
	}
}
