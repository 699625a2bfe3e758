// Package integrations applies inbound e-sign, bank and credit bureau events
// to deals and attempts the transitions those events unlock.
package integrations

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/dealflow/pkg/models"
	"github.com/dukex/dealflow/pkg/persistence"
	"github.com/dukex/dealflow/pkg/template"
	"github.com/dukex/dealflow/pkg/versioning"
	"github.com/dukex/dealflow/pkg/workflow"
	"github.com/shopspring/decimal"
)

const (
	EventESignCompleted = "esign.completed"
	EventESignDeclined  = "esign.declined"
	EventBankPayment    = "bank.payment"
	EventAECBReport     = "aecb.report"

	DefaultCurrency = "AED"
	aecbProvider    = "AECB"
)

// Transitioner is the part of the workflow service integrations need.
type Transitioner interface {
	TransitionDeal(ctx context.Context, input workflow.TransitionInput) (*workflow.TransitionResult, error)
}

type Service struct {
	persistence persistence.Persistence
	versions    *versioning.Service
	workflow    Transitioner
	logger      *slog.Logger
	now         func() time.Time
}

func NewService(
	persistence persistence.Persistence,
	versions *versioning.Service,
	transitioner Transitioner,
	logger *slog.Logger,
) *Service {
	return &Service{
		persistence: persistence,
		versions:    versions,
		workflow:    transitioner,
		logger:      logger.With("module", "integrations"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Outcome describes what an inbound event did to its deal.
type Outcome struct {
	DealFound bool   `json:"deal_found"`
	Event     string `json:"event"`

	// Attempted is set when a webhook rule of the deal's status matched.
	Attempted    bool   `json:"attempted"`
	Transitioned bool   `json:"transitioned"`
	To           string `json:"to,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

type ESignInput struct {
	DealID     string
	Status     string
	EnvelopeID string
}

// HandleESign records an e-signature envelope result.
func (s *Service) HandleESign(ctx context.Context, input ESignInput) (*Outcome, error) {
	event := EventESignDeclined
	if input.Status == "COMPLETED" {
		event = EventESignCompleted
	}

	esign := map[string]any{
		"status":    input.Status,
		"allSigned": input.Status == "COMPLETED",
	}

	if input.EnvelopeID != "" {
		esign["envelopeId"] = input.EnvelopeID
	}

	return s.apply(ctx, input.DealID, event, nil, map[string]any{"esign": esign})
}

type BankPaymentInput struct {
	DealID      string
	Kind        models.PaymentKind
	Status      models.PaymentStatus
	Amount      *decimal.Decimal
	Currency    string
	ExternalRef string
}

// HandleBankPayment stores the payment and recomputes the deal's payment
// flags from every payment recorded for it.
func (s *Service) HandleBankPayment(ctx context.Context, input BankPaymentInput) (*Outcome, error) {
	currency := input.Currency
	if currency == "" {
		currency = DefaultCurrency
	}

	record := func(ctx context.Context, deal *models.Deal) (map[string]any, error) {
		err := s.persistence.IntegrationRepository().InsertPayment(ctx, &models.Payment{
			DealID:      deal.ID,
			Kind:        input.Kind,
			Status:      input.Status,
			Amount:      input.Amount,
			Currency:    currency,
			ExternalRef: input.ExternalRef,
			CreatedAt:   s.now(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to store payment: %w", err)
		}

		payments, err := s.persistence.IntegrationRepository().ListPayments(ctx, deal.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list payments: %w", err)
		}

		return map[string]any{"payments": paymentFlags(payments)}, nil
	}

	return s.apply(ctx, input.DealID, EventBankPayment, record, nil)
}

func paymentFlags(payments []*models.Payment) map[string]any {
	var advanceReceived, supplierPaid bool

	for _, payment := range payments {
		if payment.Status != models.PaymentStatusConfirmed {
			continue
		}

		switch payment.Kind {
		case models.PaymentKindAdvance:
			advanceReceived = true
		case models.PaymentKindSupplier:
			supplierPaid = true
		}
	}

	return map[string]any{
		"advanceReceived": advanceReceived,
		"supplierPaid":    supplierPaid,
	}
}

type CreditBureauInput struct {
	DealID    string
	AECBScore int
	Approved  bool
	Notes     string
}

// HandleCreditBureau stores an AECB report and copies its decision onto the deal.
func (s *Service) HandleCreditBureau(ctx context.Context, input CreditBureauInput) (*Outcome, error) {
	record := func(ctx context.Context, deal *models.Deal) (map[string]any, error) {
		err := s.persistence.IntegrationRepository().InsertRiskReport(ctx, &models.RiskReport{
			DealID:    deal.ID,
			Provider:  aecbProvider,
			Score:     input.AECBScore,
			Approved:  input.Approved,
			Notes:     input.Notes,
			CreatedAt: s.now(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to store risk report: %w", err)
		}

		return map[string]any{
			"risk": map[string]any{
				"approved":  input.Approved,
				"aecbScore": input.AECBScore,
			},
		}, nil
	}

	return s.apply(ctx, input.DealID, EventAECBReport, record, nil)
}

type recordFunc func(ctx context.Context, deal *models.Deal) (map[string]any, error)

// apply loads the deal, stores the event's own records, merges the payload
// patch and attempts the matching transition.
func (s *Service) apply(ctx context.Context, dealID, event string, record recordFunc, patch map[string]any) (*Outcome, error) {
	logger := s.logger.With("deal_id", dealID, "event", event)
	outcome := &Outcome{Event: event}

	deal, err := s.persistence.DealRepository().GetDealByID(ctx, dealID)
	if err != nil {
		if persistence.IsDealNotFound(err) {
			logger.InfoContext(ctx, "Integration event for unknown deal ignored")

			return outcome, nil
		}

		return nil, err
	}

	outcome.DealFound = true

	if record != nil {
		recorded, err := record(ctx, deal)
		if err != nil {
			return nil, err
		}

		patch = models.MergePayload(patch, recorded)
	}

	deal, err = s.persistence.DealRepository().UpdateDealPayload(ctx, deal.ID, patch)
	if err != nil {
		return nil, fmt.Errorf("failed to update deal payload: %w", err)
	}

	rule, ok, err := s.matchRule(ctx, deal, event)
	if err != nil {
		return nil, err
	}

	if !ok {
		logger.DebugContext(ctx, "No webhook rule matched", "status", deal.Status)

		return outcome, nil
	}

	outcome.Attempted = true
	outcome.To = rule.TransitionTo

	_, err = s.workflow.TransitionDeal(ctx, workflow.TransitionInput{
		DealID:       deal.ID,
		TargetStatus: rule.TransitionTo,
		ActorRole:    rule.ActorRole,
		ActorID:      "integration:" + event,
		Comment:      "inbound event " + event,
	})

	switch {
	case err == nil:
		outcome.Transitioned = true
	case workflow.IsAuditUnconfirmed(err):
		outcome.Transitioned = true
		outcome.Reason = err.Error()
		logger.WarnContext(ctx, "Webhook transition applied without audit entry", "to", rule.TransitionTo, "error", err)
	case workflow.IsTransitionError(err), workflow.IsTransitionConflict(err):
		outcome.Reason = err.Error()
		logger.WarnContext(ctx, "Webhook transition not applied", "to", rule.TransitionTo, "reason", err)
	default:
		return nil, err
	}

	return outcome, nil
}

// matchRule returns the first on_event rule of the deal's current status for
// event whose conditions hold on the deal payload.
func (s *Service) matchRule(ctx context.Context, deal *models.Deal, event string) (template.WebhookEventRule, bool, error) {
	_, cat, err := s.versions.ActiveCatalog(ctx, deal.WorkflowID)
	if err != nil {
		return template.WebhookEventRule{}, false, fmt.Errorf("failed to resolve workflow for deal %s: %w", deal.ID, err)
	}

	status, ok := cat.Status(deal.Status)
	if !ok {
		return template.WebhookEventRule{}, false, nil
	}

	for _, rule := range status.Webhooks.OnEvent {
		if rule.Event != event || !conditionsHold(rule.Conditions, deal.Payload) {
			continue
		}

		return rule, true, nil
	}

	return template.WebhookEventRule{}, false, nil
}

func conditionsHold(conditions []template.Condition, payload map[string]any) bool {
	for _, condition := range conditions {
		if !condition.Rule.Evaluate(template.ResolvePath(payload, condition.Key)) {
			return false
		}
	}

	return true
}
