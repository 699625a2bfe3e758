package workflow

import (
	"context"
	"fmt"

	"github.com/dukex/dealflow/pkg/events"
	"github.com/dukex/dealflow/pkg/models"
	"github.com/dukex/dealflow/pkg/otelhelper"
	"github.com/dukex/dealflow/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

type ResyncResult struct {
	DealID            string          `json:"deal_id"`
	Status            string          `json:"status"`
	WorkflowVersionID string          `json:"workflow_version_id"`
	Inserted          int             `json:"inserted"`
	Actions           []ActionOutcome `json:"actions"`
}

type ResyncError struct {
	DealID string `json:"deal_id"`
	Error  string `json:"error"`
}

type BulkResyncResult struct {
	Total     int            `json:"total"`
	Processed int            `json:"processed"`
	Failed    int            `json:"failed"`
	Results   []ResyncResult `json:"results"`
	Errors    []ResyncError  `json:"errors"`
}

// ResyncDeal re-runs the entry actions of the deal's current status against
// the active workflow version. Actions that already ran are skipped by their
// hash; status and version are left untouched.
func (s *Service) ResyncDeal(ctx context.Context, dealID string) (*ResyncResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "workflow.resync",
		attribute.String(otelhelper.DealIDKey, dealID),
	)
	defer span.End()

	result, err := s.resync(ctx, dealID)
	if err != nil {
		otelhelper.SetError(span, err)
	}

	return result, err
}

func (s *Service) resync(ctx context.Context, dealID string) (*ResyncResult, error) {
	deal, err := s.persistence.DealRepository().GetDealByID(ctx, dealID)
	if err != nil {
		return nil, err
	}

	version, cat, err := s.versions.ActiveCatalog(ctx, deal.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workflow for deal %s: %w", deal.ID, err)
	}

	status, ok := cat.Status(deal.Status)
	if !ok {
		return nil, fmt.Errorf("deal %s is in status %s which workflow %s does not define", deal.ID, deal.Status, cat.WorkflowID())
	}

	actions := s.executeEntryActions(ctx, deal, cat, status, version.ID, actor{Role: "SYSTEM"})

	result := &ResyncResult{
		DealID:            deal.ID,
		Status:            deal.Status,
		WorkflowVersionID: version.ID,
		Actions:           actions,
	}

	for _, action := range actions {
		if action.Inserted {
			result.Inserted++
		}
	}

	s.publish(ctx, deal.ID, events.DealResynced{
		BaseEvent:         events.NewBaseEvent(events.DealResyncedEvent, deal.ID, deal.WorkflowID),
		Status:            deal.Status,
		WorkflowVersionID: version.ID,
		ActionsInserted:   result.Inserted,
	})

	s.logger.InfoContext(ctx, "Deal resynced", "deal_id", deal.ID, "status", deal.Status, "inserted", result.Inserted)

	return result, nil
}

// ResyncAll resyncs every deal that is not cancelled. A failing deal is
// recorded in Errors and does not stop the others.
func (s *Service) ResyncAll(ctx context.Context) (*BulkResyncResult, error) {
	deals, err := s.persistence.DealRepository().ListDeals(ctx, persistence.ListDealsOptions{
		ExcludeStatuses: []string{models.StatusCancelled},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list deals: %w", err)
	}

	results := make([]*ResyncResult, len(deals))
	failures := make([]error, len(deals))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.resyncConcurrency)

	for i, deal := range deals {
		group.Go(func() error {
			results[i], failures[i] = s.ResyncDeal(groupCtx, deal.ID)

			return nil
		})
	}

	_ = group.Wait()

	bulk := &BulkResyncResult{
		Total:   len(deals),
		Results: make([]ResyncResult, 0, len(deals)),
		Errors:  make([]ResyncError, 0),
	}

	for i, deal := range deals {
		if failures[i] != nil {
			s.logger.ErrorContext(ctx, "Resync failed", "deal_id", deal.ID, "error", failures[i])
			bulk.Errors = append(bulk.Errors, ResyncError{DealID: deal.ID, Error: failures[i].Error()})

			continue
		}

		bulk.Results = append(bulk.Results, *results[i])
	}

	bulk.Processed = len(bulk.Results)
	bulk.Failed = len(bulk.Errors)

	return bulk, nil
}
