package file

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/dukex/dealflow/pkg/models"
	"github.com/dukex/dealflow/pkg/persistence"
	"github.com/google/uuid"
)

const dealsCollection = "deals"

// DealRepository handles deal-related file operations.
type DealRepository struct {
	st *store
}

func (r *DealRepository) GetDealByID(_ context.Context, id string) (*models.Deal, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	return r.get("GetDealByID", id)
}

func (r *DealRepository) get(op, id string) (*models.Deal, error) {
	deal, found, err := read[models.Deal](r.st, dealsCollection, id)
	if err != nil {
		return nil, persistence.NewDealError(op, id, err)
	}

	if !found {
		return nil, persistence.NewDealError(op, id, persistence.ErrDealNotFound)
	}

	return deal, nil
}

func (r *DealRepository) CreateDeal(_ context.Context, deal *models.Deal) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	if deal.ID == "" {
		deal.ID = uuid.NewString()
	}

	_, found, err := read[models.Deal](r.st, dealsCollection, deal.ID)
	if err != nil {
		return persistence.NewDealError("CreateDeal", deal.ID, err)
	}

	if found {
		return persistence.NewDealError("CreateDeal", deal.ID, persistence.ErrDealAlreadyExists)
	}

	now := time.Now().UTC()
	if deal.CreatedAt.IsZero() {
		deal.CreatedAt = now
	}

	deal.UpdatedAt = now

	if deal.Payload == nil {
		deal.Payload = map[string]any{}
	}

	return r.st.write(dealsCollection, deal.ID, deal)
}

func (r *DealRepository) UpdateDealStatus(_ context.Context, input persistence.UpdateDealStatusInput) (*models.Deal, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	deal, err := r.get("UpdateDealStatus", input.DealID)
	if err != nil {
		return nil, err
	}

	if deal.Status != input.PreviousStatus {
		return nil, persistence.NewDealError("UpdateDealStatus", input.DealID, persistence.ErrDealStatusConflict)
	}

	deal.Status = input.Status
	if input.WorkflowVersionID != "" {
		deal.WorkflowVersionID = input.WorkflowVersionID
	}

	if len(input.PayloadPatch) > 0 {
		deal.Payload = models.MergePayload(deal.Payload, input.PayloadPatch)
	}

	deal.TransitionSeq++
	deal.UpdatedAt = time.Now().UTC()

	err = r.st.write(dealsCollection, deal.ID, deal)
	if err != nil {
		return nil, persistence.NewDealError("UpdateDealStatus", input.DealID, err)
	}

	return deal, nil
}

func (r *DealRepository) UpdateDealPayload(_ context.Context, id string, patch map[string]any) (*models.Deal, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	deal, err := r.get("UpdateDealPayload", id)
	if err != nil {
		return nil, err
	}

	deal.Payload = models.MergePayload(deal.Payload, patch)
	deal.UpdatedAt = time.Now().UTC()

	err = r.st.write(dealsCollection, deal.ID, deal)
	if err != nil {
		return nil, persistence.NewDealError("UpdateDealPayload", id, err)
	}

	return deal, nil
}

func (r *DealRepository) ListDeals(_ context.Context, opts persistence.ListDealsOptions) ([]*models.Deal, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	deals, err := readAll[models.Deal](r.st, dealsCollection)
	if err != nil {
		return nil, err
	}

	filtered := make([]*models.Deal, 0, len(deals))

	for _, deal := range deals {
		if slices.Contains(opts.ExcludeStatuses, deal.Status) {
			continue
		}

		filtered = append(filtered, deal)
	}

	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].CreatedAt.Equal(filtered[j].CreatedAt) {
			return filtered[i].ID < filtered[j].ID
		}

		return filtered[i].CreatedAt.Before(filtered[j].CreatedAt)
	})

	return filtered, nil
}
