package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/dealflow/pkg/models"
	"github.com/dukex/dealflow/pkg/persistence"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const dealColumns = `id, workflow_id, workflow_version_id, status, payload, transition_seq, created_at, updated_at`

// DealRepository handles deal-related database operations.
type DealRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewDealRepository creates a new deal repository.
func NewDealRepository(db *sql.DB, logger *slog.Logger) *DealRepository {
	return &DealRepository{db: db, logger: logger}
}

func (r *DealRepository) GetDealByID(ctx context.Context, id string) (*models.Deal, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+dealColumns+` FROM deals WHERE id = $1`, id)

	deal, err := scanDeal(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewDealError("GetDealByID", id, persistence.ErrDealNotFound)
		}

		return nil, persistence.NewDealError("GetDealByID", id, err)
	}

	return deal, nil
}

func (r *DealRepository) CreateDeal(ctx context.Context, deal *models.Deal) error {
	if deal.ID == "" {
		deal.ID = uuid.NewString()
	}

	now := time.Now().UTC()
	if deal.CreatedAt.IsZero() {
		deal.CreatedAt = now
	}

	deal.UpdatedAt = now

	payload, err := marshalObject(deal.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal deal payload: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO deals (`+dealColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		deal.ID,
		deal.WorkflowID,
		deal.WorkflowVersionID,
		deal.Status,
		payload,
		deal.TransitionSeq,
		deal.CreatedAt,
		deal.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.NewDealError("CreateDeal", deal.ID, persistence.ErrDealAlreadyExists)
		}

		return persistence.NewDealError("CreateDeal", deal.ID, err)
	}

	return nil
}

func (r *DealRepository) UpdateDealStatus(ctx context.Context, input persistence.UpdateDealStatusInput) (*models.Deal, error) {
	if len(input.PayloadPatch) > 0 {
		return r.updateDealStatusWithPayload(ctx, input)
	}

	row := r.db.QueryRowContext(ctx, `
		UPDATE deals
		SET status = $3,
			workflow_version_id = COALESCE(NULLIF($4, ''), workflow_version_id),
			transition_seq = transition_seq + 1,
			updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING `+dealColumns,
		input.DealID,
		input.PreviousStatus,
		input.Status,
		input.WorkflowVersionID,
	)

	deal, err := scanDeal(row)
	if err == nil {
		return deal, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewDealError("UpdateDealStatus", input.DealID, err)
	}

	// Zero rows: either the deal is gone or it left PreviousStatus.
	_, getErr := r.GetDealByID(ctx, input.DealID)
	if getErr != nil {
		return nil, getErr
	}

	return nil, persistence.NewDealError("UpdateDealStatus", input.DealID, persistence.ErrDealStatusConflict)
}

// updateDealStatusWithPayload locks the row so the payload merge and the
// status change land in one commit.
func (r *DealRepository) updateDealStatusWithPayload(ctx context.Context, input persistence.UpdateDealStatusInput) (*models.Deal, error) {
	transaction, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		_ = transaction.Rollback()
	}()

	deal, err := scanDeal(transaction.QueryRowContext(ctx, `SELECT `+dealColumns+` FROM deals WHERE id = $1 FOR UPDATE`, input.DealID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewDealError("UpdateDealStatus", input.DealID, persistence.ErrDealNotFound)
		}

		return nil, persistence.NewDealError("UpdateDealStatus", input.DealID, err)
	}

	if deal.Status != input.PreviousStatus {
		return nil, persistence.NewDealError("UpdateDealStatus", input.DealID, persistence.ErrDealStatusConflict)
	}

	deal.Status = input.Status
	if input.WorkflowVersionID != "" {
		deal.WorkflowVersionID = input.WorkflowVersionID
	}

	deal.Payload = models.MergePayload(deal.Payload, input.PayloadPatch)
	deal.TransitionSeq++
	deal.UpdatedAt = time.Now().UTC()

	payload, err := marshalObject(deal.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal deal payload: %w", err)
	}

	_, err = transaction.ExecContext(ctx, `
		UPDATE deals
		SET status = $2, workflow_version_id = $3, transition_seq = $4, payload = $5, updated_at = $6
		WHERE id = $1
	`, deal.ID, deal.Status, deal.WorkflowVersionID, deal.TransitionSeq, payload, deal.UpdatedAt)
	if err != nil {
		return nil, persistence.NewDealError("UpdateDealStatus", input.DealID, err)
	}

	err = transaction.Commit()
	if err != nil {
		return nil, fmt.Errorf("failed to commit status update: %w", err)
	}

	return deal, nil
}

func (r *DealRepository) UpdateDealPayload(ctx context.Context, id string, patch map[string]any) (*models.Deal, error) {
	transaction, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		_ = transaction.Rollback()
	}()

	deal, err := scanDeal(transaction.QueryRowContext(ctx, `SELECT `+dealColumns+` FROM deals WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewDealError("UpdateDealPayload", id, persistence.ErrDealNotFound)
		}

		return nil, persistence.NewDealError("UpdateDealPayload", id, err)
	}

	deal.Payload = models.MergePayload(deal.Payload, patch)
	deal.UpdatedAt = time.Now().UTC()

	payload, err := marshalObject(deal.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal deal payload: %w", err)
	}

	_, err = transaction.ExecContext(ctx, `UPDATE deals SET payload = $2, updated_at = $3 WHERE id = $1`, id, payload, deal.UpdatedAt)
	if err != nil {
		return nil, persistence.NewDealError("UpdateDealPayload", id, err)
	}

	err = transaction.Commit()
	if err != nil {
		return nil, fmt.Errorf("failed to commit payload update: %w", err)
	}

	return deal, nil
}

func (r *DealRepository) ListDeals(ctx context.Context, opts persistence.ListDealsOptions) ([]*models.Deal, error) {
	excluded := opts.ExcludeStatuses
	if excluded == nil {
		excluded = []string{}
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+dealColumns+`
		FROM deals
		WHERE NOT (status = ANY($1))
		ORDER BY created_at, id
	`, pq.Array(excluded))
	if err != nil {
		return nil, fmt.Errorf("failed to query deals: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	deals := make([]*models.Deal, 0)

	for rows.Next() {
		deal, err := scanDeal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deal: %w", err)
		}

		deals = append(deals, deal)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deals: %w", err)
	}

	return deals, nil
}

func scanDeal(scanner rowScanner) (*models.Deal, error) {
	var (
		deal    models.Deal
		payload []byte
	)

	err := scanner.Scan(
		&deal.ID,
		&deal.WorkflowID,
		&deal.WorkflowVersionID,
		&deal.Status,
		&payload,
		&deal.TransitionSeq,
		&deal.CreatedAt,
		&deal.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	deal.Payload, err = unmarshalObject(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal deal payload: %w", err)
	}

	return &deal, nil
}
