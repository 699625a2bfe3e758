package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/dealflow/pkg/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// IntegrationRepository stores payments and credit bureau reports.
type IntegrationRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewIntegrationRepository(db *sql.DB, logger *slog.Logger) *IntegrationRepository {
	return &IntegrationRepository{db: db, logger: logger}
}

func (r *IntegrationRepository) InsertPayment(ctx context.Context, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}

	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}

	amount := decimal.NullDecimal{}
	if payment.Amount != nil {
		amount = decimal.NewNullDecimal(*payment.Amount)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payments (id, deal_id, kind, status, amount, currency, external_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		payment.ID,
		payment.DealID,
		payment.Kind,
		payment.Status,
		amount,
		payment.Currency,
		payment.ExternalRef,
		payment.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}

	return nil
}

func (r *IntegrationRepository) ListPayments(ctx context.Context, dealID string) ([]*models.Payment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, deal_id, kind, status, amount, currency, external_ref, created_at
		FROM payments
		WHERE deal_id = $1
		ORDER BY created_at
	`, dealID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	payments := make([]*models.Payment, 0)

	for rows.Next() {
		var (
			payment models.Payment
			amount  decimal.NullDecimal
		)

		err := rows.Scan(
			&payment.ID,
			&payment.DealID,
			&payment.Kind,
			&payment.Status,
			&amount,
			&payment.Currency,
			&payment.ExternalRef,
			&payment.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}

		if amount.Valid {
			payment.Amount = &amount.Decimal
		}

		payments = append(payments, &payment)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payments: %w", err)
	}

	return payments, nil
}

func (r *IntegrationRepository) InsertRiskReport(ctx context.Context, report *models.RiskReport) error {
	if report.ID == "" {
		report.ID = uuid.NewString()
	}

	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO risk_reports (id, deal_id, provider, score, approved, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		report.ID,
		report.DealID,
		report.Provider,
		report.Score,
		report.Approved,
		report.Notes,
		report.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert risk report: %w", err)
	}

	return nil
}
