package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/dealflow/pkg/models"
	"github.com/google/uuid"
)

// AuditLogger writes transition and action entries to audit_log.
type AuditLogger struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(db *sql.DB, logger *slog.Logger) *AuditLogger {
	return &AuditLogger{db: db, logger: logger}
}

func (a *AuditLogger) LogTransition(ctx context.Context, entry *models.AuditEntry) error {
	entry.Kind = models.AuditKindTransition

	return a.insert(ctx, entry)
}

func (a *AuditLogger) LogAction(ctx context.Context, entry *models.AuditEntry) error {
	entry.Kind = models.AuditKindAction

	return a.insert(ctx, entry)
}

func (a *AuditLogger) insert(ctx context.Context, entry *models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	auditContext, err := marshalObject(entry.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal audit context: %w", err)
	}

	_, err = a.db.ExecContext(ctx, `
		INSERT INTO audit_log (
			id, deal_id, kind, actor_id, actor_role, from_status, to_status, workflow_version_id, context, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		entry.ID,
		entry.DealID,
		entry.Kind,
		entry.ActorID,
		entry.ActorRole,
		entry.FromStatus,
		entry.ToStatus,
		entry.WorkflowVersionID,
		auditContext,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}

	return nil
}

func (a *AuditLogger) ListByDeal(ctx context.Context, dealID string) ([]*models.AuditEntry, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, deal_id, kind, actor_id, actor_role, from_status, to_status, workflow_version_id, context, created_at
		FROM audit_log
		WHERE deal_id = $1
		ORDER BY created_at
	`, dealID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}

	defer closeRows(ctx, a.logger, rows)

	entries := make([]*models.AuditEntry, 0)

	for rows.Next() {
		var (
			entry        models.AuditEntry
			auditContext []byte
		)

		err := rows.Scan(
			&entry.ID,
			&entry.DealID,
			&entry.Kind,
			&entry.ActorID,
			&entry.ActorRole,
			&entry.FromStatus,
			&entry.ToStatus,
			&entry.WorkflowVersionID,
			&auditContext,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}

		entry.Context, err = unmarshalObject(auditContext)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal audit context: %w", err)
		}

		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit log: %w", err)
	}

	return entries, nil
}
