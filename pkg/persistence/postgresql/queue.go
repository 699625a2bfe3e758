package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dukex/dealflow/pkg/models"
	"github.com/dukex/dealflow/pkg/persistence"
	"github.com/google/uuid"
)

const queueColumns = `id, deal_id, kind, target, to_roles, cron, payload, COALESCE(action_hash, ''), status, error,
	attempts, due_at, created_at, processed_at`

var queueTables = map[models.Queue]string{
	models.QueueNotifications: "workflow_notification_queue",
	models.QueueWebhooks:      "workflow_webhook_queue",
	models.QueueSchedules:     "workflow_schedule_queue",
}

// QueueRepository handles the notification, webhook and schedule queue tables.
type QueueRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewQueueRepository creates a new queue repository.
func NewQueueRepository(db *sql.DB, logger *slog.Logger) *QueueRepository {
	return &QueueRepository{db: db, logger: logger}
}

func tableFor(queue models.Queue) (string, error) {
	table, ok := queueTables[queue]
	if !ok {
		return "", fmt.Errorf("unknown queue %q", queue)
	}

	return table, nil
}

func (r *QueueRepository) Enqueue(ctx context.Context, entry *models.QueueEntry) (bool, error) {
	table, err := tableFor(entry.Queue)
	if err != nil {
		return false, err
	}

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	if entry.Status == "" {
		entry.Status = models.QueueStatusPending
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	roles := entry.ToRoles
	if roles == nil {
		roles = []string{}
	}

	toRoles, err := json.Marshal(roles)
	if err != nil {
		return false, fmt.Errorf("failed to marshal queue roles: %w", err)
	}

	payload, err := marshalObject(entry.Payload)
	if err != nil {
		return false, fmt.Errorf("failed to marshal queue payload: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO `+table+` (id, deal_id, kind, target, to_roles, cron, payload, action_hash, status, due_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10, $11)
		ON CONFLICT (action_hash) DO NOTHING
	`,
		entry.ID,
		entry.DealID,
		entry.Kind,
		entry.Target,
		toRoles,
		entry.Cron,
		payload,
		entry.ActionHash,
		entry.Status,
		entry.DueAt,
		entry.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to enqueue into %s: %w", table, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return affected == 1, nil
}

// ClaimPending uses FOR UPDATE SKIP LOCKED so concurrent processors never claim the same row.
func (r *QueueRepository) ClaimPending(ctx context.Context, queue models.Queue, limit int, now time.Time) ([]*models.QueueEntry, error) {
	table, err := tableFor(queue)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		UPDATE `+table+`
		SET status = $1, attempts = attempts + 1
		WHERE id IN (
			SELECT id FROM `+table+`
			WHERE status = $2 AND (due_at IS NULL OR due_at <= $3)
			ORDER BY created_at
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+queueColumns,
		models.QueueStatusProcessing,
		models.QueueStatusPending,
		now,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim %s entries: %w", queue, err)
	}

	entries, err := r.collect(ctx, queue, rows)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})

	return entries, nil
}

func (r *QueueRepository) MarkResult(ctx context.Context, queue models.Queue, id string, status models.QueueStatus, errMessage string) error {
	table, err := tableFor(queue)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, `UPDATE `+table+` SET status = $2, error = $3, processed_at = NOW() WHERE id = $1`, id, status, errMessage)
	if err != nil {
		return fmt.Errorf("failed to mark %s entry %s: %w", queue, id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("queue entry %s: %w", id, persistence.ErrQueueEntryNotFound)
	}

	return nil
}

func (r *QueueRepository) ListByStatus(ctx context.Context, queue models.Queue, status models.QueueStatus, limit int) ([]*models.QueueEntry, error) {
	table, err := tableFor(queue)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + queueColumns + ` FROM ` + table + ` WHERE status = $1 ORDER BY created_at`
	args := []any{status}

	if limit > 0 {
		query += ` LIMIT $2`

		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s entries: %w", queue, err)
	}

	return r.collect(ctx, queue, rows)
}

func (r *QueueRepository) Requeue(ctx context.Context, queue models.Queue, id string) (*models.QueueEntry, error) {
	table, err := tableFor(queue)
	if err != nil {
		return nil, err
	}

	row := r.db.QueryRowContext(ctx, `
		UPDATE `+table+` SET status = $2, error = '', processed_at = NULL
		WHERE id = $1 AND status = $3
		RETURNING `+queueColumns,
		id, models.QueueStatusPending, models.QueueStatusFailed,
	)

	entry, err := scanQueueEntry(row)
	if err == nil {
		entry.Queue = queue

		return entry, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to requeue %s entry %s: %w", queue, id, err)
	}

	var current models.QueueStatus

	err = r.db.QueryRowContext(ctx, `SELECT status FROM `+table+` WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("queue entry %s: %w", id, persistence.ErrQueueEntryNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read %s entry %s: %w", queue, id, err)
	}

	return nil, fmt.Errorf("queue entry %s is %s: %w", id, current, persistence.ErrQueueEntryNotFailed)
}

func (r *QueueRepository) collect(ctx context.Context, queue models.Queue, rows *sql.Rows) ([]*models.QueueEntry, error) {
	defer closeRows(ctx, r.logger, rows)

	entries := make([]*models.QueueEntry, 0)

	for rows.Next() {
		entry, err := scanQueueEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue entry: %w", err)
		}

		entry.Queue = queue
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating queue entries: %w", err)
	}

	return entries, nil
}

func scanQueueEntry(scanner rowScanner) (*models.QueueEntry, error) {
	var (
		entry       models.QueueEntry
		toRoles     []byte
		payload     []byte
		dueAt       sql.NullTime
		processedAt sql.NullTime
	)

	err := scanner.Scan(
		&entry.ID,
		&entry.DealID,
		&entry.Kind,
		&entry.Target,
		&toRoles,
		&entry.Cron,
		&payload,
		&entry.ActionHash,
		&entry.Status,
		&entry.Error,
		&entry.Attempts,
		&dueAt,
		&entry.CreatedAt,
		&processedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(toRoles) > 0 {
		err = json.Unmarshal(toRoles, &entry.ToRoles)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal queue roles: %w", err)
		}
	}

	entry.Payload, err = unmarshalObject(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal queue payload: %w", err)
	}

	entry.DueAt = timePtr(dueAt)
	entry.ProcessedAt = timePtr(processedAt)

	return &entry, nil
}
