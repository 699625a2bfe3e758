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
)

const taskColumns = `id, deal_id, type, status, assignee_role, assignee_user_id, sla_due_at, sla_status, payload,
	COALESCE(action_hash, ''), created_at, updated_at, completed_at`

// TaskRepository handles task-related database operations.
type TaskRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTaskRepository creates a new task repository.
func NewTaskRepository(db *sql.DB, logger *slog.Logger) *TaskRepository {
	return &TaskRepository{db: db, logger: logger}
}

func (r *TaskRepository) InsertIfAbsent(ctx context.Context, task *models.Task) (bool, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}

	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}

	task.UpdatedAt = now

	payload, err := marshalObject(task.Payload)
	if err != nil {
		return false, fmt.Errorf("failed to marshal task payload: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO tasks (
			id, deal_id, type, status, assignee_role, assignee_user_id, sla_due_at, sla_status,
			payload, action_hash, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11, $12)
		ON CONFLICT (action_hash) DO NOTHING
	`,
		task.ID,
		task.DealID,
		task.Type,
		task.Status,
		task.AssigneeRole,
		task.AssigneeUserID,
		task.SLADueAt,
		task.SLAStatus,
		payload,
		task.ActionHash,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert task: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return affected == 1, nil
}

func (r *TaskRepository) GetByID(ctx context.Context, id string) (*models.Task, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)

	return r.one(row, id)
}

func (r *TaskRepository) ListByDeal(ctx context.Context, dealID string) ([]*models.Task, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE deal_id = $1 ORDER BY created_at`, dealID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	tasks := make([]*models.Task, 0)

	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}

		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}

func (r *TaskRepository) UpdateStatus(ctx context.Context, id string, status models.TaskStatus) (*models.Task, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE tasks SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+taskColumns,
		id, status,
	)

	return r.one(row, id)
}

func (r *TaskRepository) Complete(ctx context.Context, input persistence.CompleteTaskInput) (*models.Task, error) {
	completedAt := input.CompletedAt.UTC()
	if input.CompletedAt.IsZero() {
		completedAt = time.Now().UTC()
	}

	patch, err := marshalObject(input.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task payload: %w", err)
	}

	row := r.db.QueryRowContext(ctx, `
		UPDATE tasks
		SET status = $2,
			completed_at = $3,
			updated_at = $3,
			sla_status = CASE WHEN sla_due_at IS NOT NULL AND sla_due_at < $3 THEN $4::text ELSE $5::text END,
			payload = payload || $6::jsonb
		WHERE id = $1
		RETURNING `+taskColumns,
		input.TaskID,
		models.TaskStatusDone,
		completedAt,
		models.SLAStatusLate,
		models.SLAStatusOnTime,
		patch,
	)

	return r.one(row, input.TaskID)
}

func (r *TaskRepository) one(row *sql.Row, id string) (*models.Task, error) {
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("task %s: %w", id, persistence.ErrTaskNotFound)
		}

		return nil, fmt.Errorf("failed to scan task: %w", err)
	}

	return task, nil
}

func scanTask(scanner rowScanner) (*models.Task, error) {
	var (
		task        models.Task
		slaDueAt    sql.NullTime
		completedAt sql.NullTime
		payload     []byte
	)

	err := scanner.Scan(
		&task.ID,
		&task.DealID,
		&task.Type,
		&task.Status,
		&task.AssigneeRole,
		&task.AssigneeUserID,
		&slaDueAt,
		&task.SLAStatus,
		&payload,
		&task.ActionHash,
		&task.CreatedAt,
		&task.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	task.SLADueAt = timePtr(slaDueAt)
	task.CompletedAt = timePtr(completedAt)

	task.Payload, err = unmarshalObject(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal task payload: %w", err)
	}

	return &task, nil
}
