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

const versionColumns = `id, workflow_id, version, title, description, source_yaml, checksum, is_active, created_by, created_at`

// WorkflowVersionRepository handles workflow version database operations.
type WorkflowVersionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowVersionRepository creates a new workflow version repository.
func NewWorkflowVersionRepository(db *sql.DB, logger *slog.Logger) *WorkflowVersionRepository {
	return &WorkflowVersionRepository{db: db, logger: logger}
}

// Insert stores a version; an active insert deactivates the others in the same transaction.
func (r *WorkflowVersionRepository) Insert(ctx context.Context, input persistence.InsertVersionInput) (*models.WorkflowVersion, error) {
	version := &models.WorkflowVersion{
		ID:          uuid.NewString(),
		WorkflowID:  input.WorkflowID,
		Version:     input.Version,
		Title:       input.Title,
		Description: input.Description,
		SourceYAML:  input.SourceYAML,
		Checksum:    input.Checksum,
		IsActive:    input.IsActive,
		CreatedBy:   input.CreatedBy,
		CreatedAt:   time.Now().UTC(),
	}

	transaction, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		_ = transaction.Rollback()
	}()

	if version.IsActive {
		_, err = transaction.ExecContext(ctx, `UPDATE workflow_versions SET is_active = false WHERE workflow_id = $1 AND is_active`, version.WorkflowID)
		if err != nil {
			return nil, fmt.Errorf("failed to deactivate workflow versions: %w", err)
		}
	}

	_, err = transaction.ExecContext(ctx, `
		INSERT INTO workflow_versions (`+versionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		version.ID,
		version.WorkflowID,
		version.Version,
		version.Title,
		version.Description,
		version.SourceYAML,
		version.Checksum,
		version.IsActive,
		version.CreatedBy,
		version.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &persistence.VersionError{Op: "Insert", WorkflowID: version.WorkflowID, Err: persistence.ErrVersionAlreadyExists}
		}

		return nil, fmt.Errorf("failed to insert workflow version: %w", err)
	}

	err = transaction.Commit()
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &persistence.VersionError{Op: "Insert", WorkflowID: version.WorkflowID, Err: persistence.ErrVersionAlreadyExists}
		}

		return nil, fmt.Errorf("failed to commit workflow version: %w", err)
	}

	return version, nil
}

func (r *WorkflowVersionRepository) List(ctx context.Context, workflowID string) ([]*models.WorkflowVersion, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+versionColumns+`
		FROM workflow_versions
		WHERE workflow_id = $1
		ORDER BY created_at DESC
	`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow versions: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	versions := make([]*models.WorkflowVersion, 0)

	for rows.Next() {
		version, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow version: %w", err)
		}

		versions = append(versions, version)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow versions: %w", err)
	}

	return versions, nil
}

func (r *WorkflowVersionRepository) FindActive(ctx context.Context, workflowID string) (*models.WorkflowVersion, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+versionColumns+` FROM workflow_versions WHERE workflow_id = $1 AND is_active`, workflowID)

	return r.one(row, &persistence.VersionError{Op: "FindActive", WorkflowID: workflowID})
}

func (r *WorkflowVersionRepository) FindByVersion(ctx context.Context, workflowID, label string) (*models.WorkflowVersion, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+versionColumns+` FROM workflow_versions WHERE workflow_id = $1 AND version = $2`, workflowID, label)

	return r.one(row, &persistence.VersionError{Op: "FindByVersion", WorkflowID: workflowID, VersionID: label})
}

func (r *WorkflowVersionRepository) FindByID(ctx context.Context, id string) (*models.WorkflowVersion, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+versionColumns+` FROM workflow_versions WHERE id = $1`, id)

	return r.one(row, &persistence.VersionError{Op: "FindByID", VersionID: id})
}

// MarkActive deactivates then activates inside one transaction.
func (r *WorkflowVersionRepository) MarkActive(ctx context.Context, workflowID, versionID string) (*models.WorkflowVersion, error) {
	transaction, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		_ = transaction.Rollback()
	}()

	_, err = transaction.ExecContext(ctx, `UPDATE workflow_versions SET is_active = false WHERE workflow_id = $1 AND is_active AND id <> $2`, workflowID, versionID)
	if err != nil {
		return nil, fmt.Errorf("failed to deactivate workflow versions: %w", err)
	}

	row := transaction.QueryRowContext(ctx, `
		UPDATE workflow_versions SET is_active = true
		WHERE workflow_id = $1 AND id = $2
		RETURNING `+versionColumns,
		workflowID, versionID,
	)

	version, err := r.one(row, &persistence.VersionError{Op: "MarkActive", WorkflowID: workflowID, VersionID: versionID})
	if err != nil {
		return nil, err
	}

	err = transaction.Commit()
	if err != nil {
		return nil, fmt.Errorf("failed to commit version activation: %w", err)
	}

	return version, nil
}

func (r *WorkflowVersionRepository) one(row *sql.Row, notFound *persistence.VersionError) (*models.WorkflowVersion, error) {
	version, err := scanVersion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			notFound.Err = persistence.ErrVersionNotFound

			return nil, notFound
		}

		return nil, fmt.Errorf("failed to scan workflow version: %w", err)
	}

	return version, nil
}

func scanVersion(scanner rowScanner) (*models.WorkflowVersion, error) {
	var version models.WorkflowVersion

	err := scanner.Scan(
		&version.ID,
		&version.WorkflowID,
		&version.Version,
		&version.Title,
		&version.Description,
		&version.SourceYAML,
		&version.Checksum,
		&version.IsActive,
		&version.CreatedBy,
		&version.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &version, nil
}
