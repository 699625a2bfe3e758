// Package postgresql provides PostgreSQL persistence for deals, workflow versions, tasks and queues.
package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/dealflow/pkg/persistence"
	"github.com/dukex/dealflow/pkg/persistence/sqlbase"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger

	dealRepo        *DealRepository
	versionRepo     *WorkflowVersionRepository
	taskRepo        *TaskRepository
	queueRepo       *QueueRepository
	auditLogger     *AuditLogger
	documentRepo    *DocumentRepository
	integrationRepo *IntegrationRepository
}

// NewPersistence creates a new PostgreSQL persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:              database,
		logger:          logger,
		dealRepo:        NewDealRepository(database, logger),
		versionRepo:     NewWorkflowVersionRepository(database, logger),
		taskRepo:        NewTaskRepository(database, logger),
		queueRepo:       NewQueueRepository(database, logger),
		auditLogger:     NewAuditLogger(database, logger),
		documentRepo:    NewDocumentRepository(database, logger),
		integrationRepo: NewIntegrationRepository(database, logger),
	}, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) DealRepository() persistence.DealRepository {
	return p.dealRepo
}

func (p *Persistence) WorkflowVersionRepository() persistence.WorkflowVersionRepository {
	return p.versionRepo
}

func (p *Persistence) TaskRepository() persistence.TaskRepository {
	return p.taskRepo
}

func (p *Persistence) QueueRepository() persistence.QueueRepository {
	return p.queueRepo
}

func (p *Persistence) AuditLogger() persistence.AuditLogger {
	return p.auditLogger
}

func (p *Persistence) DocumentRepository() persistence.DocumentRepository {
	return p.documentRepo
}

func (p *Persistence) IntegrationRepository() persistence.IntegrationRepository {
	return p.integrationRepo
}

type rowScanner interface {
	Scan(dest ...any) error
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error

	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// marshalObject encodes a JSONB column; nil maps are stored as {}.
func marshalObject(value map[string]any) ([]byte, error) {
	if value == nil {
		return []byte("{}"), nil
	}

	return json.Marshal(value)
}

func unmarshalObject(data []byte) (map[string]any, error) {
	result := map[string]any{}
	if len(data) == 0 {
		return result, nil
	}

	err := json.Unmarshal(data, &result)
	if err != nil {
		return nil, err
	}

	return result, nil
}

func timePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}

	t := value.Time.UTC()

	return &t
}

func closeRows(ctx context.Context, logger *slog.Logger, rows *sql.Rows) {
	if closeErr := rows.Close(); closeErr != nil {
		logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
	}
}
