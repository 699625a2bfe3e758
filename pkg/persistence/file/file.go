// Package file provides file-based persistence for deals, workflow versions, tasks and queues.
package file

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/dukex/dealflow/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root string
	st   *store

	dealRepo        *DealRepository
	versionRepo     *WorkflowVersionRepository
	taskRepo        *TaskRepository
	queueRepo       *QueueRepository
	auditLogger     *AuditLogger
	documentRepo    *DocumentRepository
	integrationRepo *IntegrationRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) persistence.Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)
	st := &store{root: cleanRoot, mu: &sync.Mutex{}}

	return &Persistence{
		root:            cleanRoot,
		st:              st,
		dealRepo:        &DealRepository{st: st},
		versionRepo:     &WorkflowVersionRepository{st: st},
		taskRepo:        &TaskRepository{st: st},
		queueRepo:       &QueueRepository{st: st},
		auditLogger:     &AuditLogger{st: st},
		documentRepo:    &DocumentRepository{st: st},
		integrationRepo: &IntegrationRepository{st: st},
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) DealRepository() persistence.DealRepository {
	return fp.dealRepo
}

func (fp *Persistence) WorkflowVersionRepository() persistence.WorkflowVersionRepository {
	return fp.versionRepo
}

func (fp *Persistence) TaskRepository() persistence.TaskRepository {
	return fp.taskRepo
}

func (fp *Persistence) QueueRepository() persistence.QueueRepository {
	return fp.queueRepo
}

func (fp *Persistence) AuditLogger() persistence.AuditLogger {
	return fp.auditLogger
}

func (fp *Persistence) DocumentRepository() persistence.DocumentRepository {
	return fp.documentRepo
}

func (fp *Persistence) IntegrationRepository() persistence.IntegrationRepository {
	return fp.integrationRepo
}
