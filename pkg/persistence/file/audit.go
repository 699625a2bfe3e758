package file

import (
	"context"
	"sort"
	"time"

	"github.com/dukex/dealflow/pkg/models"
	"github.com/google/uuid"
)

const auditCollection = "audit_log"

// AuditLogger appends audit entries as individual files.
type AuditLogger struct {
	st *store
}

func (a *AuditLogger) LogTransition(_ context.Context, entry *models.AuditEntry) error {
	entry.Kind = models.AuditKindTransition

	return a.append(entry)
}

func (a *AuditLogger) LogAction(_ context.Context, entry *models.AuditEntry) error {
	entry.Kind = models.AuditKindAction

	return a.append(entry)
}

func (a *AuditLogger) append(entry *models.AuditEntry) error {
	a.st.mu.Lock()
	defer a.st.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	return a.st.write(auditCollection, entry.ID, entry)
}

func (a *AuditLogger) ListByDeal(_ context.Context, dealID string) ([]*models.AuditEntry, error) {
	a.st.mu.Lock()
	defer a.st.mu.Unlock()

	all, err := readAll[models.AuditEntry](a.st, auditCollection)
	if err != nil {
		return nil, err
	}

	entries := make([]*models.AuditEntry, 0)

	for _, entry := range all {
		if entry.DealID == dealID {
			entries = append(entries, entry)
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})

	return entries, nil
}
