package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/dukex/dealflow/pkg/models"
	"github.com/dukex/dealflow/pkg/persistence"
	"github.com/dukex/dealflow/pkg/persistence/postgresql"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{
		"risk_reports", "payments", "deal_documents", "audit_log",
		"workflow_schedule_queue", "workflow_webhook_queue", "workflow_notification_queue",
		"tasks", "deals", "workflow_versions", "schema_migrations",
	} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("dealflow_test"),
			postgres.WithUsername("dealflow"),
			postgres.WithPassword("dealflow"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx, databaseURL
}

func createDeal(ctx context.Context, t *testing.T, p *postgresql.Persistence, id, status string) *models.Deal {
	t.Helper()

	deal := &models.Deal{
		ID:         id,
		WorkflowID: "fast-lease-v1",
		Status:     status,
		Payload:    map[string]any{"risk": map[string]any{"approved": false}},
	}

	require.NoError(t, p.DealRepository().CreateDeal(ctx, deal))

	return deal
}

func TestNewPersistence_Migrations(t *testing.T) {
	p, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	for _, table := range []string{"deals", "workflow_versions", "tasks", "workflow_notification_queue", "audit_log", "payments"} {
		var exists bool

		err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "%s table should exist", table)
	}

	var version int

	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 3, version)

	assert.NoError(t, p.HealthCheck(ctx))
}

func TestDealRepository(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.DealRepository()

	createDeal(ctx, t, p, "deal-1", "NEW")
	createDeal(ctx, t, p, "deal-2", models.StatusCancelled)

	loaded, err := repo.GetDealByID(ctx, "deal-1")
	require.NoError(t, err)
	assert.Equal(t, "NEW", loaded.Status)
	assert.Equal(t, int64(0), loaded.TransitionSeq)

	_, err = repo.GetDealByID(ctx, "missing")
	assert.True(t, persistence.IsDealNotFound(err))

	updated, err := repo.UpdateDealStatus(ctx, persistence.UpdateDealStatusInput{
		DealID: "deal-1", PreviousStatus: "NEW", Status: "OFFER_PREP", WorkflowVersionID: "v-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "OFFER_PREP", updated.Status)
	assert.Equal(t, "v-1", updated.WorkflowVersionID)
	assert.Equal(t, int64(1), updated.TransitionSeq)

	_, err = repo.UpdateDealStatus(ctx, persistence.UpdateDealStatusInput{DealID: "deal-1", PreviousStatus: "NEW", Status: "CANCELLED"})
	assert.True(t, persistence.IsDealStatusConflict(err))

	_, err = repo.UpdateDealStatus(ctx, persistence.UpdateDealStatusInput{
		DealID: "deal-1", PreviousStatus: "NEW", Status: "CANCELLED",
		PayloadPatch: map[string]any{"cancelled_reason": "late"},
	})
	assert.True(t, persistence.IsDealStatusConflict(err))

	_, err = repo.UpdateDealStatus(ctx, persistence.UpdateDealStatusInput{DealID: "missing", PreviousStatus: "NEW", Status: "CANCELLED"})
	assert.True(t, persistence.IsDealNotFound(err))

	patched, err := repo.UpdateDealPayload(ctx, "deal-1", map[string]any{"risk": map[string]any{"aecbScore": 710}})
	require.NoError(t, err)

	risk := patched.Payload["risk"].(map[string]any)
	assert.Equal(t, false, risk["approved"])
	assert.EqualValues(t, 710, risk["aecbScore"])

	open, err := repo.ListDeals(ctx, persistence.ListDealsOptions{ExcludeStatuses: []string{models.StatusCancelled}})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "deal-1", open[0].ID)

	all, err := repo.ListDeals(ctx, persistence.ListDealsOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestDealRepository_UpdateDealStatus_PayloadPatch(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	createDeal(ctx, t, p, "deal-1", "NEW")

	repo := p.DealRepository()

	cancelled, err := repo.UpdateDealStatus(ctx, persistence.UpdateDealStatusInput{
		DealID: "deal-1", PreviousStatus: "NEW", Status: "CANCELLED", WorkflowVersionID: "v-2",
		PayloadPatch: map[string]any{"cancelled_reason": "late"},
	})
	require.NoError(t, err)
	assert.Equal(t, "CANCELLED", cancelled.Status)
	assert.Equal(t, int64(1), cancelled.TransitionSeq)

	loaded, err := repo.GetDealByID(ctx, "deal-1")
	require.NoError(t, err)
	assert.Equal(t, "CANCELLED", loaded.Status)
	assert.Equal(t, "v-2", loaded.WorkflowVersionID)
	assert.Equal(t, "late", loaded.Payload["cancelled_reason"])

	_, err = repo.UpdateDealStatus(ctx, persistence.UpdateDealStatusInput{
		DealID: "missing", PreviousStatus: "NEW", Status: "CANCELLED",
		PayloadPatch: map[string]any{"cancelled_reason": "late"},
	})
	assert.True(t, persistence.IsDealNotFound(err))
}

func TestDealRepository_ConcurrentTransitions(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	createDeal(ctx, t, p, "deal-1", "NEW")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)

	for range 6 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := p.DealRepository().UpdateDealStatus(ctx, persistence.UpdateDealStatusInput{
				DealID: "deal-1", PreviousStatus: "NEW", Status: "OFFER_PREP",
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, succeeded)
}

func TestWorkflowVersionRepository(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.WorkflowVersionRepository()

	first, err := repo.Insert(ctx, persistence.InsertVersionInput{
		WorkflowID: "fast-lease-v1", Version: "v1", SourceYAML: "a: 1", Checksum: "aaa", IsActive: true,
	})
	require.NoError(t, err)

	second, err := repo.Insert(ctx, persistence.InsertVersionInput{
		WorkflowID: "fast-lease-v1", Version: "v2", SourceYAML: "a: 2", Checksum: "bbb", IsActive: true,
	})
	require.NoError(t, err)

	active, err := repo.FindActive(ctx, "fast-lease-v1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)

	_, err = repo.Insert(ctx, persistence.InsertVersionInput{WorkflowID: "fast-lease-v1", Version: "v3", SourceYAML: "a: 1", Checksum: "aaa"})
	assert.ErrorIs(t, err, persistence.ErrVersionAlreadyExists)

	activated, err := repo.MarkActive(ctx, "fast-lease-v1", first.ID)
	require.NoError(t, err)
	assert.True(t, activated.IsActive)

	reloaded, err := repo.FindByID(ctx, second.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.IsActive)

	byLabel, err := repo.FindByVersion(ctx, "fast-lease-v1", "v1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, byLabel.ID)

	versions, err := repo.List(ctx, "fast-lease-v1")
	require.NoError(t, err)
	assert.Len(t, versions, 2)

	_, err = repo.MarkActive(ctx, "fast-lease-v1", "missing")
	assert.True(t, persistence.IsVersionNotFound(err))

	_, err = repo.FindActive(ctx, "other")
	assert.True(t, persistence.IsVersionNotFound(err))
}

func TestTaskRepository(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	createDeal(ctx, t, p, "deal-1", "DOCS_COLLECT")
	repo := p.TaskRepository()

	due := time.Now().UTC().Add(time.Hour)
	task := &models.Task{
		DealID:       "deal-1",
		Type:         "COLLECT_DOCS",
		Status:       models.TaskStatusOpen,
		AssigneeRole: "OP_MANAGER",
		SLADueAt:     &due,
		Payload:      map[string]any{"template_id": "collect-docs", "guard_key": "docs.required.allUploaded"},
		ActionHash:   "hash-1",
	}

	inserted, err := repo.InsertIfAbsent(ctx, task)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.InsertIfAbsent(ctx, &models.Task{DealID: "deal-1", Type: "COLLECT_DOCS", Status: models.TaskStatusOpen, ActionHash: "hash-1"})
	require.NoError(t, err)
	assert.False(t, inserted)

	tasks, err := repo.ListByDeal(ctx, "deal-1")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "docs.required.allUploaded", tasks[0].GuardKey())

	started, err := repo.UpdateStatus(ctx, task.ID, models.TaskStatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusInProgress, started.Status)

	completed, err := repo.Complete(ctx, persistence.CompleteTaskInput{TaskID: task.ID, Payload: map[string]any{"result": "ok"}})
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusDone, completed.Status)
	assert.Equal(t, models.SLAStatusOnTime, completed.SLAStatus)
	assert.Equal(t, "ok", completed.Payload["result"])
	assert.Equal(t, "collect-docs", completed.TemplateID())

	_, err = repo.GetByID(ctx, "missing")
	assert.True(t, persistence.IsTaskNotFound(err))
}

func TestQueueRepository(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.QueueRepository()
	now := time.Now().UTC()
	future := now.Add(time.Hour)

	first := &models.QueueEntry{Queue: models.QueueWebhooks, DealID: "deal-1", Kind: "WEBHOOK", Target: "https://example.com", ActionHash: "h1", CreatedAt: now.Add(-time.Minute)}
	second := &models.QueueEntry{Queue: models.QueueWebhooks, DealID: "deal-1", Kind: "WEBHOOK", ActionHash: "h2", CreatedAt: now.Add(-30 * time.Second)}
	scheduled := &models.QueueEntry{Queue: models.QueueWebhooks, DealID: "deal-1", Kind: "WEBHOOK", ActionHash: "h3", DueAt: &future}

	for _, entry := range []*models.QueueEntry{first, second, scheduled} {
		inserted, err := repo.Enqueue(ctx, entry)
		require.NoError(t, err)
		assert.True(t, inserted)
	}

	inserted, err := repo.Enqueue(ctx, &models.QueueEntry{Queue: models.QueueWebhooks, DealID: "deal-1", Kind: "WEBHOOK", ActionHash: "h1"})
	require.NoError(t, err)
	assert.False(t, inserted)

	claimed, err := repo.ClaimPending(ctx, models.QueueWebhooks, 10, now)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, first.ID, claimed[0].ID)
	assert.Equal(t, "https://example.com", claimed[0].Target)
	assert.Equal(t, models.QueueStatusProcessing, claimed[0].Status)

	again, err := repo.ClaimPending(ctx, models.QueueWebhooks, 10, now)
	require.NoError(t, err)
	assert.Empty(t, again)

	require.NoError(t, repo.MarkResult(ctx, models.QueueWebhooks, first.ID, models.QueueStatusSent, ""))
	require.NoError(t, repo.MarkResult(ctx, models.QueueWebhooks, second.ID, models.QueueStatusFailed, "status 502"))

	failed, err := repo.ListByStatus(ctx, models.QueueWebhooks, models.QueueStatusFailed, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "status 502", failed[0].Error)

	requeued, err := repo.Requeue(ctx, models.QueueWebhooks, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusPending, requeued.Status)

	_, err = repo.Requeue(ctx, models.QueueWebhooks, first.ID)
	assert.ErrorIs(t, err, persistence.ErrQueueEntryNotFailed)

	_, err = repo.Requeue(ctx, models.QueueWebhooks, "missing")
	assert.True(t, persistence.IsQueueEntryNotFound(err))
}

func TestAuditDocumentsAndIntegrations(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	createDeal(ctx, t, p, "deal-1", "SIGNING_FUNDING")

	require.NoError(t, p.AuditLogger().LogTransition(ctx, &models.AuditEntry{
		DealID: "deal-1", ActorRole: "FINANCE", FromStatus: "CONTRACT_PREP", ToStatus: "SIGNING_FUNDING",
		Context: map[string]any{"comment": "ready"},
	}))

	entries, err := p.AuditLogger().ListByDeal(ctx, "deal-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditKindTransition, entries[0].Kind)
	assert.Equal(t, "ready", entries[0].Context["comment"])

	require.NoError(t, p.DocumentRepository().AddDocument(ctx, &models.Document{DealID: "deal-1", DocumentType: "passport"}))

	docs, err := p.DocumentRepository().ListByDeal(ctx, "deal-1")
	require.NoError(t, err)
	require.Len(t, docs, 1)

	amount := decimal.RequireFromString("15000.50")
	require.NoError(t, p.IntegrationRepository().InsertPayment(ctx, &models.Payment{
		DealID: "deal-1", Kind: models.PaymentKindAdvance, Status: models.PaymentStatusConfirmed, Amount: &amount, Currency: "AED",
	}))
	require.NoError(t, p.IntegrationRepository().InsertPayment(ctx, &models.Payment{
		DealID: "deal-1", Kind: models.PaymentKindSupplier, Status: models.PaymentStatusFailed, Currency: "AED",
	}))

	payments, err := p.IntegrationRepository().ListPayments(ctx, "deal-1")
	require.NoError(t, err)
	require.Len(t, payments, 2)
	require.NotNil(t, payments[0].Amount)
	assert.True(t, amount.Equal(*payments[0].Amount))
	assert.Nil(t, payments[1].Amount)

	require.NoError(t, p.IntegrationRepository().InsertRiskReport(ctx, &models.RiskReport{DealID: "deal-1", Provider: "aecb", Score: 700, Approved: true}))
}
