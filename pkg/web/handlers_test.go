package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/dukex/dealflow/pkg/catalog"
	"github.com/dukex/dealflow/pkg/integrations"
	"github.com/dukex/dealflow/pkg/models"
	"github.com/dukex/dealflow/pkg/persistence"
	"github.com/dukex/dealflow/pkg/persistence/file"
	"github.com/dukex/dealflow/pkg/queues"
	"github.com/dukex/dealflow/pkg/versioning"
	"github.com/dukex/dealflow/pkg/web"
	"github.com/dukex/dealflow/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWorkflowID = "fast-lease-v1"

var templatePath = filepath.Join("testdata", "fast_lease.yaml")

type silentNotifier struct {
	name string
}

func (n silentNotifier) Name() string { return n.name }

func (n silentNotifier) Notify(context.Context, queues.Notification) error { return nil }

type testEnv struct {
	app         *fiber.App
	persistence persistence.Persistence
	versionID   string
}

func setupTestApp(t *testing.T) *testEnv {
	t.Helper()

	return setupTestAppWith(t, file.NewPersistence(t.TempDir()))
}

func setupTestAppWith(t *testing.T, p persistence.Persistence) *testEnv {
	t.Helper()

	logger := slog.Default()

	source, err := os.ReadFile(templatePath)
	require.NoError(t, err)

	versions := versioning.NewService(p.WorkflowVersionRepository(), catalog.NewRegistry(), logger)

	active, err := versions.EnsureActive(t.Context(), versioning.EnsureActiveInput{Source: source, CreatedBy: "test"})
	require.NoError(t, err)

	workflowService := workflow.NewService(p, versions, logger)
	integrationService := integrations.NewService(p, versions, workflowService, logger)
	processor := queues.NewProcessor(p, logger,
		queues.WithNotifiers(queues.NewLogNotifier(logger), silentNotifier{name: "telegram"}),
	)
	cache := catalog.NewCache(catalog.NewFileSource(templatePath), logger)

	handlers := web.NewAPIHandlers(
		p,
		workflowService,
		integrationService,
		processor,
		versions,
		cache,
		validator.New(validator.WithRequiredStructEnabled()),
		logger,
	)

	app := fiber.New()
	handlers.Register(app)

	return &testEnv{app: app, persistence: p, versionID: active.ID}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader

	switch v := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(v)
	default:
		raw, err := json.Marshal(v)
		require.NoError(t, err)

		reader = bytes.NewBuffer(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, raw
}

func (e *testEnv) createDeal(t *testing.T) *models.Deal {
	t.Helper()

	status, body := e.do(t, http.MethodPost, "/deals", web.CreateDealRequest{
		WorkflowID: testWorkflowID,
		ActorRole:  "OP_MANAGER",
		ActorID:    "user-1",
	})
	require.Equal(t, http.StatusCreated, status, string(body))

	var result workflow.CreateDealResult
	require.NoError(t, json.Unmarshal(body, &result))

	return result.Deal
}

// moveTo puts a deal straight into status, bypassing guards.
func (e *testEnv) moveTo(t *testing.T, deal *models.Deal, status string) {
	t.Helper()

	_, err := e.persistence.DealRepository().UpdateDealStatus(t.Context(), persistence.UpdateDealStatusInput{
		DealID:         deal.ID,
		PreviousStatus: deal.Status,
		Status:         status,
	})
	require.NoError(t, err)

	deal.Status = status
}

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(body, &v), string(body))

	return v
}

func TestAPIHandlers_CreateDeal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		requestBody    any
		expectedStatus int
	}{
		{
			name:           "successful creation",
			requestBody:    web.CreateDealRequest{WorkflowID: testWorkflowID, Payload: map[string]any{"client": "ACME"}},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "validation error - missing workflow",
			requestBody:    web.CreateDealRequest{},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "unknown workflow",
			requestBody:    web.CreateDealRequest{WorkflowID: "unknown"},
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "invalid JSON",
			requestBody:    "invalid-json",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := setupTestApp(t)

			status, body := env.do(t, http.MethodPost, "/deals", tt.requestBody)
			assert.Equal(t, tt.expectedStatus, status, string(body))

			if status == http.StatusCreated {
				result := decode[workflow.CreateDealResult](t, body)
				assert.Equal(t, "NEW", result.Deal.Status)
				assert.Equal(t, "ACME", result.Deal.Payload["client"])
				assert.NotEmpty(t, result.Actions)
			}
		})
	}
}

func TestAPIHandlers_CreateDeal_Duplicate(t *testing.T) {
	env := setupTestApp(t)

	request := web.CreateDealRequest{DealID: "deal-1", WorkflowID: testWorkflowID}

	status, _ := env.do(t, http.MethodPost, "/deals", request)
	require.Equal(t, http.StatusCreated, status)

	status, body := env.do(t, http.MethodPost, "/deals", request)
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, string(body), "deal_already_exists")
}

func TestAPIHandlers_GetDeal(t *testing.T) {
	env := setupTestApp(t)
	deal := env.createDeal(t)

	status, body := env.do(t, http.MethodGet, "/deals/"+deal.ID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, deal.ID, decode[models.Deal](t, body).ID)

	status, body = env.do(t, http.MethodGet, "/deals/missing", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, string(body), "deal_not_found")
}

func TestAPIHandlers_TransitionDeal(t *testing.T) {
	env := setupTestApp(t)
	deal := env.createDeal(t)
	path := "/deals/" + deal.ID + "/transition"

	t.Run("validation error", func(t *testing.T) {
		status, _ := env.do(t, http.MethodPost, path, web.TransitionRequest{})
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("guard rejection", func(t *testing.T) {
		status, body := env.do(t, http.MethodPost, path, web.TransitionRequest{ToStatus: "OFFER_PREP", ActorRole: "OP_MANAGER"})
		require.Equal(t, http.StatusConflict, status)

		problem := decode[web.TransitionProblem](t, body)
		assert.Equal(t, "transition_rejected", problem.Type)
		assert.Equal(t, workflow.ReasonGuardFailed, problem.Reason)
		require.Len(t, problem.FailedRequirements, 1)
		assert.Equal(t, "tasks.confirmCar.completed", problem.FailedRequirements[0].Key)
	})

	t.Run("role rejection", func(t *testing.T) {
		status, body := env.do(t, http.MethodPost, path, web.TransitionRequest{ToStatus: "OFFER_PREP", ActorRole: "FINANCE"})
		require.Equal(t, http.StatusConflict, status)
		assert.Equal(t, workflow.ReasonRoleNotAllowed, decode[web.TransitionProblem](t, body).Reason)
	})

	guardContext := map[string]any{"tasks": map[string]any{"confirmCar": map[string]any{"completed": true}}}

	t.Run("dry run", func(t *testing.T) {
		status, body := env.do(t, http.MethodPost, path, web.TransitionRequest{
			ToStatus: "OFFER_PREP", ActorRole: "OP_MANAGER", GuardContext: guardContext, DryRun: true,
		})
		require.Equal(t, http.StatusOK, status)
		assert.True(t, decode[workflow.TransitionValidation](t, body).Allowed)

		current, err := env.persistence.DealRepository().GetDealByID(t.Context(), deal.ID)
		require.NoError(t, err)
		assert.Equal(t, "NEW", current.Status)
	})

	t.Run("success", func(t *testing.T) {
		status, body := env.do(t, http.MethodPost, path, web.TransitionRequest{
			ToStatus: "OFFER_PREP", ActorRole: "OP_MANAGER", ActorID: "user-1", GuardContext: guardContext, Comment: "ok",
		})
		require.Equal(t, http.StatusOK, status, string(body))

		result := decode[web.TransitionResponse](t, body)
		assert.Equal(t, "NEW", result.From)
		assert.Equal(t, "OFFER_PREP", result.Deal.Status)
		assert.False(t, result.AuditUnconfirmed)
	})

	t.Run("unknown deal", func(t *testing.T) {
		status, _ := env.do(t, http.MethodPost, "/deals/missing/transition", web.TransitionRequest{ToStatus: "OFFER_PREP"})
		assert.Equal(t, http.StatusNotFound, status)
	})
}

func TestAPIHandlers_AvailableTransitions(t *testing.T) {
	env := setupTestApp(t)
	deal := env.createDeal(t)

	status, body := env.do(t, http.MethodGet, "/deals/"+deal.ID+"/transitions?role=OP_MANAGER", nil)
	require.Equal(t, http.StatusOK, status)

	var result struct {
		Transitions []struct {
			To string `json:"to"`
		} `json:"transitions"`
	}
	require.NoError(t, json.Unmarshal(body, &result))

	targets := make([]string, 0, len(result.Transitions))
	for _, transition := range result.Transitions {
		targets = append(targets, transition.To)
	}

	assert.ElementsMatch(t, []string{"OFFER_PREP", "CANCELLED"}, targets)

	status, body = env.do(t, http.MethodGet, "/deals/"+deal.ID+"/transitions?role=FINANCE", nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Empty(t, result.Transitions)
}

func TestAPIHandlers_CancelDeal(t *testing.T) {
	env := setupTestApp(t)
	deal := env.createDeal(t)
	path := "/deals/" + deal.ID + "/cancel"

	status, _ := env.do(t, http.MethodPost, path, web.CancelRequest{})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := env.do(t, http.MethodPost, path, web.CancelRequest{Reason: "client withdrew", ActorRole: "OP_MANAGER"})
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, models.StatusCancelled, decode[web.TransitionResponse](t, body).Deal.Status)

	// Cancelling twice is a no-op.
	status, body = env.do(t, http.MethodPost, path, web.CancelRequest{Reason: "again"})
	require.Equal(t, http.StatusOK, status)
	assert.True(t, decode[web.TransitionResponse](t, body).NoOp)
}

func TestAPIHandlers_Tasks(t *testing.T) {
	env := setupTestApp(t)
	deal := env.createDeal(t)

	status, body := env.do(t, http.MethodGet, "/deals/"+deal.ID+"/tasks", nil)
	require.Equal(t, http.StatusOK, status)

	var listed struct {
		Tasks []*models.Task `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(body, &listed))
	require.Len(t, listed.Tasks, 1)

	taskID := listed.Tasks[0].ID

	status, body = env.do(t, http.MethodPost, "/tasks/"+taskID+"/start", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.TaskStatusInProgress, decode[models.Task](t, body).Status)

	status, body = env.do(t, http.MethodPost, "/tasks/"+taskID+"/complete", web.CompleteTaskRequest{ActorID: "user-1"})
	require.Equal(t, http.StatusOK, status, string(body))

	result := decode[workflow.CompleteTaskResult](t, body)
	assert.Equal(t, models.TaskStatusDone, result.Task.Status)
	require.NotNil(t, result.AutoTransition)
	assert.True(t, result.AutoTransition.Succeeded)
	assert.Equal(t, "OFFER_PREP", result.Deal.Status)

	status, _ = env.do(t, http.MethodPost, "/tasks/"+taskID+"/start", nil)
	assert.Equal(t, http.StatusConflict, status)

	status, _ = env.do(t, http.MethodPost, "/tasks/missing/complete", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPIHandlers_DocumentsAndChecklist(t *testing.T) {
	env := setupTestApp(t)
	deal := env.createDeal(t)

	status, _ := env.do(t, http.MethodPost, "/deals/"+deal.ID+"/documents", web.AddDocumentRequest{})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := env.do(t, http.MethodPost, "/deals/"+deal.ID+"/documents", web.AddDocumentRequest{DocumentType: "Passport", Title: "scan"})
	require.Equal(t, http.StatusCreated, status, string(body))

	status, body = env.do(t, http.MethodGet, "/deals/"+deal.ID+"/checklist?required=passport,eid", nil)
	require.Equal(t, http.StatusOK, status)

	var checklist struct {
		Fulfilled bool `json:"fulfilled"`
		Items     []struct {
			NormalizedType string `json:"normalized_type"`
			Fulfilled      bool   `json:"fulfilled"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(body, &checklist))
	assert.False(t, checklist.Fulfilled)
	require.Len(t, checklist.Items, 2)
	assert.True(t, checklist.Items[0].Fulfilled)
	assert.Equal(t, "emirates_id", checklist.Items[1].NormalizedType)
	assert.False(t, checklist.Items[1].Fulfilled)
}

func TestAPIHandlers_Webhooks(t *testing.T) {
	env := setupTestApp(t)
	deal := env.createDeal(t)
	env.moveTo(t, deal, "RISK_REVIEW")

	tests := []struct {
		name           string
		path           string
		requestBody    any
		expectedStatus int
	}{
		{"aecb malformed", "/webhooks/aecb", "{", http.StatusBadRequest},
		{"aecb missing score", "/webhooks/aecb", map[string]any{"deal_id": deal.ID, "approved": true}, http.StatusBadRequest},
		{"aecb unknown deal", "/webhooks/aecb", map[string]any{"deal_id": "missing", "aecb_score": 700, "approved": true}, http.StatusNoContent},
		{"esign bad status", "/webhooks/esign", map[string]any{"deal_id": deal.ID, "status": "MAYBE"}, http.StatusBadRequest},
		{"bank bad kind", "/webhooks/bank", map[string]any{"deal_id": deal.ID, "kind": "OTHER", "status": "CONFIRMED"}, http.StatusBadRequest},
		{"bank payment", "/webhooks/bank", map[string]any{"deal_id": deal.ID, "kind": "ADVANCE", "status": "CONFIRMED", "amount": "1500.50"}, http.StatusNoContent},
		{"aecb report", "/webhooks/aecb", map[string]any{"deal_id": deal.ID, "aecb_score": 720, "approved": true}, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := env.do(t, http.MethodPost, tt.path, tt.requestBody)
			assert.Equal(t, tt.expectedStatus, status, string(body))
		})
	}

	current, err := env.persistence.DealRepository().GetDealByID(t.Context(), deal.ID)
	require.NoError(t, err)
	assert.Equal(t, "FINANCE_REVIEW", current.Status)

	payments, err := env.persistence.IntegrationRepository().ListPayments(t.Context(), deal.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, "1500.5", payments[0].Amount.String())
}

func TestAPIHandlers_Queues(t *testing.T) {
	env := setupTestApp(t)
	env.createDeal(t)

	status, body := env.do(t, http.MethodPost, "/workflow/queues/run", nil)
	require.Equal(t, http.StatusOK, status)

	result := decode[queues.RunResult](t, body)
	assert.Equal(t, queues.Result{Processed: 1}, result.Notifications)

	status, body = env.do(t, http.MethodPost, "/workflow/queues/run?queue=webhooks", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"webhooks":{"processed":0,"failed":0}}`, string(body))

	status, _ = env.do(t, http.MethodPost, "/workflow/queues/run?queue=emails", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = env.do(t, http.MethodGet, "/workflow/queues/webhooks/failed", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"queue":"webhooks"`)

	status, _ = env.do(t, http.MethodGet, "/workflow/queues/emails/failed", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodPost, "/workflow/queues/webhooks/missing/requeue", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPIHandlers_Resync(t *testing.T) {
	env := setupTestApp(t)
	deal := env.createDeal(t)

	status, body := env.do(t, http.MethodPost, "/deals/"+deal.ID+"/resync", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 0, decode[workflow.ResyncResult](t, body).Inserted)

	env.createDeal(t)

	status, body = env.do(t, http.MethodPost, "/workflow/maintenance/sync", nil)
	require.Equal(t, http.StatusOK, status)

	bulk := decode[workflow.BulkResyncResult](t, body)
	assert.Equal(t, 2, bulk.Total)
	assert.Equal(t, 2, bulk.Processed)
	assert.Equal(t, 0, bulk.Failed)
}

func TestAPIHandlers_Versions(t *testing.T) {
	env := setupTestApp(t)

	status, _ := env.do(t, http.MethodGet, "/workflow/versions", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := env.do(t, http.MethodGet, "/workflow/versions?workflow_id="+testWorkflowID, nil)
	require.Equal(t, http.StatusOK, status)

	var listed struct {
		Versions []*models.WorkflowVersion `json:"versions"`
	}
	require.NoError(t, json.Unmarshal(body, &listed))
	require.Len(t, listed.Versions, 1)

	// Syncing the unchanged file keeps the active version.
	status, body = env.do(t, http.MethodPost, "/workflow/versions/sync", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, env.versionID, decode[models.WorkflowVersion](t, body).ID)

	source, err := os.ReadFile(templatePath)
	require.NoError(t, err)

	activate := false
	status, body = env.do(t, http.MethodPost, "/workflow/versions/sync", web.SyncVersionRequest{
		SourceYAML: string(source) + "\n# v2\n",
		Version:    "v2",
		Activate:   &activate,
	})
	require.Equal(t, http.StatusOK, status, string(body))

	v2 := decode[models.WorkflowVersion](t, body)
	assert.False(t, v2.IsActive)

	status, body = env.do(t, http.MethodPost, "/workflow/versions/"+v2.ID+"/activate", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.True(t, decode[models.WorkflowVersion](t, body).IsActive)

	status, _ = env.do(t, http.MethodPost, "/workflow/versions/missing/activate", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = env.do(t, http.MethodPost, "/workflow/versions/sync", web.SyncVersionRequest{SourceYAML: "workflow: ["})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	env := setupTestApp(t)

	status, body := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"status":"healthy"`)
}
