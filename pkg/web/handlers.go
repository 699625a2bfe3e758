package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukex/dealflow/pkg/catalog"
	"github.com/dukex/dealflow/pkg/integrations"
	"github.com/dukex/dealflow/pkg/persistence"
	"github.com/dukex/dealflow/pkg/queues"
	"github.com/dukex/dealflow/pkg/versioning"
	"github.com/dukex/dealflow/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	persistence  persistence.Persistence
	workflow     *workflow.Service
	integrations *integrations.Service
	processor    *queues.Processor
	versions     *versioning.Service
	cache        *catalog.Cache
	validator    *validator.Validate
	logger       *slog.Logger
}

// NewAPIHandlers wires the handlers. cache may be nil when no template file is
// configured; version sync then requires a source in the request.
func NewAPIHandlers(
	persistence persistence.Persistence,
	workflowService *workflow.Service,
	integrationService *integrations.Service,
	processor *queues.Processor,
	versions *versioning.Service,
	cache *catalog.Cache,
	validator *validator.Validate,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		persistence:  persistence,
		workflow:     workflowService,
		integrations: integrationService,
		processor:    processor,
		versions:     versions,
		cache:        cache,
		validator:    validator,
		logger:       logger.With("module", "web"),
	}
}

// Register mounts every route on router.
func (h *APIHandlers) Register(router fiber.Router) {
	d := router.Group("/deals")
	d.Post("/", h.CreateDeal)
	d.Get("/:id", h.GetDeal)
	d.Post("/:id/transition", h.TransitionDeal)
	d.Get("/:id/transitions", h.AvailableTransitions)
	d.Post("/:id/cancel", h.CancelDeal)
	d.Post("/:id/resync", h.ResyncDeal)
	d.Get("/:id/tasks", h.ListTasks)
	d.Get("/:id/audit", h.AuditTrail)
	d.Post("/:id/documents", h.AddDocument)
	d.Get("/:id/checklist", h.Checklist)

	t := router.Group("/tasks")
	t.Post("/:id/start", h.StartTask)
	t.Post("/:id/complete", h.CompleteTask)

	wh := router.Group("/webhooks")
	wh.Post("/esign", h.ESignWebhook)
	wh.Post("/bank", h.BankWebhook)
	wh.Post("/aecb", h.AECBWebhook)

	w := router.Group("/workflow")
	w.Post("/queues/run", h.RunQueues)
	w.Get("/queues/:queue/failed", h.ListFailed)
	w.Post("/queues/:queue/:id/requeue", h.Requeue)
	w.Post("/maintenance/sync", h.ResyncAll)
	w.Get("/versions", h.ListVersions)
	w.Post("/versions/sync", h.SyncVersion)
	w.Post("/versions/:id/activate", h.ActivateVersion)

	router.Get("/health", h.HealthCheck)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	httpStatus := http.StatusOK

	persistenceCheck := "ok"
	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		persistenceCheck = err.Error()
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	templateCheck := "not configured"
	if h.cache != nil {
		templateCheck = "not loaded"
		if entry := h.cache.Current(); entry != nil {
			templateCheck = entry.Catalog.WorkflowID()
		}
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"persistence": persistenceCheck,
			"template":    templateCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
