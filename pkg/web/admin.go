package web

import (
	"strconv"

	"github.com/dukex/dealflow/pkg/models"
	"github.com/dukex/dealflow/pkg/versioning"
	"github.com/gofiber/fiber/v3"
)

const defaultCreatedBy = "api"

// RunQueues drains every queue, or only ?queue=<name>.
func (h *APIHandlers) RunQueues(c fiber.Ctx) error {
	if name := c.Query("queue"); name != "" {
		queue := models.Queue(name)
		if !queue.Valid() {
			return badRequest(c, "Unknown queue: "+name)
		}

		result, err := h.processor.Run(c.Context(), queue)
		if err != nil {
			return handleServiceError(c, err)
		}

		return c.JSON(fiber.Map{name: result})
	}

	result, err := h.processor.RunAll(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) ListFailed(c fiber.Ctx) error {
	queue := models.Queue(c.Params("queue"))
	if !queue.Valid() {
		return badRequest(c, "Unknown queue: "+string(queue))
	}

	limit := 0

	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return badRequest(c, "Invalid limit")
		}

		limit = parsed
	}

	entries, err := h.processor.ListFailed(c.Context(), queue, limit)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"queue": queue, "entries": entries})
}

func (h *APIHandlers) Requeue(c fiber.Ctx) error {
	queue := models.Queue(c.Params("queue"))
	if !queue.Valid() {
		return badRequest(c, "Unknown queue: "+string(queue))
	}

	entry, err := h.processor.Requeue(c.Context(), queue, c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(entry)
}

func (h *APIHandlers) ResyncAll(c fiber.Ctx) error {
	result, err := h.workflow.ResyncAll(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) ListVersions(c fiber.Ctx) error {
	workflowID := c.Query("workflow_id")
	if workflowID == "" {
		return badRequest(c, "workflow_id is required")
	}

	versions, err := h.versions.ListVersions(c.Context(), workflowID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"versions": versions})
}

// SyncVersion registers the configured template file, or the template sent
// in the body, as the active version.
func (h *APIHandlers) SyncVersion(c fiber.Ctx) error {
	var req SyncVersionRequest

	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	createdBy := req.CreatedBy
	if createdBy == "" {
		createdBy = defaultCreatedBy
	}

	var (
		version *models.WorkflowVersion
		err     error
	)

	switch {
	case req.SourceYAML != "" && req.Version != "":
		version, err = h.versions.CreateVersion(c.Context(), versioning.CreateVersionInput{
			Source:      []byte(req.SourceYAML),
			Version:     req.Version,
			Title:       req.Title,
			Description: req.Description,
			CreatedBy:   createdBy,
			Activate:    req.Activate == nil || *req.Activate,
		})
	case req.SourceYAML != "":
		version, err = h.versions.EnsureActive(c.Context(), versioning.EnsureActiveInput{
			Source:    []byte(req.SourceYAML),
			CreatedBy: createdBy,
		})
	case h.cache != nil:
		version, err = h.versions.SyncFromCache(c.Context(), h.cache, createdBy)
	default:
		return badRequest(c, "No template file configured, send source_yaml")
	}

	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(version)
}

func (h *APIHandlers) ActivateVersion(c fiber.Ctx) error {
	version, err := h.versions.GetVersionByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	activated, err := h.versions.Activate(c.Context(), version.WorkflowID, version.ID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(activated)
}
