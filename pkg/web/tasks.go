package web

import (
	"github.com/dukex/dealflow/pkg/workflow"
	"github.com/gofiber/fiber/v3"
)

func (h *APIHandlers) StartTask(c fiber.Ctx) error {
	task, err := h.workflow.StartTask(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(task)
}

func (h *APIHandlers) CompleteTask(c fiber.Ctx) error {
	var req CompleteTaskRequest

	// An empty body completes the task without extra payload.
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	result, err := h.workflow.CompleteTask(c.Context(), workflow.CompleteTaskInput{
		TaskID:    c.Params("id"),
		Payload:   req.Payload,
		ActorRole: req.ActorRole,
		ActorID:   req.ActorID,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}
