package web

import (
	"strings"

	"github.com/dukex/dealflow/pkg/workflow"
	"github.com/gofiber/fiber/v3"
)

func (h *APIHandlers) CreateDeal(c fiber.Ctx) error {
	var req CreateDealRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.workflow.CreateDeal(c.Context(), workflow.CreateDealInput{
		DealID:     req.DealID,
		WorkflowID: req.WorkflowID,
		Payload:    req.Payload,
		ActorRole:  req.ActorRole,
		ActorID:    req.ActorID,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *APIHandlers) GetDeal(c fiber.Ctx) error {
	deal, err := h.workflow.GetDeal(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(deal)
}

func (h *APIHandlers) TransitionDeal(c fiber.Ctx) error {
	var req TransitionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	input := workflow.TransitionInput{
		DealID:       c.Params("id"),
		TargetStatus: req.ToStatus,
		ActorRole:    req.ActorRole,
		ActorID:      req.ActorID,
		GuardContext: req.GuardContext,
		Comment:      req.Comment,
	}

	if req.DryRun {
		validation, err := h.workflow.ValidateTransition(c.Context(), input)
		if err != nil {
			return handleServiceError(c, err)
		}

		return c.JSON(validation)
	}

	return h.respondTransition(c, func() (*workflow.TransitionResult, error) {
		return h.workflow.TransitionDeal(c.Context(), input)
	})
}

// respondTransition writes a transition result. An unconfirmed audit still
// answers 200 since the status change is persisted.
func (h *APIHandlers) respondTransition(c fiber.Ctx, run func() (*workflow.TransitionResult, error)) error {
	result, err := run()

	switch {
	case err == nil:
		return c.JSON(TransitionResponse{TransitionResult: result})
	case workflow.IsAuditUnconfirmed(err) && result != nil:
		h.logger.WarnContext(c.Context(), "Transition applied without audit entry",
			"deal_id", result.Deal.ID,
			"to", result.To,
			"error", err,
		)

		return c.JSON(TransitionResponse{TransitionResult: result, AuditUnconfirmed: true})
	default:
		return handleServiceError(c, err)
	}
}

func (h *APIHandlers) AvailableTransitions(c fiber.Ctx) error {
	transitions, err := h.workflow.AvailableTransitions(c.Context(), c.Params("id"), c.Query("role"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"transitions": transitions})
}

func (h *APIHandlers) CancelDeal(c fiber.Ctx) error {
	var req CancelRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	return h.respondTransition(c, func() (*workflow.TransitionResult, error) {
		return h.workflow.CancelDeal(c.Context(), workflow.CancelInput{
			DealID:    c.Params("id"),
			Reason:    req.Reason,
			Notes:     req.Notes,
			ActorRole: req.ActorRole,
			ActorID:   req.ActorID,
		})
	})
}

func (h *APIHandlers) ResyncDeal(c fiber.Ctx) error {
	result, err := h.workflow.ResyncDeal(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) ListTasks(c fiber.Ctx) error {
	tasks, err := h.workflow.ListTasks(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"tasks": tasks})
}

func (h *APIHandlers) AuditTrail(c fiber.Ctx) error {
	entries, err := h.workflow.AuditTrail(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"entries": entries})
}

func (h *APIHandlers) AddDocument(c fiber.Ctx) error {
	var req AddDocumentRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	document, err := h.workflow.AddDocument(c.Context(), workflow.AddDocumentInput{
		DealID:       c.Params("id"),
		DocumentType: req.DocumentType,
		Title:        req.Title,
		StoragePath:  req.StoragePath,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(document)
}

func (h *APIHandlers) Checklist(c fiber.Ctx) error {
	var required []string

	for _, value := range strings.Split(c.Query("required"), ",") {
		if value = strings.TrimSpace(value); value != "" {
			required = append(required, value)
		}
	}

	checklist, err := h.workflow.Checklist(c.Context(), c.Params("id"), required)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(checklist)
}
