package web

import (
	"errors"
	"net/http"

	"github.com/dukex/dealflow/pkg/persistence"
	"github.com/dukex/dealflow/pkg/template"
	"github.com/dukex/dealflow/pkg/versioning"
	"github.com/dukex/dealflow/pkg/workflow"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

// TransitionProblem is the RFC 7807 body of a rejected transition, extended
// with the validation outcome.
type TransitionProblem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	Reason             workflow.Reason              `json:"reason"`
	From               string                       `json:"from,omitempty"`
	To                 string                       `json:"to,omitempty"`
	FailedRequirements []workflow.FailedRequirement `json:"failed_requirements,omitempty"`
}

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, kind, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, kind, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

func transitionRejected(c fiber.Ctx, transitionErr *workflow.TransitionError) error {
	validation := transitionErr.Validation

	problem := &TransitionProblem{
		Type:               "transition_rejected",
		Title:              http.StatusText(http.StatusConflict),
		Status:             http.StatusConflict,
		Detail:             transitionErr.Message,
		Instance:           c.Path(),
		Reason:             validation.Reason,
		From:               validation.From,
		To:                 validation.To,
		FailedRequirements: validation.FailedRequirements,
	}

	return c.Status(fiber.StatusConflict).JSON(problem, "application/problem+json")
}

// handleServiceError maps domain and persistence errors to problem responses.
func handleServiceError(c fiber.Ctx, err error) error {
	var transitionErr *workflow.TransitionError

	switch {
	case errors.As(err, &transitionErr):
		return transitionRejected(c, transitionErr)

	case workflow.IsTransitionConflict(err), persistence.IsDealStatusConflict(err):
		return conflict(c, "transition_conflict", "deal status changed concurrently, reload and retry")

	case errors.Is(err, workflow.ErrTaskAlreadyDone):
		return conflict(c, "task_already_done", "task is already done")

	case persistence.IsDealAlreadyExists(err):
		return conflict(c, "deal_already_exists", "deal already exists")

	case errors.Is(err, persistence.ErrVersionAlreadyExists):
		return conflict(c, "version_already_exists", "workflow version already exists")

	case errors.Is(err, persistence.ErrQueueEntryNotFailed):
		return conflict(c, "queue_entry_not_failed", "only failed queue entries can be requeued")

	case persistence.IsDealNotFound(err):
		return notFound(c, "deal_not_found", "deal not found")

	case persistence.IsTaskNotFound(err):
		return notFound(c, "task_not_found", "task not found")

	case persistence.IsQueueEntryNotFound(err):
		return notFound(c, "queue_entry_not_found", "queue entry not found")

	case persistence.IsVersionNotFound(err), errors.Is(err, versioning.ErrNoActiveVersion):
		return notFound(c, "workflow_version_not_found", "workflow version not found")

	case template.IsParseError(err), errors.Is(err, versioning.ErrWorkflowMismatch):
		return badRequest(c, err.Error())

	default:
		return internalError(c, err)
	}
}
