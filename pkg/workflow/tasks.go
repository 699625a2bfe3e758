package workflow

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/dukex/dealflow/pkg/events"
	"github.com/dukex/dealflow/pkg/models"
	"github.com/dukex/dealflow/pkg/otelhelper"
	"github.com/dukex/dealflow/pkg/persistence"
	"github.com/dukex/dealflow/pkg/template"
	"go.opentelemetry.io/otel/attribute"
)

// StartTask marks an open task IN_PROGRESS.
func (s *Service) StartTask(ctx context.Context, taskID string) (*models.Task, error) {
	task, err := s.persistence.TaskRepository().GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if task.IsDone() {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrTaskAlreadyDone)
	}

	if task.Status == models.TaskStatusInProgress {
		return task, nil
	}

	return s.persistence.TaskRepository().UpdateStatus(ctx, taskID, models.TaskStatusInProgress)
}

type CompleteTaskInput struct {
	TaskID    string
	Payload   map[string]any
	ActorRole string
	ActorID   string
}

// AutoTransition reports the transition attempted after a task completed.
type AutoTransition struct {
	To        string `json:"to"`
	Succeeded bool   `json:"succeeded"`
	Reason    string `json:"reason,omitempty"`
}

type CompleteTaskResult struct {
	Task           *models.Task      `json:"task"`
	Deal           *models.Deal      `json:"deal"`
	AlreadyDone    bool              `json:"already_done,omitempty"`
	AutoTransition *AutoTransition   `json:"auto_transition,omitempty"`
	Transition     *TransitionResult `json:"transition,omitempty"`
}

// CompleteTask closes a task, sets its guard flag on the deal and tries the
// transition the flag unlocks. A rejected transition is reported in the
// result, not returned as an error.
func (s *Service) CompleteTask(ctx context.Context, input CompleteTaskInput) (*CompleteTaskResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "workflow.complete_task",
		attribute.String(otelhelper.TaskIDKey, input.TaskID),
	)
	defer span.End()

	task, err := s.persistence.TaskRepository().GetByID(ctx, input.TaskID)
	if err != nil {
		return nil, err
	}

	if task.IsDone() {
		deal, err := s.persistence.DealRepository().GetDealByID(ctx, task.DealID)
		if err != nil {
			return nil, err
		}

		return &CompleteTaskResult{Task: task, Deal: deal, AlreadyDone: true}, nil
	}

	origin := task.StatusKey()

	task, err = s.persistence.TaskRepository().Complete(ctx, persistence.CompleteTaskInput{
		TaskID:      task.ID,
		Payload:     input.Payload,
		CompletedAt: s.now(),
	})
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to complete task: %w", err)
	}

	guardKey := task.GuardKey()

	var deal *models.Deal
	if guardKey != "" {
		deal, err = s.persistence.DealRepository().UpdateDealPayload(ctx, task.DealID, models.PathPatch(guardKey, true))
	} else {
		deal, err = s.persistence.DealRepository().GetDealByID(ctx, task.DealID)
	}

	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to update deal %s after task %s: %w", task.DealID, task.ID, err)
	}

	s.publish(ctx, deal.ID, events.TaskCompleted{
		BaseEvent: events.NewBaseEvent(events.TaskCompletedEvent, deal.ID, deal.WorkflowID),
		TaskID:    task.ID,
		TaskType:  task.Type,
		GuardKey:  guardKey,
	})

	result := &CompleteTaskResult{Task: task, Deal: deal}

	// A task left over from an earlier status must not move the deal on.
	if origin != "" && origin != deal.Status {
		s.logger.InfoContext(ctx, "Task completed outside its status",
			"deal_id", deal.ID, "task_id", task.ID, "task_status", origin, "deal_status", deal.Status)

		return result, nil
	}

	target, ok, err := s.autoTransitionTarget(ctx, deal, guardKey)
	if err != nil {
		return nil, err
	}

	if !ok {
		return result, nil
	}

	actorRole := task.AssigneeRole
	if actorRole == "" {
		actorRole = input.ActorRole
	}

	result.AutoTransition = &AutoTransition{To: target}

	transition, err := s.TransitionDeal(ctx, TransitionInput{
		DealID:       deal.ID,
		TargetStatus: target,
		ActorRole:    actorRole,
		ActorID:      input.ActorID,
		Comment:      "task " + task.ID + " completed",
	})

	switch {
	case err == nil:
		result.AutoTransition.Succeeded = true
		result.Transition = transition
		result.Deal = transition.Deal
	case IsTransitionError(err), errors.Is(err, ErrTransitionConflict):
		s.logger.InfoContext(ctx, "Automatic transition not applied", "deal_id", deal.ID, "to", target, "reason", err)
		result.AutoTransition.Reason = err.Error()
	case IsAuditUnconfirmed(err):
		result.AutoTransition.Succeeded = true
		result.AutoTransition.Reason = err.Error()
		result.Transition = transition
		result.Deal = transition.Deal
	default:
		return nil, err
	}

	return result, nil
}

// autoTransitionTarget picks the first edge leaving the deal's status whose
// guards mention guardKey, or that has no guards.
func (s *Service) autoTransitionTarget(ctx context.Context, deal *models.Deal, guardKey string) (string, bool, error) {
	_, cat, err := s.versions.ActiveCatalog(ctx, deal.WorkflowID)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve workflow for deal %s: %w", deal.ID, err)
	}

	if cat.IsTerminal(deal.Status) {
		return "", false, nil
	}

	for _, transition := range cat.TransitionsFrom(deal.Status) {
		if transition.To == models.StatusCancelled {
			continue
		}

		if len(transition.Guards) == 0 {
			return transition.To, true, nil
		}

		mentioned := slices.ContainsFunc(transition.Guards, func(condition template.Condition) bool {
			return condition.Key == guardKey
		})
		if guardKey != "" && mentioned {
			return transition.To, true, nil
		}
	}

	return "", false, nil
}
