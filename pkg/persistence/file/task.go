package file

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dukex/dealflow/pkg/models"
	"github.com/dukex/dealflow/pkg/persistence"
	"github.com/google/uuid"
)

const tasksCollection = "tasks"

// TaskRepository handles task-related file operations.
type TaskRepository struct {
	st *store
}

func (r *TaskRepository) InsertIfAbsent(_ context.Context, task *models.Task) (bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	if task.ActionHash != "" {
		tasks, err := readAll[models.Task](r.st, tasksCollection)
		if err != nil {
			return false, err
		}

		for _, existing := range tasks {
			if existing.ActionHash == task.ActionHash {
				return false, nil
			}
		}
	}

	if task.ID == "" {
		task.ID = uuid.NewString()
	}

	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}

	task.UpdatedAt = now

	err := r.st.write(tasksCollection, task.ID, task)
	if err != nil {
		return false, err
	}

	return true, nil
}

func (r *TaskRepository) GetByID(_ context.Context, id string) (*models.Task, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	return r.get(id)
}

func (r *TaskRepository) get(id string) (*models.Task, error) {
	task, found, err := read[models.Task](r.st, tasksCollection, id)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, fmt.Errorf("task %s: %w", id, persistence.ErrTaskNotFound)
	}

	return task, nil
}

func (r *TaskRepository) ListByDeal(_ context.Context, dealID string) ([]*models.Task, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	all, err := readAll[models.Task](r.st, tasksCollection)
	if err != nil {
		return nil, err
	}

	tasks := make([]*models.Task, 0)

	for _, task := range all {
		if task.DealID == dealID {
			tasks = append(tasks, task)
		}
	}

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})

	return tasks, nil
}

func (r *TaskRepository) UpdateStatus(_ context.Context, id string, status models.TaskStatus) (*models.Task, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	task, err := r.get(id)
	if err != nil {
		return nil, err
	}

	task.Status = status
	task.UpdatedAt = time.Now().UTC()

	err = r.st.write(tasksCollection, task.ID, task)
	if err != nil {
		return nil, err
	}

	return task, nil
}

func (r *TaskRepository) Complete(_ context.Context, input persistence.CompleteTaskInput) (*models.Task, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	task, err := r.get(input.TaskID)
	if err != nil {
		return nil, err
	}

	completedAt := input.CompletedAt.UTC()
	if input.CompletedAt.IsZero() {
		completedAt = time.Now().UTC()
	}

	task.Status = models.TaskStatusDone
	task.CompletedAt = &completedAt
	task.UpdatedAt = completedAt
	task.SLAStatus = models.SLAStatusOnTime

	if task.SLADueAt != nil && completedAt.After(*task.SLADueAt) {
		task.SLAStatus = models.SLAStatusLate
	}

	task.Payload = models.MergePayload(task.Payload, input.Payload)

	err = r.st.write(tasksCollection, task.ID, task)
	if err != nil {
		return nil, err
	}

	return task, nil
}
