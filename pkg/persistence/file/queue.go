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

// QueueRepository keeps each queue in its own collection.
type QueueRepository struct {
	st *store
}

func queueCollection(queue models.Queue) (string, error) {
	if !queue.Valid() {
		return "", fmt.Errorf("unknown queue %q", queue)
	}

	return "queue_" + string(queue), nil
}

func (r *QueueRepository) Enqueue(_ context.Context, entry *models.QueueEntry) (bool, error) {
	collection, err := queueCollection(entry.Queue)
	if err != nil {
		return false, err
	}

	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	if entry.ActionHash != "" {
		entries, err := readAll[models.QueueEntry](r.st, collection)
		if err != nil {
			return false, err
		}

		for _, existing := range entries {
			if existing.ActionHash == entry.ActionHash {
				return false, nil
			}
		}
	}

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	if entry.Status == "" {
		entry.Status = models.QueueStatusPending
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	err = r.st.write(collection, entry.ID, entry)
	if err != nil {
		return false, err
	}

	return true, nil
}

func (r *QueueRepository) ClaimPending(_ context.Context, queue models.Queue, limit int, now time.Time) ([]*models.QueueEntry, error) {
	collection, err := queueCollection(queue)
	if err != nil {
		return nil, err
	}

	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	entries, err := r.sorted(collection)
	if err != nil {
		return nil, err
	}

	claimed := make([]*models.QueueEntry, 0)

	for _, entry := range entries {
		if limit > 0 && len(claimed) >= limit {
			break
		}

		if entry.Status != models.QueueStatusPending || !entry.IsDue(now) {
			continue
		}

		entry.Status = models.QueueStatusProcessing
		entry.Attempts++

		err = r.st.write(collection, entry.ID, entry)
		if err != nil {
			return nil, err
		}

		claimed = append(claimed, entry)
	}

	return claimed, nil
}

func (r *QueueRepository) MarkResult(_ context.Context, queue models.Queue, id string, status models.QueueStatus, errMessage string) error {
	collection, err := queueCollection(queue)
	if err != nil {
		return err
	}

	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	entry, err := r.get(collection, id)
	if err != nil {
		return err
	}

	processedAt := time.Now().UTC()
	entry.Status = status
	entry.Error = errMessage
	entry.ProcessedAt = &processedAt

	return r.st.write(collection, entry.ID, entry)
}

func (r *QueueRepository) ListByStatus(_ context.Context, queue models.Queue, status models.QueueStatus, limit int) ([]*models.QueueEntry, error) {
	collection, err := queueCollection(queue)
	if err != nil {
		return nil, err
	}

	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	entries, err := r.sorted(collection)
	if err != nil {
		return nil, err
	}

	matched := make([]*models.QueueEntry, 0)

	for _, entry := range entries {
		if limit > 0 && len(matched) >= limit {
			break
		}

		if entry.Status == status {
			matched = append(matched, entry)
		}
	}

	return matched, nil
}

func (r *QueueRepository) Requeue(_ context.Context, queue models.Queue, id string) (*models.QueueEntry, error) {
	collection, err := queueCollection(queue)
	if err != nil {
		return nil, err
	}

	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	entry, err := r.get(collection, id)
	if err != nil {
		return nil, err
	}

	if entry.Status != models.QueueStatusFailed {
		return nil, fmt.Errorf("queue entry %s is %s: %w", id, entry.Status, persistence.ErrQueueEntryNotFailed)
	}

	entry.Status = models.QueueStatusPending
	entry.Error = ""
	entry.ProcessedAt = nil

	err = r.st.write(collection, entry.ID, entry)
	if err != nil {
		return nil, err
	}

	return entry, nil
}

func (r *QueueRepository) get(collection, id string) (*models.QueueEntry, error) {
	entry, found, err := read[models.QueueEntry](r.st, collection, id)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, fmt.Errorf("queue entry %s: %w", id, persistence.ErrQueueEntryNotFound)
	}

	return entry, nil
}

func (r *QueueRepository) sorted(collection string) ([]*models.QueueEntry, error) {
	entries, err := readAll[models.QueueEntry](r.st, collection)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})

	return entries, nil
}
