package sync

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/marcus/riverwalk/internal/db"
	"github.com/marcus/riverwalk/internal/models"
)

// DefaultMaxAttempts is the retry ceiling for a queued mutation.
const DefaultMaxAttempts = 3

// Queue is the durable log of mutations waiting to reach the backend. All
// state lives in the store's sync_queue table.
type Queue struct {
	store       *db.DB
	maxAttempts int
	logger      *slog.Logger
}

// NewQueue returns a queue over store. maxAttempts <= 0 uses
// DefaultMaxAttempts.
func NewQueue(store *db.DB, maxAttempts int, logger *slog.Logger) *Queue {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{store: store, maxAttempts: maxAttempts, logger: logger}
}

// MaxAttempts returns the retry ceiling.
func (q *Queue) MaxAttempts() int { return q.maxAttempts }

// Enqueue appends a mutation for the record with localID. payload is stored
// as JSON; nil stores an empty object.
func (q *Queue) Enqueue(op models.Op, kind models.Kind, payload any, localID string) (int64, error) {
	data := []byte("{}")
	if payload != nil {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return 0, fmt.Errorf("marshal %s payload: %w", kind, err)
		}
	}
	id, err := q.store.EnqueueMutation(&models.QueueItem{
		Op:      op,
		Kind:    kind,
		Data:    data,
		LocalID: localID,
	})
	if err != nil {
		return 0, err
	}
	q.logger.Debug("queued mutation", "op", op, "kind", kind, "local_id", localID, "queue_id", id)
	return id, nil
}

// Drain returns the pending items, oldest first. Items stay queued until
// Remove or Fail drops them.
func (q *Queue) Drain() ([]models.QueueItem, error) {
	return q.store.QueueItems()
}

// Remove deletes an item after it reached the backend.
func (q *Queue) Remove(id int64) error {
	return q.store.DeleteQueueItem(id)
}

// RemoveFor purges every pending item for one record.
func (q *Queue) RemoveFor(kind models.Kind, localID string) (int64, error) {
	return q.store.DeleteQueueItemsFor(kind, localID)
}

// Fail records a failed attempt. Once the item reaches the retry ceiling it
// is dropped and dropped is true.
func (q *Queue) Fail(item models.QueueItem, cause error) (dropped bool, err error) {
	attempts := item.Attempts + 1
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if attempts >= q.maxAttempts {
		q.logger.Warn("dropping queued mutation after max attempts",
			"op", item.Op, "kind", item.Kind, "local_id", item.LocalID,
			"attempts", attempts, "err", msg)
		return true, q.store.DeleteQueueItem(item.ID)
	}
	return false, q.store.UpdateQueueItem(item.ID, attempts, msg)
}

// Len returns the number of pending items.
func (q *Queue) Len() (int, error) {
	return q.store.CountQueueItems()
}
