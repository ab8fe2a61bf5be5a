package recovery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aromatch/aromatch-api/internal/store"
)

// DeadLetterQueue is the durable quarantine for tasks that exhausted
// recovery. Entries can be inspected, replayed into live tasks, or expired
// by periodic cleanup.
type DeadLetterQueue struct {
	tasks   store.TaskStore
	letters store.DeadLetterStore
	clock   Clock
	logger  *slog.Logger
}

// NewDeadLetterQueue creates a DeadLetterQueue over the given stores.
func NewDeadLetterQueue(tasks store.TaskStore, letters store.DeadLetterStore, clock Clock, logger *slog.Logger) *DeadLetterQueue {
	if clock == nil {
		clock = SystemClock()
	}
	return &DeadLetterQueue{
		tasks:   tasks,
		letters: letters,
		clock:   clock,
		logger:  logger.With("component", "dead_letter_queue"),
	}
}

// MoveToDeadLetter quarantines a live task: the entry snapshots the full
// task, and the live task row is deleted in the same transaction as the
// insert. If the task does not exist (for example because a concurrent
// call already moved it), the store's not-found error is returned; no
// entry is synthesized.
func (q *DeadLetterQueue) MoveToDeadLetter(
	ctx context.Context,
	taskID uuid.UUID,
	reason string,
	attempts int,
	lastError string,
) (*store.DeadLetterRecord, error) {
	task, err := q.tasks.FetchTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("cannot dead-letter task %s: %w", taskID, err)
	}

	entry := &store.DeadLetterRecord{
		ID:        uuid.New(),
		TaskID:    task.ID,
		TaskType:  task.Type,
		Payload:   append(json.RawMessage(nil), task.Payload...),
		Priority:  task.Priority,
		Reason:    reason,
		Attempts:  attempts,
		LastError: lastError,
		MovedAt:   q.clock.Now().UTC(),
	}

	if err := q.letters.MoveToDeadLetter(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to move task %s to dead letter queue: %w", task.ID, err)
	}

	q.logger.Warn("task moved to dead letter queue",
		"task_id", task.ID,
		"task_type", task.Type,
		"dead_letter_id", entry.ID,
		"reason", reason,
		"attempts", attempts)

	return entry, nil
}

// DeadLetters returns all quarantined entries, most recently moved first.
func (q *DeadLetterQueue) DeadLetters(ctx context.Context) ([]*store.DeadLetterRecord, error) {
	return q.letters.ListDeadLetters(ctx)
}

// Count returns the number of quarantined entries.
func (q *DeadLetterQueue) Count(ctx context.Context) (int64, error) {
	return q.letters.CountDeadLetters(ctx)
}

// RetryDeadLetter recreates a live task from the entry's snapshot with
// elevated priority and deletes the entry, returning the new task ID.
// A missing entry is an explicit error, never a silent no-op.
func (q *DeadLetterQueue) RetryDeadLetter(ctx context.Context, entryID uuid.UUID) (uuid.UUID, error) {
	entry, err := q.letters.FetchDeadLetter(ctx, entryID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to load dead letter entry %s: %w", entryID, err)
	}

	newTask := store.NewReplayTask(entry, q.clock.Now().UTC())
	if err := q.letters.ReplayDeadLetter(ctx, entry.ID, newTask); err != nil {
		return uuid.Nil, fmt.Errorf("failed to replay dead letter entry %s: %w", entryID, err)
	}

	q.logger.Info("dead letter entry replayed",
		"dead_letter_id", entry.ID,
		"original_task_id", entry.TaskID,
		"new_task_id", newTask.ID)

	return newTask.ID, nil
}

// CleanupExpired deletes entries moved strictly before now-maxAge and
// returns the count removed. Entries exactly at the boundary are kept.
// Intended to run on a fixed schedule, independent of request traffic.
func (q *DeadLetterQueue) CleanupExpired(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := q.clock.Now().UTC().Add(-maxAge)
	removed, err := q.letters.DeleteDeadLettersBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up expired dead letters: %w", err)
	}

	if removed > 0 {
		q.logger.Info("expired dead letters removed", "count", removed, "max_age", maxAge)
	}
	return removed, nil
}
