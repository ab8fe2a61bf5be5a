package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DeadLetterRecord is the durable quarantine form of a task that exhausted
// recovery. It snapshots the original task so the task row can be deleted
// and later recreated from the entry alone.
type DeadLetterRecord struct {
	ID        uuid.UUID
	TaskID    uuid.UUID
	TaskType  string
	Payload   json.RawMessage
	Priority  int
	Reason    string
	Attempts  int
	LastError string
	MovedAt   time.Time
}

// DeadLetterStore defines the interface for persisting dead-letter entries.
//
// MoveToDeadLetter and ReplayDeadLetter pair a task mutation with an entry
// mutation; implementations must execute each pair inside a single
// transaction so a task ID never exists as both a live task and a
// dead-letter entry.
type DeadLetterStore interface {
	// MoveToDeadLetter inserts the entry and deletes the live task it
	// references, atomically. Returns ErrTaskNotFound if the live task is
	// already gone.
	MoveToDeadLetter(ctx context.Context, entry *DeadLetterRecord) error

	// ReplayDeadLetter inserts the given replacement task and deletes the
	// entry, atomically. Returns ErrDeadLetterNotFound if the entry is
	// already gone.
	ReplayDeadLetter(ctx context.Context, entryID uuid.UUID, newTask *TaskRecord) error

	// FetchDeadLetter retrieves an entry by its ID.
	// Returns ErrDeadLetterNotFound if no entry with the given ID exists.
	FetchDeadLetter(ctx context.Context, id uuid.UUID) (*DeadLetterRecord, error)

	// ListDeadLetters returns all entries, most recently moved first.
	ListDeadLetters(ctx context.Context) ([]*DeadLetterRecord, error)

	// DeleteDeadLettersBefore removes entries moved strictly before the
	// cutoff and returns the number removed. Entries moved exactly at the
	// cutoff are preserved.
	DeleteDeadLettersBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// CountDeadLetters returns the number of entries currently quarantined.
	CountDeadLetters(ctx context.Context) (int64, error)
}

// NewReplayTask builds the replacement task record for a replayed entry.
// The replacement gets a fresh ID and elevated priority so it runs ahead
// of the regular backlog.
func NewReplayTask(entry *DeadLetterRecord, now time.Time) *TaskRecord {
	return &TaskRecord{
		ID:        uuid.New(),
		Type:      entry.TaskType,
		Payload:   append(json.RawMessage(nil), entry.Payload...),
		Status:    TaskStatusPending,
		Priority:  PriorityHigh,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
