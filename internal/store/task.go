package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Task status values shared between the task runner and the stores.
const (
	TaskStatusPending    = "pending"
	TaskStatusProcessing = "processing"
	TaskStatusCompleted  = "completed"
	TaskStatusFailed     = "failed"
)

// Task priority values. Lower values are picked up sooner. Replayed
// dead-letter tasks get PriorityHigh so they run ahead of the backlog.
const (
	PriorityHigh    = 0
	PriorityDefault = 5
)

// TaskRecord is the persisted form of a background task.
type TaskRecord struct {
	ID           uuid.UUID
	Type         string
	Payload      json.RawMessage
	Status       string
	Priority     int
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TaskStore defines the interface for persisting tasks.
type TaskStore interface {
	// FetchTask retrieves a task by its ID.
	// Returns ErrTaskNotFound if no task with the given ID exists.
	FetchTask(ctx context.Context, id uuid.UUID) (*TaskRecord, error)

	// InsertTask persists a new task record.
	InsertTask(ctx context.Context, rec *TaskRecord) error

	// DeleteTask removes a task record.
	// Returns ErrTaskNotFound if no task with the given ID exists.
	DeleteTask(ctx context.Context, id uuid.UUID) error

	// UpdateTaskStatus updates the status and error message of a task.
	// Updating a missing task is a no-op, so status bookkeeping for a task
	// that was concurrently dead-lettered does not fail the caller.
	UpdateTaskStatus(ctx context.Context, id uuid.UUID, status string, errorMsg string) error

	// ListTasksByStatus retrieves tasks with the given status, ordered by
	// priority (lower value first), then oldest first. If olderThan is
	// non-zero, only tasks whose last update is older than the given
	// duration are returned.
	ListTasksByStatus(ctx context.Context, status string, olderThan time.Duration) ([]*TaskRecord, error)
}
