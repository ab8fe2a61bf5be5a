package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aromatch/aromatch-api/internal/store"
)

// TaskStore implements the store.TaskStore interface using PostgreSQL.
type TaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewTaskStore creates a new TaskStore.
func NewTaskStore(db store.DBTX, logger *slog.Logger) *TaskStore {
	return &TaskStore{
		db:     db,
		logger: logger.With("component", "task_store"),
	}
}

// FetchTask retrieves a task by its ID.
func (s *TaskStore) FetchTask(ctx context.Context, id uuid.UUID) (*store.TaskRecord, error) {
	query := `
		SELECT id, type, payload, status, priority, error_message, created_at, updated_at
		FROM tasks
		WHERE id = $1
	`

	var rec store.TaskRecord
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID,
		&rec.Type,
		&rec.Payload,
		&rec.Status,
		&rec.Priority,
		&rec.ErrorMessage,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if mapped := MapError(err); store.IsNotFoundError(mapped) {
			return nil, fmt.Errorf("%w: %s", store.ErrTaskNotFound, id)
		}
		return nil, fmt.Errorf("failed to fetch task %s: %w", id, err)
	}

	return &rec, nil
}

// InsertTask persists a new task record.
func (s *TaskStore) InsertTask(ctx context.Context, rec *store.TaskRecord) error {
	query := `
		INSERT INTO tasks (id, type, payload, status, priority, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.Type,
		rec.Payload,
		rec.Status,
		rec.Priority,
		rec.ErrorMessage,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		s.logger.Error("failed to save task",
			"task_id", rec.ID,
			"task_type", rec.Type,
			"error", err)
		return store.NewStoreError("task", "insert", "failed to save task", MapError(err))
	}

	return nil
}

// DeleteTask removes a task record.
func (s *TaskStore) DeleteTask(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", store.ErrTaskNotFound, id)
	}

	return nil
}

// UpdateTaskStatus updates the status and error message of a task.
// Updating a missing task is a no-op so status bookkeeping for a task that
// was concurrently dead-lettered does not fail the caller.
func (s *TaskStore) UpdateTaskStatus(ctx context.Context, id uuid.UUID, status string, errorMsg string) error {
	query := `
		UPDATE tasks
		SET status = $1, error_message = $2, updated_at = $3
		WHERE id = $4
	`

	result, err := s.db.ExecContext(ctx, query, status, errorMsg, time.Now().UTC(), id)
	if err != nil {
		s.logger.Error("failed to update task status",
			"task_id", id,
			"status", status,
			"error", err)
		return fmt.Errorf("failed to update task status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		s.logger.Warn("no task found with ID to update status", "task_id", id)
	}

	return nil
}

// ListTasksByStatus retrieves tasks with the given status, highest
// priority first (lower value wins), oldest first within a priority. If
// olderThan is non-zero, only tasks whose last update is older than the
// given duration are returned.
func (s *TaskStore) ListTasksByStatus(ctx context.Context, status string, olderThan time.Duration) ([]*store.TaskRecord, error) {
	var query string
	var args []interface{}

	if olderThan > 0 {
		query = `
			SELECT id, type, payload, status, priority, error_message, created_at, updated_at
			FROM tasks
			WHERE status = $1 AND updated_at < $2
			ORDER BY priority ASC, created_at ASC
		`
		args = []interface{}{status, time.Now().UTC().Add(-olderThan)}
	} else {
		query = `
			SELECT id, type, payload, status, priority, error_message, created_at, updated_at
			FROM tasks
			WHERE status = $1
			ORDER BY priority ASC, created_at ASC
		`
		args = []interface{}{status}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks by status: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*store.TaskRecord
	for rows.Next() {
		var rec store.TaskRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.Type,
			&rec.Payload,
			&rec.Status,
			&rec.Priority,
			&rec.ErrorMessage,
			&rec.CreatedAt,
			&rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate task rows: %w", err)
	}

	return records, nil
}
