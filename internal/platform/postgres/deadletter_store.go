package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aromatch/aromatch-api/internal/store"
)

// DeadLetterStore implements the store.DeadLetterStore interface using
// PostgreSQL. It holds the *sql.DB rather than a DBTX because the move and
// replay operations open their own transactions: the entry mutation and
// the task mutation must commit or roll back together.
type DeadLetterStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewDeadLetterStore creates a new DeadLetterStore.
func NewDeadLetterStore(db *sql.DB, logger *slog.Logger) *DeadLetterStore {
	return &DeadLetterStore{
		db:     db,
		logger: logger.With("component", "dead_letter_store"),
	}
}

// MoveToDeadLetter inserts the entry and deletes the live task it
// references in one transaction. Returns ErrTaskNotFound if the live task
// is already gone.
func (s *DeadLetterStore) MoveToDeadLetter(ctx context.Context, entry *store.DeadLetterRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrTransactionFailed, err)
	}
	defer func() { _ = tx.Rollback() }()

	insert := `
		INSERT INTO dead_letters (id, task_id, task_type, payload, priority, reason, attempts, last_error, moved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	if _, err := tx.ExecContext(ctx, insert,
		entry.ID,
		entry.TaskID,
		entry.TaskType,
		entry.Payload,
		entry.Priority,
		entry.Reason,
		entry.Attempts,
		entry.LastError,
		entry.MovedAt,
	); err != nil {
		return store.NewStoreError("dead_letter", "move", "failed to insert entry", MapError(err))
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, entry.TaskID)
	if err != nil {
		return fmt.Errorf("failed to delete task %s: %w", entry.TaskID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		// A concurrent call already moved the task; rolling back keeps the
		// entry from being duplicated.
		return fmt.Errorf("%w: %s", store.ErrTaskNotFound, entry.TaskID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrTransactionFailed, err)
	}
	return nil
}

// ReplayDeadLetter inserts the replacement task and deletes the entry in
// one transaction. Returns ErrDeadLetterNotFound if the entry is already
// gone.
func (s *DeadLetterStore) ReplayDeadLetter(ctx context.Context, entryID uuid.UUID, newTask *store.TaskRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrTransactionFailed, err)
	}
	defer func() { _ = tx.Rollback() }()

	insert := `
		INSERT INTO tasks (id, type, payload, status, priority, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := tx.ExecContext(ctx, insert,
		newTask.ID,
		newTask.Type,
		newTask.Payload,
		newTask.Status,
		newTask.Priority,
		newTask.ErrorMessage,
		newTask.CreatedAt,
		newTask.UpdatedAt,
	); err != nil {
		return store.NewStoreError("dead_letter", "replay", "failed to insert replacement task", MapError(err))
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM dead_letters WHERE id = $1`, entryID)
	if err != nil {
		return fmt.Errorf("failed to delete dead letter entry %s: %w", entryID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", store.ErrDeadLetterNotFound, entryID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrTransactionFailed, err)
	}
	return nil
}

// FetchDeadLetter retrieves an entry by its ID.
func (s *DeadLetterStore) FetchDeadLetter(ctx context.Context, id uuid.UUID) (*store.DeadLetterRecord, error) {
	query := `
		SELECT id, task_id, task_type, payload, priority, reason, attempts, last_error, moved_at
		FROM dead_letters
		WHERE id = $1
	`

	var rec store.DeadLetterRecord
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID,
		&rec.TaskID,
		&rec.TaskType,
		&rec.Payload,
		&rec.Priority,
		&rec.Reason,
		&rec.Attempts,
		&rec.LastError,
		&rec.MovedAt,
	)
	if err != nil {
		if mapped := MapError(err); store.IsNotFoundError(mapped) {
			return nil, fmt.Errorf("%w: %s", store.ErrDeadLetterNotFound, id)
		}
		return nil, fmt.Errorf("failed to fetch dead letter entry %s: %w", id, err)
	}

	return &rec, nil
}

// ListDeadLetters returns all entries, most recently moved first.
func (s *DeadLetterStore) ListDeadLetters(ctx context.Context) ([]*store.DeadLetterRecord, error) {
	query := `
		SELECT id, task_id, task_type, payload, priority, reason, attempts, last_error, moved_at
		FROM dead_letters
		ORDER BY moved_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*store.DeadLetterRecord
	for rows.Next() {
		var rec store.DeadLetterRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.TaskID,
			&rec.TaskType,
			&rec.Payload,
			&rec.Priority,
			&rec.Reason,
			&rec.Attempts,
			&rec.LastError,
			&rec.MovedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan dead letter row: %w", err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate dead letter rows: %w", err)
	}

	return records, nil
}

// DeleteDeadLettersBefore removes entries moved strictly before the cutoff
// and returns the number removed.
func (s *DeadLetterStore) DeleteDeadLettersBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM dead_letters WHERE moved_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired dead letters: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return removed, nil
}

// CountDeadLetters returns the number of entries currently quarantined.
func (s *DeadLetterStore) CountDeadLetters(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dead_letters`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count dead letters: %w", err)
	}
	return count, nil
}
