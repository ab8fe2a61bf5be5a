package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aromatch/aromatch-api/internal/store"
)

// ErrorLogStore implements the store.ErrorLogStore interface using
// PostgreSQL. Rows are append-only.
type ErrorLogStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewErrorLogStore creates a new ErrorLogStore.
func NewErrorLogStore(db store.DBTX, logger *slog.Logger) *ErrorLogStore {
	return &ErrorLogStore{
		db:     db,
		logger: logger.With("component", "error_log_store"),
	}
}

// InsertErrorLog appends a classified error record.
func (s *ErrorLogStore) InsertErrorLog(ctx context.Context, rec *store.ErrorLogRecord) error {
	query := `
		INSERT INTO error_logs (id, category, severity, message, retryable, resource_id, task_id, attempt, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.Category,
		rec.Severity,
		rec.Message,
		rec.Retryable,
		rec.ResourceID,
		rec.TaskID,
		rec.Attempt,
		rec.CreatedAt,
	)
	if err != nil {
		return store.NewStoreError("error_log", "insert", "failed to append error record", MapError(err))
	}
	return nil
}

// ListErrorLogs returns records of the given category created within
// [from, to), newest first. An empty category matches all categories.
func (s *ErrorLogStore) ListErrorLogs(ctx context.Context, category string, from, to time.Time) ([]*store.ErrorLogRecord, error) {
	var query string
	var args []interface{}

	if category != "" {
		query = `
			SELECT id, category, severity, message, retryable, resource_id, task_id, attempt, created_at
			FROM error_logs
			WHERE category = $1 AND created_at >= $2 AND created_at < $3
			ORDER BY created_at DESC
		`
		args = []interface{}{category, from, to}
	} else {
		query = `
			SELECT id, category, severity, message, retryable, resource_id, task_id, attempt, created_at
			FROM error_logs
			WHERE created_at >= $1 AND created_at < $2
			ORDER BY created_at DESC
		`
		args = []interface{}{from, to}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list error logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*store.ErrorLogRecord
	for rows.Next() {
		var rec store.ErrorLogRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.Category,
			&rec.Severity,
			&rec.Message,
			&rec.Retryable,
			&rec.ResourceID,
			&rec.TaskID,
			&rec.Attempt,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan error log row: %w", err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate error log rows: %w", err)
	}

	return records, nil
}
