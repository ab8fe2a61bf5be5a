package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ErrorLogRecord is the persisted form of a classified processing error.
// Rows are append-only and served through the admin error listing.
type ErrorLogRecord struct {
	ID         uuid.UUID
	Category   string
	Severity   string
	Message    string
	Retryable  bool
	ResourceID string
	TaskID     uuid.UUID
	Attempt    int
	CreatedAt  time.Time
}

// ErrorLogStore defines the interface for persisting classified errors.
type ErrorLogStore interface {
	// InsertErrorLog appends a classified error record.
	InsertErrorLog(ctx context.Context, rec *ErrorLogRecord) error

	// ListErrorLogs returns records of the given category created within
	// [from, to), newest first. An empty category matches all categories.
	ListErrorLogs(ctx context.Context, category string, from, to time.Time) ([]*ErrorLogRecord, error)
}
