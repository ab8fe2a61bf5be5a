package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/aromatch/aromatch-api/internal/store"
)

// TokenRequest is the request body for the admin token endpoint.
type TokenRequest struct {
	Password string `json:"password" validate:"required"`
}

// TokenResponse is the response body for the admin token endpoint.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// DeadLetterResponse is the API representation of a quarantined task.
type DeadLetterResponse struct {
	ID        uuid.UUID       `json:"id"`
	TaskID    uuid.UUID       `json:"task_id"`
	TaskType  string          `json:"task_type"`
	Payload   json.RawMessage `json:"payload"`
	Reason    string          `json:"reason"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"last_error"`
	MovedAt   time.Time       `json:"moved_at"`
}

// DeadLetterListResponse wraps the dead-letter listing with its count.
type DeadLetterListResponse struct {
	Count       int                  `json:"count"`
	DeadLetters []DeadLetterResponse `json:"dead_letters"`
}

// ErrorLogResponse is the API representation of a classified error.
type ErrorLogResponse struct {
	ID         uuid.UUID `json:"id"`
	Category   string    `json:"category"`
	Severity   string    `json:"severity"`
	Message    string    `json:"message"`
	Retryable  bool      `json:"retryable"`
	ResourceID string    `json:"resource_id"`
	TaskID     uuid.UUID `json:"task_id"`
	Attempt    int       `json:"attempt"`
	CreatedAt  time.Time `json:"created_at"`
}

// ErrorLogListResponse wraps the error-log listing with its query scope.
type ErrorLogListResponse struct {
	Count     int                `json:"count"`
	Window    time.Duration      `json:"window"`
	Category  string             `json:"category,omitempty"`
	ErrorLogs []ErrorLogResponse `json:"error_logs"`
}

// ReplayResponse is returned after a dead-letter entry is replayed.
type ReplayResponse struct {
	EntryID   uuid.UUID `json:"entry_id"`
	NewTaskID uuid.UUID `json:"new_task_id"`
}

// newErrorLogResponse maps a store record to its API form.
func newErrorLogResponse(rec *store.ErrorLogRecord) ErrorLogResponse {
	return ErrorLogResponse{
		ID:         rec.ID,
		Category:   rec.Category,
		Severity:   rec.Severity,
		Message:    rec.Message,
		Retryable:  rec.Retryable,
		ResourceID: rec.ResourceID,
		TaskID:     rec.TaskID,
		Attempt:    rec.Attempt,
		CreatedAt:  rec.CreatedAt,
	}
}

// newDeadLetterResponse maps a store record to its API form.
func newDeadLetterResponse(rec *store.DeadLetterRecord) DeadLetterResponse {
	return DeadLetterResponse{
		ID:        rec.ID,
		TaskID:    rec.TaskID,
		TaskType:  rec.TaskType,
		Payload:   rec.Payload,
		Reason:    rec.Reason,
		Attempts:  rec.Attempts,
		LastError: rec.LastError,
		MovedAt:   rec.MovedAt,
	}
}
