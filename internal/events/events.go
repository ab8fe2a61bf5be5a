package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Alert is a transient notification produced for a classified processing
// error. Alerts are not persisted by this subsystem; persistence, if any,
// is the handler's responsibility.
type Alert struct {
	// ID is a unique identifier for this alert.
	ID uuid.UUID `json:"id"`

	// Category is the error category that produced the alert.
	Category string `json:"category"`

	// Severity is the classified severity of the underlying error.
	Severity string `json:"severity"`

	// Action is the recovery action the policy decided on.
	Action string `json:"action"`

	// Message is the underlying error message.
	Message string `json:"message"`

	// ResourceID identifies the external resource involved, if any.
	ResourceID string `json:"resource_id,omitempty"`

	// TaskID identifies the task being processed, if any.
	TaskID uuid.UUID `json:"task_id,omitempty"`

	// CreatedAt is the timestamp when the alert was created.
	CreatedAt time.Time `json:"created_at"`
}

// AlertHandler defines an interface for components that consume alerts.
type AlertHandler interface {
	// HandleAlert processes the given alert within the provided context.
	// Returns an error if the alert cannot be handled successfully.
	HandleAlert(ctx context.Context, alert *Alert) error
}

// AlertHandlerFunc adapts a plain function to the AlertHandler interface.
type AlertHandlerFunc func(ctx context.Context, alert *Alert) error

// HandleAlert implements AlertHandler.
func (f AlertHandlerFunc) HandleAlert(ctx context.Context, alert *Alert) error {
	return f(ctx, alert)
}

// AlertEmitter defines an interface for components that publish alerts to
// registered handlers.
type AlertEmitter interface {
	// RegisterHandler adds a new handler to receive alerts.
	RegisterHandler(handler AlertHandler)

	// Emit publishes the given alert to all registered handlers.
	Emit(ctx context.Context, alert *Alert)
}
