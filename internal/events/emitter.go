package events

import (
	"context"
	"log/slog"
	"sync"
)

// InMemoryAlertEmitter is a simple implementation of the AlertEmitter
// interface that stores registered handlers in memory and dispatches
// alerts to them synchronously.
type InMemoryAlertEmitter struct {
	handlers []AlertHandler
	mu       sync.RWMutex
	logger   *slog.Logger
}

// NewInMemoryAlertEmitter creates a new instance of InMemoryAlertEmitter.
func NewInMemoryAlertEmitter(logger *slog.Logger) *InMemoryAlertEmitter {
	return &InMemoryAlertEmitter{
		handlers: make([]AlertHandler, 0),
		logger:   logger.With("component", "alert_emitter"),
	}
}

// RegisterHandler adds a new alert handler to receive alerts.
func (e *InMemoryAlertEmitter) RegisterHandler(handler AlertHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, handler)
	e.logger.Debug("registered new alert handler", "handler_count", len(e.handlers))
}

// Emit publishes the given alert to all registered handlers. Every handler
// is invoked even when earlier ones fail or panic; failures are logged and
// never propagated to the caller.
func (e *InMemoryAlertEmitter) Emit(ctx context.Context, alert *Alert) {
	e.mu.RLock()
	handlers := make([]AlertHandler, len(e.handlers))
	copy(handlers, e.handlers)
	e.mu.RUnlock()

	for i, handler := range handlers {
		e.dispatch(ctx, i, handler, alert)
	}
}

// dispatch runs one handler inside its own failure boundary.
func (e *InMemoryAlertEmitter) dispatch(ctx context.Context, index int, handler AlertHandler, alert *Alert) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("alert handler panicked",
				"panic", r,
				"handler_index", index,
				"alert_id", alert.ID,
				"severity", alert.Severity)
		}
	}()

	if err := handler.HandleAlert(ctx, alert); err != nil {
		e.logger.Error("alert handler failed",
			"error", err,
			"handler_index", index,
			"alert_id", alert.ID,
			"severity", alert.Severity)
	}
}
