package events

import (
	"context"
	"log/slog"
)

// LoggingAlertHandler writes every alert to the structured log. Severity
// maps to the log level: CRITICAL and HIGH log as errors, MEDIUM as
// warnings, everything else as info.
type LoggingAlertHandler struct {
	logger *slog.Logger
}

// NewLoggingAlertHandler creates a handler that logs alerts.
func NewLoggingAlertHandler(logger *slog.Logger) *LoggingAlertHandler {
	return &LoggingAlertHandler{
		logger: logger.With("component", "alert_log"),
	}
}

// HandleAlert implements AlertHandler.
func (h *LoggingAlertHandler) HandleAlert(ctx context.Context, alert *Alert) error {
	level := slog.LevelInfo
	switch alert.Severity {
	case "CRITICAL", "HIGH":
		level = slog.LevelError
	case "MEDIUM":
		level = slog.LevelWarn
	}

	h.logger.Log(ctx, level, "recovery alert",
		"alert_id", alert.ID,
		"category", alert.Category,
		"severity", alert.Severity,
		"action", alert.Action,
		"message", alert.Message,
		"resource_id", alert.ResourceID,
		"task_id", alert.TaskID)
	return nil
}
