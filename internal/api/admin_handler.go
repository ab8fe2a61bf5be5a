package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/aromatch/aromatch-api/internal/recovery"
	"github.com/aromatch/aromatch-api/internal/store"
)

// defaultSummaryWindow is used when the summary endpoint gets no window
// query parameter.
const defaultSummaryWindow = 24 * time.Hour

// RecoveryService is the slice of the recovery manager the admin handlers
// consume. *recovery.Manager satisfies it.
type RecoveryService interface {
	GetRecoveryStats(ctx context.Context) (recovery.RecoveryStats, error)
	ErrorSummary(window time.Duration) recovery.ErrorSummary
	RetryDeadLetter(ctx context.Context, entryID uuid.UUID) (uuid.UUID, error)
	PerformRecoveryMaintenance(ctx context.Context) recovery.MaintenanceReport
}

// TaskRequeuer pushes a persisted pending task onto the live processing
// queue. *task.Runner satisfies it.
type TaskRequeuer interface {
	Requeue(ctx context.Context, taskID uuid.UUID) error
}

// AdminHandler handles recovery administration requests.
type AdminHandler struct {
	recovery  RecoveryService
	letters   store.DeadLetterStore
	errorLogs store.ErrorLogStore
	requeuer  TaskRequeuer
	logger    *slog.Logger
}

// NewAdminHandler creates a new AdminHandler with the given dependencies.
func NewAdminHandler(
	recoveryService RecoveryService,
	letters store.DeadLetterStore,
	errorLogs store.ErrorLogStore,
	requeuer TaskRequeuer,
	logger *slog.Logger,
) *AdminHandler {
	return &AdminHandler{
		recovery:  recoveryService,
		letters:   letters,
		errorLogs: errorLogs,
		requeuer:  requeuer,
		logger:    logger.With("component", "admin_handler"),
	}
}

// RecoveryStats handles the GET /admin/recovery/stats endpoint.
func (h *AdminHandler) RecoveryStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.recovery.GetRecoveryStats(r.Context())
	if err != nil {
		h.logger.Error("failed to collect recovery stats", "error", err)
		RespondWithError(w, r, http.StatusInternalServerError, "Failed to collect recovery stats")
		return
	}

	RespondWithJSON(w, r, http.StatusOK, stats)
}

// ErrorSummary handles the GET /admin/recovery/summary endpoint. The
// aggregation window can be set with the "window" query parameter, e.g.
// ?window=1h; it defaults to 24 hours.
func (h *AdminHandler) ErrorSummary(w http.ResponseWriter, r *http.Request) {
	window := defaultSummaryWindow
	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			RespondWithError(w, r, http.StatusBadRequest, "Invalid window parameter")
			return
		}
		window = parsed
	}

	RespondWithJSON(w, r, http.StatusOK, h.recovery.ErrorSummary(window))
}

// ListDeadLetters handles the GET /admin/deadletters endpoint.
func (h *AdminHandler) ListDeadLetters(w http.ResponseWriter, r *http.Request) {
	records, err := h.letters.ListDeadLetters(r.Context())
	if err != nil {
		h.logger.Error("failed to list dead letters", "error", err)
		RespondWithError(w, r, http.StatusInternalServerError, "Failed to list dead letters")
		return
	}

	resp := DeadLetterListResponse{
		Count:       len(records),
		DeadLetters: make([]DeadLetterResponse, 0, len(records)),
	}
	for _, rec := range records {
		resp.DeadLetters = append(resp.DeadLetters, newDeadLetterResponse(rec))
	}

	RespondWithJSON(w, r, http.StatusOK, resp)
}

// ReplayDeadLetter handles the POST /admin/deadletters/{id}/retry
// endpoint. The quarantined task is resubmitted as a fresh high-priority
// task, pushed onto the live queue, and the entry is removed.
func (h *AdminHandler) ReplayDeadLetter(w http.ResponseWriter, r *http.Request) {
	entryID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "Invalid dead letter ID")
		return
	}

	newTaskID, err := h.recovery.RetryDeadLetter(r.Context(), entryID)
	if err != nil {
		if store.IsNotFoundError(err) {
			RespondWithError(w, r, http.StatusNotFound, "Dead letter entry not found")
			return
		}
		h.logger.Error("failed to replay dead letter",
			"entry_id", entryID,
			"error", err)
		RespondWithError(w, r, http.StatusInternalServerError, "Failed to replay dead letter")
		return
	}

	if err := h.requeuer.Requeue(r.Context(), newTaskID); err != nil {
		// The pending row is durable, so a full queue only delays the
		// replay until the next restart recovery pass.
		h.logger.Warn("failed to queue replayed task",
			"task_id", newTaskID,
			"error", err)
	}

	h.logger.Info("dead letter replayed",
		"entry_id", entryID,
		"new_task_id", newTaskID)

	RespondWithJSON(w, r, http.StatusOK, ReplayResponse{
		EntryID:   entryID,
		NewTaskID: newTaskID,
	})
}

// ListErrorLogs handles the GET /admin/errors endpoint, returning the
// classified errors recorded within the window. The "window" query
// parameter takes a Go duration and defaults to 24 hours; "category"
// narrows the listing to one error category.
func (h *AdminHandler) ListErrorLogs(w http.ResponseWriter, r *http.Request) {
	window := defaultSummaryWindow
	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			RespondWithError(w, r, http.StatusBadRequest, "Invalid window parameter")
			return
		}
		window = parsed
	}
	category := r.URL.Query().Get("category")

	now := time.Now().UTC()
	records, err := h.errorLogs.ListErrorLogs(r.Context(), category, now.Add(-window), now)
	if err != nil {
		h.logger.Error("failed to list error logs", "error", err)
		RespondWithError(w, r, http.StatusInternalServerError, "Failed to list error logs")
		return
	}

	resp := ErrorLogListResponse{
		Count:     len(records),
		Window:    window,
		Category:  category,
		ErrorLogs: make([]ErrorLogResponse, 0, len(records)),
	}
	for _, rec := range records {
		resp.ErrorLogs = append(resp.ErrorLogs, newErrorLogResponse(rec))
	}

	RespondWithJSON(w, r, http.StatusOK, resp)
}

// RunMaintenance handles the POST /admin/recovery/maintenance endpoint,
// triggering an immediate maintenance pass.
func (h *AdminHandler) RunMaintenance(w http.ResponseWriter, r *http.Request) {
	report := h.recovery.PerformRecoveryMaintenance(r.Context())

	h.logger.Info("manual maintenance pass completed",
		"dead_letters_removed", report.DeadLettersRemoved,
		"breakers_reset", report.BreakersReset,
		"stats_pruned", report.StatsPruned)

	RespondWithJSON(w, r, http.StatusOK, report)
}
