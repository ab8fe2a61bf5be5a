package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrRetryCancelled is returned (wrapped) when a retry sequence is aborted
// because the caller's context expired, as opposed to exhausting its
// attempts. Callers distinguish the two with errors.Is.
var ErrRetryCancelled = errors.New("retry cancelled by caller")

// RetryConfig holds configuration for the retry handler.
type RetryConfig struct {
	// MaxRetries is the total number of attempts allowed per call.
	MaxRetries int

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps the computed backoff delay.
	MaxDelay time.Duration

	// ExponentialBackoff doubles the delay per attempt when true; a flat
	// BaseDelay is used otherwise.
	ExponentialBackoff bool

	// JitterFactor adds delay*JitterFactor*uniform(0,1) to each wait,
	// preventing callers from retrying in lockstep.
	JitterFactor float64

	// RetryableCategories overrides the default retryability table when
	// non-nil.
	RetryableCategories map[Category]bool
}

// DefaultRetryConfig returns a RetryConfig with reasonable defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:         3,
		BaseDelay:          2 * time.Second,
		MaxDelay:           5 * time.Minute,
		ExponentialBackoff: true,
		JitterFactor:       0.1,
	}
}

// Operation is the caller-supplied unit of work the recovery layer wraps.
// It must honor context cancellation.
type Operation func(ctx context.Context) (any, error)

// RetryResult reports the outcome of an ExecuteWithRetry call.
type RetryResult struct {
	Result     any
	Success    bool
	Attempts   int
	TotalDelay time.Duration
	FinalError *ProcessingError

	// Cancelled is true when the sequence was aborted by the caller's
	// context rather than by exhausting its attempts.
	Cancelled bool
}

// TaskRetryStats accumulates retry history per task. Stats persist across
// ExecuteWithRetry calls for the same task ID so later recovery stages can
// see the full history.
type TaskRetryStats struct {
	TaskID      uuid.UUID
	Attempts    int
	LastAttempt time.Time
	Errors      []*ProcessingError
}

// RetryHandler executes operations with bounded retries, exponential
// backoff and jitter. Safe for concurrent use; per-task statistics are
// serialized internally.
type RetryHandler struct {
	config RetryConfig
	clock  Clock
	logger *slog.Logger

	mu    sync.Mutex
	stats map[uuid.UUID]*TaskRetryStats

	// onError, when set, observes every classified failure. Used by the
	// manager to feed the recovery policy and error log.
	onError func(*ProcessingError)
}

// NewRetryHandler creates a RetryHandler.
func NewRetryHandler(config RetryConfig, clock Clock, logger *slog.Logger) *RetryHandler {
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultRetryConfig().MaxRetries
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = DefaultRetryConfig().MaxDelay
	}
	if clock == nil {
		clock = SystemClock()
	}

	return &RetryHandler{
		config: config,
		clock:  clock,
		logger: logger.With("component", "retry_handler"),
		stats:  make(map[uuid.UUID]*TaskRetryStats),
	}
}

// SetErrorObserver registers a callback invoked synchronously for every
// classified failure.
func (h *RetryHandler) SetErrorObserver(fn func(*ProcessingError)) {
	h.onError = fn
}

// ExecuteWithRetry invokes op up to MaxRetries times. Transient failures
// are retried after an exponential backoff with jitter; non-retryable
// categories fail fast after the first failure. The backoff wait is
// cooperative: it aborts immediately when ctx is done.
func (h *RetryHandler) ExecuteWithRetry(
	ctx context.Context,
	op Operation,
	taskID uuid.UUID,
	ectx ErrorContext,
) RetryResult {
	ectx.TaskID = taskID
	result := RetryResult{}

	for attempt := 1; attempt <= h.config.MaxRetries; attempt++ {
		result.Attempts = attempt

		if err := ctx.Err(); err != nil {
			result.Cancelled = true
			result.FinalError = h.cancellationError(err, ectx, attempt)
			return result
		}

		value, err := op(ctx)
		if err == nil {
			h.recordAttempt(taskID, nil)
			result.Result = value
			result.Success = true
			return result
		}

		ectx.Attempt = attempt
		perr := Classify(err, ectx, h.clock.Now())
		h.recordAttempt(taskID, perr)
		h.notify(perr)
		result.FinalError = perr

		h.logger.Warn("operation attempt failed",
			"task_id", taskID,
			"attempt", attempt,
			"category", perr.Category,
			"retryable", perr.Retryable,
			"error", err)

		if !h.retryable(perr.Category) || attempt == h.config.MaxRetries {
			return result
		}

		delay := h.backoffDelay(attempt)
		result.TotalDelay += delay
		if err := h.clock.Sleep(ctx, delay); err != nil {
			result.Cancelled = true
			result.FinalError = h.cancellationError(err, ectx, attempt)
			return result
		}
	}

	return result
}

// Stats returns a copy of the accumulated statistics for a task, and
// whether any exist.
func (h *RetryHandler) Stats(taskID uuid.UUID) (TaskRetryStats, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.stats[taskID]
	if !ok {
		return TaskRetryStats{}, false
	}
	cp := *s
	cp.Errors = append([]*ProcessingError(nil), s.Errors...)
	return cp, true
}

// TotalAttempts returns the number of attempts recorded across all tasks.
func (h *RetryHandler) TotalAttempts() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	total := 0
	for _, s := range h.stats {
		total += s.Attempts
	}
	return total
}

// PruneStats drops statistics whose last attempt is older than the
// retention window and returns the number removed.
func (h *RetryHandler) PruneStats(retention time.Duration) int {
	cutoff := h.clock.Now().Add(-retention)

	h.mu.Lock()
	defer h.mu.Unlock()

	removed := 0
	for id, s := range h.stats {
		if s.LastAttempt.Before(cutoff) {
			delete(h.stats, id)
			removed++
		}
	}
	return removed
}

func (h *RetryHandler) recordAttempt(taskID uuid.UUID, perr *ProcessingError) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.stats[taskID]
	if !ok {
		s = &TaskRetryStats{TaskID: taskID}
		h.stats[taskID] = s
	}
	s.Attempts++
	s.LastAttempt = h.clock.Now()
	if perr != nil {
		s.Errors = append(s.Errors, perr)
	}
}

func (h *RetryHandler) notify(perr *ProcessingError) {
	if h.onError != nil {
		h.onError(perr)
	}
}

func (h *RetryHandler) retryable(category Category) bool {
	if h.config.RetryableCategories != nil {
		return h.config.RetryableCategories[category]
	}
	return IsRetryable(category)
}

// backoffDelay computes the wait before the next attempt:
// min(BaseDelay*2^(attempt-1), MaxDelay) plus jitter.
func (h *RetryHandler) backoffDelay(attempt int) time.Duration {
	delay := h.config.BaseDelay
	if h.config.ExponentialBackoff && attempt > 1 {
		delay = h.config.BaseDelay << (attempt - 1)
	}
	if delay <= 0 || delay > h.config.MaxDelay {
		delay = h.config.MaxDelay
	}
	if h.config.JitterFactor > 0 {
		jitter := time.Duration(float64(delay) * h.config.JitterFactor * rand.Float64())
		delay += jitter
	}
	return delay
}

func (h *RetryHandler) cancellationError(cause error, ectx ErrorContext, attempt int) *ProcessingError {
	ectx.Attempt = attempt
	return &ProcessingError{
		ID:        uuid.New(),
		Category:  CategoryTimeout,
		Severity:  SeverityFor(CategoryTimeout),
		Message:   fmt.Sprintf("retry cancelled on attempt %d: %v", attempt, cause),
		Retryable: false,
		Context:   ectx,
		Timestamp: h.clock.Now(),
		Err:       fmt.Errorf("%w: %w", ErrRetryCancelled, cause),
	}
}
