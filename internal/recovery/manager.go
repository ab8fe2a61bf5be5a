package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aromatch/aromatch-api/internal/store"
)

// ManagerConfig holds configuration for the recovery manager.
type ManagerConfig struct {
	Retry   RetryConfig
	Breaker BreakerConfig

	// DefaultResource is the breaker key used when an operation's context
	// names no resource.
	DefaultResource string

	// DeadLetterMaxAge is the retention for quarantined entries; older
	// entries are removed by maintenance.
	DeadLetterMaxAge time.Duration

	// StatsRetention bounds how long per-task retry statistics are kept.
	StatsRetention time.Duration

	// BreakerStuckThreshold is how long a breaker may sit OPEN with no new
	// failures before maintenance force-resets it.
	BreakerStuckThreshold time.Duration
}

// DefaultManagerConfig returns a ManagerConfig with reasonable defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Retry:                 DefaultRetryConfig(),
		Breaker:               DefaultBreakerConfig(),
		DefaultResource:       "default",
		DeadLetterMaxAge:      7 * 24 * time.Hour,
		StatsRetention:        24 * time.Hour,
		BreakerStuckThreshold: 10 * time.Minute,
	}
}

// RecoveryResult is what the direct caller of ProcessWithRecovery sees.
// Internal retry counts, circuit state and classification detail are
// available only through the stats and summary APIs.
type RecoveryResult struct {
	Result       any
	Success      bool
	RecoveryUsed bool
	DeadLettered bool
	FinalError   error
}

// RecoveryStats is the subsystem's primary observability snapshot.
type RecoveryStats struct {
	TotalAttempts   int                     `json:"total_attempts"`
	RecoveredTasks  int                     `json:"recovered_tasks"`
	DeadLetterCount int64                   `json:"dead_letter_count"`
	CircuitStates   map[string]CircuitState `json:"circuit_states"`
	TopCategories   []CategoryCount         `json:"top_categories"`
}

// CategoryCount ranks an error category by observed frequency.
type CategoryCount struct {
	Category Category `json:"category"`
	Count    int      `json:"count"`
}

// MaintenanceReport summarizes one periodic maintenance pass.
type MaintenanceReport struct {
	DeadLettersRemoved int64 `json:"dead_letters_removed"`
	BreakersReset      int   `json:"breakers_reset"`
	StatsPruned        int   `json:"stats_pruned"`
}

// ManagerOption customizes a Manager at construction time.
type ManagerOption func(*Manager)

// WithClock injects a clock, letting tests drive time.
func WithClock(clock Clock) ManagerOption {
	return func(m *Manager) { m.clock = clock }
}

// WithMetrics attaches prometheus instruments to the manager.
func WithMetrics(metrics *Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = metrics }
}

// WithErrorLog attaches a store that every classified error is appended to,
// best-effort, for external dashboards.
func WithErrorLog(errorLogs store.ErrorLogStore) ManagerOption {
	return func(m *Manager) { m.errorLogs = errorLogs }
}

// Manager composes the circuit breakers, the retry handler, the dead
// letter queue and the recovery policy into a single entry point. One
// instance owns all recovery state; there is no package-level state.
type Manager struct {
	config    ManagerConfig
	clock     Clock
	logger    *slog.Logger
	retry     *RetryHandler
	breakers  *BreakerRegistry
	dlq       *DeadLetterQueue
	policy    *RecoveryPolicy
	errorLogs store.ErrorLogStore
	metrics   *Metrics

	mu             sync.Mutex
	recoveredTasks int
	categoryCounts map[Category]int
}

// NewManager wires the recovery subsystem together over the given stores.
func NewManager(
	config ManagerConfig,
	tasks store.TaskStore,
	letters store.DeadLetterStore,
	policy *RecoveryPolicy,
	logger *slog.Logger,
	opts ...ManagerOption,
) *Manager {
	if config.DefaultResource == "" {
		config.DefaultResource = DefaultManagerConfig().DefaultResource
	}
	if config.StatsRetention <= 0 {
		config.StatsRetention = DefaultManagerConfig().StatsRetention
	}
	if config.BreakerStuckThreshold <= 0 {
		config.BreakerStuckThreshold = DefaultManagerConfig().BreakerStuckThreshold
	}

	m := &Manager{
		config:         config,
		clock:          SystemClock(),
		logger:         logger.With("component", "recovery_manager"),
		policy:         policy,
		categoryCounts: make(map[Category]int),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.retry = NewRetryHandler(config.Retry, m.clock, logger)
	m.breakers = NewBreakerRegistry(config.Breaker, m.clock, logger)
	m.dlq = NewDeadLetterQueue(tasks, letters, m.clock, logger)
	m.retry.SetErrorObserver(m.observeError)

	return m
}

// DeadLetterQueue exposes the manager's dead letter queue for inspection
// and manual replay.
func (m *Manager) DeadLetterQueue() *DeadLetterQueue {
	return m.dlq
}

// Policy exposes the manager's recovery policy for alert registration and
// error summaries.
func (m *Manager) Policy() *RecoveryPolicy {
	return m.policy
}

// Metrics returns the attached prometheus instruments, if any.
func (m *Manager) Metrics() *Metrics {
	return m.metrics
}

// ProcessWithRecovery executes op for the given task with the full
// recovery stack: circuit breaking per resource, classified retries with
// backoff, and dead-lettering on exhaustion.
//
// Rate-limit failures are deliberately never dead-lettered: they are
// expected to self-resolve, and the caller is expected to reschedule.
func (m *Manager) ProcessWithRecovery(
	ctx context.Context,
	op Operation,
	taskID uuid.UUID,
	ectx ErrorContext,
) RecoveryResult {
	resourceID := ectx.ResourceID
	if resourceID == "" {
		resourceID = m.config.DefaultResource
		ectx.ResourceID = resourceID
	}

	breaker := m.breakers.GetOrCreate(resourceID)

	var retryResult RetryResult
	wrapped := func(ctx context.Context) (any, error) {
		retryResult = m.retry.ExecuteWithRetry(ctx, op, taskID, ectx)
		if retryResult.Success {
			return retryResult.Result, nil
		}
		return nil, retryResult.FinalError
	}

	br := breaker.Execute(ctx, wrapped)
	m.metrics.observeBreakerState(resourceID, br.State)

	if errors.Is(br.Err, ErrCircuitOpen) {
		if m.metrics != nil {
			m.metrics.RejectedTotal.WithLabelValues(resourceID).Inc()
		}
		m.logger.Warn("call rejected by open circuit breaker",
			"task_id", taskID,
			"resource_id", resourceID)
		return RecoveryResult{RecoveryUsed: true, FinalError: br.Err}
	}

	if br.Success {
		m.policy.RecordSuccess(resourceID, taskID)
		recovered := retryResult.Attempts > 1
		if recovered {
			m.mu.Lock()
			m.recoveredTasks++
			m.mu.Unlock()
		}
		return RecoveryResult{Result: br.Result, Success: true, RecoveryUsed: recovered}
	}

	finalErr := retryResult.FinalError
	result := RecoveryResult{RecoveryUsed: true, FinalError: finalErr}

	if retryResult.Cancelled {
		// The caller's deadline expired; distinguishable from exhaustion
		// via ErrRetryCancelled. Never dead-lettered.
		return result
	}

	if m.shouldDeadLetter(taskID, finalErr) {
		reason := fmt.Sprintf("%s after %d attempts: %s",
			finalErr.Category, retryResult.Attempts, finalErr.Message)
		if _, err := m.dlq.MoveToDeadLetter(ctx, taskID, reason, retryResult.Attempts, finalErr.Message); err != nil {
			m.logger.Error("failed to dead-letter task",
				"task_id", taskID,
				"error", err)
		} else {
			result.DeadLettered = true
			if m.metrics != nil {
				m.metrics.DeadLettersTotal.Inc()
			}
		}
	}

	return result
}

// shouldDeadLetter applies the quarantine policy: retries exhausted or the
// final error unrecoverable, except rate limits, which self-resolve.
func (m *Manager) shouldDeadLetter(taskID uuid.UUID, finalErr *ProcessingError) bool {
	if finalErr == nil || finalErr.Category == CategoryRateLimit {
		return false
	}
	if !finalErr.Retryable {
		return true
	}
	stats, ok := m.retry.Stats(taskID)
	return ok && stats.Attempts >= m.config.Retry.MaxRetries
}

// RetryDeadLetter replays a quarantined entry as a live task.
func (m *Manager) RetryDeadLetter(ctx context.Context, entryID uuid.UUID) (uuid.UUID, error) {
	newTaskID, err := m.dlq.RetryDeadLetter(ctx, entryID)
	if err == nil && m.metrics != nil {
		m.metrics.ReplaysTotal.Inc()
	}
	return newTaskID, err
}

// GetRecoveryStats aggregates the subsystem's observability snapshot.
func (m *Manager) GetRecoveryStats(ctx context.Context) (RecoveryStats, error) {
	deadLetters, err := m.dlq.Count(ctx)
	if err != nil {
		return RecoveryStats{}, fmt.Errorf("failed to count dead letters: %w", err)
	}

	m.mu.Lock()
	recovered := m.recoveredTasks
	ranked := make([]CategoryCount, 0, len(m.categoryCounts))
	for c, n := range m.categoryCounts {
		ranked = append(ranked, CategoryCount{Category: c, Count: n})
	}
	m.mu.Unlock()

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Category < ranked[j].Category
	})
	if len(ranked) > 5 {
		ranked = ranked[:5]
	}

	return RecoveryStats{
		TotalAttempts:   m.retry.TotalAttempts(),
		RecoveredTasks:  recovered,
		DeadLetterCount: deadLetters,
		CircuitStates:   m.breakers.States(),
		TopCategories:   ranked,
	}, nil
}

// ErrorSummary proxies the policy's time-windowed summary.
func (m *Manager) ErrorSummary(window time.Duration) ErrorSummary {
	return m.policy.ErrorSummary(window)
}

// PerformRecoveryMaintenance runs the periodic housekeeping pass: expired
// dead letters are removed, breakers stuck OPEN are force-reset, and stale
// retry statistics are pruned. Intended as a background job, not
// request-triggered.
func (m *Manager) PerformRecoveryMaintenance(ctx context.Context) MaintenanceReport {
	report := MaintenanceReport{}

	if m.config.DeadLetterMaxAge > 0 {
		removed, err := m.dlq.CleanupExpired(ctx, m.config.DeadLetterMaxAge)
		if err != nil {
			m.logger.Error("dead letter cleanup failed", "error", err)
		} else {
			report.DeadLettersRemoved = removed
		}
	}

	report.BreakersReset = m.breakers.ResetStuckOpen(m.config.BreakerStuckThreshold)
	report.StatsPruned = m.retry.PruneStats(m.config.StatsRetention)

	m.logger.Info("recovery maintenance completed",
		"dead_letters_removed", report.DeadLettersRemoved,
		"breakers_reset", report.BreakersReset,
		"stats_pruned", report.StatsPruned)

	return report
}

// observeError feeds every classified failure to the policy, the metrics
// and the persistent error log. Runs synchronously on the retry path.
func (m *Manager) observeError(perr *ProcessingError) {
	m.mu.Lock()
	m.categoryCounts[perr.Category]++
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.RetriesTotal.WithLabelValues(string(perr.Category)).Inc()
		m.metrics.AlertsTotal.WithLabelValues(string(perr.Severity)).Inc()
	}

	ctx := context.Background()
	m.policy.HandleError(ctx, perr)

	if m.errorLogs != nil {
		rec := &store.ErrorLogRecord{
			ID:         perr.ID,
			Category:   string(perr.Category),
			Severity:   string(perr.Severity),
			Message:    perr.Message,
			Retryable:  perr.Retryable,
			ResourceID: perr.Context.ResourceID,
			TaskID:     perr.Context.TaskID,
			Attempt:    perr.Context.Attempt,
			CreatedAt:  perr.Timestamp,
		}
		if err := m.errorLogs.InsertErrorLog(ctx, rec); err != nil {
			m.logger.Error("failed to persist error log record",
				"error_id", perr.ID,
				"error", err)
		}
	}
}
