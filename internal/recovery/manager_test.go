package recovery

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aromatch/aromatch-api/internal/events"
	"github.com/aromatch/aromatch-api/internal/store"
)

func testManagerConfig() ManagerConfig {
	return ManagerConfig{
		Retry: RetryConfig{
			MaxRetries:         3,
			BaseDelay:          time.Second,
			MaxDelay:           time.Minute,
			ExponentialBackoff: true,
			JitterFactor:       0,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 10,
			Timeout:          0,
			MonitoringPeriod: time.Minute,
			ResetTimeout:     30 * time.Second,
		},
		DefaultResource:       "gemini",
		DeadLetterMaxAge:      7 * 24 * time.Hour,
		StatsRetention:        24 * time.Hour,
		BreakerStuckThreshold: 10 * time.Minute,
	}
}

func newTestManager(t *testing.T, cfg ManagerConfig, clock Clock) (*Manager, *memoryStore) {
	t.Helper()

	logger := testLogger()
	emitter := events.NewInMemoryAlertEmitter(logger)
	policy := NewRecoveryPolicy(DefaultPolicyConfig(), emitter, clock, logger)
	ms := newMemoryStore()
	m := NewManager(cfg, ms, ms, policy, logger,
		WithClock(clock),
		WithMetrics(NewMetrics()),
		WithErrorLog(ms))
	return m, ms
}

func TestProcessWithRecoveryRateLimitEventuallySucceeds(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	cfg := testManagerConfig()
	cfg.Retry.MaxRetries = 5
	m, ms := newTestManager(t, cfg, clock)
	ctx := context.Background()

	task := seedTask(t, ms, clock)

	var calls int32
	op := func(ctx context.Context) (any, error) {
		if atomic.AddInt32(&calls, 1) <= 3 {
			return nil, errors.New("429 too many requests")
		}
		return "note profile", nil
	}

	result := m.ProcessWithRecovery(ctx, op, task.ID, ErrorContext{})

	assert.True(t, result.Success)
	assert.True(t, result.RecoveryUsed)
	assert.False(t, result.DeadLettered)
	assert.Equal(t, "note profile", result.Result)
	assert.EqualValues(t, 4, atomic.LoadInt32(&calls))

	// The task survived: rate limits never dead-letter.
	_, err := ms.FetchTask(ctx, task.ID)
	require.NoError(t, err)

	stats, err := m.GetRecoveryStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalAttempts)
	assert.Equal(t, 1, stats.RecoveredTasks)
	assert.Zero(t, stats.DeadLetterCount)
	assert.Equal(t, StateClosed, stats.CircuitStates["gemini"])
	require.NotEmpty(t, stats.TopCategories)
	assert.Equal(t, CategoryCount{Category: CategoryRateLimit, Count: 3}, stats.TopCategories[0])
}

func TestProcessWithRecoveryFirstTrySuccessIsNotRecovery(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(time.Now())
	m, ms := newTestManager(t, testManagerConfig(), clock)

	task := seedTask(t, ms, clock)
	op := func(ctx context.Context) (any, error) { return "ok", nil }

	result := m.ProcessWithRecovery(context.Background(), op, task.ID, ErrorContext{})

	assert.True(t, result.Success)
	assert.False(t, result.RecoveryUsed)

	stats, err := m.GetRecoveryStats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.RecoveredTasks)
}

func TestProcessWithRecoveryValidationDeadLettersImmediately(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(time.Now())
	m, ms := newTestManager(t, testManagerConfig(), clock)
	ctx := context.Background()

	task := seedTask(t, ms, clock)

	var calls int32
	op := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("invalid fragrance id")
	}

	result := m.ProcessWithRecovery(ctx, op, task.ID, ErrorContext{})

	assert.False(t, result.Success)
	assert.True(t, result.RecoveryUsed)
	assert.True(t, result.DeadLettered)
	require.NotNil(t, result.FinalError)

	// Malformed input is not retried.
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

	entries, err := m.DeadLetterQueue().DeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, task.ID, entries[0].TaskID)
	assert.Contains(t, entries[0].Reason, "VALIDATION")
	assert.Equal(t, 1, entries[0].Attempts)
	assert.Equal(t, "invalid fragrance id", entries[0].LastError)

	_, err = ms.FetchTask(ctx, task.ID)
	assert.True(t, store.IsNotFoundError(err))

	// Every classified failure lands in the persistent error log.
	assert.Equal(t, 1, ms.errorLogCount())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Metrics().DeadLettersTotal))
}

func TestProcessWithRecoveryNetworkExhaustionDeadLetters(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(time.Now())
	m, ms := newTestManager(t, testManagerConfig(), clock)
	ctx := context.Background()

	task := seedTask(t, ms, clock)

	op := func(ctx context.Context) (any, error) {
		return nil, errors.New("dial tcp: connection refused")
	}

	result := m.ProcessWithRecovery(ctx, op, task.ID, ErrorContext{})

	assert.False(t, result.Success)
	assert.True(t, result.DeadLettered)

	entries, err := m.DeadLetterQueue().DeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Reason, "NETWORK after 3 attempts")
	assert.Equal(t, 3, entries[0].Attempts)
}

func TestProcessWithRecoveryRateLimitExhaustionIsNotDeadLettered(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(time.Now())
	m, ms := newTestManager(t, testManagerConfig(), clock)
	ctx := context.Background()

	task := seedTask(t, ms, clock)

	op := func(ctx context.Context) (any, error) {
		return nil, errors.New("429 too many requests")
	}

	result := m.ProcessWithRecovery(ctx, op, task.ID, ErrorContext{})

	assert.False(t, result.Success)
	assert.False(t, result.DeadLettered)

	// The task stays live for a later reschedule.
	_, err := ms.FetchTask(ctx, task.ID)
	require.NoError(t, err)

	count, err := m.DeadLetterQueue().Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestProcessWithRecoveryOpenBreakerRejects(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(time.Now())
	cfg := testManagerConfig()
	cfg.Retry.MaxRetries = 1
	cfg.Breaker.FailureThreshold = 1
	m, ms := newTestManager(t, cfg, clock)
	ctx := context.Background()

	task := seedTask(t, ms, clock)

	var calls int32
	op := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("dial tcp: connection refused")
	}

	first := m.ProcessWithRecovery(ctx, op, task.ID, ErrorContext{})
	require.False(t, first.Success)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))

	other := seedTask(t, ms, clock)
	second := m.ProcessWithRecovery(ctx, op, other.ID, ErrorContext{})

	assert.False(t, second.Success)
	assert.True(t, second.RecoveryUsed)
	assert.False(t, second.DeadLettered)
	assert.ErrorIs(t, second.FinalError, ErrCircuitOpen)

	// The rejected call never reached the operation.
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

	stats, err := m.GetRecoveryStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateOpen, stats.CircuitStates["gemini"])
}

func TestProcessWithRecoveryCancellationIsNotDeadLettered(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(time.Now())
	m, ms := newTestManager(t, testManagerConfig(), clock)

	task := seedTask(t, ms, clock)

	ctx, cancel := context.WithCancel(context.Background())
	op := func(ctx context.Context) (any, error) {
		cancel()
		return nil, errors.New("connection reset by peer")
	}

	result := m.ProcessWithRecovery(ctx, op, task.ID, ErrorContext{})

	assert.False(t, result.Success)
	assert.False(t, result.DeadLettered)
	assert.ErrorIs(t, result.FinalError, ErrRetryCancelled)

	_, err := ms.FetchTask(context.Background(), task.ID)
	require.NoError(t, err)
}

func TestProcessWithRecoveryUsesResourceFromContext(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(time.Now())
	m, ms := newTestManager(t, testManagerConfig(), clock)
	ctx := context.Background()

	task := seedTask(t, ms, clock)
	op := func(ctx context.Context) (any, error) { return "ok", nil }

	m.ProcessWithRecovery(ctx, op, task.ID, ErrorContext{ResourceID: "openai"})

	stats, err := m.GetRecoveryStats(ctx)
	require.NoError(t, err)
	assert.Contains(t, stats.CircuitStates, "openai")
	assert.NotContains(t, stats.CircuitStates, "gemini")
}

func TestManagerRetryDeadLetter(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(time.Now())
	m, ms := newTestManager(t, testManagerConfig(), clock)
	ctx := context.Background()

	task := seedTask(t, ms, clock)
	op := func(ctx context.Context) (any, error) {
		return nil, errors.New("invalid fragrance id")
	}
	result := m.ProcessWithRecovery(ctx, op, task.ID, ErrorContext{})
	require.True(t, result.DeadLettered)

	entries, err := m.DeadLetterQueue().DeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	newTaskID, err := m.RetryDeadLetter(ctx, entries[0].ID)
	require.NoError(t, err)

	replayed, err := ms.FetchTask(ctx, newTaskID)
	require.NoError(t, err)
	assert.Equal(t, store.TaskStatusPending, replayed.Status)
	assert.Equal(t, store.PriorityHigh, replayed.Priority)

	count, err := m.DeadLetterQueue().Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Metrics().ReplaysTotal))
}

func TestErrorSummaryThroughManager(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(time.Now())
	m, ms := newTestManager(t, testManagerConfig(), clock)
	ctx := context.Background()

	task := seedTask(t, ms, clock)
	op := func(ctx context.Context) (any, error) {
		return nil, errors.New("429 too many requests")
	}
	m.ProcessWithRecovery(ctx, op, task.ID, ErrorContext{})

	summary := m.ErrorSummary(time.Hour)
	assert.Equal(t, 3, summary.TotalErrors)
	assert.Equal(t, 3, summary.ByCategory[CategoryRateLimit])
}

func TestPerformRecoveryMaintenance(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	cfg := testManagerConfig()
	cfg.Retry.MaxRetries = 1
	cfg.Breaker.FailureThreshold = 1
	m, ms := newTestManager(t, cfg, clock)
	ctx := context.Background()

	// One dead letter, one open breaker, one stats entry.
	task := seedTask(t, ms, clock)
	op := func(ctx context.Context) (any, error) {
		return nil, errors.New("dial tcp: connection refused")
	}
	result := m.ProcessWithRecovery(ctx, op, task.ID, ErrorContext{})
	require.True(t, result.DeadLettered)

	// Everything ages past its retention.
	clock.Advance(cfg.DeadLetterMaxAge + time.Hour)

	report := m.PerformRecoveryMaintenance(ctx)

	assert.EqualValues(t, 1, report.DeadLettersRemoved)
	assert.Equal(t, 1, report.BreakersReset)
	assert.Equal(t, 1, report.StatsPruned)

	count, err := m.DeadLetterQueue().Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	stats, err := m.GetRecoveryStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateClosed, stats.CircuitStates["gemini"])
	assert.Zero(t, stats.TotalAttempts)
}
