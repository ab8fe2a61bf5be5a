package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// CircuitState is the state of a per-resource circuit breaker.
type CircuitState string

// Circuit breaker states. CLOSED passes calls through, OPEN fails fast,
// HALF_OPEN lets a single trial call probe the resource.
const (
	StateClosed   CircuitState = "CLOSED"
	StateOpen     CircuitState = "OPEN"
	StateHalfOpen CircuitState = "HALF_OPEN"
)

// ErrCircuitOpen is returned when a call is rejected without invoking the
// operation because the resource's breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

// BreakerConfig holds configuration for circuit breakers.
type BreakerConfig struct {
	// FailureThreshold is the number of failures within MonitoringPeriod
	// that trips the breaker open.
	FailureThreshold int

	// Timeout, when non-zero, bounds each call made through the breaker.
	Timeout time.Duration

	// MonitoringPeriod is the sliding window over which failures count
	// toward the threshold.
	MonitoringPeriod time.Duration

	// ResetTimeout is how long an open breaker waits after its last
	// failure before allowing a half-open trial call.
	ResetTimeout time.Duration
}

// DefaultBreakerConfig returns a BreakerConfig with reasonable defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Timeout:          2 * time.Minute,
		MonitoringPeriod: time.Minute,
		ResetTimeout:     30 * time.Second,
	}
}

// BreakerResult reports the outcome of a call made through a breaker.
type BreakerResult struct {
	Result  any
	Success bool
	State   CircuitState
	Err     error
}

// CircuitBreaker tracks the recent failures of one resource and fails fast
// while the resource is unhealthy. Safe for concurrent use.
type CircuitBreaker struct {
	resourceID string
	config     BreakerConfig
	clock      Clock
	logger     *slog.Logger

	mu            sync.Mutex
	state         CircuitState
	failures      []time.Time
	lastFailure   time.Time
	trialInFlight bool
}

// NewCircuitBreaker creates a breaker for one resource, starting CLOSED.
func NewCircuitBreaker(resourceID string, config BreakerConfig, clock Clock, logger *slog.Logger) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if clock == nil {
		clock = SystemClock()
	}

	return &CircuitBreaker{
		resourceID: resourceID,
		config:     config,
		clock:      clock,
		logger:     logger.With("component", "circuit_breaker", "resource_id", resourceID),
		state:      StateClosed,
	}
}

// Execute runs op through the breaker. When the breaker is open and the
// reset timeout has not elapsed, the operation is not invoked: the call is
// rejected with ErrCircuitOpen, shedding load from a failing resource.
func (b *CircuitBreaker) Execute(ctx context.Context, op Operation) BreakerResult {
	if allowed, state := b.admit(); !allowed {
		return BreakerResult{
			State: state,
			Err:   fmt.Errorf("%w: resource %q", ErrCircuitOpen, b.resourceID),
		}
	}

	if b.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.config.Timeout)
		defer cancel()
	}

	value, err := op(ctx)
	if err != nil {
		state := b.recordFailure()
		return BreakerResult{State: state, Err: err}
	}

	state := b.recordSuccess()
	return BreakerResult{Result: value, Success: true, State: state}
}

// admit decides whether a call may proceed, applying the OPEN→HALF_OPEN
// transition lazily on the next call attempt.
func (b *CircuitBreaker) admit() (bool, CircuitState) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true, b.state

	case StateOpen:
		if b.clock.Now().Sub(b.lastFailure) >= b.config.ResetTimeout {
			b.state = StateHalfOpen
			b.trialInFlight = true
			b.logger.Info("circuit breaker half-open, allowing trial call")
			return true, b.state
		}
		return false, b.state

	case StateHalfOpen:
		// Exactly one trial probes the resource; concurrent calls are
		// rejected until it settles.
		if b.trialInFlight {
			return false, b.state
		}
		b.trialInFlight = true
		return true, b.state

	default:
		return false, b.state
	}
}

func (b *CircuitBreaker) recordSuccess() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.state = StateClosed
		b.failures = nil
		b.trialInFlight = false
		b.logger.Info("circuit breaker closed after successful trial")
	}
	return b.state
}

func (b *CircuitBreaker) recordFailure() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	b.lastFailure = now

	switch b.state {
	case StateHalfOpen:
		b.state = StateOpen
		b.trialInFlight = false
		b.failures = append(b.failures, now)
		b.logger.Warn("circuit breaker reopened after failed trial")

	case StateClosed:
		b.failures = append(b.failures, now)
		b.pruneLocked(now)
		if len(b.failures) >= b.config.FailureThreshold {
			b.state = StateOpen
			b.logger.Warn("circuit breaker opened",
				"failures", len(b.failures),
				"window", b.config.MonitoringPeriod)
		}
	}
	return b.state
}

// pruneLocked drops failures outside the monitoring window. Caller holds mu.
func (b *CircuitBreaker) pruneLocked(now time.Time) {
	if b.config.MonitoringPeriod <= 0 {
		return
	}
	cutoff := now.Add(-b.config.MonitoringPeriod)
	kept := b.failures[:0]
	for _, t := range b.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.failures = kept
}

// State returns the breaker's current state without triggering transitions.
func (b *CircuitBreaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// FailureCount returns the number of failures currently inside the
// monitoring window.
func (b *CircuitBreaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.failures)
}

// LastFailure returns the time of the most recent failure.
func (b *CircuitBreaker) LastFailure() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastFailure
}

// Reset forces the breaker CLOSED and clears its failure history. Used by
// maintenance and manual override.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.failures = nil
	b.trialInFlight = false
	b.lastFailure = time.Time{}
}

// BreakerRegistry owns the per-resource breakers, creating them lazily on
// first use. Safe for concurrent use; access to different resources does
// not contend beyond the registry map itself.
type BreakerRegistry struct {
	config BreakerConfig
	clock  Clock
	logger *slog.Logger

	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
}

// NewBreakerRegistry creates an empty registry.
func NewBreakerRegistry(config BreakerConfig, clock Clock, logger *slog.Logger) *BreakerRegistry {
	if clock == nil {
		clock = SystemClock()
	}
	return &BreakerRegistry{
		config:   config,
		clock:    clock,
		logger:   logger,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// GetOrCreate returns the breaker for a resource, creating it lazily.
func (r *BreakerRegistry) GetOrCreate(resourceID string) *CircuitBreaker {
	r.mu.RLock()
	b, ok := r.breakers[resourceID]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring the write lock.
	if b, ok := r.breakers[resourceID]; ok {
		return b
	}
	b = NewCircuitBreaker(resourceID, r.config, r.clock, r.logger)
	r.breakers[resourceID] = b
	return b
}

// States returns the current state of every known breaker.
func (r *BreakerRegistry) States() map[string]CircuitState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	states := make(map[string]CircuitState, len(r.breakers))
	for id, b := range r.breakers {
		states[id] = b.State()
	}
	return states
}

// Reset forces one breaker CLOSED. Unknown resources are a no-op.
func (r *BreakerRegistry) Reset(resourceID string) {
	r.mu.RLock()
	b, ok := r.breakers[resourceID]
	r.mu.RUnlock()
	if ok {
		b.Reset()
	}
}

// ResetAll forces every breaker CLOSED.
func (r *BreakerRegistry) ResetAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.breakers {
		b.Reset()
	}
}

// ResetStuckOpen force-resets breakers that have been OPEN with no new
// failure for longer than the threshold, and returns how many were reset.
func (r *BreakerRegistry) ResetStuckOpen(threshold time.Duration) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.clock.Now()
	reset := 0
	for id, b := range r.breakers {
		if b.State() == StateOpen && now.Sub(b.LastFailure()) >= threshold {
			b.Reset()
			reset++
			r.logger.Info("force-reset stuck circuit breaker", "resource_id", id)
		}
	}
	return reset
}
