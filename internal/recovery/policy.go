package recovery

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aromatch/aromatch-api/internal/events"
)

// RecoveryAction is the escalation decision for a classified error.
type RecoveryAction string

// Possible recovery actions, in rough order of escalation.
const (
	ActionRetry      RecoveryAction = "retry"
	ActionFallback   RecoveryAction = "fallback"
	ActionDeadLetter RecoveryAction = "dead_letter"
	ActionEscalate   RecoveryAction = "escalate"
)

// ErrorSummary is a time-windowed aggregation of classified errors,
// consumed by external dashboards and alerting.
type ErrorSummary struct {
	Window       time.Duration        `json:"window"`
	TotalErrors  int                  `json:"total_errors"`
	ByCategory   map[Category]int     `json:"by_category"`
	BySeverity   map[Severity]int     `json:"by_severity"`
	RecoveryRate float64              `json:"recovery_rate"`
	TopResources []FailureCount       `json:"top_resources"`
	TopTasks     []TaskFailureCount   `json:"top_tasks"`
}

// FailureCount ranks a resource by its failures within the window.
type FailureCount struct {
	ResourceID string `json:"resource_id"`
	Failures   int    `json:"failures"`
}

// TaskFailureCount ranks a task by its failures within the window.
type TaskFailureCount struct {
	TaskID   uuid.UUID `json:"task_id"`
	Failures int       `json:"failures"`
}

type outcomeRecord struct {
	at         time.Time
	success    bool
	category   Category
	severity   Severity
	resourceID string
	taskID     uuid.UUID
}

// PolicyConfig holds configuration for the recovery policy.
type PolicyConfig struct {
	// Retention bounds how long observed outcomes are kept for summaries.
	Retention time.Duration

	// TopN is the number of resources/tasks ranked in a summary.
	TopN int
}

// DefaultPolicyConfig returns a PolicyConfig with reasonable defaults.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		Retention: 24 * time.Hour,
		TopN:      5,
	}
}

// RecoveryPolicy maps classified errors to an action, dispatches alerts to
// registered handlers, and produces time-windowed error summaries. It
// observes every classified error independently of the retry outcome.
type RecoveryPolicy struct {
	config  PolicyConfig
	clock   Clock
	logger  *slog.Logger
	emitter events.AlertEmitter

	mu        sync.Mutex
	outcomes  []outcomeRecord
	fallbacks map[string]string // primary resource -> alternate resource
}

// NewRecoveryPolicy creates a RecoveryPolicy dispatching through the given
// emitter.
func NewRecoveryPolicy(config PolicyConfig, emitter events.AlertEmitter, clock Clock, logger *slog.Logger) *RecoveryPolicy {
	if config.Retention <= 0 {
		config.Retention = DefaultPolicyConfig().Retention
	}
	if config.TopN <= 0 {
		config.TopN = DefaultPolicyConfig().TopN
	}
	if clock == nil {
		clock = SystemClock()
	}

	return &RecoveryPolicy{
		config:    config,
		clock:     clock,
		logger:    logger.With("component", "recovery_policy"),
		emitter:   emitter,
		fallbacks: make(map[string]string),
	}
}

// SetFallbackResource configures an alternate resource for a primary one,
// enabling the fallback action for API errors against the primary.
func (p *RecoveryPolicy) SetFallbackResource(primary, alternate string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fallbacks[primary] = alternate
}

// OnAlert registers a handler invoked for every classified error.
func (p *RecoveryPolicy) OnAlert(handler events.AlertHandler) {
	p.emitter.RegisterHandler(handler)
}

// DecideAction maps a classified error to a recovery action using a fixed
// precedence table, evaluated strictly in order.
func (p *RecoveryPolicy) DecideAction(perr *ProcessingError) RecoveryAction {
	// Critical errors always escalate, regardless of category.
	if perr.Severity == SeverityCritical {
		return ActionEscalate
	}

	switch perr.Category {
	case CategoryRateLimit, CategoryNetwork:
		return ActionRetry
	case CategoryAPIError:
		if p.hasFallback(perr.Context.ResourceID) {
			return ActionFallback
		}
		return ActionRetry
	case CategoryValidation:
		// Retrying cannot fix malformed input. Reachable only when the
		// error carries a non-critical severity override.
		return ActionDeadLetter
	case CategoryAuthentication, CategoryQuotaExceeded:
		return ActionEscalate
	default:
		return ActionRetry
	}
}

// HandleError records the classified error for summaries and dispatches an
// alert carrying the decided action. Alert handler failures never reach
// the caller.
func (p *RecoveryPolicy) HandleError(ctx context.Context, perr *ProcessingError) RecoveryAction {
	action := p.DecideAction(perr)
	now := p.clock.Now()

	p.record(outcomeRecord{
		at:         now,
		success:    false,
		category:   perr.Category,
		severity:   perr.Severity,
		resourceID: perr.Context.ResourceID,
		taskID:     perr.Context.TaskID,
	})

	p.emitter.Emit(ctx, &events.Alert{
		ID:         uuid.New(),
		Category:   string(perr.Category),
		Severity:   string(perr.Severity),
		Action:     string(action),
		Message:    perr.Message,
		ResourceID: perr.Context.ResourceID,
		TaskID:     perr.Context.TaskID,
		CreatedAt:  now,
	})

	return action
}

// RecordSuccess notes a successful operation so recovery rates reflect the
// full workload, not just failures.
func (p *RecoveryPolicy) RecordSuccess(resourceID string, taskID uuid.UUID) {
	p.record(outcomeRecord{
		at:         p.clock.Now(),
		success:    true,
		resourceID: resourceID,
		taskID:     taskID,
	})
}

// ErrorSummary aggregates the outcomes observed within the window.
// RecoveryRate is successes/(successes+errors) and is 1 for an error-free
// (or empty) window.
func (p *RecoveryPolicy) ErrorSummary(window time.Duration) ErrorSummary {
	cutoff := p.clock.Now().Add(-window)

	p.mu.Lock()
	defer p.mu.Unlock()

	summary := ErrorSummary{
		Window:     window,
		ByCategory: make(map[Category]int),
		BySeverity: make(map[Severity]int),
	}

	successes := 0
	resourceFailures := make(map[string]int)
	taskFailures := make(map[uuid.UUID]int)

	for _, rec := range p.outcomes {
		if rec.at.Before(cutoff) {
			continue
		}
		if rec.success {
			successes++
			continue
		}
		summary.TotalErrors++
		summary.ByCategory[rec.category]++
		summary.BySeverity[rec.severity]++
		if rec.resourceID != "" {
			resourceFailures[rec.resourceID]++
		}
		if rec.taskID != uuid.Nil {
			taskFailures[rec.taskID]++
		}
	}

	if total := successes + summary.TotalErrors; total > 0 {
		summary.RecoveryRate = float64(successes) / float64(total)
	} else {
		summary.RecoveryRate = 1
	}

	summary.TopResources = topResources(resourceFailures, p.config.TopN)
	summary.TopTasks = topTasks(taskFailures, p.config.TopN)
	return summary
}

func (p *RecoveryPolicy) hasFallback(resourceID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.fallbacks[resourceID]
	return ok
}

func (p *RecoveryPolicy) record(rec outcomeRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.outcomes = append(p.outcomes, rec)

	// Prune opportunistically so the slice stays bounded by retention.
	cutoff := rec.at.Add(-p.config.Retention)
	firstKept := 0
	for ; firstKept < len(p.outcomes); firstKept++ {
		if !p.outcomes[firstKept].at.Before(cutoff) {
			break
		}
	}
	if firstKept > 0 {
		p.outcomes = append(p.outcomes[:0], p.outcomes[firstKept:]...)
	}
}

func topResources(counts map[string]int, n int) []FailureCount {
	ranked := make([]FailureCount, 0, len(counts))
	for id, c := range counts {
		ranked = append(ranked, FailureCount{ResourceID: id, Failures: c})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Failures != ranked[j].Failures {
			return ranked[i].Failures > ranked[j].Failures
		}
		return ranked[i].ResourceID < ranked[j].ResourceID
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

func topTasks(counts map[uuid.UUID]int, n int) []TaskFailureCount {
	ranked := make([]TaskFailureCount, 0, len(counts))
	for id, c := range counts {
		ranked = append(ranked, TaskFailureCount{TaskID: id, Failures: c})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Failures != ranked[j].Failures {
			return ranked[i].Failures > ranked[j].Failures
		}
		return ranked[i].TaskID.String() < ranked[j].TaskID.String()
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
