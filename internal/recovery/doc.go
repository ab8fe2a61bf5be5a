// Package recovery implements the fault-tolerant execution layer that wraps
// calls to unreliable external operations (AI providers, downstream services)
// made by the background task pipeline.
//
// The pieces compose as follows: Manager.ProcessWithRecovery routes an
// operation through a per-resource CircuitBreaker, which invokes the
// RetryHandler, which classifies each failure and retries with exponential
// backoff and jitter. Tasks that exhaust recovery are quarantined in the
// DeadLetterQueue. The RecoveryPolicy observes every classified error
// independently for alerting and escalation.
package recovery
