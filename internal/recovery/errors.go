package recovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Category identifies the class of a processing failure. Categories drive
// retryability, backoff and escalation decisions.
type Category string

// The full error taxonomy. Severity and retryability are derived from the
// category, never assigned ad hoc.
const (
	CategoryRateLimit      Category = "RATE_LIMIT"
	CategoryNetwork        Category = "NETWORK"
	CategoryAPIError       Category = "API_ERROR"
	CategoryValidation     Category = "VALIDATION"
	CategoryDatabase       Category = "DATABASE"
	CategoryTimeout        Category = "TIMEOUT"
	CategoryQuotaExceeded  Category = "QUOTA_EXCEEDED"
	CategoryAuthentication Category = "AUTHENTICATION"
	CategoryUnknown        Category = "UNKNOWN"
)

// Categories lists every category in the taxonomy.
var Categories = []Category{
	CategoryRateLimit,
	CategoryNetwork,
	CategoryAPIError,
	CategoryValidation,
	CategoryDatabase,
	CategoryTimeout,
	CategoryQuotaExceeded,
	CategoryAuthentication,
	CategoryUnknown,
}

// Severity grades the operational impact of a classified error.
type Severity string

// Severity levels, lowest to highest.
const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// ErrorContext carries the named optional fields attached to a classified
// error. A closed record rather than a free-form bag, for type safety.
type ErrorContext struct {
	ResourceID string
	TaskID     uuid.UUID
	Attempt    int
	Provider   string
	Model      string
}

// ProcessingError is an immutable classified failure. One is created fresh
// for every failed attempt and appended to the task's error history.
type ProcessingError struct {
	ID         uuid.UUID
	Category   Category
	Severity   Severity
	Message    string
	Retryable  bool
	RetryAfter time.Duration
	Context    ErrorContext
	Timestamp  time.Time
	Err        error
}

// Error implements the error interface.
func (e *ProcessingError) Error() string {
	return fmt.Sprintf("[%s/%s] %s", e.Category, e.Severity, e.Message)
}

// Unwrap returns the raw error to support errors.Is/errors.As.
func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// Classify maps a raw failure into a ProcessingError using the fixed
// heuristics below. now is the classification timestamp.
func Classify(err error, ectx ErrorContext, now time.Time) *ProcessingError {
	category := Categorize(err)
	return &ProcessingError{
		ID:         uuid.New(),
		Category:   category,
		Severity:   SeverityFor(category),
		Message:    err.Error(),
		Retryable:  IsRetryable(category),
		RetryAfter: RetryDelay(category, ectx.Attempt),
		Context:    ectx,
		Timestamp:  now,
		Err:        err,
	}
}

// Categorize pattern-matches a raw error against fixed heuristics.
// The order of checks matters: the first match wins.
//
// Typed timeout errors (context deadlines, net timeouts) map to TIMEOUT
// before any text matching; free-text "timeout" messages still map to
// NETWORK, matching the order of the text heuristics. Status codes 401/403
// are handled by the AUTHENTICATION branch rather than the generic API
// branch so they are not shadowed by it.
func Categorize(err error) Category {
	if err == nil {
		return CategoryUnknown
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CategoryTimeout
	}

	msg := strings.ToLower(err.Error())

	switch {
	case containsAny(msg, "rate limit", "too many requests", "429"):
		return CategoryRateLimit
	case containsAny(msg, "network", "timeout", "timed out", "connection reset", "connection refused", "econnreset", "no such host"):
		return CategoryNetwork
	case containsAny(msg, "unauthorized", "forbidden", "401", "403", "invalid api key"):
		return CategoryAuthentication
	case containsAny(msg, "quota", "billing"):
		return CategoryQuotaExceeded
	case hasSQLStateClass(msg, "22"):
		// Class 22 is data exceptions: bad input, not a database fault.
		return CategoryValidation
	case containsAny(msg, "sql", "relation", "foreign key", "constraint", "deadlock"):
		return CategoryDatabase
	case containsAny(msg, "invalid", "required", "malformed"):
		return CategoryValidation
	case containsAny(msg, "api", "bad gateway", "internal server error", "service unavailable", "500", "502", "503", "504"):
		return CategoryAPIError
	default:
		return CategoryUnknown
	}
}

// SeverityFor returns the fixed severity for a category.
func SeverityFor(category Category) Severity {
	switch category {
	case CategoryRateLimit, CategoryNetwork:
		return SeverityLow
	case CategoryAPIError, CategoryTimeout:
		return SeverityMedium
	case CategoryAuthentication, CategoryQuotaExceeded:
		return SeverityHigh
	case CategoryDatabase, CategoryValidation:
		return SeverityCritical
	default:
		return SeverityMedium
	}
}

// IsRetryable reports whether failures of the given category are worth
// retrying locally. Everything else fails fast after the first attempt.
func IsRetryable(category Category) bool {
	switch category {
	case CategoryRateLimit, CategoryNetwork, CategoryTimeout, CategoryAPIError:
		return true
	default:
		return false
	}
}

// maxRetryDelay caps the advisory delay regardless of attempt number.
const maxRetryDelay = 5 * time.Minute

// RetryDelay returns the advisory delay before retrying a failure of the
// given category. The per-category base doubles with each attempt
// (attempt 1 waits the base), capped at five minutes.
func RetryDelay(category Category, attempt int) time.Duration {
	var base time.Duration
	switch category {
	case CategoryRateLimit:
		base = 60 * time.Second
	case CategoryNetwork:
		base = 5 * time.Second
	case CategoryTimeout:
		base = 10 * time.Second
	case CategoryAPIError:
		base = 15 * time.Second
	default:
		base = 30 * time.Second
	}

	if attempt < 1 {
		attempt = 1
	}
	delay := base << (attempt - 1)
	if delay > maxRetryDelay || delay <= 0 {
		return maxRetryDelay
	}
	return delay
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// hasSQLStateClass reports whether the message carries a SQLSTATE code of
// the given two-character class, e.g. "22" for data exceptions.
func hasSQLStateClass(msg, class string) bool {
	idx := strings.Index(msg, "sqlstate ")
	if idx < 0 {
		return false
	}
	code := msg[idx+len("sqlstate "):]
	return strings.HasPrefix(code, class)
}
