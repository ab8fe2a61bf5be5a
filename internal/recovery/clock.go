package recovery

import (
	"context"
	"time"
)

// Clock abstracts wall-clock time and timer-based sleeping so tests can
// simulate minutes of backoff without real waits.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Sleep blocks for the given duration or until the context is done,
	// whichever comes first. It returns the context error when the wait
	// was interrupted, nil otherwise.
	Sleep(ctx context.Context, d time.Duration) error
}

// systemClock is the production Clock backed by the time package.
type systemClock struct{}

// SystemClock returns the production Clock.
func SystemClock() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		// Still honor an already-cancelled context.
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
