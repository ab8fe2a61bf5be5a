package events_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/aromatch/aromatch-api/internal/events"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAlert() *events.Alert {
	return &events.Alert{
		ID:        uuid.New(),
		Category:  "NETWORK",
		Severity:  "LOW",
		Action:    "retry",
		Message:   "connection reset by peer",
		CreatedAt: time.Now().UTC(),
	}
}

func TestInMemoryAlertEmitterDispatchesToAllHandlers(t *testing.T) {
	t.Parallel()

	emitter := events.NewInMemoryAlertEmitter(testLogger())

	var first, second int
	emitter.RegisterHandler(events.AlertHandlerFunc(func(ctx context.Context, alert *events.Alert) error {
		first++
		return nil
	}))
	emitter.RegisterHandler(events.AlertHandlerFunc(func(ctx context.Context, alert *events.Alert) error {
		second++
		return nil
	}))

	emitter.Emit(context.Background(), testAlert())

	assert.Equal(t, 1, first)
	assert.Equal(t, 1, second)
}

func TestInMemoryAlertEmitterIsolatesHandlerFailures(t *testing.T) {
	t.Parallel()

	emitter := events.NewInMemoryAlertEmitter(testLogger())

	emitter.RegisterHandler(events.AlertHandlerFunc(func(ctx context.Context, alert *events.Alert) error {
		return errors.New("webhook unreachable")
	}))
	emitter.RegisterHandler(events.AlertHandlerFunc(func(ctx context.Context, alert *events.Alert) error {
		panic("handler bug")
	}))

	var reached bool
	emitter.RegisterHandler(events.AlertHandlerFunc(func(ctx context.Context, alert *events.Alert) error {
		reached = true
		return nil
	}))

	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), testAlert())
	})
	assert.True(t, reached)
}

func TestInMemoryAlertEmitterNoHandlers(t *testing.T) {
	t.Parallel()

	emitter := events.NewInMemoryAlertEmitter(testLogger())

	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), testAlert())
	})
}
