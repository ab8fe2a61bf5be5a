package task

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/aromatch/aromatch-api/internal/store"
)

// Task type constants
const (
	// TaskTypeNoteProfileGeneration is the task type for generating a
	// fragrance's note profile.
	TaskTypeNoteProfileGeneration = "note_profile_generation"
)

// Task represents a unit of background work to be processed
type Task interface {
	// ID returns the task's unique identifier
	ID() uuid.UUID

	// Type returns the task type identifier
	Type() string

	// Payload returns the task data as a byte slice
	Payload() []byte

	// Status returns the current task status
	Status() string

	// Execute runs the task logic
	Execute(ctx context.Context) error
}

// ResourceTask is implemented by tasks that call a named external
// resource. The runner uses the name to pick the circuit breaker guarding
// that resource; tasks without one share the default breaker.
type ResourceTask interface {
	Task

	// Resource returns the identifier of the external resource this task
	// depends on.
	Resource() string
}

// Factory rebuilds a live Task from its persisted record. Used when
// recovering queued tasks after a restart and when replaying dead-letter
// entries.
type Factory func(rec *store.TaskRecord) (Task, error)

// Registry maps task types to their factories. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory for a task type, replacing any existing one.
func (r *Registry) Register(taskType string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[taskType] = factory
}

// Build rebuilds a live task from its record. Returns an error when no
// factory is registered for the record's type.
func (r *Registry) Build(rec *store.TaskRecord) (Task, error) {
	r.mu.RLock()
	factory, ok := r.factories[rec.Type]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("no factory registered for task type %q", rec.Type)
	}
	return factory(rec)
}
