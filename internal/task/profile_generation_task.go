package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/aromatch/aromatch-api/internal/domain"
	"github.com/aromatch/aromatch-api/internal/generation"
	"github.com/aromatch/aromatch-api/internal/store"
)

// Common errors
var (
	ErrNilFragranceService = errors.New("fragrance service cannot be nil")
	ErrNilGenerator        = errors.New("generator cannot be nil")
	ErrNilLogger           = errors.New("logger cannot be nil")
	ErrEmptyFragranceID    = errors.New("fragrance ID cannot be empty")
)

// FragranceService defines the catalog operations the generation task
// needs. Implemented by the postgres fragrance store.
type FragranceService interface {
	// GetFragrance retrieves a fragrance by its ID.
	GetFragrance(ctx context.Context, id uuid.UUID) (*domain.Fragrance, error)

	// UpdateNoteProfile replaces a fragrance's stored note profile.
	UpdateNoteProfile(ctx context.Context, id uuid.UUID, profile json.RawMessage) error
}

// noteProfilePayload represents the serialized data stored in the task
type noteProfilePayload struct {
	FragranceID uuid.UUID `json:"fragrance_id"`
}

// NoteProfileGenerationTask implements the Task interface for generating
// a fragrance's note profile via the LLM generator.
type NoteProfileGenerationTask struct {
	id          uuid.UUID
	fragranceID uuid.UUID
	fragrances  FragranceService
	generator   generation.Generator
	logger      *slog.Logger
	status      string
}

// NewNoteProfileGenerationTask creates a new note profile generation task.
func NewNoteProfileGenerationTask(
	fragranceID uuid.UUID,
	fragrances FragranceService,
	generator generation.Generator,
	logger *slog.Logger,
) (*NoteProfileGenerationTask, error) {
	if fragrances == nil {
		return nil, ErrNilFragranceService
	}
	if generator == nil {
		return nil, ErrNilGenerator
	}
	if logger == nil {
		return nil, ErrNilLogger
	}
	if fragranceID == uuid.Nil {
		return nil, ErrEmptyFragranceID
	}

	return &NoteProfileGenerationTask{
		id:          uuid.New(),
		fragranceID: fragranceID,
		fragrances:  fragrances,
		generator:   generator,
		logger:      logger.With("task_type", TaskTypeNoteProfileGeneration, "fragrance_id", fragranceID),
		status:      store.TaskStatusPending,
	}, nil
}

// NewNoteProfileGenerationFactory returns a Factory that rebuilds note
// profile generation tasks from persisted records, preserving the record's
// task ID.
func NewNoteProfileGenerationFactory(
	fragrances FragranceService,
	generator generation.Generator,
	logger *slog.Logger,
) Factory {
	return func(rec *store.TaskRecord) (Task, error) {
		var payload noteProfilePayload
		if err := json.Unmarshal(rec.Payload, &payload); err != nil {
			return nil, fmt.Errorf("failed to decode note profile payload: %w", err)
		}

		t, err := NewNoteProfileGenerationTask(payload.FragranceID, fragrances, generator, logger)
		if err != nil {
			return nil, err
		}
		t.id = rec.ID
		t.status = rec.Status
		return t, nil
	}
}

// ID returns the task's unique identifier
func (t *NoteProfileGenerationTask) ID() uuid.UUID {
	return t.id
}

// Type returns the task type identifier
func (t *NoteProfileGenerationTask) Type() string {
	return TaskTypeNoteProfileGeneration
}

// Payload returns the task data as a byte slice
func (t *NoteProfileGenerationTask) Payload() []byte {
	data, err := json.Marshal(noteProfilePayload{FragranceID: t.fragranceID})
	if err != nil {
		t.logger.Error("failed to marshal task payload", "error", err)
		return []byte{}
	}
	return data
}

// Status returns the current task status
func (t *NoteProfileGenerationTask) Status() string {
	return t.status
}

// Resource names the external dependency this task exercises, so the
// runner routes it through the Gemini circuit breaker.
func (t *NoteProfileGenerationTask) Resource() string {
	return "gemini"
}

// Execute generates the note profile and stores it on the fragrance.
func (t *NoteProfileGenerationTask) Execute(ctx context.Context) error {
	t.status = store.TaskStatusProcessing
	t.logger.Info("starting note profile generation")

	if err := ctx.Err(); err != nil {
		t.status = store.TaskStatusFailed
		return fmt.Errorf("task cancelled by context: %w", err)
	}

	fragrance, err := t.fragrances.GetFragrance(ctx, t.fragranceID)
	if err != nil {
		t.status = store.TaskStatusFailed
		if store.IsNotFoundError(err) {
			// A payload referencing a missing fragrance can never succeed.
			return fmt.Errorf("invalid fragrance id %s: %w", t.fragranceID, err)
		}
		return fmt.Errorf("failed to retrieve fragrance: %w", err)
	}

	profile, err := t.generator.GenerateNoteProfile(ctx, fragrance)
	if err != nil {
		t.status = store.TaskStatusFailed
		return fmt.Errorf("failed to generate note profile: %w", err)
	}

	raw, err := json.Marshal(profile)
	if err != nil {
		t.status = store.TaskStatusFailed
		return fmt.Errorf("failed to marshal note profile: %w", err)
	}

	if err := t.fragrances.UpdateNoteProfile(ctx, t.fragranceID, raw); err != nil {
		t.status = store.TaskStatusFailed
		return fmt.Errorf("failed to store note profile: %w", err)
	}

	t.status = store.TaskStatusCompleted
	t.logger.Info("note profile generation completed",
		"top_notes", len(profile.TopNotes),
		"heart_notes", len(profile.HeartNotes),
		"base_notes", len(profile.BaseNotes))
	return nil
}
