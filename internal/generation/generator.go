package generation

import (
	"context"

	"github.com/aromatch/aromatch-api/internal/domain"
)

// Generator defines the interface for generating fragrance note profiles.
// This interface serves as a boundary between the application core and
// external AI/LLM services.
//
// Implementations make exactly one upstream call per invocation and return
// the raw failure; retries, circuit breaking and dead-lettering are owned
// by the recovery layer wrapping the call.
type Generator interface {
	// GenerateNoteProfile creates a note profile for the given fragrance.
	// It returns the structured profile or an error if generation fails
	// (see errors.go for the sentinel errors).
	GenerateNoteProfile(ctx context.Context, fragrance *domain.Fragrance) (*domain.NoteProfile, error)
}
