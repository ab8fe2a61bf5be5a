package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Fragrance-specific validation errors
var (
	// ErrFragranceIDEmpty is returned when a fragrance ID is empty or nil.
	ErrFragranceIDEmpty = errors.New("fragrance ID cannot be empty")

	// ErrFragranceNameEmpty is returned when a fragrance name is empty.
	ErrFragranceNameEmpty = errors.New("fragrance name cannot be empty")

	// ErrFragranceBrandEmpty is returned when a fragrance brand is empty.
	ErrFragranceBrandEmpty = errors.New("fragrance brand cannot be empty")

	// ErrNoteProfileInvalid is returned when a note profile is not valid JSON.
	ErrNoteProfileInvalid = errors.New("note profile must be valid JSON")
)

// Fragrance represents one perfume in the catalog. The note profile is
// stored as a JSONB structure so enrichment can evolve without schema
// migrations.
type Fragrance struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Brand       string          `json:"brand"`
	NoteProfile json.RawMessage `json:"note_profile,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NoteProfile is the structured form of the note_profile field. It is the
// shape the generator produces; stored profiles stay flexible JSONB.
type NoteProfile struct {
	TopNotes   []string `json:"top_notes"`
	HeartNotes []string `json:"heart_notes"`
	BaseNotes  []string `json:"base_notes"`
	Accords    []Accord `json:"accords,omitempty"`
	Summary    string   `json:"summary,omitempty"`
}

// Accord is a scent family with its relative strength in the composition.
type Accord struct {
	Name     string  `json:"name"`
	Strength float64 `json:"strength"`
}

// NewFragrance creates a new Fragrance with the given name and brand.
// It generates a new UUID for the ID and sets the creation/update
// timestamps. Returns an error if validation fails.
func NewFragrance(name, brand string) (*Fragrance, error) {
	now := time.Now().UTC()
	fragrance := &Fragrance{
		ID:        uuid.New(),
		Name:      name,
		Brand:     brand,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := fragrance.Validate(); err != nil {
		return nil, err
	}

	return fragrance, nil
}

// Validate checks if the Fragrance has valid data.
// Returns an error if any field fails validation.
func (f *Fragrance) Validate() error {
	if f.ID == uuid.Nil {
		return ErrFragranceIDEmpty
	}

	if strings.TrimSpace(f.Name) == "" {
		return ErrFragranceNameEmpty
	}

	if strings.TrimSpace(f.Brand) == "" {
		return ErrFragranceBrandEmpty
	}

	if len(f.NoteProfile) > 0 {
		var js json.RawMessage
		if err := json.Unmarshal(f.NoteProfile, &js); err != nil {
			return ErrNoteProfileInvalid
		}
	}

	return nil
}

// UpdateNoteProfile replaces the fragrance's note profile and bumps the
// UpdatedAt timestamp. Returns an error if the new profile is invalid.
func (f *Fragrance) UpdateNoteProfile(profile json.RawMessage) error {
	orig := f.NoteProfile
	f.NoteProfile = profile

	if err := f.Validate(); err != nil {
		f.NoteProfile = orig
		return err
	}

	f.UpdatedAt = time.Now().UTC()
	return nil
}
