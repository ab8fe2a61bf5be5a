package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aromatch/aromatch-api/internal/domain"
	"github.com/aromatch/aromatch-api/internal/store"
)

// FragranceStore provides catalog access over PostgreSQL. It satisfies
// the task.FragranceService interface used by the note profile generation
// task.
type FragranceStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewFragranceStore creates a new FragranceStore.
func NewFragranceStore(db store.DBTX, logger *slog.Logger) *FragranceStore {
	return &FragranceStore{
		db:     db,
		logger: logger.With("component", "fragrance_store"),
	}
}

// CreateFragrance persists a new fragrance.
func (s *FragranceStore) CreateFragrance(ctx context.Context, fragrance *domain.Fragrance) error {
	if err := fragrance.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO fragrances (id, name, brand, note_profile, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.db.ExecContext(ctx, query,
		fragrance.ID,
		fragrance.Name,
		fragrance.Brand,
		nullableJSON(fragrance.NoteProfile),
		fragrance.CreatedAt,
		fragrance.UpdatedAt,
	)
	if err != nil {
		return store.NewStoreError("fragrance", "insert", "failed to create fragrance", MapError(err))
	}
	return nil
}

// GetFragrance retrieves a fragrance by its ID.
func (s *FragranceStore) GetFragrance(ctx context.Context, id uuid.UUID) (*domain.Fragrance, error) {
	query := `
		SELECT id, name, brand, note_profile, created_at, updated_at
		FROM fragrances
		WHERE id = $1
	`

	var fragrance domain.Fragrance
	var profile []byte
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&fragrance.ID,
		&fragrance.Name,
		&fragrance.Brand,
		&profile,
		&fragrance.CreatedAt,
		&fragrance.UpdatedAt,
	)
	if err != nil {
		if mapped := MapError(err); store.IsNotFoundError(mapped) {
			return nil, fmt.Errorf("%w: %s", store.ErrFragranceNotFound, id)
		}
		return nil, fmt.Errorf("failed to fetch fragrance %s: %w", id, err)
	}

	fragrance.NoteProfile = profile
	return &fragrance, nil
}

// UpdateNoteProfile replaces a fragrance's stored note profile.
func (s *FragranceStore) UpdateNoteProfile(ctx context.Context, id uuid.UUID, profile json.RawMessage) error {
	query := `
		UPDATE fragrances
		SET note_profile = $1, updated_at = $2
		WHERE id = $3
	`

	result, err := s.db.ExecContext(ctx, query, []byte(profile), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update note profile: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", store.ErrFragranceNotFound, id)
	}

	return nil
}

// ListFragrancesWithoutProfile returns fragrances that have no note
// profile yet, oldest first. Used to backfill profile generation tasks.
func (s *FragranceStore) ListFragrancesWithoutProfile(ctx context.Context, limit int) ([]*domain.Fragrance, error) {
	query := `
		SELECT id, name, brand, note_profile, created_at, updated_at
		FROM fragrances
		WHERE note_profile IS NULL
		ORDER BY created_at ASC
		LIMIT $1
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list fragrances without profile: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var fragrances []*domain.Fragrance
	for rows.Next() {
		var fragrance domain.Fragrance
		var profile []byte
		if err := rows.Scan(
			&fragrance.ID,
			&fragrance.Name,
			&fragrance.Brand,
			&profile,
			&fragrance.CreatedAt,
			&fragrance.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan fragrance row: %w", err)
		}
		fragrance.NoteProfile = profile
		fragrances = append(fragrances, &fragrance)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate fragrance rows: %w", err)
	}

	return fragrances, nil
}

// nullableJSON maps an empty payload to NULL so the backfill query can
// find fragrances without a profile.
func nullableJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
