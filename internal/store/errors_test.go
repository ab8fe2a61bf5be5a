package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsNotFoundError(t *testing.T) {
	t.Parallel()

	assert.True(t, IsNotFoundError(ErrNotFound))
	assert.True(t, IsNotFoundError(ErrTaskNotFound))
	assert.True(t, IsNotFoundError(ErrDeadLetterNotFound))
	assert.True(t, IsNotFoundError(ErrFragranceNotFound))
	assert.False(t, IsNotFoundError(ErrDuplicate))
	assert.False(t, IsNotFoundError(errors.New("something else")))
	assert.False(t, IsNotFoundError(nil))
}

func TestStoreError(t *testing.T) {
	t.Parallel()

	t.Run("formats with wrapped error", func(t *testing.T) {
		t.Parallel()

		err := NewStoreError("task", "insert", "failed to save task", ErrDuplicate)
		assert.Equal(t, "insert operation on task failed: failed to save task: entity already exists", err.Error())
	})

	t.Run("formats without wrapped error", func(t *testing.T) {
		t.Parallel()

		err := NewStoreError("dead_letter", "move", "failed to insert entry", nil)
		assert.Equal(t, "move operation on dead_letter failed: failed to insert entry", err.Error())
	})

	t.Run("unwraps to sentinel", func(t *testing.T) {
		t.Parallel()

		// Callers match on the sentinels regardless of the extra context,
		// so the wrap chain must stay intact.
		err := NewStoreError("task", "insert", "failed to save task", ErrDuplicate)
		assert.ErrorIs(t, err, ErrDuplicate)
		assert.False(t, IsNotFoundError(err))
	})

	t.Run("matches through an outer wrap", func(t *testing.T) {
		t.Parallel()

		wrapped := fmt.Errorf("failed to save task: %w",
			NewStoreError("task", "insert", "failed to save task", ErrDuplicate))

		var storeErr *StoreError
		require.ErrorAs(t, wrapped, &storeErr)
		assert.Equal(t, "task", storeErr.Entity)
		assert.Equal(t, "insert", storeErr.Operation)
		assert.ErrorIs(t, wrapped, ErrDuplicate)
	})
}
