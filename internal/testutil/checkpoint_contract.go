package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/croprot/internal/engine"
	"github.com/roach88/croprot/internal/ir"
	"github.com/roach88/croprot/internal/rotation"
)

// CheckpointStore is an engine.CheckpointStore that also supports
// unconditional forward-only saves.
type CheckpointStore interface {
	engine.CheckpointStore
	SaveCheckpoint(ctx context.Context, cp ir.Checkpoint) error
}

// RunCheckpointStoreContract checks the behaviour every checkpoint store
// must share. newStore must return an empty store for each call.
func RunCheckpointStoreContract(t *testing.T, newStore func(t *testing.T) CheckpointStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("load missing field", func(t *testing.T) {
		s := newStore(t)
		_, err := s.LoadCheckpoint(ctx, "nowhere")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ir.ErrCheckpointNotFound), "got %v", err)
	})

	t.Run("save and load", func(t *testing.T) {
		s := newStore(t)
		cp := ir.Checkpoint{
			FieldID: "north",
			History: rotation.Snapshot{PreviousCrop1: "chickpea", PreviousCrop2: "wheat"},
			Seq:     4,
		}
		require.NoError(t, s.SaveCheckpoint(ctx, cp))

		got, err := s.LoadCheckpoint(ctx, "north")
		require.NoError(t, err)
		assert.Equal(t, cp, got)
	})

	t.Run("empty history", func(t *testing.T) {
		s := newStore(t)
		cp := ir.Checkpoint{FieldID: "fallow", Seq: 1}
		require.NoError(t, s.SaveCheckpoint(ctx, cp))

		got, err := s.LoadCheckpoint(ctx, "fallow")
		require.NoError(t, err)
		assert.Equal(t, cp, got)
	})

	t.Run("checkpoints only move forward", func(t *testing.T) {
		s := newStore(t)
		newer := ir.Checkpoint{FieldID: "north", History: rotation.Snapshot{PreviousCrop1: "sorghum", PreviousCrop2: "wheat"}, Seq: 9}
		older := ir.Checkpoint{FieldID: "north", History: rotation.Snapshot{PreviousCrop1: "wheat"}, Seq: 5}

		require.NoError(t, s.SaveCheckpoint(ctx, newer))
		err := s.SaveCheckpoint(ctx, older)
		assert.ErrorIs(t, err, ir.ErrCheckpointStale)

		got, err := s.LoadCheckpoint(ctx, "north")
		require.NoError(t, err)
		assert.Equal(t, newer, got)
	})

	t.Run("replace needs the current seq", func(t *testing.T) {
		s := newStore(t)
		created := ir.Checkpoint{FieldID: "north", Seq: 1}
		require.NoError(t, s.ReplaceCheckpoint(ctx, created, 0))
		assert.ErrorIs(t, s.ReplaceCheckpoint(ctx, created, 0), ir.ErrCheckpointStale, "field already exists")

		wheat := ir.Checkpoint{FieldID: "north", History: rotation.Snapshot{PreviousCrop1: "wheat"}, Seq: 3}
		require.NoError(t, s.ReplaceCheckpoint(ctx, wheat, 1))

		// Based on seq 1, which is gone; the higher seq does not help.
		lost := ir.Checkpoint{FieldID: "north", History: rotation.Snapshot{PreviousCrop1: "chickpea"}, Seq: 8}
		assert.ErrorIs(t, s.ReplaceCheckpoint(ctx, lost, 1), ir.ErrCheckpointStale)

		got, err := s.LoadCheckpoint(ctx, "north")
		require.NoError(t, err)
		assert.Equal(t, wheat, got)

		ids, err := s.ListFields(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"north"}, ids)
	})

	t.Run("list fields sorted", func(t *testing.T) {
		s := newStore(t)
		ids, err := s.ListFields(ctx)
		require.NoError(t, err)
		assert.Empty(t, ids)

		for i, id := range []string{"south", "east", "north"} {
			require.NoError(t, s.SaveCheckpoint(ctx, ir.Checkpoint{FieldID: id, Seq: int64(i + 1)}))
		}
		// Re-saving must not duplicate the field.
		require.NoError(t, s.SaveCheckpoint(ctx, ir.Checkpoint{FieldID: "east", History: rotation.Snapshot{PreviousCrop1: "wheat"}, Seq: 7}))

		ids, err = s.ListFields(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"east", "north", "south"}, ids)
	})
}
