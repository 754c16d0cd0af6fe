package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/croprot/internal/ir"
	"github.com/roach88/croprot/internal/rotation"
)

// createTestStore creates a new temp-dir store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestCheckpoint creates a checkpoint with the given slots.
func createTestCheckpoint(fieldID, p1, p2 string, seq int64) ir.Checkpoint {
	return ir.Checkpoint{
		FieldID: fieldID,
		History: rotation.Snapshot{PreviousCrop1: p1, PreviousCrop2: p2},
		Seq:     seq,
	}
}

// createTestEvent creates an event with a content-addressed id.
func createTestEvent(t *testing.T, fieldID string, kind ir.EventKind, crop string, outcome ir.Outcome, seq int64) ir.Event {
	t.Helper()
	id, err := ir.EventID(fieldID, kind, crop, seq)
	if err != nil {
		t.Fatalf("EventID() failed: %v", err)
	}
	return ir.Event{
		ID:      id,
		FieldID: fieldID,
		Kind:    kind,
		Crop:    crop,
		Outcome: outcome,
		Seq:     seq,
	}
}
