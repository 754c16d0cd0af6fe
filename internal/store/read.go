package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/croprot/internal/ir"
)

// LoadCheckpoint returns the checkpoint of a field.
// Returns ir.ErrCheckpointNotFound if the field has never been saved and
// ir.ErrCheckpointCorrupt if the row does not match its stored hash.
func (s *Store) LoadCheckpoint(ctx context.Context, fieldID string) (ir.Checkpoint, error) {
	var (
		cp     ir.Checkpoint
		stored string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, previous_crop1, previous_crop2, seq, hash
		FROM fields
		WHERE id = ?
	`, fieldID).Scan(&cp.FieldID, &cp.History.PreviousCrop1, &cp.History.PreviousCrop2, &cp.Seq, &stored)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Checkpoint{}, fmt.Errorf("load checkpoint %q: %w", fieldID, ir.ErrCheckpointNotFound)
	}
	if err != nil {
		return ir.Checkpoint{}, fmt.Errorf("load checkpoint %q: %w", fieldID, err)
	}

	hash, err := ir.CheckpointHash(cp)
	if err != nil {
		return ir.Checkpoint{}, fmt.Errorf("load checkpoint %q: %w", fieldID, err)
	}
	if hash != stored {
		return ir.Checkpoint{}, fmt.Errorf("load checkpoint %q: %w", fieldID, ir.ErrCheckpointCorrupt)
	}
	return cp, nil
}

// ListFields returns all field ids in byte order.
// Returns an empty slice (not nil) when no fields exist.
func (s *Store) ListFields(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM fields ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query fields: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan field: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fields: %w", err)
	}
	return ids, nil
}

// ReadEvents returns the decision log of a field.
// Results are ordered deterministically: ORDER BY seq ASC, id ASC COLLATE BINARY.
//
// Returns an empty slice (not nil) if the field has no events.
func (s *Store) ReadEvents(ctx context.Context, fieldID string) ([]ir.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, field_id, kind, crop, outcome, rule, previous_crop1, previous_crop2, seq
		FROM events
		WHERE field_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, fieldID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []ir.Event{}
	for rows.Next() {
		var (
			ev      ir.Event
			kind    string
			outcome string
		)
		if err := rows.Scan(&ev.ID, &ev.FieldID, &kind, &ev.Crop, &outcome, &ev.Rule,
			&ev.PreviousCrop1, &ev.PreviousCrop2, &ev.Seq); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Kind = ir.EventKind(kind)
		ev.Outcome = ir.Outcome(outcome)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
