package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/croprot/internal/ir"
)

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SaveCheckpoint inserts or advances a field checkpoint.
// A checkpoint whose seq is lower than the stored one is not written and
// ir.ErrCheckpointStale is returned, so a delayed writer cannot roll a
// field's history back.
func (s *Store) SaveCheckpoint(ctx context.Context, cp ir.Checkpoint) error {
	hash, err := ir.CheckpointHash(cp)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO fields (id, previous_crop1, previous_crop2, seq, hash)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			previous_crop1 = excluded.previous_crop1,
			previous_crop2 = excluded.previous_crop2,
			seq            = excluded.seq,
			hash           = excluded.hash
		WHERE excluded.seq >= fields.seq
	`,
		cp.FieldID,
		cp.History.PreviousCrop1,
		cp.History.PreviousCrop2,
		cp.Seq,
		hash,
	)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return checkWritten(result, cp)
}

// ReplaceCheckpoint writes cp only if the field's stored checkpoint still
// has seq prevSeq. A prevSeq of 0 requires that the field has no checkpoint.
// Returns ir.ErrCheckpointStale otherwise.
func (s *Store) ReplaceCheckpoint(ctx context.Context, cp ir.Checkpoint, prevSeq int64) error {
	return replaceCheckpoint(ctx, s.db, cp, prevSeq)
}

// CommitHarvest replaces the field checkpoint and appends the harvest event
// in one transaction. Either both are stored or neither is.
func (s *Store) CommitHarvest(ctx context.Context, cp ir.Checkpoint, prevSeq int64, ev ir.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("commit harvest: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := replaceCheckpoint(ctx, tx, cp, prevSeq); err != nil {
		return fmt.Errorf("commit harvest: %w", err)
	}
	if err := appendEvent(ctx, tx, ev); err != nil {
		return fmt.Errorf("commit harvest: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit harvest: commit: %w", err)
	}
	return nil
}

func replaceCheckpoint(ctx context.Context, db execer, cp ir.Checkpoint, prevSeq int64) error {
	hash, err := ir.CheckpointHash(cp)
	if err != nil {
		return fmt.Errorf("replace checkpoint: %w", err)
	}

	var result sql.Result
	if prevSeq == 0 {
		result, err = db.ExecContext(ctx, `
			INSERT INTO fields (id, previous_crop1, previous_crop2, seq, hash)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`, cp.FieldID, cp.History.PreviousCrop1, cp.History.PreviousCrop2, cp.Seq, hash)
	} else {
		result, err = db.ExecContext(ctx, `
			UPDATE fields
			SET previous_crop1 = ?, previous_crop2 = ?, seq = ?, hash = ?
			WHERE id = ? AND seq = ?
		`, cp.History.PreviousCrop1, cp.History.PreviousCrop2, cp.Seq, hash, cp.FieldID, prevSeq)
	}
	if err != nil {
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return checkWritten(result, cp)
}

// checkWritten maps a write that touched no row to ir.ErrCheckpointStale.
func checkWritten(result sql.Result, cp ir.Checkpoint) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checkpoint %q: rows affected: %w", cp.FieldID, err)
	}
	if n == 0 {
		return fmt.Errorf("checkpoint %q at seq %d: %w", cp.FieldID, cp.Seq, ir.ErrCheckpointStale)
	}
	return nil
}

// AppendEvent inserts an event into the decision log.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - duplicate IDs are silently ignored.
//
// Note: The field referenced by FieldID must exist (foreign key constraint).
func (s *Store) AppendEvent(ctx context.Context, ev ir.Event) error {
	return appendEvent(ctx, s.db, ev)
}

func appendEvent(ctx context.Context, db execer, ev ir.Event) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO events
		(id, field_id, kind, crop, outcome, rule, previous_crop1, previous_crop2, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		ev.ID,
		ev.FieldID,
		string(ev.Kind),
		ev.Crop,
		string(ev.Outcome),
		ev.Rule,
		ev.PreviousCrop1,
		ev.PreviousCrop2,
		ev.Seq,
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}
