package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/roach88/croprot/internal/ir"
	"github.com/roach88/croprot/internal/metrics"
	"github.com/roach88/croprot/internal/rotation"
)

// CheckpointStore persists the rotation state of each field.
// Implemented by store.Store (SQLite) and redisstore.Store.
type CheckpointStore interface {
	// ReplaceCheckpoint writes cp only if the stored checkpoint still has
	// seq prevSeq, 0 meaning the field has none yet. Otherwise it returns
	// an error wrapping ir.ErrCheckpointStale and writes nothing.
	ReplaceCheckpoint(ctx context.Context, cp ir.Checkpoint, prevSeq int64) error
	LoadCheckpoint(ctx context.Context, fieldID string) (ir.Checkpoint, error)
	ListFields(ctx context.Context) ([]string, error)
}

// EventLog records every sowing check and harvest.
// Implemented by store.Store, which is also the engine's CheckpointStore.
type EventLog interface {
	AppendEvent(ctx context.Context, ev ir.Event) error
	ReadEvents(ctx context.Context, fieldID string) ([]ir.Event, error)

	// CommitHarvest replaces the checkpoint as ReplaceCheckpoint does and
	// appends the harvest event atomically.
	CommitHarvest(ctx context.Context, cp ir.Checkpoint, prevSeq int64, ev ir.Event) error
}

// Engine owns one rotation.History per field.
type Engine struct {
	checkpoints CheckpointStore
	events      EventLog // nil: events are logged but not stored
	clock       SeqClock
	ids         FieldIDGenerator
	logger      *slog.Logger
	metrics     *metrics.Recorder // nil-safe
	shared      bool              // reload checkpoints before each call

	mu     sync.Mutex
	fields map[string]*field
}

// field is the cached state of one field. mu serializes all access to
// history, which is not safe for concurrent use.
type field struct {
	mu      sync.Mutex
	history *rotation.History
	seq     int64 // seq of the stored checkpoint history was taken from
	evicted bool  // dropped from the registry; reload before use
}

// Option configures an Engine.
type Option func(*Engine)

// WithEventLog stores every event in log.
func WithEventLog(log EventLog) Option {
	return func(e *Engine) { e.events = log }
}

// WithClock replaces the default clock starting at 0.
func WithClock(c SeqClock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithFieldIDGenerator replaces the default UUIDv7 generator.
func WithFieldIDGenerator(g FieldIDGenerator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithLogger sets the logger. The default discards output.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics counts decisions in r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(e *Engine) { e.metrics = r }
}

// WithSharedCheckpoints makes the engine reload a field's checkpoint before
// every call, for stores that other processes write to as well.
func WithSharedCheckpoints() Option {
	return func(e *Engine) { e.shared = true }
}

// New creates an engine on top of a checkpoint store.
func New(checkpoints CheckpointStore, opts ...Option) *Engine {
	e := &Engine{
		checkpoints: checkpoints,
		clock:       NewClock(),
		ids:         UUIDv7Generator{},
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		fields:      make(map[string]*field),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateField registers a new field with an empty history and returns its id.
func (e *Engine) CreateField(ctx context.Context) (string, error) {
	id := e.ids.Generate()
	if _, err := e.field(ctx, id, true); err != nil {
		return "", err
	}
	return id, nil
}

// CheckSowing reports whether crop may be sown next on the field.
// For a recognized crop, a field that does not exist yet is created with an
// empty history.
//
// Returns an error wrapping *rotation.UnknownCropError for an unrecognized
// crop. On an existing field the query is still logged with outcome
// unknown_crop; an unknown field is not created for it.
func (e *Engine) CheckSowing(ctx context.Context, fieldID, crop string) (rotation.Decision, error) {
	_, known := rotation.LookupCrop(crop)
	f, err := e.lockField(ctx, fieldID, known)
	if err != nil {
		if !known && IsFieldNotFound(err) {
			_, cropErr := rotation.ParseCrop(crop)
			e.metrics.SowingCheck(crop, string(ir.OutcomeUnknownCrop))
			e.logger.Warn("sowing check on unknown crop", "field", fieldID, "crop", crop)
			return rotation.Decision{}, fmt.Errorf("check sowing on field %q: %w", fieldID, cropErr)
		}
		return rotation.Decision{}, err
	}
	defer f.mu.Unlock()

	seq := e.clock.Next()
	decision, decideErr := f.history.Decide(crop)

	outcome := ir.OutcomeDenied
	switch {
	case decideErr != nil:
		outcome = ir.OutcomeUnknownCrop
	case decision.Allowed:
		outcome = ir.OutcomeAllowed
	}

	snap := f.history.Snapshot()
	if err := e.appendEvent(ctx, fieldID, ir.EventSowingCheck, crop, outcome, string(decision.Rule), snap, seq); err != nil {
		return rotation.Decision{}, err
	}
	e.metrics.SowingCheck(crop, string(outcome))

	if decideErr != nil {
		e.logger.Warn("sowing check on unknown crop",
			"field", fieldID,
			"crop", crop,
			"seq", seq,
		)
		return rotation.Decision{}, fmt.Errorf("check sowing on field %q: %w", fieldID, decideErr)
	}

	e.logger.Info("sowing check",
		"field", fieldID,
		"crop", decision.Crop.String(),
		"allowed", decision.Allowed,
		"rule", string(decision.Rule),
		"previous_crop1", snap.PreviousCrop1,
		"previous_crop2", snap.PreviousCrop2,
		"seq", seq,
	)
	return decision, nil
}

// RecordHarvest commits a completed harvest to the field's history and
// returns the updated history. Unrecognized crops leave the history
// unchanged and are not an error.
// A field that does not exist yet is created with an empty history.
func (e *Engine) RecordHarvest(ctx context.Context, fieldID, crop string) (rotation.Snapshot, error) {
	f, err := e.lockField(ctx, fieldID, true)
	if err != nil {
		return rotation.Snapshot{}, err
	}
	defer f.mu.Unlock()

	seq := e.clock.Next()
	before := f.history.Snapshot()
	_, recorded := rotation.LookupCrop(crop)
	f.history.RecordHarvest(crop)
	after := f.history.Snapshot()

	if recorded {
		cp := ir.Checkpoint{FieldID: fieldID, History: after, Seq: seq}
		if err := e.commitHarvest(ctx, cp, f.seq, crop); err != nil {
			if restoreErr := f.history.Restore(before); restoreErr != nil {
				return rotation.Snapshot{}, errors.Join(err, restoreErr)
			}
			if errors.Is(err, ir.ErrCheckpointStale) {
				e.evict(fieldID, f)
				e.logger.Warn("harvest lost a race, field evicted", "field", fieldID, "crop", crop, "seq", seq)
			}
			return rotation.Snapshot{}, fmt.Errorf("record harvest on field %q: %w", fieldID, err)
		}
		f.seq = seq
	} else if err := e.appendEvent(ctx, fieldID, ir.EventHarvest, crop, ir.OutcomeIgnored, "", after, seq); err != nil {
		return rotation.Snapshot{}, err
	}
	e.metrics.Harvest(crop, recorded)

	if !recorded {
		e.logger.Debug("harvest ignored for rotation history",
			"field", fieldID,
			"crop", crop,
			"seq", seq,
		)
		return after, nil
	}

	e.logger.Info("harvest recorded",
		"field", fieldID,
		"crop", after.PreviousCrop1,
		"previous_crop1", after.PreviousCrop1,
		"previous_crop2", after.PreviousCrop2,
		"seq", seq,
	)
	return after, nil
}

// History returns the current history of an existing field.
// Returns a FIELD_NOT_FOUND error for an unknown field.
func (e *Engine) History(ctx context.Context, fieldID string) (rotation.Snapshot, error) {
	f, err := e.lockField(ctx, fieldID, false)
	if err != nil {
		return rotation.Snapshot{}, err
	}
	defer f.mu.Unlock()
	return f.history.Snapshot(), nil
}

// Fields lists the ids of all checkpointed fields.
func (e *Engine) Fields(ctx context.Context) ([]string, error) {
	ids, err := e.checkpoints.ListFields(ctx)
	if err != nil {
		return nil, fmt.Errorf("list fields: %w", err)
	}
	return ids, nil
}

// Events returns the decision log of an existing field, oldest first.
func (e *Engine) Events(ctx context.Context, fieldID string) ([]ir.Event, error) {
	if e.events == nil {
		return nil, &FieldError{Code: ErrCodeNoEventLog, FieldID: fieldID, Message: "engine has no event log"}
	}
	if _, err := e.field(ctx, fieldID, false); err != nil {
		return nil, err
	}
	evs, err := e.events.ReadEvents(ctx, fieldID)
	if err != nil {
		return nil, fmt.Errorf("read events of field %q: %w", fieldID, err)
	}
	return evs, nil
}

// lockField returns the field with its mutex held. With shared checkpoints
// the cached history is first brought up to date with the store.
func (e *Engine) lockField(ctx context.Context, fieldID string, create bool) (*field, error) {
	for {
		f, err := e.field(ctx, fieldID, create)
		if err != nil {
			return nil, err
		}
		f.mu.Lock()
		if f.evicted {
			f.mu.Unlock()
			continue
		}
		if e.shared {
			if err := e.refresh(ctx, fieldID, f); err != nil {
				f.mu.Unlock()
				return nil, err
			}
		}
		return f, nil
	}
}

// field returns the cached field, restoring it from its checkpoint on first
// use. With create set, a field without a checkpoint starts empty and is
// checkpointed at once.
func (e *Engine) field(ctx context.Context, fieldID string, create bool) (*field, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if f, ok := e.fields[fieldID]; ok {
		return f, nil
	}

	cp, err := e.checkpoints.LoadCheckpoint(ctx, fieldID)
	if errors.Is(err, ir.ErrCheckpointNotFound) && create {
		cp = ir.Checkpoint{FieldID: fieldID, Seq: e.clock.Next()}
		err = e.checkpoints.ReplaceCheckpoint(ctx, cp, 0)
		if err == nil {
			e.logger.Info("field created", "field", fieldID, "seq", cp.Seq)
		} else if errors.Is(err, ir.ErrCheckpointStale) {
			// Created by another writer in the meantime.
			cp, err = e.checkpoints.LoadCheckpoint(ctx, fieldID)
		} else {
			return nil, fmt.Errorf("create field %q: %w", fieldID, err)
		}
	}

	switch {
	case err == nil:
		h, restoreErr := rotation.FromSnapshot(cp.History)
		if restoreErr != nil {
			return nil, NewInvalidCheckpointError(fieldID, restoreErr)
		}
		e.clock.Observe(cp.Seq)
		f := &field{history: h, seq: cp.Seq}
		e.fields[fieldID] = f
		e.logger.Debug("field restored",
			"field", fieldID,
			"previous_crop1", cp.History.PreviousCrop1,
			"previous_crop2", cp.History.PreviousCrop2,
			"seq", cp.Seq,
		)
		return f, nil

	case errors.Is(err, ir.ErrCheckpointCorrupt):
		return nil, NewInvalidCheckpointError(fieldID, err)

	case errors.Is(err, ir.ErrCheckpointNotFound):
		return nil, NewFieldNotFoundError(fieldID)

	default:
		return nil, fmt.Errorf("load field %q: %w", fieldID, err)
	}
}

// refresh reloads f from the store if another writer advanced it.
// The caller holds f.mu.
func (e *Engine) refresh(ctx context.Context, fieldID string, f *field) error {
	cp, err := e.checkpoints.LoadCheckpoint(ctx, fieldID)
	switch {
	case errors.Is(err, ir.ErrCheckpointCorrupt):
		return NewInvalidCheckpointError(fieldID, err)
	case errors.Is(err, ir.ErrCheckpointNotFound):
		e.evict(fieldID, f)
		return NewFieldNotFoundError(fieldID)
	case err != nil:
		return fmt.Errorf("reload field %q: %w", fieldID, err)
	}
	if cp.Seq == f.seq {
		return nil
	}
	if err := f.history.Restore(cp.History); err != nil {
		return NewInvalidCheckpointError(fieldID, err)
	}
	f.seq = cp.Seq
	e.clock.Observe(cp.Seq)
	e.logger.Debug("field reloaded",
		"field", fieldID,
		"previous_crop1", cp.History.PreviousCrop1,
		"previous_crop2", cp.History.PreviousCrop2,
		"seq", cp.Seq,
	)
	return nil
}

// evict drops f from the registry so the next call restores the field from
// its checkpoint. The caller holds f.mu.
func (e *Engine) evict(fieldID string, f *field) {
	f.evicted = true
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fields[fieldID] == f {
		delete(e.fields, fieldID)
	}
}

// commitHarvest stores the checkpoint of a recorded harvest, together with
// its event when the engine keeps a log.
func (e *Engine) commitHarvest(ctx context.Context, cp ir.Checkpoint, prevSeq int64, crop string) error {
	if e.events == nil {
		return e.checkpoints.ReplaceCheckpoint(ctx, cp, prevSeq)
	}
	ev, err := newEvent(cp.FieldID, ir.EventHarvest, crop, ir.OutcomeRecorded, "", cp.History, cp.Seq)
	if err != nil {
		return err
	}
	return e.events.CommitHarvest(ctx, cp, prevSeq, ev)
}

func (e *Engine) appendEvent(ctx context.Context, fieldID string, kind ir.EventKind, crop string, outcome ir.Outcome, rule string, after rotation.Snapshot, seq int64) error {
	if e.events == nil {
		return nil
	}
	ev, err := newEvent(fieldID, kind, crop, outcome, rule, after, seq)
	if err != nil {
		return err
	}
	if err := e.events.AppendEvent(ctx, ev); err != nil {
		return fmt.Errorf("append %s event on field %q: %w", kind, fieldID, err)
	}
	return nil
}

func newEvent(fieldID string, kind ir.EventKind, crop string, outcome ir.Outcome, rule string, after rotation.Snapshot, seq int64) (ir.Event, error) {
	id, err := ir.EventID(fieldID, kind, crop, seq)
	if err != nil {
		return ir.Event{}, err
	}
	return ir.Event{
		ID:            id,
		FieldID:       fieldID,
		Kind:          kind,
		Crop:          crop,
		Outcome:       outcome,
		Rule:          rule,
		PreviousCrop1: after.PreviousCrop1,
		PreviousCrop2: after.PreviousCrop2,
		Seq:           seq,
	}, nil
}
