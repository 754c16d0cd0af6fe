// Package engine hosts one rotation history per field on behalf of a
// simulator.
//
// The engine is the collaborator contract of the rotation core made
// concrete: a per-field singleton History, queried before every sowing
// decision and updated exactly once per completed harvest.
//
// ARCHITECTURE:
//
// Field Registry:
// Histories are restored lazily from a CheckpointStore the first time a
// field is touched and cached until a stale write evicts them. A field that
// has no checkpoint yet starts empty and is checkpointed immediately, so the
// event log can reference it. A sowing check on an unrecognized crop does
// not create a field.
//
// Event Processing Flow:
// 1. Look up (or restore) the field's history under the field lock
// 2. Stamp the call with the next logical clock value
// 3. Apply the rotation rule (CheckSowing) or shift the history (RecordHarvest)
// 4. Harvests that changed the history commit the new checkpoint and their
//    event in one store transaction
// 5. Other events are appended to the decision log; all are logged and counted
//
// Concurrency:
// rotation.History is not safe for concurrent use. The engine serializes
// calls per field with a mutex; calls on different fields run in parallel.
//
// CRITICAL PATTERNS:
//
// Logical Clock:
// All events are stamped with a monotonic seq from the Clock. Restored
// checkpoints advance the clock past their seq, so a restarted engine never
// writes a checkpoint that the forward-only stores would ignore.
//
// Rollback on Persistence Failure:
// If a harvest commit fails the in-memory history is restored to its
// previous slots before the error is returned, so a retried harvest is
// applied once.
//
// Compare-and-Set Checkpoints:
// Every checkpoint write names the seq it replaces. A write based on an
// outdated seq fails with ir.ErrCheckpointStale; the engine then evicts the
// field so the next call restores it from the store. With
// WithSharedCheckpoints the engine also reloads a field before each call,
// for stores shared between processes.
//
// Replay:
// Replay re-derives every logged decision from the rules alone, starting
// from an empty history, and reports each event whose outcome, rule or
// resulting history disagrees with the log. The final replayed history is
// compared against the stored checkpoint.
package engine
