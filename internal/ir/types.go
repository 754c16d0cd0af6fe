package ir

import (
	"errors"

	"github.com/roach88/croprot/internal/rotation"
)

// EventKind distinguishes the two calls a host makes into a field's history.
type EventKind string

const (
	EventSowingCheck EventKind = "sowing_check"
	EventHarvest     EventKind = "harvest"
)

// Outcome is the result recorded for an event.
type Outcome string

const (
	// Sowing check outcomes.
	OutcomeAllowed     Outcome = "allowed"
	OutcomeDenied      Outcome = "denied"
	OutcomeUnknownCrop Outcome = "unknown_crop"

	// Harvest outcomes.
	OutcomeRecorded Outcome = "recorded"
	OutcomeIgnored  Outcome = "ignored"
)

// Event is one entry of a field's decision log.
//
// Crop holds the name exactly as the host supplied it. PreviousCrop1 and
// PreviousCrop2 are the history after the event was applied.
type Event struct {
	ID            string    `json:"id"`
	FieldID       string    `json:"field_id"`
	Kind          EventKind `json:"kind"`
	Crop          string    `json:"crop"`
	Outcome       Outcome   `json:"outcome"`
	Rule          string    `json:"rule,omitempty"`
	PreviousCrop1 string    `json:"previous_crop1"`
	PreviousCrop2 string    `json:"previous_crop2"`
	Seq           int64     `json:"seq"`
}

// Checkpoint is the persisted rotation state of a field.
// Seq is the clock value of the last event applied to it.
type Checkpoint struct {
	FieldID string            `json:"field_id"`
	History rotation.Snapshot `json:"history"`
	Seq     int64             `json:"seq"`
}

// ErrCheckpointNotFound is returned by checkpoint stores for an unknown field.
var ErrCheckpointNotFound = errors.New("checkpoint not found")

// ErrCheckpointCorrupt is returned when a stored checkpoint no longer matches
// its recorded hash.
var ErrCheckpointCorrupt = errors.New("checkpoint hash mismatch")

// ErrCheckpointStale is returned when a checkpoint write is based on a seq
// that is no longer the stored one, typically because another writer
// advanced the field first. The store is left unchanged.
var ErrCheckpointStale = errors.New("checkpoint is stale")
