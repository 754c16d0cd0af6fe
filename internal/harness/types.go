package harness

import (
	"github.com/roach88/croprot/internal/ir"
	"github.com/roach88/croprot/internal/rotation"
)

// TraceEvent is one decision log entry as it appears in a trace.
// Event ids are left out; they are covered by the ir package tests.
type TraceEvent struct {
	Kind          string `json:"kind"`
	Crop          string `json:"crop"`
	Outcome       string `json:"outcome"`
	Rule          string `json:"rule,omitempty"`
	PreviousCrop1 string `json:"previous_crop1"`
	PreviousCrop2 string `json:"previous_crop2"`
	Seq           int64  `json:"seq"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	// FieldID is the field the scenario ran on.
	FieldID string `json:"field_id"`

	// Trace is the field's decision log, oldest first.
	Trace []TraceEvent `json:"trace"`

	// Errors holds one message per failed expectation.
	Errors []string `json:"errors,omitempty"`

	// History is the field's history after the last step.
	History rotation.Snapshot `json:"history"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddEvent appends a decision log entry to the trace.
func (r *Result) AddEvent(ev ir.Event) {
	r.Trace = append(r.Trace, TraceEvent{
		Kind:          string(ev.Kind),
		Crop:          ev.Crop,
		Outcome:       string(ev.Outcome),
		Rule:          ev.Rule,
		PreviousCrop1: ev.PreviousCrop1,
		PreviousCrop2: ev.PreviousCrop2,
		Seq:           ev.Seq,
	})
}
