package engine

import (
	"context"
	"fmt"

	"github.com/roach88/croprot/internal/ir"
	"github.com/roach88/croprot/internal/rotation"
)

// Mismatch is a logged event that the rules no longer reproduce.
type Mismatch struct {
	Seq     int64  `json:"seq"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ReplayReport is the result of rebuilding a field from its decision log.
type ReplayReport struct {
	FieldID      string            `json:"field_id"`
	SowingChecks int               `json:"sowing_checks"`
	Harvests     int               `json:"harvests"`
	Final        rotation.Snapshot `json:"final"`
	Mismatches   []Mismatch        `json:"mismatches,omitempty"`
}

// Consistent reports whether every event and the checkpoint were reproduced.
func (r *ReplayReport) Consistent() bool {
	return len(r.Mismatches) == 0
}

// Replay rebuilds the field's history from an empty one by re-applying its
// logged events in order. Each sowing check must yield the logged outcome
// and rule, each event must leave the logged history, and the result must
// equal the current checkpoint.
func (e *Engine) Replay(ctx context.Context, fieldID string) (*ReplayReport, error) {
	events, err := e.Events(ctx, fieldID)
	if err != nil {
		return nil, err
	}
	current, err := e.History(ctx, fieldID)
	if err != nil {
		return nil, err
	}

	report := ReplayEvents(fieldID, events)
	if report.Final != current {
		report.Mismatches = append(report.Mismatches, Mismatch{
			Kind:    "checkpoint",
			Message: fmt.Sprintf("replayed %s, checkpoint holds %s", report.Final, current),
		})
	}
	return report, nil
}

// ReplayEvents re-applies events to an empty history without consulting
// any store.
func ReplayEvents(fieldID string, events []ir.Event) *ReplayReport {
	report := &ReplayReport{FieldID: fieldID}
	h := rotation.New()

	for _, ev := range events {
		mismatch := func(format string, args ...any) {
			report.Mismatches = append(report.Mismatches, Mismatch{
				Seq: ev.Seq, Kind: string(ev.Kind), Message: fmt.Sprintf(format, args...),
			})
		}

		switch ev.Kind {
		case ir.EventSowingCheck:
			report.SowingChecks++
			outcome, rule := replaySowing(h, ev.Crop)
			if outcome != ev.Outcome {
				mismatch("sowing %s: logged %s, rules give %s", ev.Crop, ev.Outcome, outcome)
			} else if rule != ev.Rule {
				mismatch("sowing %s: logged rule %s, rules give %s", ev.Crop, ev.Rule, rule)
			}
		case ir.EventHarvest:
			report.Harvests++
			outcome := ir.OutcomeIgnored
			if _, ok := rotation.LookupCrop(ev.Crop); ok {
				outcome = ir.OutcomeRecorded
			}
			if outcome != ev.Outcome {
				mismatch("harvest %s: logged %s, rules give %s", ev.Crop, ev.Outcome, outcome)
			}
			h.RecordHarvest(ev.Crop)
		default:
			mismatch("unknown event kind %q", ev.Kind)
			continue
		}

		logged := rotation.Snapshot{PreviousCrop1: ev.PreviousCrop1, PreviousCrop2: ev.PreviousCrop2}
		if got := h.Snapshot(); got != logged {
			mismatch("history after event: logged %s, replayed %s", logged, got)
		}
	}

	report.Final = h.Snapshot()
	return report
}

func replaySowing(h *rotation.History, crop string) (ir.Outcome, string) {
	d, err := h.Decide(crop)
	switch {
	case err != nil:
		return ir.OutcomeUnknownCrop, ""
	case d.Allowed:
		return ir.OutcomeAllowed, string(d.Rule)
	default:
		return ir.OutcomeDenied, string(d.Rule)
	}
}
