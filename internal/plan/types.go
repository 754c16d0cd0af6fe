package plan

import (
	"fmt"

	"cuelang.org/go/cue/token"

	"github.com/roach88/croprot/internal/rotation"
)

// Plan is one named crop sequence.
type Plan struct {
	Name string
	// Field optionally names the field the plan is for. When set, hosts may
	// replay the plan from that field's current history.
	Field    string
	Sequence []Step
	Pos      token.Pos
}

// Step is one season of a plan.
type Step struct {
	Crop string
	Pos  token.Pos
}

// ViolationKind classifies why a plan cannot be followed.
type ViolationKind string

const (
	ViolationDenied      ViolationKind = "denied"
	ViolationUnknownCrop ViolationKind = "unknown_crop"
)

// Violation is the first step of a plan that the rotation rules refuse.
type Violation struct {
	Plan    string
	Season  int // 1-based
	Crop    string
	Kind    ViolationKind
	Rule    rotation.Rule
	History rotation.Snapshot // before the refused sowing
	Pos     token.Pos
}

func (v *Violation) Error() string {
	var msg string
	switch v.Kind {
	case ViolationUnknownCrop:
		msg = fmt.Sprintf("plan %s season %d: %q is not a rotation crop", v.Plan, v.Season, v.Crop)
	default:
		msg = fmt.Sprintf("plan %s season %d: %s may not follow %s (%s)",
			v.Plan, v.Season, v.Crop, v.History, v.Rule)
	}
	if v.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", v.Pos.Filename(), v.Pos.Line(), v.Pos.Column(), msg)
	}
	return msg
}

// Result is the outcome of replaying one plan.
type Result struct {
	Plan      string
	Seasons   int               // seasons replayed without a violation
	Final     rotation.Snapshot // history after the last accepted season
	Violation *Violation        // nil when the whole plan can be followed
}

// OK reports whether the plan can be followed to the end.
func (r *Result) OK() bool { return r.Violation == nil }
