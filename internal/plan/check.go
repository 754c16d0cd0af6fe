package plan

import (
	"fmt"

	"github.com/roach88/croprot/internal/rotation"
)

// Check replays p against an empty history.
func Check(p *Plan) *Result {
	r, _ := CheckFrom(p, rotation.Snapshot{})
	return r
}

// CheckFrom replays p starting from an existing history, e.g. the current
// state of the field the plan is for. It fails only if start is invalid.
func CheckFrom(p *Plan, start rotation.Snapshot) (*Result, error) {
	h, err := rotation.FromSnapshot(start)
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", p.Name, err)
	}

	res := &Result{Plan: p.Name}
	for i, step := range p.Sequence {
		before := h.Snapshot()
		d, err := h.Decide(step.Crop)
		switch {
		case err != nil:
			res.Violation = &Violation{
				Plan: p.Name, Season: i + 1, Crop: step.Crop,
				Kind: ViolationUnknownCrop, History: before, Pos: step.Pos,
			}
		case !d.Allowed:
			res.Violation = &Violation{
				Plan: p.Name, Season: i + 1, Crop: d.Crop.String(),
				Kind: ViolationDenied, Rule: d.Rule, History: before, Pos: step.Pos,
			}
		}
		if res.Violation != nil {
			break
		}
		h.RecordHarvest(step.Crop)
		res.Seasons++
	}
	res.Final = h.Snapshot()
	return res, nil
}
