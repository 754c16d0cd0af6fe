package rotation

import "fmt"

// Rule names the branch of the rule set that produced a decision.
type Rule string

const (
	// RuleBootstrapCereal applies while fewer than two harvests are recorded.
	RuleBootstrapCereal Rule = "bootstrap_cereal"

	// RuleLegumeBreak applies after two consecutive cereal harvests.
	RuleLegumeBreak Rule = "legume_break"

	// RuleCerealDefault applies to every other complete history.
	RuleCerealDefault Rule = "cereal_default"
)

// Decision is the outcome of a sowing query.
type Decision struct {
	Crop    Crop
	Allowed bool
	Rule    Rule
}

// History is the rotation memory of one field: the last two harvested crops.
//
// Invariant: previous2 is NoCrop whenever previous1 is NoCrop.
type History struct {
	previous1 Crop // most recent harvest
	previous2 Crop // harvest before previous1
}

// New returns an empty history.
func New() *History {
	return &History{}
}

// PreviousCrop1 returns the most recently harvested crop, NoCrop if none.
func (h *History) PreviousCrop1() Crop {
	return h.previous1
}

// PreviousCrop2 returns the second most recently harvested crop, NoCrop if none.
func (h *History) PreviousCrop2() Crop {
	return h.previous2
}

// AllowsSowing reports whether crop may be sown next.
// Returns *UnknownCropError if crop is not a recognized rotation crop.
// The history is not modified.
func (h *History) AllowsSowing(crop string) (bool, error) {
	d, err := h.Decide(crop)
	if err != nil {
		return false, err
	}
	return d.Allowed, nil
}

// Decide is AllowsSowing that also reports which rule applied.
func (h *History) Decide(crop string) (Decision, error) {
	c, err := ParseCrop(crop)
	if err != nil {
		return Decision{}, err
	}

	rule := h.rule()
	d := Decision{Crop: c, Rule: rule}
	if rule == RuleLegumeBreak {
		d.Allowed = c.IsLegume()
	} else {
		d.Allowed = c.IsCereal()
	}
	return d, nil
}

// rule selects the applicable rule from the current history alone.
func (h *History) rule() Rule {
	if h.previous1 == NoCrop || h.previous2 == NoCrop {
		return RuleBootstrapCereal
	}
	if h.previous1.IsCereal() && h.previous2.IsCereal() {
		return RuleLegumeBreak
	}
	return RuleCerealDefault
}

// RecordHarvest shifts crop into the history. Unrecognized names are
// ignored.
func (h *History) RecordHarvest(crop string) {
	c, ok := LookupCrop(crop)
	if !ok {
		return
	}
	h.previous2 = h.previous1
	h.previous1 = c
}

// Snapshot is the persisted form of a History. Empty strings mark absent
// slots.
type Snapshot struct {
	PreviousCrop1 string `json:"previous_crop1" yaml:"previous_crop1"`
	PreviousCrop2 string `json:"previous_crop2" yaml:"previous_crop2"`
}

// Snapshot returns the current slots.
func (h *History) Snapshot() Snapshot {
	return Snapshot{
		PreviousCrop1: h.previous1.String(),
		PreviousCrop2: h.previous2.String(),
	}
}

// Restore replaces the history with the slots of s.
// Returns an error wrapping ErrInvalidSnapshot if a slot holds an
// unrecognized crop or slot 2 is set while slot 1 is empty; h is unchanged
// in that case.
func (h *History) Restore(s Snapshot) error {
	p1, err := parseSlot(s.PreviousCrop1)
	if err != nil {
		return fmt.Errorf("%w: previous_crop1: %v", ErrInvalidSnapshot, err)
	}
	p2, err := parseSlot(s.PreviousCrop2)
	if err != nil {
		return fmt.Errorf("%w: previous_crop2: %v", ErrInvalidSnapshot, err)
	}
	if p1 == NoCrop && p2 != NoCrop {
		return fmt.Errorf("%w: previous_crop2 set without previous_crop1", ErrInvalidSnapshot)
	}
	h.previous1, h.previous2 = p1, p2
	return nil
}

func parseSlot(name string) (Crop, error) {
	if name == "" {
		return NoCrop, nil
	}
	return ParseCrop(name)
}

// FromSnapshot returns a History restored from s.
func FromSnapshot(s Snapshot) (*History, error) {
	h := New()
	if err := h.Restore(s); err != nil {
		return nil, err
	}
	return h, nil
}

// String renders the history as the diagnostics line hosts print after each
// decision.
func (h *History) String() string {
	return h.Snapshot().String()
}

// String renders the slots as "PreviousCrop1=wheat, PreviousCrop2=null".
func (s Snapshot) String() string {
	return fmt.Sprintf("PreviousCrop1=%s, PreviousCrop2=%s", slotString(s.PreviousCrop1), slotString(s.PreviousCrop2))
}

func slotString(name string) string {
	if name == "" {
		return "null"
	}
	return name
}
