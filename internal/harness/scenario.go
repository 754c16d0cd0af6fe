package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/croprot/internal/ir"
	"github.com/roach88/croprot/internal/rotation"
)

// Scenario is one rotation test case for a single field.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Field is the field id to use. Empty creates a field with a generated id.
	Field string `yaml:"field,omitempty"`

	// Setup lists crops harvested before the steps run. Setup harvests are
	// part of the trace but carry no expectations.
	Setup []string `yaml:"setup,omitempty"`

	// Steps are the sowing checks and harvests under test.
	Steps []Step `yaml:"steps"`

	// History is the expected final history, if given.
	History *rotation.Snapshot `yaml:"history,omitempty"`

	// Assertions validate the trace.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is either a sowing check or a harvest.
type Step struct {
	// Sow is the crop to check for sowing.
	Sow string `yaml:"sow,omitempty"`

	// Harvest is the crop to record as harvested.
	Harvest string `yaml:"harvest,omitempty"`

	// Expect is the expected outcome: allowed, denied or unknown_crop for
	// sow steps, recorded or ignored for harvest steps. Empty skips the check.
	Expect string `yaml:"expect,omitempty"`

	// Rule is the expected deciding rule of a sow step.
	Rule string `yaml:"rule,omitempty"`
}

// Kind returns the event kind the step produces.
func (s Step) Kind() ir.EventKind {
	if s.Sow != "" {
		return ir.EventSowingCheck
	}
	return ir.EventHarvest
}

// Crop returns the crop named by the step.
func (s Step) Crop() string {
	if s.Sow != "" {
		return s.Sow
	}
	return s.Harvest
}

// Assertion validates the trace.
type Assertion struct {
	// Type is one of trace_contains, trace_order, trace_count.
	Type string `yaml:"type"`

	// Kind, Crop and Outcome filter events (trace_contains, trace_count).
	// Empty filters match everything.
	Kind    string `yaml:"kind,omitempty"`
	Crop    string `yaml:"crop,omitempty"`
	Outcome string `yaml:"outcome,omitempty"`

	// Count is the expected number of matching events (trace_count).
	Count int `yaml:"count,omitempty"`

	// Outcomes is the expected outcome order (trace_order).
	Outcomes []string `yaml:"outcomes,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
)

var sowOutcomes = map[string]bool{
	string(ir.OutcomeAllowed):     true,
	string(ir.OutcomeDenied):      true,
	string(ir.OutcomeUnknownCrop): true,
}

var harvestOutcomes = map[string]bool{
	string(ir.OutcomeRecorded): true,
	string(ir.OutcomeIgnored):  true,
}

var rules = map[string]bool{
	string(rotation.RuleBootstrapCereal): true,
	string(rotation.RuleLegumeBreak):     true,
	string(rotation.RuleCerealDefault):   true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict decoding catches typos like "step:" vs "steps:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// FindScenarioFiles returns the .yaml and .yml files under dir, sorted.
// filter is an optional glob matched against the file name without its
// extension.
func FindScenarioFiles(dir, filter string) ([]string, error) {
	if filter != "" {
		if _, err := filepath.Match(filter, ""); err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			if ok, _ := filepath.Match(filter, name); !ok {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	sort.Strings(files)
	return files, err
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, crop := range s.Setup {
		if crop == "" {
			return fmt.Errorf("setup[%d]: crop is required", i)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}

	if s.History != nil {
		if _, err := rotation.FromSnapshot(*s.History); err != nil {
			return fmt.Errorf("history: %w", err)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step Step) error {
	switch {
	case step.Sow != "" && step.Harvest != "":
		return fmt.Errorf("steps[%d]: sow and harvest are mutually exclusive", i)
	case step.Sow == "" && step.Harvest == "":
		return fmt.Errorf("steps[%d]: one of sow or harvest is required", i)
	}

	if step.Sow != "" {
		if step.Expect != "" && !sowOutcomes[step.Expect] {
			return fmt.Errorf("steps[%d]: expect %q is not a sowing outcome (allowed, denied, unknown_crop)", i, step.Expect)
		}
		if step.Rule != "" && !rules[step.Rule] {
			return fmt.Errorf("steps[%d]: unknown rule %q", i, step.Rule)
		}
		return nil
	}

	if step.Expect != "" && !harvestOutcomes[step.Expect] {
		return fmt.Errorf("steps[%d]: expect %q is not a harvest outcome (recorded, ignored)", i, step.Expect)
	}
	if step.Rule != "" {
		return fmt.Errorf("steps[%d]: rule only applies to sow steps", i)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Kind != "" && a.Kind != string(ir.EventSowingCheck) && a.Kind != string(ir.EventHarvest) {
		return fmt.Errorf("assertions[%d]: unknown kind %q", index, a.Kind)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Kind == "" && a.Crop == "" && a.Outcome == "" {
			return fmt.Errorf("assertions[%d]: trace_contains needs at least one of kind, crop, outcome", index)
		}
	case AssertTraceOrder:
		if len(a.Outcomes) == 0 {
			return fmt.Errorf("assertions[%d]: outcomes list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
