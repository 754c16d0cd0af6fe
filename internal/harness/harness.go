package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/croprot/internal/engine"
	"github.com/roach88/croprot/internal/rotation"
	"github.com/roach88/croprot/internal/store"
	"github.com/roach88/croprot/internal/testutil"
)

// Harness runs one scenario against an engine.
type Harness struct {
	engine *engine.Engine
	logger *slog.Logger
}

// Run executes a scenario with logging discarded.
func Run(scenario *Scenario) (*Result, error) {
	return RunWithLogger(scenario, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// RunWithLogger executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Execution flow:
//  1. Create the field (or use scenario.Field)
//  2. Record the setup harvests
//  3. Run the steps, checking each step's expected outcome and rule
//  4. Read the field's decision log back as the trace
//  5. Check the final history and evaluate assertions
//
// Expectation failures are reported in the result; the returned error is
// reserved for failures of the harness itself.
func RunWithLogger(scenario *Scenario, logger *slog.Logger) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	eng := engine.New(st,
		engine.WithEventLog(st),
		engine.WithClock(testutil.NewDeterministicClock()),
		engine.WithFieldIDGenerator(testutil.NewSequentialIDGenerator("")),
		engine.WithLogger(logger),
	)
	h := &Harness{engine: eng, logger: logger}
	ctx := context.Background()

	fieldID := scenario.Field
	if fieldID == "" {
		fieldID, err = eng.CreateField(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create field: %w", err)
		}
	}

	result := NewResult()
	result.FieldID = fieldID

	for i, crop := range scenario.Setup {
		if _, err := eng.RecordHarvest(ctx, fieldID, crop); err != nil {
			return nil, fmt.Errorf("setup[%d]: %w", i, err)
		}
	}

	outcomes := make([]stepOutcome, len(scenario.Steps))
	for i, step := range scenario.Steps {
		out, err := h.executeStep(ctx, fieldID, step)
		if err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		outcomes[i] = out
	}

	events, err := eng.Events(ctx, fieldID)
	if err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}
	for _, ev := range events {
		result.AddEvent(ev)
	}

	for i, step := range scenario.Steps {
		checkStep(result, i, step, outcomes[i])
	}

	history, err := eng.History(ctx, fieldID)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	result.History = history
	if scenario.History != nil && !sameHistory(*scenario.History, history) {
		result.AddError(fmt.Sprintf("history: expected %s, got %s", *scenario.History, history))
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// stepOutcome is what the engine reported for one step.
type stepOutcome struct {
	outcome string
	rule    string
}

func (h *Harness) executeStep(ctx context.Context, fieldID string, step Step) (stepOutcome, error) {
	if step.Sow != "" {
		d, err := h.engine.CheckSowing(ctx, fieldID, step.Sow)
		switch {
		case rotation.IsUnknownCrop(err):
			return stepOutcome{outcome: "unknown_crop"}, nil
		case err != nil:
			return stepOutcome{}, err
		case d.Allowed:
			return stepOutcome{outcome: "allowed", rule: string(d.Rule)}, nil
		default:
			return stepOutcome{outcome: "denied", rule: string(d.Rule)}, nil
		}
	}

	before, err := h.engine.History(ctx, fieldID)
	if err != nil {
		return stepOutcome{}, err
	}
	after, err := h.engine.RecordHarvest(ctx, fieldID, step.Harvest)
	if err != nil {
		return stepOutcome{}, err
	}
	if _, ok := rotation.LookupCrop(step.Harvest); !ok {
		h.logger.Debug("harvest ignored", "field", fieldID, "crop", step.Harvest, "history", after.String())
		return stepOutcome{outcome: "ignored"}, nil
	}
	h.logger.Debug("harvest recorded", "field", fieldID, "before", before.String(), "after", after.String())
	return stepOutcome{outcome: "recorded"}, nil
}

func checkStep(result *Result, i int, step Step, got stepOutcome) {
	if step.Expect != "" && step.Expect != got.outcome {
		result.AddError(fmt.Sprintf("steps[%d] %s %s: expected %s, got %s",
			i, step.Kind(), step.Crop(), step.Expect, got.outcome))
	}
	if step.Rule != "" && step.Rule != got.rule {
		result.AddError(fmt.Sprintf("steps[%d] %s %s: expected rule %s, got %q",
			i, step.Kind(), step.Crop(), step.Rule, got.rule))
	}
}

// sameHistory compares histories by crop identity, so expected histories
// may be written in any case.
func sameHistory(want, got rotation.Snapshot) bool {
	return rotation.Normalize(want.PreviousCrop1) == rotation.Normalize(got.PreviousCrop1) &&
		rotation.Normalize(want.PreviousCrop2) == rotation.Normalize(got.PreviousCrop2)
}
