package cli

import (
	"errors"
	"fmt"
	"io"

	"cuelang.org/go/cue/token"
	"github.com/spf13/cobra"

	"github.com/roach88/croprot/internal/engine"
	"github.com/roach88/croprot/internal/plan"
	"github.com/roach88/croprot/internal/rotation"
)

// PlanOptions holds flags for the plan command.
type PlanOptions struct {
	*RootOptions
	FromFields bool // start plans that name a field from its stored history
}

// PlanViolation is the first refused season of a plan.
type PlanViolation struct {
	Season   int               `json:"season"`
	Crop     string            `json:"crop"`
	Kind     string            `json:"kind"`
	Rule     string            `json:"rule,omitempty"`
	History  rotation.Snapshot `json:"history"`
	Position string            `json:"position,omitempty"`
	Message  string            `json:"message"`
}

// PlanResult holds the result of checking a single plan.
type PlanResult struct {
	Name      string            `json:"name"`
	Field     string            `json:"field,omitempty"`
	Start     rotation.Snapshot `json:"start"`
	Seasons   int               `json:"seasons"`
	Final     rotation.Snapshot `json:"final"`
	Pass      bool              `json:"pass"`
	Violation *PlanViolation    `json:"violation,omitempty"`
}

// PlanCheckResult holds the overall result of the plan command.
type PlanCheckResult struct {
	Plans  []PlanResult `json:"plans"`
	Errors []string     `json:"errors,omitempty"`
	Passed int          `json:"passed"`
	Failed int          `json:"failed"`
	Total  int          `json:"total"`
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plan <plans-dir>",
		Short: "Check CUE rotation plans against the rules",
		Long: `Check multi-season rotation plans written in CUE.

Every .cue file in the directory belongs to one package. Plans live under
the top-level "plan" field:

  plan: north_2025: {
      field:    "north"
      sequence: ["wheat", "sorghum", "chickpea"]
  }

Each plan is replayed season by season: the crop must be allowed, then its
harvest is recorded. The first refused or unknown crop is reported with its
source position. With --from-field, plans that name a field start from that
field's stored history instead of an empty one.

Exit codes:
  0 - All plans can be followed
  1 - A plan is refused by the rules or invalid
  2 - Command error (directory not found, no plans, etc.)

Examples:
  croprot plan ./plans
  croprot plan ./plans --from-field --db ./croprot.db
  croprot plan ./plans --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(opts, cmd, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.FromFields, "from-field", false, "start plans naming a field from its stored history")

	return cmd
}

func runPlan(opts *PlanOptions, cmd *cobra.Command, dir string) error {
	out := newFormatter(opts.RootOptions, cmd)

	out.VerboseLog("loading plans from %s", dir)
	loaded, loadErrs := plan.Load(dir)
	if loaded == nil || isNoPlans(loadErrs) {
		return failLoad(out, loadErrs)
	}
	out.VerboseLog("found %d plan(s) in %d file(s)", len(loaded.Plans), loaded.FileCount)

	starts := make(map[string]rotation.Snapshot)
	if opts.FromFields {
		var err error
		if starts, err = fieldStarts(opts, cmd, out, loaded.Plans); err != nil {
			return err
		}
	}

	result := PlanCheckResult{Plans: make([]PlanResult, 0, len(loaded.Plans))}
	for _, e := range loadErrs {
		result.Errors = append(result.Errors, e.Error())
		result.Failed++
	}

	for i := range loaded.Plans {
		p := &loaded.Plans[i]
		pr, err := checkPlan(p, starts[p.Field])
		if err != nil {
			return out.Fail(ExitCommandError, string(engine.ErrCodeInvalidCheckpoint), fmt.Sprintf("field %s cannot start plan %s", p.Field, p.Name), err)
		}
		result.Plans = append(result.Plans, pr)
		if pr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}
	result.Total = result.Passed + result.Failed

	status := "ok"
	if result.Failed > 0 {
		status = "error"
	}
	if err := out.Emit(status, result, func(w io.Writer) {
		writePlanText(w, result)
	}); err != nil {
		return err
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d plan(s) failed", result.Failed))
	}
	return nil
}

// fieldStarts looks up the stored history of every field a plan names.
// Fields without a history start empty.
func fieldStarts(opts *PlanOptions, cmd *cobra.Command, out *OutputFormatter, plans []plan.Plan) (map[string]rotation.Snapshot, error) {
	ctx := cmd.Context()
	s, err := openSession(ctx, opts.RootOptions, cmd, out)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	starts := make(map[string]rotation.Snapshot)
	for _, p := range plans {
		if p.Field == "" {
			continue
		}
		if _, ok := starts[p.Field]; ok {
			continue
		}
		h, err := s.Engine.History(ctx, p.Field)
		switch {
		case engine.IsFieldNotFound(err):
			out.VerboseLog("field %s has no history; plan %s starts empty", p.Field, p.Name)
			h = rotation.Snapshot{}
		case err != nil:
			return nil, engineFailure(out, err)
		}
		starts[p.Field] = h
	}
	return starts, nil
}

func checkPlan(p *plan.Plan, start rotation.Snapshot) (PlanResult, error) {
	res, err := plan.CheckFrom(p, start)
	if err != nil {
		return PlanResult{}, err
	}

	pr := PlanResult{
		Name:    p.Name,
		Field:   p.Field,
		Start:   start,
		Seasons: res.Seasons,
		Final:   res.Final,
		Pass:    res.OK(),
	}
	if v := res.Violation; v != nil {
		pr.Violation = &PlanViolation{
			Season:   v.Season,
			Crop:     v.Crop,
			Kind:     string(v.Kind),
			Rule:     string(v.Rule),
			History:  v.History,
			Position: formatPos(v.Pos),
			Message:  v.Error(),
		}
	}
	return pr, nil
}

func writePlanText(w io.Writer, result PlanCheckResult) {
	for _, e := range result.Errors {
		fmt.Fprintf(w, "✗ %s\n", e)
	}
	for _, pr := range result.Plans {
		if pr.Pass {
			fmt.Fprintf(w, "✓ %s (%d seasons)\n", pr.Name, pr.Seasons)
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", pr.Name)
		fmt.Fprintf(w, "  %s\n", pr.Violation.Message)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
}

func isNoPlans(errs []error) bool {
	for _, err := range errs {
		var le *plan.LoadError
		if errors.As(err, &le) && le.Code == plan.ErrCodeNoPlans {
			return true
		}
	}
	return false
}

// failLoad reports errors that left nothing to check.
func failLoad(out *OutputFormatter, errs []error) error {
	code := ErrCodeGeneric
	var le *plan.LoadError
	if len(errs) > 0 && errors.As(errs[0], &le) {
		code = le.Code
	}
	return out.Fail(ExitCommandError, code, "failed to load plans", errors.Join(errs...))
}

func formatPos(pos token.Pos) string {
	if !pos.IsValid() {
		return ""
	}
	return fmt.Sprintf("%s:%d:%d", pos.Filename(), pos.Line(), pos.Column())
}
