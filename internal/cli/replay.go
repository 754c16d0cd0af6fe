package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/croprot/internal/engine"
)

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Fields        []*engine.ReplayReport `json:"fields"`
	TotalFields   int                    `json:"total_fields"`
	AllConsistent bool                   `json:"all_consistent"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "replay [field]",
		Short: "Replay the decision log and verify it against the rules",
		Long: `Rebuild field histories from the decision log.

Every logged sowing check is decided again and every harvest re-applied,
starting from an empty history. The command reports events whose outcome or
resulting history the rules no longer reproduce, and fields whose stored
checkpoint differs from the replayed history. Without a field argument all
fields are replayed.

Exit codes:
  0 - All fields are consistent
  1 - Differences detected
  2 - Command error (no event log, field not found, etc.)

Examples:
  croprot replay
  croprot replay north --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(rootOpts, cmd, args)
		},
	}
}

func runReplay(opts *RootOptions, cmd *cobra.Command, args []string) error {
	out := newFormatter(opts, cmd)
	ctx := cmd.Context()
	s, err := openSession(ctx, opts, cmd, out)
	if err != nil {
		return err
	}
	defer s.Close()

	fieldIDs := args
	if len(fieldIDs) == 0 {
		fieldIDs, err = s.Engine.Fields(ctx)
		if err != nil {
			return engineFailure(out, err)
		}
	}

	result := ReplayResult{
		Fields:        make([]*engine.ReplayReport, 0, len(fieldIDs)),
		TotalFields:   len(fieldIDs),
		AllConsistent: true,
	}
	for _, id := range fieldIDs {
		out.VerboseLog("replaying field %s", id)
		report, err := s.Engine.Replay(ctx, id)
		if err != nil {
			return engineFailure(out, err)
		}
		result.Fields = append(result.Fields, report)
		if !report.Consistent() {
			result.AllConsistent = false
		}
	}

	status := "ok"
	if !result.AllConsistent {
		status = "error"
	}
	if err := out.Emit(status, result, func(w io.Writer) {
		writeReplayText(w, result, opts.Verbose)
	}); err != nil {
		return err
	}

	if !result.AllConsistent {
		return NewExitError(ExitFailure, "replay differs from the decision log")
	}
	return nil
}

func writeReplayText(w io.Writer, result ReplayResult, verbose bool) {
	if result.TotalFields == 0 {
		fmt.Fprintln(w, "No fields found in database.")
		return
	}

	fmt.Fprintf(w, "Replay Summary: %d field(s)\n", result.TotalFields)
	fmt.Fprintln(w)

	for _, r := range result.Fields {
		status := "✓"
		if !r.Consistent() {
			status = "✗"
		}
		fmt.Fprintf(w, "%s Field: %s\n", status, r.FieldID)
		if verbose {
			fmt.Fprintf(w, "  Sowing Checks: %d\n", r.SowingChecks)
			fmt.Fprintf(w, "  Harvests: %d\n", r.Harvests)
			fmt.Fprintf(w, "  %s\n", r.Final)
		}
		for _, m := range r.Mismatches {
			if m.Seq > 0 {
				fmt.Fprintf(w, "  [%d] %s\n", m.Seq, m.Message)
			} else {
				fmt.Fprintf(w, "  %s\n", m.Message)
			}
		}
	}
}
