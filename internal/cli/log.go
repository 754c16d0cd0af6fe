package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/croprot/internal/ir"
	"github.com/roach88/croprot/internal/rotation"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	Kind string // optional - sowing_check or harvest only
}

// LogStats counts the events of one field by kind.
type LogStats struct {
	TotalEvents  int `json:"total_events"`
	SowingChecks int `json:"sowing_checks"`
	Harvests     int `json:"harvests"`
}

// LogResult is the decision log of one field.
type LogResult struct {
	FieldID string     `json:"field_id"`
	Events  []ir.Event `json:"events"`
	Stats   LogStats   `json:"stats"`
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log <field>",
		Short: "Show the decision log of a field",
		Long: `Show every sowing check and harvest recorded for a field, oldest first.

Each entry carries the field history after the event was applied. The log is
kept in the SQLite database; it is not available when checkpoints live in
Redis.

Exit codes:
  0 - Log shown
  2 - Field not found, no event log, or store error

Examples:
  croprot log north
  croprot log north --kind harvest
  croprot log north --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Kind, "kind", "", "only show events of this kind (sowing_check|harvest)")

	return cmd
}

func runLog(opts *LogOptions, cmd *cobra.Command, fieldID string) error {
	out := newFormatter(opts.RootOptions, cmd)
	kind := ir.EventKind(opts.Kind)
	if kind != "" && kind != ir.EventSowingCheck && kind != ir.EventHarvest {
		return out.Fail(ExitCommandError, ErrCodeGeneric, fmt.Sprintf("invalid kind %q: must be sowing_check or harvest", opts.Kind), nil)
	}

	ctx := cmd.Context()
	s, err := openSession(ctx, opts.RootOptions, cmd, out)
	if err != nil {
		return err
	}
	defer s.Close()

	events, err := s.Engine.Events(ctx, fieldID)
	if err != nil {
		return engineFailure(out, err)
	}

	res := LogResult{FieldID: fieldID, Events: make([]ir.Event, 0, len(events))}
	for _, ev := range events {
		if kind != "" && ev.Kind != kind {
			continue
		}
		res.Events = append(res.Events, ev)
		res.Stats.TotalEvents++
		switch ev.Kind {
		case ir.EventSowingCheck:
			res.Stats.SowingChecks++
		case ir.EventHarvest:
			res.Stats.Harvests++
		}
	}

	return out.Emit("ok", res, func(w io.Writer) {
		writeLogText(w, res, opts.Verbose)
	})
}

func writeLogText(w io.Writer, res LogResult, verbose bool) {
	fmt.Fprintf(w, "Log for Field: %s\n", res.FieldID)
	fmt.Fprintln(w)

	if len(res.Events) == 0 {
		fmt.Fprintln(w, "  (no events)")
	}
	for _, ev := range res.Events {
		switch ev.Kind {
		case ir.EventSowingCheck:
			fmt.Fprintf(w, "  [%d] SOW %s %s", ev.Seq, ev.Crop, ev.Outcome)
			if ev.Rule != "" {
				fmt.Fprintf(w, " (%s)", ev.Rule)
			}
			fmt.Fprintln(w)
		case ir.EventHarvest:
			fmt.Fprintf(w, "  [%d] HARVEST %s %s\n", ev.Seq, ev.Crop, ev.Outcome)
		}
		if verbose {
			snap := rotation.Snapshot{PreviousCrop1: ev.PreviousCrop1, PreviousCrop2: ev.PreviousCrop2}
			fmt.Fprintf(w, "       %s\n", snap)
			fmt.Fprintf(w, "       ID: %s\n", truncateID(ev.ID))
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Events:  %d\n", res.Stats.TotalEvents)
	fmt.Fprintf(w, "  Sowing Checks: %d\n", res.Stats.SowingChecks)
	fmt.Fprintf(w, "  Harvests:      %d\n", res.Stats.Harvests)
}

// truncateID shortens a content-addressed id for display.
func truncateID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12] + "..."
}
