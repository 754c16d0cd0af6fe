package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/croprot/internal/rotation"
)

// CheckResult is the outcome of a sowing check.
type CheckResult struct {
	FieldID string            `json:"field_id"`
	Crop    string            `json:"crop"`
	Allowed bool              `json:"allowed"`
	Rule    string            `json:"rule"`
	History rotation.Snapshot `json:"history"`
}

// HistoryResult is the rotation memory of one field.
type HistoryResult struct {
	FieldID string            `json:"field_id"`
	History rotation.Snapshot `json:"history"`
}

// HarvestResult is the field state after a harvest.
type HarvestResult struct {
	FieldID  string            `json:"field_id"`
	Crop     string            `json:"crop"`
	Recorded bool              `json:"recorded"`
	History  rotation.Snapshot `json:"history"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check <field> <crop>",
		Short: "Ask whether a crop may be sown next",
		Long: `Ask whether a crop may be sown next on a field.

A field seen for the first time starts with an empty history. The check
does not change the history; record the harvest once the crop is in.

Exit codes:
  0 - Sowing allowed
  1 - Sowing denied by the rotation rules
  2 - Unknown crop or store error

Examples:
  croprot check north wheat
  croprot check north chickpea --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(rootOpts, cmd, args[0], args[1])
		},
	}
}

func runCheck(opts *RootOptions, cmd *cobra.Command, fieldID, crop string) error {
	out := newFormatter(opts, cmd)
	ctx := cmd.Context()
	s, err := openSession(ctx, opts, cmd, out)
	if err != nil {
		return err
	}
	defer s.Close()

	d, err := s.Engine.CheckSowing(ctx, fieldID, crop)
	if err != nil {
		return engineFailure(out, err)
	}
	h, err := s.Engine.History(ctx, fieldID)
	if err != nil {
		return engineFailure(out, err)
	}

	res := CheckResult{
		FieldID: fieldID,
		Crop:    d.Crop.String(),
		Allowed: d.Allowed,
		Rule:    string(d.Rule),
		History: h,
	}
	verdict := "allowed"
	if !d.Allowed {
		verdict = "denied"
	}
	if err := out.Emit("ok", res, func(w io.Writer) {
		fmt.Fprintf(w, "%s %s on %s (%s)\n", res.Crop, verdict, fieldID, res.Rule)
		fmt.Fprintln(w, h)
	}); err != nil {
		return err
	}

	if !d.Allowed {
		return NewExitError(ExitFailure, fmt.Sprintf("sowing %s denied on %s", res.Crop, fieldID))
	}
	return nil
}

// NewHarvestCommand creates the harvest command.
func NewHarvestCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "harvest <field> <crop>",
		Short: "Record a completed harvest",
		Long: `Record a completed harvest on a field.

The crop becomes the most recent entry of the field's history. Crops outside
the rotation set are accepted and leave the history unchanged.

Examples:
  croprot harvest north wheat
  croprot harvest north fallow --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHarvest(rootOpts, cmd, args[0], args[1])
		},
	}
}

func runHarvest(opts *RootOptions, cmd *cobra.Command, fieldID, crop string) error {
	out := newFormatter(opts, cmd)
	ctx := cmd.Context()
	s, err := openSession(ctx, opts, cmd, out)
	if err != nil {
		return err
	}
	defer s.Close()

	h, err := s.Engine.RecordHarvest(ctx, fieldID, crop)
	if err != nil {
		return engineFailure(out, err)
	}

	_, recorded := rotation.LookupCrop(crop)
	res := HarvestResult{FieldID: fieldID, Crop: crop, Recorded: recorded, History: h}
	return out.Emit("ok", res, func(w io.Writer) {
		if recorded {
			fmt.Fprintf(w, "recorded %s on %s\n", rotation.Normalize(crop), fieldID)
		} else {
			fmt.Fprintf(w, "ignored %q on %s: not a rotation crop\n", crop, fieldID)
		}
		fmt.Fprintln(w, h)
	})
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history <field>",
		Short: "Show the last two harvests of a field",
		Long: `Show the rotation history of an existing field.

Exit codes:
  0 - History shown
  2 - Field not found or store error

Examples:
  croprot history north
  croprot history north --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(rootOpts, cmd, args[0])
		},
	}
}

func runHistory(opts *RootOptions, cmd *cobra.Command, fieldID string) error {
	out := newFormatter(opts, cmd)
	ctx := cmd.Context()
	s, err := openSession(ctx, opts, cmd, out)
	if err != nil {
		return err
	}
	defer s.Close()

	h, err := s.Engine.History(ctx, fieldID)
	if err != nil {
		return engineFailure(out, err)
	}
	return out.Emit("ok", HistoryResult{FieldID: fieldID, History: h}, func(w io.Writer) {
		fmt.Fprintln(w, h)
	})
}

// NewFieldsCommand creates the fields command and its create subcommand.
func NewFieldsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fields",
		Short: "List known fields",
		Long: `List the ids of all fields with a stored history.

Examples:
  croprot fields
  croprot fields create`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFields(rootOpts, cmd)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "create",
		Short:         "Create a field with an empty history and print its id",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreateField(rootOpts, cmd)
		},
	})

	return cmd
}

func runFields(opts *RootOptions, cmd *cobra.Command) error {
	out := newFormatter(opts, cmd)
	ctx := cmd.Context()
	s, err := openSession(ctx, opts, cmd, out)
	if err != nil {
		return err
	}
	defer s.Close()

	ids, err := s.Engine.Fields(ctx)
	if err != nil {
		return engineFailure(out, err)
	}
	return out.Emit("ok", map[string]any{"fields": ids}, func(w io.Writer) {
		if len(ids) == 0 {
			fmt.Fprintln(w, "No fields found.")
			return
		}
		for _, id := range ids {
			fmt.Fprintln(w, id)
		}
	})
}

func runCreateField(opts *RootOptions, cmd *cobra.Command) error {
	out := newFormatter(opts, cmd)
	ctx := cmd.Context()
	s, err := openSession(ctx, opts, cmd, out)
	if err != nil {
		return err
	}
	defer s.Close()

	id, err := s.Engine.CreateField(ctx)
	if err != nil {
		return engineFailure(out, err)
	}
	return out.Emit("ok", map[string]string{"field_id": id}, func(w io.Writer) {
		fmt.Fprintln(w, id)
	})
}
