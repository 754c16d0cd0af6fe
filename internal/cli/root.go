package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/croprot/internal/engine"
	"github.com/roach88/croprot/internal/ir"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string

	// Values of the store flags. They reach the configuration through
	// config.Load, which only honours flags the user set.
	Database  string
	Redis     string
	RedisDB   int
	RedisPass string
	LogLevel  string

	// FieldIDs overrides the field id generator (for testing).
	// If nil, the engine defaults to UUIDv7.
	FieldIDs engine.FieldIDGenerator
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the croprot CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "croprot",
		Short: "croprot - crop rotation rule engine",
		Long: `Decide which crop may be sown next on a field from its last two harvests.

Cereals (wheat, sorghum) and legumes (chickpea, mungbean) alternate: after
two cereal harvests only a legume may follow, otherwise a cereal is required.`,
		Version:       ir.EngineVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	pf := cmd.PersistentFlags()
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	pf.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	pf.StringVar(&opts.ConfigPath, "config", "", "path to croprot.yaml")
	pf.StringVar(&opts.Database, "db", "", "path to SQLite database (default croprot.db)")
	pf.StringVar(&opts.Redis, "redis", "", "Redis address for checkpoints, e.g. localhost:6379")
	pf.IntVar(&opts.RedisDB, "redis-db", 0, "Redis database number")
	pf.StringVar(&opts.RedisPass, "redis-pass", "", "Redis password")
	pf.StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error)")

	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewHarvestCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewFieldsCommand(opts))
	cmd.AddCommand(NewLogCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewPlanCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
