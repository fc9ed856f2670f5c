package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/reactstore/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string // store config file
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the reactstore CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "reactstore",
		Short: "Observer-driven state store",
		Long: `Drive an observer-driven state store from declarative CUE rules.

Rules derive state (mutable), react after commit (async) or guard
transitions (plain). Updates are merged into the state and dispatched
through the rules; every update cycle can be journaled to SQLite.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "store config file (YAML)")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewApplyCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// storeConfig loads the --config file over the defaults. maxIterations > 0
// overrides both.
func storeConfig(opts *RootOptions, maxIterations int) (store.Config, error) {
	cfg := store.DefaultConfig()
	if opts.Config != "" {
		loaded, err := store.LoadConfig(opts.Config)
		if err != nil {
			return store.Config{}, err
		}
		cfg = loaded
	}
	cfg.Merge(&store.Config{MaxIterations: maxIterations})
	return cfg, cfg.Validate()
}
