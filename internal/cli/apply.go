package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/reactstore/value"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	Deltas        []string // YAML/JSON objects
	Sets          []string // path=value assignments
	MaxIterations int
}

// ApplyResult is the output of apply and run.
type ApplyResult struct {
	Cycles []CycleSummary  `json:"cycles"`
	State  json.RawMessage `json:"state"`
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply <rules>",
		Short: "Apply updates to a fresh store and print the result",
		Long: `Create a store from a rules file, apply the given updates in order
and print every update cycle followed by the final state.

Each --delta is a YAML or JSON object; each --set is a path=value
assignment. All --delta flags are applied before --set flags.

Examples:
  reactstore apply ./rules/cart.cue --delta '{"cart": {"items": ["apple"]}}'
  reactstore apply ./rules/cart.cue --set ui.name=ada --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Deltas, "delta", nil, "delta object to apply (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Sets, "set", nil, "path=value to apply (repeatable)")
	cmd.Flags().IntVar(&opts.MaxIterations, "max-iterations", 0, "override the mutable iteration limit")

	return cmd
}

func runApply(opts *ApplyOptions, rulesPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	var deltas []value.Object
	for _, src := range opts.Deltas {
		d, err := parseDelta([]byte(src))
		if err != nil {
			return reportCommandError(formatter, ErrCodeInput, fmt.Sprintf("invalid --delta %q", src), err)
		}
		deltas = append(deltas, d)
	}
	for _, expr := range opts.Sets {
		d, err := parseAssignment(expr)
		if err != nil {
			return reportCommandError(formatter, ErrCodeInput, "invalid --set", err)
		}
		deltas = append(deltas, d)
	}

	cfg, err := storeConfig(opts.RootOptions, opts.MaxIterations)
	if err != nil {
		return reportCommandError(formatter, ErrCodeConfig, "invalid store config", err)
	}

	prog, err := LoadRules(rulesPath)
	if err != nil {
		return reportLoadError(formatter, err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	sess, err := newSession(ctx, prog, sessionConfig{
		Config: cfg,
		Logger: formatter.Logger(),
	})
	if err != nil {
		return reportCommandError(formatter, ErrCodeUpdate, "failed to register rules", err)
	}

	return applyAll(ctx, formatter, sess, deltas)
}

// applyAll applies every delta, continuing past failures, then prints the
// cycles and final state. Any failed update fails the command.
func applyAll(ctx context.Context, formatter *OutputFormatter, sess *session, deltas []value.Object) error {
	failed := 0
	for i, d := range deltas {
		if err := sess.apply(ctx, d); err != nil {
			failed++
			formatter.VerboseLog("update %d failed: %v", i, err)
		}
	}

	state, err := sess.canonicalState()
	if err != nil {
		return reportCommandError(formatter, ErrCodeGeneric, "failed to encode state", err)
	}
	result := ApplyResult{Cycles: sess.cycles(), State: state}

	if formatter.JSON() {
		if failed > 0 {
			_ = formatter.Failure(ErrCodeUpdate, fmt.Sprintf("%d update(s) failed", failed), result)
		} else if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		for _, c := range result.Cycles {
			fmt.Fprintln(formatter.Writer, c)
		}
		fmt.Fprintln(formatter.Writer, string(state))
	}

	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d update(s) failed", failed))
	}
	return nil
}

// reportCommandError prints a command-level error and returns it with
// ExitCommandError.
func reportCommandError(formatter *OutputFormatter, code, message string, err error) error {
	_ = formatter.Error(code, fmt.Sprintf("%s: %v", message, err), nil)
	return WrapExitError(ExitCommandError, message, err)
}

// reportLoadError prints a rules loading error. Missing files are command
// errors; invalid rules are failures.
func reportLoadError(formatter *OutputFormatter, err error) error {
	loadErr := convertToLoadError(err)
	_ = formatter.Error(loadErr.Code, loadErr.Message, nil)
	if loadErr.Code == ErrCodeNotFound {
		return WrapExitError(ExitCommandError, "failed to load rules", err)
	}
	return WrapExitError(ExitFailure, "failed to load rules", err)
}
