package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/reactstore/internal/rules"
)

// RuleSummary describes one compiled rule.
type RuleSummary struct {
	Key   string   `json:"key"`
	Kind  string   `json:"kind"`
	Watch []string `json:"watch,omitempty"`
	Init  bool     `json:"init,omitempty"`
}

// ValidationError is a LoadError as reported by validate.
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Rules  []RuleSummary     `json:"rules,omitempty"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <rules>",
		Short: "Compile rules without running them",
		Long: `Compile a CUE rules file (or a directory holding one CUE package) and
report every rule with its kind and watched paths.

Examples:
  reactstore validate ./rules/cart.cue
  reactstore validate ./rules --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	prog, err := LoadRules(path)
	if err != nil {
		return outputValidationError(formatter, convertToLoadError(err))
	}

	summaries := summarize(prog)
	for _, s := range summaries {
		formatter.VerboseLog("rule %s: %s watch=%v", s.Key, s.Kind, s.Watch)
	}

	if formatter.JSON() {
		return formatter.Success(ValidationResult{Valid: true, Rules: summaries})
	}

	fmt.Fprintf(formatter.Writer, "✓ %d rule(s) valid\n", len(summaries))
	for _, s := range summaries {
		watch := "always"
		if len(s.Watch) > 0 {
			watch = strings.Join(s.Watch, ", ")
		}
		tag := ""
		if s.Init {
			tag = " [init]"
		}
		fmt.Fprintf(formatter.Writer, "  %-16s %-8s %s%s\n", s.Key, s.Kind, watch, tag)
	}
	return nil
}

func summarize(prog *rules.Program) []RuleSummary {
	out := make([]RuleSummary, len(prog.Rules))
	for i, r := range prog.Rules {
		out[i] = RuleSummary{
			Key:   r.Key,
			Kind:  string(r.Kind),
			Watch: r.Watch,
			Init:  r.Init,
		}
	}
	return out
}

func outputValidationError(formatter *OutputFormatter, loadErr *LoadError) error {
	code := ExitFailure
	if loadErr.Code == ErrCodeNotFound {
		code = ExitCommandError
	}

	if formatter.JSON() {
		_ = formatter.Failure(loadErr.Code, loadErr.Message, ValidationResult{
			Valid:  false,
			Errors: []ValidationError{{Code: loadErr.Code, Message: loadErr.Message, Line: loadErr.Line()}},
		})
		return NewExitError(code, loadErr.Error())
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	if line := loadErr.Line(); line > 0 {
		fmt.Fprintf(formatter.Writer, "line %d\n", line)
	}
	fmt.Fprintf(formatter.Writer, "  %s: %s\n", loadErr.Code, loadErr.Message)
	return NewExitError(code, loadErr.Error())
}
