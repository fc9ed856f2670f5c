package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/reactstore/internal/journal"
	"github.com/roach88/reactstore/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Journal  string
	Seq      int64  // show a single cycle
	Observer string // show firing counts for one observer
}

// TraceResult holds the trace command output.
type TraceResult struct {
	Cycles []journal.Entry `json:"cycles"`
	Stats  TraceStats      `json:"stats"`
}

// TraceStats summarizes the journaled cycles.
type TraceStats struct {
	Total   int `json:"total"`
	Applied int `json:"applied"`
	Noop    int `json:"noop"`
	Failed  int `json:"failed"`
}

// ObserverTrace is the output of trace --observer.
type ObserverTrace struct {
	Observer string         `json:"observer"`
	Counts   map[string]int `json:"counts"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect a cycle journal",
		Long: `Read the update cycles recorded by "reactstore run --journal".

Without filters, lists every cycle with its outcome, mutable iterations,
callbacks fired and delta. --seq shows one cycle with its firing order;
--observer shows how often an observer fired, per phase.

Examples:
  reactstore trace --journal ./cycles.db
  reactstore trace --journal ./cycles.db --seq 3
  reactstore trace --journal ./cycles.db --observer total --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to SQLite cycle journal (required)")
	_ = cmd.MarkFlagRequired("journal")
	cmd.Flags().Int64Var(&opts.Seq, "seq", 0, "show a single cycle")
	cmd.Flags().StringVar(&opts.Observer, "observer", "", "show firing counts for an observer")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// Open would create a missing journal.
	if _, err := os.Stat(opts.Journal); err != nil {
		return reportCommandError(formatter, ErrCodeNotFound, "journal not found", err)
	}

	j, err := journal.Open(opts.Journal)
	if err != nil {
		return reportCommandError(formatter, ErrCodeJournal, "failed to open journal", err)
	}
	defer j.Close()

	switch {
	case opts.Seq > 0:
		return traceCycle(ctx, formatter, j, opts.Seq)
	case opts.Observer != "":
		return traceObserver(ctx, formatter, j, opts.Observer)
	default:
		return traceAll(ctx, formatter, j)
	}
}

func traceAll(ctx context.Context, formatter *OutputFormatter, j *journal.Journal) error {
	cycles, err := j.Cycles(ctx)
	if err != nil {
		return reportCommandError(formatter, ErrCodeJournal, "failed to read journal", err)
	}

	result := TraceResult{Cycles: cycles, Stats: TraceStats{Total: len(cycles)}}
	for _, c := range cycles {
		switch c.Outcome {
		case store.OutcomeApplied:
			result.Stats.Applied++
		case store.OutcomeNoop:
			result.Stats.Noop++
		case store.OutcomeFailed:
			result.Stats.Failed++
		}
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}

	if len(cycles) == 0 {
		fmt.Fprintln(formatter.Writer, "No cycles journaled.")
		return nil
	}

	tw := tabwriter.NewWriter(formatter.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tOUTCOME\tITER\tFIRED\tNOTIFIED\tDELTA")
	for _, c := range cycles {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%s\n",
			c.Seq, c.Outcome, c.Iterations, len(c.Fired), c.Notified, c.Delta)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(formatter.Writer, "\n%d cycles: %d applied, %d noop, %d failed\n",
		result.Stats.Total, result.Stats.Applied, result.Stats.Noop, result.Stats.Failed)
	return nil
}

func traceCycle(ctx context.Context, formatter *OutputFormatter, j *journal.Journal, seq int64) error {
	e, err := j.Cycle(ctx, seq)
	if errors.Is(err, journal.ErrCycleNotFound) {
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitFailure, "cycle not found", err)
	}
	if err != nil {
		return reportCommandError(formatter, ErrCodeJournal, "failed to read journal", err)
	}

	if formatter.JSON() {
		return formatter.Success(e)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "Cycle %d: %s\n", e.Seq, e.Outcome)
	fmt.Fprintf(w, "  delta:      %s\n", e.Delta)
	fmt.Fprintf(w, "  iterations: %d\n", e.Iterations)
	fmt.Fprintf(w, "  committed:  %t\n", e.Committed)
	fmt.Fprintf(w, "  notified:   %d\n", e.Notified)
	if e.Error != "" {
		fmt.Fprintf(w, "  error:      %s\n", e.Error)
	}
	if len(e.Fired) > 0 {
		fmt.Fprintln(w, "  fired:")
		for i, f := range e.Fired {
			fmt.Fprintf(w, "    %d. %s (%s)\n", i+1, f.Key, f.Phase)
		}
	}
	return nil
}

func traceObserver(ctx context.Context, formatter *OutputFormatter, j *journal.Journal, key string) error {
	counts, err := j.FiringCounts(ctx, key)
	if err != nil {
		return reportCommandError(formatter, ErrCodeJournal, "failed to read journal", err)
	}

	result := ObserverTrace{Observer: key, Counts: make(map[string]int, len(counts))}
	for phase, n := range counts {
		result.Counts[string(phase)] = n
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}

	if len(result.Counts) == 0 {
		fmt.Fprintf(formatter.Writer, "Observer %s never fired.\n", key)
		return nil
	}

	phases := make([]string, 0, len(result.Counts))
	for p := range result.Counts {
		phases = append(phases, p)
	}
	slices.Sort(phases)

	fmt.Fprintf(formatter.Writer, "Observer %s:\n", key)
	for _, p := range phases {
		fmt.Fprintf(formatter.Writer, "  %-8s %d\n", p, result.Counts[p])
	}
	return nil
}
