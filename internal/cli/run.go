package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/roach88/reactstore/internal/journal"
	"github.com/roach88/reactstore/internal/telemetry"
	"github.com/roach88/reactstore/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Journal       string // SQLite journal path; empty disables journaling
	MetricsOut    string // Prometheus text exposition output path
	MaxIterations int
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <rules> <updates-file>",
		Short: "Run a list of updates through the rules",
		Long: `Create a store from a rules file and apply every delta listed in the
updates file (a YAML or JSON list of objects).

With --journal, every update cycle is appended to a SQLite journal; seq
numbers continue from the last journaled cycle, so repeated runs against
the same journal form one timeline. With --metrics-out, cycle metrics are
written in the Prometheus text format when the run ends.

Examples:
  reactstore run ./rules/cart.cue ./updates.yaml
  reactstore run ./rules ./updates.yaml --journal ./cycles.db
  reactstore run ./rules/cart.cue ./updates.yaml --metrics-out ./metrics.prom`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdates(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to SQLite cycle journal")
	cmd.Flags().StringVar(&opts.MetricsOut, "metrics-out", "", "write cycle metrics to this file")
	cmd.Flags().IntVar(&opts.MaxIterations, "max-iterations", 0, "override the mutable iteration limit")

	return cmd
}

func runUpdates(opts *RunOptions, rulesPath, updatesPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	logger := formatter.Logger()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	deltas, err := loadUpdates(updatesPath)
	if err != nil {
		return reportCommandError(formatter, ErrCodeInput, "failed to read updates", err)
	}

	cfg, err := storeConfig(opts.RootOptions, opts.MaxIterations)
	if err != nil {
		return reportCommandError(formatter, ErrCodeConfig, "invalid store config", err)
	}

	prog, err := LoadRules(rulesPath)
	if err != nil {
		return reportLoadError(formatter, err)
	}
	logger.Info("rules loaded", "path", rulesPath, "rules", len(prog.Rules))

	sc := sessionConfig{Config: cfg, Logger: logger}

	if opts.Journal != "" {
		j, err := journal.Open(opts.Journal)
		if err != nil {
			return reportCommandError(formatter, ErrCodeJournal, "failed to open journal", err)
		}
		defer func() {
			if cerr := j.Close(); cerr != nil {
				logger.Error("error closing journal", "error", cerr)
			}
		}()

		last, err := j.LastSeq(ctx)
		if err != nil {
			return reportCommandError(formatter, ErrCodeJournal, "failed to read journal", err)
		}
		sc.Clock = store.NewClockFrom(last)
		sc.Recorders = append(sc.Recorders, j)
		logger.Info("journal ready", "path", opts.Journal, "last_seq", last)
	}

	var registry *prometheus.Registry
	if opts.MetricsOut != "" {
		registry = prometheus.NewRegistry()
		sc.Recorders = append(sc.Recorders, telemetry.New(telemetry.WithRegistry(registry)))
	}

	sess, err := newSession(ctx, prog, sc)
	if err != nil {
		return reportCommandError(formatter, ErrCodeUpdate, "failed to register rules", err)
	}

	runErr := applyAll(ctx, formatter, sess, deltas)

	if registry != nil {
		if err := writeMetrics(registry, opts.MetricsOut); err != nil {
			return reportCommandError(formatter, ErrCodeGeneric, "failed to write metrics", err)
		}
		formatter.VerboseLog("metrics written to %s", opts.MetricsOut)
	}
	return runErr
}

// writeMetrics writes every gathered family in the Prometheus text format.
func writeMetrics(registry *prometheus.Registry, path string) error {
	families, err := registry.Gather()
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(f, mf); err != nil {
			f.Close()
			return fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	return f.Close()
}
