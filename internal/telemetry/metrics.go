// Package telemetry exports store cycle reports as Prometheus metrics.
package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/reactstore/store"
)

// Config configures the metrics recorder.
type Config struct {
	// Namespace is the metrics namespace (default: "reactstore").
	Namespace string

	// ConstLabels are added to every metric.
	ConstLabels prometheus.Labels

	// IterationBuckets are the histogram buckets for mutable passes per cycle.
	IterationBuckets []float64

	// Registry receives the metrics. Default: prometheus.DefaultRegisterer.
	Registry prometheus.Registerer
}

// Option configures the metrics recorder.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace:        "reactstore",
		IterationBuckets: []float64{0, 1, 2, 4, 8, 16, 64, 256, 1000},
		Registry:         prometheus.DefaultRegisterer,
	}
}

// Recorder is a store.Recorder that maintains cycle metrics:
//   - reactstore_cycles_total{outcome}: update cycles by outcome
//   - reactstore_mutable_iterations: productive mutable passes per cycle
//   - reactstore_callbacks_total{phase}: callback invocations by phase
//   - reactstore_notifications_total: subscriber notifications sent
//   - reactstore_iteration_limit_total: cycles aborted by the iteration limit
//   - reactstore_last_seq: seq of the most recent cycle
type Recorder struct {
	cycles         *prometheus.CounterVec
	iterations     prometheus.Histogram
	callbacks      *prometheus.CounterVec
	notifications  prometheus.Counter
	iterationLimit prometheus.Counter
	lastSeq        prometheus.Gauge
}

var _ store.Recorder = (*Recorder)(nil)

// New registers the metrics and returns the recorder. Registering twice on
// the same registry panics, as promauto does.
func New(opts ...Option) *Recorder {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	factory := promauto.With(cfg.Registry)

	return &Recorder{
		cycles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "cycles_total",
			Help:        "Total number of store update cycles by outcome",
			ConstLabels: cfg.ConstLabels,
		}, []string{"outcome"}),

		iterations: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   cfg.Namespace,
			Name:        "mutable_iterations",
			Help:        "Mutable passes that produced a delta, per cycle",
			ConstLabels: cfg.ConstLabels,
			Buckets:     cfg.IterationBuckets,
		}),

		callbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "callbacks_total",
			Help:        "Total observer callback invocations by phase",
			ConstLabels: cfg.ConstLabels,
		}, []string{"phase"}),

		notifications: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "notifications_total",
			Help:        "Total subscriber state-changed notifications",
			ConstLabels: cfg.ConstLabels,
		}),

		iterationLimit: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "iteration_limit_total",
			Help:        "Cycles aborted because mutable observers kept re-triggering",
			ConstLabels: cfg.ConstLabels,
		}),

		lastSeq: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Name:        "last_seq",
			Help:        "Sequence number of the most recent update cycle",
			ConstLabels: cfg.ConstLabels,
		}),
	}
}

// RecordCycle updates the metrics from r. It never fails.
func (m *Recorder) RecordCycle(_ context.Context, r store.CycleReport) error {
	m.cycles.WithLabelValues(string(r.Outcome)).Inc()
	m.lastSeq.Set(float64(r.Seq))

	if r.Outcome == store.OutcomeNoop {
		return nil
	}

	m.iterations.Observe(float64(r.Iterations))
	for _, f := range r.Fired {
		m.callbacks.WithLabelValues(string(f.Phase)).Inc()
	}
	m.notifications.Add(float64(r.Notified))

	if store.IsIterationLimitError(r.Err) {
		m.iterationLimit.Inc()
	}
	return nil
}
