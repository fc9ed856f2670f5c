package store

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// Option configures a Store.
type Option func(*Store)

// WithMaxIterations sets the mutable-phase iteration limit.
//
// Default: 1000 (DefaultMaxIterations). Non-positive values are ignored.
func WithMaxIterations(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.cfg.MaxIterations = n
		}
	}
}

// WithConfig merges cfg over the current configuration.
// Zero fields leave the current values in place.
func WithConfig(cfg Config) Option {
	return func(s *Store) {
		s.cfg.Merge(&cfg)
	}
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRecorder adds a cycle recorder. May be given more than once.
func WithRecorder(r Recorder) Option {
	return func(s *Store) {
		if r != nil {
			s.recorders = append(s.recorders, r)
		}
	}
}

// WithTracer sets the tracer used for the per-cycle span.
// Default: the global otel tracer provider, which is a no-op unless the
// application installs one.
func WithTracer(t trace.Tracer) Option {
	return func(s *Store) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithClock sets the clock that stamps cycle reports.
// Tests use testutil.DeterministicClock.
func WithClock(c Clock) Option {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithIDGenerator sets the subscriber ID generator. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Store) {
		if g != nil {
			s.ids = g
		}
	}
}
