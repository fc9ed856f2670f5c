package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/reactstore/internal/rules"
	"github.com/roach88/reactstore/store"
	"github.com/roach88/reactstore/value"
)

// asyncTimeout bounds the wait for async rules after each update.
const asyncTimeout = 30 * time.Second

// CycleSummary is one update cycle as printed by apply and run.
type CycleSummary struct {
	Seq        int64  `json:"seq"`
	Outcome    string `json:"outcome"`
	Iterations int    `json:"iterations"`
	Callbacks  int    `json:"callbacks"`
	Notified   int    `json:"notified"`
	Error      string `json:"error,omitempty"`
}

func (c CycleSummary) String() string {
	s := fmt.Sprintf("seq %d %s: iterations=%d callbacks=%d notified=%d",
		c.Seq, c.Outcome, c.Iterations, c.Callbacks, c.Notified)
	if c.Error != "" {
		s += " error=" + c.Error
	}
	return s
}

// session is a store driven by a rules program on behalf of one subscriber.
type session struct {
	store *store.Store
	sub   *store.Subscriber

	mu      sync.Mutex
	reports []store.CycleReport
}

type sessionConfig struct {
	Config    store.Config
	Logger    *slog.Logger
	Clock     store.Clock
	Recorders []store.Recorder
}

// newSession creates the store, seeds it with the program's initial state
// and registers one observer per rule.
func newSession(ctx context.Context, prog *rules.Program, sc sessionConfig) (*session, error) {
	s := &session{}

	opts := []store.Option{
		store.WithConfig(sc.Config),
		store.WithRecorder(store.RecorderFunc(s.record)),
	}
	if sc.Logger != nil {
		opts = append(opts, store.WithLogger(sc.Logger))
	}
	if sc.Clock != nil {
		opts = append(opts, store.WithClock(sc.Clock))
	}
	if len(sc.Recorders) > 0 {
		opts = append(opts, store.WithRecorder(store.MultiRecorder(sc.Recorders...)))
	}

	s.store = store.New(prog.Initial, opts...)
	s.sub = s.store.CreateSubscriber()

	for _, o := range prog.Observers() {
		if err := s.sub.RegisterObserver(ctx, o); err != nil {
			return nil, err
		}
	}
	if err := s.settle(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *session) record(_ context.Context, r store.CycleReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, r)
	return nil
}

// apply sends delta through the subscriber and waits for async rules.
func (s *session) apply(ctx context.Context, delta value.Object) error {
	err := s.sub.Update(ctx, delta)
	if werr := s.settle(ctx); werr != nil && err == nil {
		err = werr
	}
	return err
}

func (s *session) settle(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, asyncTimeout)
	defer cancel()
	return s.store.Wait(ctx)
}

// cycles returns the summaries of every cycle so far.
func (s *session) cycles() []CycleSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]CycleSummary, len(s.reports))
	for i, r := range s.reports {
		out[i] = CycleSummary{
			Seq:        r.Seq,
			Outcome:    string(r.Outcome),
			Iterations: r.Iterations,
			Callbacks:  len(r.Fired),
			Notified:   r.Notified,
		}
		if r.Err != nil {
			out[i].Error = r.Err.Error()
		}
	}
	return out
}

// canonicalState returns the current state as canonical JSON.
func (s *session) canonicalState() (json.RawMessage, error) {
	b, err := value.MarshalCanonical(s.store.State())
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}

// parseDelta decodes a YAML or JSON object into a delta.
func parseDelta(src []byte) (value.Object, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(src, &raw); err != nil {
		return nil, err
	}
	return value.NormalizeObject(raw)
}

// parseAssignment turns "cart.count=3" into {"cart": {"count": 3}}. The value
// is parsed as a YAML scalar, so "true", "3" and "x" keep their types.
func parseAssignment(expr string) (value.Object, error) {
	path, raw, ok := strings.Cut(expr, "=")
	if !ok || path == "" {
		return nil, fmt.Errorf("invalid assignment %q: want path=value", expr)
	}

	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("invalid value in %q: %w", expr, err)
	}
	n, err := value.Normalize(v)
	if err != nil {
		return nil, fmt.Errorf("invalid value in %q: %w", expr, err)
	}
	return value.At(path, n), nil
}

// loadUpdates reads a YAML (or JSON) list of deltas.
func loadUpdates(path string) ([]value.Object, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw []map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse updates %s: %w", path, err)
	}

	out := make([]value.Object, len(raw))
	for i, r := range raw {
		d, err := value.NormalizeObject(r)
		if err != nil {
			return nil, fmt.Errorf("updates[%d]: %w", i, err)
		}
		out[i] = d
	}
	return out, nil
}
