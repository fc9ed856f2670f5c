package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/roach88/reactstore/internal/rules"
	"github.com/roach88/reactstore/internal/testutil"
	"github.com/roach88/reactstore/observer"
	"github.com/roach88/reactstore/store"
	"github.com/roach88/reactstore/value"
)

// AsyncTimeout bounds how long Run waits for async callbacks to settle after
// each update.
const AsyncTimeout = 5 * time.Second

// Harness is the scenario execution engine.
type Harness struct {
	store  *store.Store
	subs   []*store.Subscriber
	log    *testutil.CycleLog
	logger *slog.Logger
	notes  atomic.Int64
}

// Run executes a scenario against a fresh store and returns the result.
//
// Execution flow:
//  1. Compile the rules file, if any
//  2. Create a store with a deterministic clock and subscriber IDs
//  3. Create the subscribers and register one observer per rule on each
//  4. Apply each update, waiting for async callbacks after every step
//  5. Evaluate assertions against the trace and final state
//
// Infrastructure failures (unreadable rules, registration errors) are
// returned as errors. Update errors are checked against expect_error and
// reported in the result.
func Run(scenario *Scenario) (*Result, error) {
	return RunWithRecorder(scenario, nil)
}

// RunWithRecorder is Run with an extra recorder attached to the store, such
// as a journal or metrics recorder.
func RunWithRecorder(scenario *Scenario, rec store.Recorder) (*Result, error) {
	ctx := context.Background()

	var prog *rules.Program
	initial := value.Object{}
	if scenario.Rules != "" {
		p, err := rules.LoadFile(scenario.Rules)
		if err != nil {
			return nil, fmt.Errorf("failed to load rules: %w", err)
		}
		prog = p
		if p.Initial != nil {
			initial = p.Initial
		}
	}

	overlay, err := value.NormalizeObject(scenario.Initial)
	if err != nil {
		return nil, fmt.Errorf("invalid initial state: %w", err)
	}
	initial = value.Merge(initial, overlay)

	h := &Harness{
		log:    &testutil.CycleLog{},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	opts := []store.Option{
		store.WithClock(testutil.NewDeterministicClock()),
		store.WithIDGenerator(testutil.NewSequenceIDs("")),
		store.WithLogger(h.logger),
		store.WithRecorder(h.log),
		store.WithMaxIterations(scenario.MaxIterations),
	}
	if rec != nil {
		opts = append(opts, store.WithRecorder(rec))
	}
	h.store = store.New(initial, opts...)

	result := NewResult()

	n := scenario.Subscribers
	if n == 0 {
		n = 1
	}
	for i := 0; i < n; i++ {
		sub := h.store.CreateSubscriber()
		sub.OnStateChanged(func(value.Object) { h.notes.Add(1) })
		h.subs = append(h.subs, sub)
	}

	if prog != nil {
		if err := h.register(ctx, prog, result); err != nil {
			return nil, err
		}
	}

	if err := h.executeUpdates(ctx, scenario.Updates, result); err != nil {
		return nil, err
	}

	for _, rep := range h.log.Reports() {
		result.Trace = append(result.Trace, traceEvent(rep))
	}
	result.State = h.store.State()
	result.Notifications = int(h.notes.Load())

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// register binds every rule to every subscriber. Each subscriber gets fresh
// observer instances; the store keeps the first per key and binds the rest.
func (h *Harness) register(ctx context.Context, prog *rules.Program, result *Result) error {
	for _, sub := range h.subs {
		for _, o := range prog.Observers() {
			if err := sub.RegisterObserver(ctx, o); err != nil {
				return fmt.Errorf("failed to register observer %s: %w", observer.KeyOf(o), err)
			}
		}
	}
	h.settle(ctx, "register", result)
	return nil
}

func (h *Harness) executeUpdates(ctx context.Context, updates []UpdateStep, result *Result) error {
	for i, step := range updates {
		delta, err := value.NormalizeObject(step.Delta)
		if err != nil {
			return fmt.Errorf("update %d: %w", i, err)
		}

		err = h.subs[0].Update(ctx, delta)
		if !expectationMet(step.ExpectError, err) {
			switch {
			case err == nil:
				result.AddError(fmt.Sprintf("update %d: expected %s error, got none", i, step.ExpectError))
			case step.ExpectError == "":
				result.AddError(fmt.Sprintf("update %d: unexpected error: %v", i, err))
			default:
				result.AddError(fmt.Sprintf("update %d: expected %s error, got %s: %v",
					i, step.ExpectError, errorKind(err), err))
			}
		}

		h.logger.Info("update step completed",
			"step", i,
			"error", err,
		)
		h.settle(ctx, fmt.Sprintf("update %d", i), result)
	}
	return nil
}

// settle waits for async callbacks so the next step starts from a quiet
// store. Async failures are scenario errors.
func (h *Harness) settle(ctx context.Context, step string, result *Result) {
	ctx, cancel := context.WithTimeout(ctx, AsyncTimeout)
	defer cancel()

	if err := h.store.Wait(ctx); err != nil {
		result.AddError(fmt.Sprintf("%s: async: %v", step, err))
	}
}

func isIterationLimit(err error) bool {
	return store.IsIterationLimitError(err)
}

func isCallback(err error) bool {
	var cbErr *store.CallbackError
	return errors.As(err, &cbErr)
}
