package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/petermattis/goid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/reactstore/observer"
	"github.com/roach88/reactstore/value"
)

// Update merges delta into the state and dispatches the change.
//
// Only one cycle runs at a time. An Update requested while a cycle is running
// is queued and applied, in request order, by the goroutine that owns the
// running cycle:
//   - from the owning goroutine (an observer callback), Update returns nil at
//     once and the queued cycle's error is returned by the owner's Update;
//   - from any other goroutine, Update blocks until the queued delta has been
//     applied and returns that cycle's error, so a State read afterwards sees
//     the write.
//
// A cycle that fails after committing (plain callback or recorder failure)
// does not stop the queue. A cycle that fails before committing, or panics,
// drops the updates queued behind it; each requester gets ErrUpdateDropped.
func (s *Store) Update(ctx context.Context, delta value.Object) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("update: %w", err)
	}

	gid := goid.Get()
	s.mu.Lock()
	if s.running {
		u := pendingUpdate{ctx: ctx, delta: delta}
		if gid != s.owner {
			u.done = make(chan error, 1)
		}
		s.pending.enqueue(u)
		depth := s.pending.size()
		s.mu.Unlock()
		s.logger.Debug("update queued",
			"event", "update_queued",
			"pending", depth,
			"waiting", u.done != nil,
		)
		if u.done == nil {
			return nil
		}
		return <-u.done
	}
	s.running = true
	s.owner = gid
	s.mu.Unlock()

	// Release ownership on panic. Every other exit releases through next()
	// or abandon().
	released := false
	defer func() {
		if !released {
			s.abandon(nil)
		}
	}()

	var errs []error
	report, err := s.cycle(ctx, delta)
	if err != nil {
		errs = append(errs, err)
	}
	abort := aborted(report, err)

	for !abort {
		u, ok := s.next()
		if !ok {
			released = true
			return errors.Join(errs...)
		}
		abort, err = s.runQueued(u)
		if err != nil && u.done == nil {
			errs = append(errs, err)
		}
	}

	released = true
	if n := s.abandon(err); n > 0 {
		errs = append(errs, fmt.Errorf("%w: %d update(s) requested by callbacks", ErrUpdateDropped, n))
	}
	return errors.Join(errs...)
}

// aborted reports whether a cycle failed without committing, which stops the
// queue.
func aborted(r CycleReport, err error) bool {
	return err != nil && r.Outcome == OutcomeFailed && !r.Committed
}

// runQueued applies one queued update and hands its result to a waiting
// requester. A queued update whose context was canceled while it waited is
// not applied.
func (s *Store) runQueued(u pendingUpdate) (abort bool, err error) {
	if u.direct {
		s.mu.Lock()
		s.state = value.Merge(s.state, u.delta)
		s.mu.Unlock()
		return false, nil
	}

	if cerr := u.ctx.Err(); cerr != nil {
		err = fmt.Errorf("update: %w", cerr)
		s.logger.Debug("queued update canceled",
			"event", "update_canceled",
			"error", cerr,
		)
		u.finish(err)
		return false, err
	}

	finished := false
	defer func() {
		if !finished {
			u.finish(fmt.Errorf("%w: cycle panicked", ErrUpdateDropped))
		}
	}()
	report, err := s.cycle(u.ctx, u.delta)
	finished = true
	u.finish(err)
	return aborted(report, err), err
}

// next dequeues a pending update, or gives up ownership when none remain.
func (s *Store) next() (pendingUpdate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.pending.tryDequeue()
	if !ok {
		s.running = false
		s.owner = 0
	}
	return u, ok
}

// abandon drops the pending queue and gives up ownership. Waiting requesters
// get ErrUpdateDropped wrapping cause. Returns how many dropped updates had no
// waiting requester.
func (s *Store) abandon(cause error) int {
	s.mu.Lock()
	dropped := s.pending.reset()
	s.running = false
	s.owner = 0
	s.mu.Unlock()

	if len(dropped) == 0 {
		return 0
	}

	err := ErrUpdateDropped
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrUpdateDropped, cause)
	}
	unowned := 0
	for _, u := range dropped {
		if u.done == nil {
			unowned++
		}
		u.finish(err)
	}

	s.logger.Warn("queued updates dropped",
		"event", "updates_dropped",
		"count", len(dropped),
		"error", cause,
	)
	return unowned
}

// cycle runs one update cycle and reports it.
func (s *Store) cycle(ctx context.Context, delta value.Object) (CycleReport, error) {
	seq := s.clock.Next()
	ctx, span := s.tracer.Start(ctx, "store.update",
		trace.WithAttributes(attribute.Int64("store.seq", seq)))
	defer span.End()

	report := CycleReport{Seq: seq, Delta: delta}
	err := s.dispatch(ctx, delta, &report)
	if err != nil {
		report.Outcome = OutcomeFailed
		report.Err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("update aborted",
			"event", "update_failed",
			"seq", seq,
			"iterations", report.Iterations,
			"committed", report.Committed,
			"error", err,
		)
	}

	span.SetAttributes(
		attribute.String("store.outcome", string(report.Outcome)),
		attribute.Int("store.iterations", report.Iterations),
		attribute.Int("store.callbacks", len(report.Fired)),
		attribute.Int("store.notified", report.Notified),
	)

	if rerr := s.record(ctx, report); rerr != nil {
		return report, errors.Join(err, fmt.Errorf("record cycle %d: %w", seq, rerr))
	}
	return report, err
}

func (s *Store) record(ctx context.Context, r CycleReport) error {
	var errs []error
	for _, rec := range s.recorders {
		if err := rec.RecordCycle(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// dispatch is the body of a cycle: no-op check, merge, mutable fixed point,
// commit, async launch, plain callbacks, notification.
func (s *Store) dispatch(ctx context.Context, delta value.Object, report *CycleReport) error {
	old := s.State()

	// An empty delta is contained in any state.
	if len(delta) == 0 || value.DeepEqual(delta, old) {
		report.Outcome = OutcomeNoop
		s.logger.Debug("update skipped",
			"event", "update_noop",
			"seq", report.Seq,
		)
		return nil
	}

	final, err := s.runMutable(value.Merge(old, delta), old, report)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.state = final
	entries := append([]*entry(nil), s.entries...)
	subs := append([]*Subscriber(nil), s.subscribers...)
	s.mu.Unlock()
	report.Committed = true

	// Async and plain callbacks see the whole transition, old -> final.
	for _, e := range entries {
		for _, fn := range e.observer.Async(final, old) {
			report.fire(e.key, PhaseAsync)
			s.launch(ctx, e.key, PhaseAsync, fn, final, old)
		}
	}

	for _, e := range entries {
		e.observer.Sync(final)
		for _, fn := range e.observer.Plain(final, old) {
			report.fire(e.key, PhasePlain)
			if err := fn(final, old); err != nil {
				return &CallbackError{Key: e.key, Phase: PhasePlain, Err: err}
			}
		}
	}

	for _, sub := range subs {
		sub.stateChanged.Trigger(final)
		report.Notified++
	}

	report.Outcome = OutcomeApplied
	s.logger.Debug("update applied",
		"event", "update_applied",
		"seq", report.Seq,
		"iterations", report.Iterations,
		"fired", len(report.Fired),
		"notified", report.Notified,
	)
	return nil
}

// runMutable re-runs triggered mutable callbacks until a pass produces no
// delta. Each pass compares against the state of the previous pass; the first
// compares against the pre-update state.
func (s *Store) runMutable(temp, old value.Object, report *CycleReport) (value.Object, error) {
	prev, cur := old, temp
	for {
		delta, err := s.mutablePass(cur, prev, report)
		if err != nil {
			return nil, err
		}
		if delta == nil {
			return cur, nil
		}

		report.Iterations++
		if report.Iterations > s.cfg.MaxIterations {
			return nil, &IterationLimitError{
				Limit:      s.cfg.MaxIterations,
				Iterations: report.Iterations,
			}
		}
		prev, cur = cur, value.Merge(cur, delta)
	}
}

// mutablePass runs every triggered mutable callback once, in registration
// order, and returns their combined delta or nil if none produced one.
func (s *Store) mutablePass(state, old value.Object, report *CycleReport) (value.Object, error) {
	var combined value.Object
	for _, e := range s.snapshot() {
		fns := e.observer.Mutable(state, old)
		d, err := s.resolve(e.key, PhaseMutable, fns, state, old, report)
		if err != nil {
			return nil, err
		}
		if d != nil {
			combined = value.Merge(orEmpty(combined), d)
		}
	}
	return combined, nil
}

// resolve invokes fns and merges their non-nil deltas, starting from an empty
// object. Returns nil when no callback produced a delta. report may be nil.
func (s *Store) resolve(key string, phase Phase, fns []observer.MutableFunc, state, old value.Object, report *CycleReport) (value.Object, error) {
	var combined value.Object
	for _, fn := range fns {
		if report != nil {
			report.fire(key, phase)
		}
		d, err := fn(state, old)
		if err != nil {
			return nil, &CallbackError{Key: key, Phase: phase, Err: err}
		}
		if d != nil {
			combined = value.Merge(orEmpty(combined), d)
		}
	}
	return combined, nil
}

func orEmpty(o value.Object) value.Object {
	if o == nil {
		return value.Object{}
	}
	return o
}
