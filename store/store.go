package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/reactstore/observer"
	"github.com/roach88/reactstore/value"
)

const tracerName = "github.com/roach88/reactstore/store"

// entry is one registered observer and the subscribers bound to it.
type entry struct {
	key         string
	observer    observer.Observer
	subscribers []*Subscriber
}

func (e *entry) has(sub *Subscriber) bool {
	return slices.Contains(e.subscribers, sub)
}

// Store is the state container.
//
// Thread-safety model:
//   - Update, RegisterObserver, State and the subscriber methods are safe from
//     any goroutine, including from inside observer callbacks.
//   - At most one update cycle runs at a time. An Update from a goroutine
//     other than the cycle owner blocks until its delta is applied; an
//     Update from inside a callback is applied after the current cycle.
//     See the package documentation.
//
// INVARIANTS:
//   - exactly one canonical state instance at any instant
//   - observer keys are unique; entries stay in registration order
type Store struct {
	mu          sync.Mutex
	state       value.Object
	entries     []*entry // registration order
	index       map[string]*entry
	subscribers []*Subscriber
	running     bool
	owner       int64 // goroutine running the current cycle
	pending     updateQueue

	cfg       Config
	logger    *slog.Logger
	recorders []Recorder
	tracer    trace.Tracer
	clock     Clock
	ids       IDGenerator

	async *tracker
}

// New creates a Store holding initial. A nil initial state is an empty object.
func New(initial value.Object, opts ...Option) *Store {
	if initial == nil {
		initial = value.Object{}
	}

	s := &Store{
		state:  initial,
		index:  make(map[string]*entry),
		cfg:    DefaultConfig(),
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
		clock:  NewClock(),
		ids:    UUIDv7Generator{},
		async:  newTracker(),
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the effective configuration.
func (s *Store) Config() Config {
	return s.cfg
}

// State returns the current canonical state. The returned tree must not be
// modified.
func (s *Store) State() value.Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Keys returns the registered observer keys in registration order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, len(s.entries))
	for i, e := range s.entries {
		keys[i] = e.key
	}
	return keys
}

// Observer returns the registered observer for key.
func (s *Store) Observer(key string) (observer.Observer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.index[key]
	if !ok {
		return nil, false
	}
	return e.observer, true
}

// snapshot returns the registered entries in order.
func (s *Store) snapshot() []*entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.entries)
}

// RegisterObserver adds o to the registry and runs its initialization.
//
// If an observer with the same key is already registered this is a no-op,
// apart from binding sub to the existing observer. Otherwise, in order:
//
//  1. the observer is initialized against the current state, then inserted;
//  2. its initial-state transform is merged into the state without dispatch;
//  3. its mutable initializers run (selectors ignored) and their combined
//     delta goes through Update;
//  4. its plain initializers run and its async initializers are launched,
//     against the resulting state, with the pre-initializer state as old.
//
// sub may be nil for observers owned by the application rather than a
// subscriber.
func (s *Store) RegisterObserver(ctx context.Context, o observer.Observer, sub *Subscriber) error {
	key := observer.KeyOf(o)

	s.mu.Lock()
	if s.bindExisting(key, sub) {
		return nil
	}
	current := s.state
	s.mu.Unlock()

	// Only initialized observers enter the registry.
	local := func(state value.Object) {
		s.signalLocal(key, state)
	}
	if err := o.Initialize(current, s.Update, local); err != nil {
		return fmt.Errorf("initialize observer %s: %w", key, err)
	}

	s.mu.Lock()
	// Another goroutine may have registered key while o was initializing.
	if s.bindExisting(key, sub) {
		return nil
	}
	e := &entry{key: key, observer: o}
	if sub != nil {
		e.subscribers = []*Subscriber{sub}
	}
	s.entries = append(s.entries, e)
	s.index[key] = e
	inserted := s.state
	s.mu.Unlock()

	// Cycles committed while o was initializing are not in its mirror yet.
	o.Sync(inserted)

	s.logger.Info("observer registered",
		"event", "observer_registered",
		"observer", key,
	)

	if fn := o.InitialState(); fn != nil {
		s.applyInitialState(key, o, fn)
	}

	before := s.State()
	delta, err := s.resolve(key, PhaseMutableInit, o.MutableInitializers(), before, before, nil)
	if err != nil {
		return err
	}
	if delta != nil {
		if err := s.Update(ctx, delta); err != nil {
			return fmt.Errorf("apply initializers of %s: %w", key, err)
		}
	}

	now := s.State()
	for _, fn := range o.Initializers() {
		if err := fn(now, before); err != nil {
			return &CallbackError{Key: key, Phase: PhaseInit, Err: err}
		}
	}
	for _, fn := range o.AsyncInitializers() {
		s.launch(ctx, key, PhaseAsyncInit, fn, now, before)
	}
	return nil
}

// bindExisting binds sub to the observer registered under key, if any. It
// must be called with s.mu held and releases it when it returns true.
func (s *Store) bindExisting(key string, sub *Subscriber) bool {
	e, ok := s.index[key]
	if !ok {
		return false
	}
	if sub != nil && !e.has(sub) {
		e.subscribers = append(e.subscribers, sub)
	}
	s.mu.Unlock()

	s.logger.Debug("observer already registered",
		"event", "observer_reused",
		"observer", key,
	)
	return true
}

// applyInitialState merges the transform's delta into the state without
// dispatching. While a cycle is running the merge is queued behind it, so the
// running cycle's commit cannot overwrite it.
func (s *Store) applyInitialState(key string, o observer.Observer, fn observer.InitialStateFunc) {
	s.mu.Lock()
	if s.running {
		delta := fn(s.state)
		s.pending.enqueue(pendingUpdate{ctx: context.Background(), delta: delta, direct: true})
		s.mu.Unlock()
		return
	}
	s.state = value.Merge(s.state, fn(s.state))
	state := s.state
	s.mu.Unlock()

	o.Sync(state)
	s.logger.Debug("initial state applied",
		"event", "initial_state",
		"observer", key,
	)
}

// UnregisterObserver removes the observer with o's key from the registry.
// The observer is not disposed. Unknown observers are ignored.
func (s *Store) UnregisterObserver(o observer.Observer) {
	key := observer.KeyOf(o)
	if s.remove(key) {
		s.logger.Info("observer unregistered",
			"event", "observer_unregistered",
			"observer", key,
		)
	}
}

func (s *Store) remove(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[key]; !ok {
		return false
	}
	delete(s.index, key)
	s.entries = slices.DeleteFunc(s.entries, func(e *entry) bool { return e.key == key })
	return true
}

// CreateSubscriber creates a subscriber notified after every applied update.
func (s *Store) CreateSubscriber() *Subscriber {
	sub := &Subscriber{id: s.ids.Generate(), store: s}

	s.mu.Lock()
	s.subscribers = append(s.subscribers, sub)
	s.mu.Unlock()

	s.logger.Debug("subscriber created",
		"event", "subscriber_created",
		"subscriber", sub.id,
	)
	return sub
}

// RemoveSubscriber removes sub from the store.
//
// Observers bound only to sub are unregistered and disposed; observers shared
// with other subscribers are detached from sub. Destructor errors are joined
// and returned after every observer has been disposed.
// Returns ErrSubscriberNotFound if sub is unknown.
func (s *Store) RemoveSubscriber(sub *Subscriber) error {
	s.mu.Lock()
	i := slices.Index(s.subscribers, sub)
	if i < 0 {
		s.mu.Unlock()
		return ErrSubscriberNotFound
	}
	s.subscribers = slices.Delete(s.subscribers, i, i+1)

	var orphans []*entry
	kept := s.entries[:0:0]
	for _, e := range s.entries {
		if !e.has(sub) {
			kept = append(kept, e)
			continue
		}
		if len(e.subscribers) == 1 {
			orphans = append(orphans, e)
			delete(s.index, e.key)
			continue
		}
		e.subscribers = slices.DeleteFunc(e.subscribers, func(x *Subscriber) bool { return x == sub })
		kept = append(kept, e)
	}
	s.entries = kept
	s.mu.Unlock()

	var errs []error
	for _, e := range orphans {
		if err := e.observer.Dispose(); err != nil {
			errs = append(errs, &CallbackError{Key: e.key, Phase: PhaseDestructor, Err: err})
		}
		s.logger.Info("observer disposed",
			"event", "observer_disposed",
			"observer", e.key,
			"subscriber", sub.id,
		)
	}

	s.logger.Debug("subscriber removed",
		"event", "subscriber_removed",
		"subscriber", sub.id,
		"disposed", len(orphans),
	)
	return errors.Join(errs...)
}

// Subscribers returns the number of live subscribers.
func (s *Store) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

// signalLocal delivers an observer's local state to its bound subscribers.
func (s *Store) signalLocal(key string, state value.Object) {
	s.mu.Lock()
	e, ok := s.index[key]
	var subs []*Subscriber
	if ok {
		subs = slices.Clone(e.subscribers)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.localChanged.Trigger(LocalChange{Key: key, State: state})
	}
}

// Wait blocks until every in-flight async callback has returned, then
// returns their joined errors. Errors are reported once.
func (s *Store) Wait(ctx context.Context) error {
	return s.async.wait(ctx)
}

// launch runs fn on a tracked goroutine. The callback outlives the update
// that launched it, so it gets ctx's values without its cancellation.
func (s *Store) launch(ctx context.Context, key string, phase Phase, fn observer.AsyncFunc, state, old value.Object) {
	ctx = context.WithoutCancel(ctx)

	s.async.add()
	go func() {
		var cbErr error
		defer func() { s.async.done(cbErr) }()

		if err := fn(ctx, state, old); err != nil {
			cbErr = &CallbackError{Key: key, Phase: phase, Err: err}
			s.logger.Error("async callback failed",
				"event", "async_failed",
				"observer", key,
				"phase", string(phase),
				"error", err,
			)
		}
	}()
}
