package observer

import (
	"context"
	"sync"

	"github.com/roach88/reactstore/value"
)

// registration pairs a callback with the selectors it depends on.
type registration[F any] struct {
	fn        F
	selectors []value.Selector
}

// triggered reports whether any selector changed between old and state.
// Registrations without selectors always trigger.
func (r registration[F]) triggered(state, old value.Object) bool {
	if len(r.selectors) == 0 {
		return true
	}
	for _, sel := range r.selectors {
		if !value.Same(sel(old), sel(state)) {
			return true
		}
	}
	return false
}

func collect[F any](regs []registration[F], state, old value.Object) []F {
	var out []F
	for _, r := range regs {
		if r.triggered(state, old) {
			out = append(out, r.fn)
		}
	}
	return out
}

// Base carries the registrations and lifecycle of an observer.
// Embed it in a concrete observer type and register callbacks in the
// constructor. The zero value is ready to use.
type Base struct {
	mu sync.RWMutex

	key string

	mutable []registration[MutableFunc]
	async   []registration[AsyncFunc]
	plain   []registration[PlainFunc]

	mutableInits []MutableFunc
	asyncInits   []AsyncFunc
	inits        []PlainFunc

	initialState InitialStateFunc
	destructors  []DestructorFunc

	initialized bool
	disposed    bool
	update      UpdateFunc
	local       LocalFunc

	state      value.Object
	localState value.Object
}

// SetKey overrides the registry key. Observers sharing a key collapse to a
// single registered instance.
func (b *Base) SetKey(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.key = key
}

// Key returns the explicit key, or "" when the key derives from the type.
func (b *Base) Key() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.key
}

// RegisterMutable adds a mutable callback fired when any selector changes.
func (b *Base) RegisterMutable(fn MutableFunc, selectors ...value.Selector) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mutable = append(b.mutable, registration[MutableFunc]{fn: fn, selectors: selectors})
}

// RegisterAsync adds an async callback fired when any selector changes.
func (b *Base) RegisterAsync(fn AsyncFunc, selectors ...value.Selector) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.async = append(b.async, registration[AsyncFunc]{fn: fn, selectors: selectors})
}

// RegisterPlain adds a synchronous callback fired when any selector changes.
func (b *Base) RegisterPlain(fn PlainFunc, selectors ...value.Selector) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.plain = append(b.plain, registration[PlainFunc]{fn: fn, selectors: selectors})
}

// RegisterMutableInitializer adds a callback run once at registration whose
// delta goes through a full update cycle.
func (b *Base) RegisterMutableInitializer(fn MutableFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mutableInits = append(b.mutableInits, fn)
}

// RegisterAsyncInitializer adds a callback run once at registration, after
// mutable initializers have settled.
func (b *Base) RegisterAsyncInitializer(fn AsyncFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.asyncInits = append(b.asyncInits, fn)
}

// RegisterInitializer adds a synchronous callback run once at registration,
// after mutable initializers have settled.
func (b *Base) RegisterInitializer(fn PlainFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inits = append(b.inits, fn)
}

// RegisterDestructor adds a callback run once on Dispose.
func (b *Base) RegisterDestructor(fn DestructorFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.destructors = append(b.destructors, fn)
}

// SetInitialState sets the transform merged into shared state at registration
// without dispatching to any observer.
func (b *Base) SetInitialState(fn InitialStateFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.initialState = fn
}

// State returns the observer's view of the shared state as of the last
// completed dispatch.
func (b *Base) State() value.Object {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// LocalState returns the private local state.
func (b *Base) LocalState() value.Object {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.localState
}

// Update requests a shared state update from the owning store.
func (b *Base) Update(ctx context.Context, delta value.Object) error {
	b.mu.RLock()
	update := b.update
	b.mu.RUnlock()

	if update == nil {
		return ErrNotInitialized
	}
	return update(ctx, delta)
}

// UpdateLocal merges delta into the local state and signals the consumers
// attached to this observer. Shared state is not touched.
func (b *Base) UpdateLocal(delta value.Object) {
	b.mu.Lock()
	b.localState = value.Merge(b.localState, delta)
	next, signal := b.localState, b.local
	b.mu.Unlock()

	if signal != nil {
		signal(next)
	}
}

// Initialize binds the observer to a store and seeds the state mirror.
func (b *Base) Initialize(state value.Object, update UpdateFunc, local LocalFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.initialized {
		return ErrAlreadyInitialized
	}
	b.initialized = true
	b.state = state
	b.update = update
	b.local = local
	return nil
}

// InitialState returns the initial-state transform, or nil.
func (b *Base) InitialState() InitialStateFunc {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.initialState
}

// MutableInitializers returns the mutable initializers in registration order.
func (b *Base) MutableInitializers() []MutableFunc {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]MutableFunc(nil), b.mutableInits...)
}

// AsyncInitializers returns the async initializers in registration order.
func (b *Base) AsyncInitializers() []AsyncFunc {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]AsyncFunc(nil), b.asyncInits...)
}

// Initializers returns the plain initializers in registration order.
func (b *Base) Initializers() []PlainFunc {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]PlainFunc(nil), b.inits...)
}

// Mutable returns the triggered mutable callbacks. Empty once disposed.
func (b *Base) Mutable(state, old value.Object) []MutableFunc {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.disposed {
		return nil
	}
	return collect(b.mutable, state, old)
}

// Async returns the triggered async callbacks. Empty once disposed.
func (b *Base) Async(state, old value.Object) []AsyncFunc {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.disposed {
		return nil
	}
	return collect(b.async, state, old)
}

// Plain returns the triggered plain callbacks. Empty once disposed.
func (b *Base) Plain(state, old value.Object) []PlainFunc {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.disposed {
		return nil
	}
	return collect(b.plain, state, old)
}

// Sync refreshes the state mirror. It behaves like a registration without
// selectors: the store calls it on every dispatch, ahead of the plain
// callbacks. No-op once disposed.
func (b *Base) Sync(state value.Object) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.disposed {
		b.state = state
	}
}

// Dispose marks the observer inert, then runs destructors in registration
// order. The first destructor error stops the sequence and is returned.
// Calling Dispose again is a no-op.
func (b *Base) Dispose() error {
	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		return nil
	}
	b.disposed = true
	destructors := append([]DestructorFunc(nil), b.destructors...)
	b.mu.Unlock()

	for _, d := range destructors {
		if err := d(); err != nil {
			return err
		}
	}
	return nil
}

// Disposed reports whether Dispose has been called.
func (b *Base) Disposed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.disposed
}
