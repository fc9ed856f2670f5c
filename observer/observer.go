package observer

import (
	"context"
	"errors"
	"reflect"

	"github.com/roach88/reactstore/value"
)

// MutableFunc reacts to a state change and returns a delta to merge.
// A nil delta means no change.
type MutableFunc func(state, old value.Object) (value.Object, error)

// AsyncFunc reacts to a state change off the dispatch goroutine.
// It produces no delta; it may call Update once its work completes.
type AsyncFunc func(ctx context.Context, state, old value.Object) error

// PlainFunc reacts synchronously to a state change without producing a delta.
type PlainFunc func(state, old value.Object) error

// InitialStateFunc computes a delta merged into the shared state once, when
// the observer is registered, before any initializer runs.
type InitialStateFunc func(current value.Object) value.Object

// DestructorFunc runs once when the observer is disposed.
type DestructorFunc func() error

// UpdateFunc requests a shared state update from the owning store.
type UpdateFunc func(ctx context.Context, delta value.Object) error

// LocalFunc is signaled with the new local state after UpdateLocal.
type LocalFunc func(local value.Object)

var (
	// ErrAlreadyInitialized is returned when Initialize is called twice.
	ErrAlreadyInitialized = errors.New("observer: already initialized")

	// ErrNotInitialized is returned by Update before the observer has been
	// registered with a store.
	ErrNotInitialized = errors.New("observer: not registered with a store")
)

// Observer is the contract between a store and a reactive unit.
// Base implements every method; concrete observers embed it.
type Observer interface {
	// Key returns the registry key. Empty means "derive from the type"; see KeyOf.
	Key() string

	// Initialize binds the observer to a store. Called exactly once.
	Initialize(state value.Object, update UpdateFunc, local LocalFunc) error

	InitialState() InitialStateFunc
	MutableInitializers() []MutableFunc
	AsyncInitializers() []AsyncFunc
	Initializers() []PlainFunc

	// Mutable returns the mutable callbacks triggered by old -> state.
	Mutable(state, old value.Object) []MutableFunc
	Async(state, old value.Object) []AsyncFunc
	Plain(state, old value.Object) []PlainFunc

	// Sync refreshes the observer's mirror of the shared state.
	Sync(state value.Object)

	// Dispose marks the observer inert and runs destructors. Idempotent.
	Dispose() error
	Disposed() bool
}

// KeyOf returns the registry key of o: its explicit key if set, otherwise the
// package-qualified name of its concrete type.
func KeyOf(o Observer) string {
	if k := o.Key(); k != "" {
		return k
	}

	t := reflect.TypeOf(o)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return t.String()
	}
	if t.PkgPath() == "" {
		return t.Name()
	}
	return t.PkgPath() + "." + t.Name()
}
