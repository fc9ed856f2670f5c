package store

import (
	"context"

	"github.com/roach88/reactstore/event"
	"github.com/roach88/reactstore/observer"
	"github.com/roach88/reactstore/value"
)

// LocalChange carries an observer's new local state to its subscribers.
type LocalChange struct {
	Key   string
	State value.Object
}

// Subscriber is a consumer of store notifications. Observers registered
// through a subscriber live until the last subscriber bound to them is
// removed from the store.
type Subscriber struct {
	id    string
	store *Store

	stateChanged event.Event[value.Object]
	localChanged event.Event[LocalChange]
}

// ID returns the subscriber's identifier.
func (s *Subscriber) ID() string {
	return s.id
}

// State returns the store's current state.
func (s *Subscriber) State() value.Object {
	return s.store.State()
}

// RegisterObserver registers o with the store and binds it to s. If an
// observer with the same key already exists, s is bound to that one instead.
func (s *Subscriber) RegisterObserver(ctx context.Context, o observer.Observer) error {
	return s.store.RegisterObserver(ctx, o, s)
}

// Update requests a state update from the store.
func (s *Subscriber) Update(ctx context.Context, delta value.Object) error {
	return s.store.Update(ctx, delta)
}

// StateChanged is triggered with the final state after every applied update.
func (s *Subscriber) StateChanged() *event.Event[value.Object] {
	return &s.stateChanged
}

// LocalStateChanged is triggered when an observer bound to s changes its
// local state.
func (s *Subscriber) LocalStateChanged() *event.Event[LocalChange] {
	return &s.localChanged
}

// OnStateChanged registers fn for state-changed notifications.
func (s *Subscriber) OnStateChanged(fn func(state value.Object)) event.Handle {
	return s.stateChanged.On(fn)
}

// OffStateChanged removes a handler registered with OnStateChanged.
func (s *Subscriber) OffStateChanged(h event.Handle) {
	s.stateChanged.Off(h)
}
