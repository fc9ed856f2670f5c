package store

import (
	"errors"
	"fmt"
)

// ErrSubscriberNotFound is returned by RemoveSubscriber for a subscriber the
// store does not know, including one that was already removed.
var ErrSubscriberNotFound = errors.New("store: unknown subscriber")

// ErrIterationLimit matches every *IterationLimitError via errors.Is.
var ErrIterationLimit = errors.New("store: mutable iteration limit exceeded")

// ErrUpdateDropped is returned for a queued update that never ran because a
// cycle ahead of it failed before committing, or panicked.
var ErrUpdateDropped = errors.New("store: queued update dropped")

// Phase names the dispatch stage a callback ran in.
type Phase string

const (
	PhaseMutable     Phase = "mutable"
	PhaseAsync       Phase = "async"
	PhasePlain       Phase = "plain"
	PhaseInitial     Phase = "initial_state"
	PhaseMutableInit Phase = "mutable_init"
	PhaseAsyncInit   Phase = "async_init"
	PhaseInit        Phase = "init"
	PhaseDestructor  Phase = "destructor"
)

// IterationLimitError is returned when the mutable phase keeps producing
// deltas past the configured limit. It signals mutable observers that keep
// re-triggering each other; the update is aborted and nothing is committed.
type IterationLimitError struct {
	Limit      int // configured MaxIterations
	Iterations int // passes run before aborting
}

// Error implements the error interface.
func (e *IterationLimitError) Error() string {
	return fmt.Sprintf("mutable phase exceeded %d iterations (ran %d): possible infinite recursion between mutable observers",
		e.Limit, e.Iterations)
}

// Is makes errors.Is(err, ErrIterationLimit) succeed.
func (e *IterationLimitError) Is(target error) bool {
	return target == ErrIterationLimit
}

// IsIterationLimitError returns true if err wraps an IterationLimitError.
func IsIterationLimitError(err error) bool {
	var le *IterationLimitError
	return errors.As(err, &le)
}

// CallbackError wraps an error returned by an observer callback with the
// observer key and dispatch phase it came from.
type CallbackError struct {
	Key   string
	Phase Phase
	Err   error
}

// Error implements the error interface.
func (e *CallbackError) Error() string {
	return fmt.Sprintf("observer %s: %s callback: %v", e.Key, e.Phase, e.Err)
}

// Unwrap enables errors.Is and errors.As on the callback's own error.
func (e *CallbackError) Unwrap() error {
	return e.Err
}
