package store

import (
	"context"

	"github.com/roach88/reactstore/value"
)

// pendingUpdate is a state change requested while a cycle was running.
type pendingUpdate struct {
	ctx   context.Context
	delta value.Object

	// direct marks an initial-state merge: applied without dispatch.
	direct bool

	// done receives the update's result when the requester is waiting on
	// another goroutine. Nil for updates requested by the cycle owner.
	done chan error
}

// finish delivers err to a waiting requester.
func (u pendingUpdate) finish(err error) {
	if u.done != nil {
		u.done <- err
	}
}

// updateQueue is the FIFO of pending updates. It is guarded by Store.mu.
type updateQueue struct {
	items []pendingUpdate
}

func (q *updateQueue) enqueue(u pendingUpdate) {
	q.items = append(q.items, u)
}

// tryDequeue removes and returns the front update, or false when empty.
func (q *updateQueue) tryDequeue() (pendingUpdate, bool) {
	if len(q.items) == 0 {
		return pendingUpdate{}, false
	}

	u := q.items[0]

	// Clear the slot so the backing array does not pin the delta.
	q.items[0] = pendingUpdate{}
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return u, true
}

// reset removes and returns every pending update.
func (q *updateQueue) reset() []pendingUpdate {
	items := q.items
	q.items = nil
	return items
}

func (q *updateQueue) size() int {
	return len(q.items)
}
