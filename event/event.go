// Package event provides a typed multicast callback registry.
//
// An Event fans a single Trigger out to every registered handler in
// registration order. Handlers are identified by the Handle returned from On,
// since Go funcs cannot be compared.
package event

import "sync"

// Handle identifies a registered handler for later removal.
type Handle uint64

// Event is a multicast notification channel carrying values of type T.
// The zero value is ready to use. Safe for concurrent use.
type Event[T any] struct {
	mu       sync.Mutex
	next     Handle
	handlers []entry[T]
}

type entry[T any] struct {
	handle Handle
	fn     func(T)
}

// On registers fn and returns its handle.
func (e *Event[T]) On(fn func(T)) Handle {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.next++
	e.handlers = append(e.handlers, entry[T]{handle: e.next, fn: fn})
	return e.next
}

// Off removes the handler registered under h. Unknown handles are ignored.
func (e *Event[T]) Off(h Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()

	kept := e.handlers[:0:0]
	for _, en := range e.handlers {
		if en.handle != h {
			kept = append(kept, en)
		}
	}
	e.handlers = kept
}

// Trigger calls every handler with data.
//
// Handlers run on the caller's goroutine against a snapshot of the handler
// list, so a handler may call On or Off without affecting this delivery.
func (e *Event[T]) Trigger(data T) {
	e.mu.Lock()
	snapshot := make([]entry[T], len(e.handlers))
	copy(snapshot, e.handlers)
	e.mu.Unlock()

	for _, en := range snapshot {
		en.fn(data)
	}
}

// Len returns the number of registered handlers.
func (e *Event[T]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handlers)
}
