// Package observer defines reactive units that respond to changes in a
// store's shared state.
//
// A concrete observer embeds Base and registers callbacks in its constructor.
// Each callback belongs to one of three dispatch categories, stored separately
// because a callback's intent cannot be inspected from its result:
//
//   - Mutable: returns a delta that the store merges before any other
//     category runs. Mutable callbacks are re-run until state stops changing.
//   - Async: launched on its own goroutine against the final state; the store
//     does not wait for it. It may request further updates when done.
//   - Plain: runs synchronously against the final state; returns no delta.
//
// Each registration lists dependency selectors. A registration fires when any
// selector yields a different value (value.Same) for the old and new state.
// A registration without selectors fires on every dispatch.
//
// Example:
//
//	type Totals struct{ observer.Base }
//
//	func NewTotals() *Totals {
//	    o := &Totals{}
//	    o.RegisterMutable(func(s, _ value.Object) (value.Object, error) {
//	        items, _ := value.Lookup(s, "cart.items")
//	        list, _ := items.([]any)
//	        return value.At("cart.count", int64(len(list))), nil
//	    }, value.Select("cart.items"))
//	    return o
//	}
//
// # Lifecycle
//
// An observer is created, registered into a store (which calls Initialize
// exactly once), dispatched on every update, and finally disposed. Once
// disposed, every dispatch query returns nothing, so an observer removed
// mid-iteration becomes inert without being spliced out of the iteration.
//
// # Local State
//
// Besides the shared state mirror returned by State, an observer owns a
// private local state. UpdateLocal merges into it and signals the consumers
// attached to the observer; it never touches the shared state.
package observer
