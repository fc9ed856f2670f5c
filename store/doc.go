// Package store implements the central state container.
//
// A Store owns one canonical state tree, a keyed registry of observers and a
// list of subscribers. State only changes through Update, which runs the
// update cycle:
//
//  1. No-op check: a delta already contained in the state (value.DeepEqual)
//     returns immediately without dispatching or notifying.
//  2. Merge the delta into a temporary state.
//  3. Mutable phase: triggered mutable callbacks run and their deltas are
//     merged, repeatedly, until a pass produces no delta. The number of
//     productive passes is bounded by Config.MaxIterations; exceeding it
//     aborts the update with IterationLimitError and commits nothing.
//  4. Commit the temporary state as the canonical state.
//  5. Async phase: triggered async callbacks are launched on goroutines.
//  6. Plain phase: triggered plain callbacks run synchronously.
//  7. Every subscriber is notified with the final state.
//
// Async and plain callbacks compare against the state from before the update,
// not against the last mutable pass.
//
// # Concurrency
//
// The store is single-writer. Update may be called from any goroutine,
// including from inside a callback. If a cycle is already in progress the
// request is queued and the goroutine that owns the running cycle drains the
// queue in request order before it returns. A request made from a callback
// returns nil at once and its error is joined into the owner's result. A
// request from any other goroutine blocks until its delta has been applied.
//
// A cycle that fails after commit does not stop the queue. A cycle that
// aborts before commit, or panics, drops everything queued behind it and the
// waiting requesters get ErrUpdateDropped. A queued request whose context is
// canceled before its turn is skipped.
//
// Callbacks must not wait on a goroutine that is itself calling Update on the
// same store: that goroutine is waiting on the callback's cycle. No lock is
// held while callbacks run. State snapshots are never mutated, so State is cheap and the
// returned tree may be shared freely.
//
// Async callbacks are tracked. Wait blocks until all of them, including any
// they transitively launch, have finished and returns their joined errors.
//
// # Observability
//
// Every call to Update produces a CycleReport delivered to the configured
// Recorders (see internal/journal and internal/telemetry) and an OpenTelemetry
// span named "store.update".
package store
