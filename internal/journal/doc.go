// Package journal records store update cycles in SQLite.
//
// The journal is a store.Recorder. Each cycle becomes one row in cycles and
// one row per callback invocation in firings, keyed by the cycle's logical
// sequence number. It exists for diagnostics (what fired, how many mutable
// passes, why an update failed); the store never reads it back, and nothing
// in it is used to restore state.
//
// # Conventions
//
//   - Ordering uses seq, never wall time. Every query orders by seq ASC and,
//     for firings, ordinal ASC.
//   - Deltas are stored as canonical JSON (value.MarshalCanonical), so equal
//     deltas produce identical rows.
//   - Writes are idempotent: recording the same seq twice keeps the first row.
//
// # Database Configuration
//
//   - WAL mode, synchronous=NORMAL, 5s busy timeout, foreign keys on
//   - one open connection; SQLite has a single writer
//   - schema version tracked with PRAGMA user_version
package journal
