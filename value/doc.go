// Package value defines the plain-data state tree shared by a store and the
// primitives that operate on it.
//
// State is built from a small set of node kinds:
//   - Object (map[string]any): a plain container, merged key by key
//   - []any: an array, always replaced as a whole
//   - time.Time: a date-like leaf, always replaced as a whole
//   - scalars: string, bool, integer and float kinds, nil
//
// Any other Go type is outside the supported state shape. It is carried as an
// opaque leaf, but merge and equality give no guarantees for it.
//
// # Structural Sharing
//
// Merge never mutates its inputs. Branches untouched by an overlay are shared
// by reference with the base, and a level that the overlay fully replaces is
// returned as the overlay itself. This lets selectors detect change with Same,
// a cheap reference comparison:
//
//	prev := value.Object{"data1": value.Object{"prop1": "a"}, "data2": value.Object{"x": 9}}
//	next := value.Merge(prev, value.Object{"data1": value.Object{"prop1": "b"}})
//	value.Same(prev["data2"], next["data2"]) // true, data2 was not touched
//
// # Two Kinds of Equality
//
// Same is shallow and reference-sensitive; it decides whether a selected slice
// of state changed. DeepEqual is an asymmetric subset comparison; it decides
// whether a delta would change the state at all. The two are intentionally
// different and must not be substituted for each other.
package value
