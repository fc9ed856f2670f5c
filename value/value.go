package value

import (
	"reflect"
	"strings"
	"time"
)

// Object is a plain container node of the state tree.
// It is an alias so that map literals and decoded maps are Objects without
// conversion.
type Object = map[string]any

// Selector extracts the slice of state a registration depends on.
type Selector func(state Object) any

// IsObject reports whether v is a plain container that merge recurses into.
// Arrays and time.Time are not objects even though they are composite.
func IsObject(v any) bool {
	_, ok := v.(map[string]any)
	return ok
}

// IsAtomic reports whether v is compared and replaced as a whole.
func IsAtomic(v any) bool {
	return !IsObject(v)
}

// Same reports whether a and b are the same value for change detection.
//
// Objects and slices compare by identity: two maps are the same only if they
// are the same map, two slices only if they share a backing array and length.
// time.Time compares by instant. Everything else compares with == when the
// dynamic types are comparable, and by identity otherwise.
func Same(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		return ok && sameMap(av, bv)
	case []any:
		bv, ok := b.([]any)
		return ok && sameSlice(av, bv)
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	}

	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta.Comparable() {
		return a == b
	}

	// Non-comparable values outside the state shape (other map or slice types,
	// funcs): fall back to identity.
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	switch va.Kind() {
	case reflect.Map, reflect.Func, reflect.Pointer, reflect.Chan, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	case reflect.Slice:
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
	}
	return false
}

func sameMap(a, b map[string]any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return reflect.ValueOf(a).UnsafePointer() == reflect.ValueOf(b).UnsafePointer()
}

func sameSlice(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) == 0 {
		return (a == nil) == (b == nil)
	}
	return &a[0] == &b[0]
}

// Lookup resolves a dot-separated path ("cart.items") inside obj.
// The empty path resolves to obj itself. Returns false if any segment is
// missing or traverses a non-object.
func Lookup(obj Object, path string) (any, bool) {
	if path == "" {
		return obj, true
	}

	var cur any = obj
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Select returns a Selector for the value at path. Missing paths select nil.
func Select(path string) Selector {
	return func(state Object) any {
		v, _ := Lookup(state, path)
		return v
	}
}

// SelectAll returns one Selector per path, in order.
func SelectAll(paths ...string) []Selector {
	out := make([]Selector, 0, len(paths))
	for _, p := range paths {
		out = append(out, Select(p))
	}
	return out
}

// At builds a delta that sets path to v, creating intermediate objects.
//
//	value.At("cart.total", 12) // {"cart": {"total": 12}}
func At(path string, v any) Object {
	segs := strings.Split(path, ".")
	var cur any = v
	for i := len(segs) - 1; i >= 0; i-- {
		cur = Object{segs[i]: cur}
	}
	return cur.(Object)
}
