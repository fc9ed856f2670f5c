package value

// DeepEqual reports whether every field present in partial is equal to the
// same field in full, recursively. full may carry extra fields.
//
// Identical references are equal without further inspection. A nil on either
// side is equal only to nil. Atomic values (scalars, arrays, times) are
// compared directly with Same and never recursed into, so two distinct arrays
// with the same elements are not equal.
//
// DeepEqual decides whether a delta is a no-op against the current state. It
// is not used for selector change detection; see Same.
func DeepEqual(partial, full any) bool {
	if partial == nil || full == nil {
		return partial == nil && full == nil
	}

	pobj, pIsObj := partial.(map[string]any)
	fobj, fIsObj := full.(map[string]any)
	if !pIsObj || !fIsObj {
		return Same(partial, full)
	}

	if sameMap(pobj, fobj) {
		return true
	}
	if pobj == nil || fobj == nil {
		return pobj == nil && fobj == nil
	}

	for key, pv := range pobj {
		fv, ok := fobj[key]
		if !ok {
			return false
		}
		if !DeepEqual(pv, fv) {
			return false
		}
	}
	return true
}
