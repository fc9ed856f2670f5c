package value

// Merge deep-merges overlay into base and returns the result.
//
// Keys of base missing from overlay keep base's value by reference. Nested
// objects present on both sides are merged recursively. Keys only in overlay
// are copied. Arrays, times and scalars are replaced whole, never merged
// element-wise. An explicit nil in overlay replaces the base value.
//
// When overlay overrides every key of base at some level (and every nested
// level beneath it likewise), that level of the result is overlay itself, so
// callers holding overlay keep reference equality with the stored state.
//
// Neither input is modified. A nil base returns overlay; a nil overlay
// returns base.
func Merge(base, overlay Object) Object {
	if overlay == nil {
		return base
	}
	if base == nil {
		return overlay
	}
	out, _ := merge(base, overlay)
	return out
}

// merge returns the merged object and whether it is fully identical to
// overlay at this level and below.
func merge(base, overlay Object) (Object, bool) {
	out := make(Object, len(base)+len(overlay))
	allSame := true

	for key, bv := range base {
		ov, has := overlay[key]
		if !has {
			out[key] = bv
			allSame = false
			continue
		}

		bobj, baseIsObj := bv.(map[string]any)
		oobj, overIsObj := ov.(map[string]any)
		if baseIsObj && overIsObj && oobj != nil {
			merged, same := merge(bobj, oobj)
			out[key] = merged
			allSame = allSame && same
			continue
		}

		out[key] = ov
	}

	for key, ov := range overlay {
		if _, has := base[key]; !has {
			out[key] = ov
			allSame = false
		}
	}

	if allSame {
		return overlay, true
	}
	return out, false
}
