package value

import (
	"fmt"
	"math"
	"math/big"
	"time"
)

// Normalize converts decoded data (YAML, JSON, CUE) into the state shape.
//
// Integer kinds become int64, float32 becomes float64, map[any]any and
// map[string]any become Object, and every slice of any becomes []any.
// Values are copied; the input is not modified. Types outside the state shape
// are rejected.
func Normalize(v any) (any, error) {
	switch val := v.(type) {
	case nil, string, bool, int64, float64, time.Time:
		return val, nil
	case int:
		return int64(val), nil
	case int8:
		return int64(val), nil
	case int16:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case uint:
		if uint64(val) > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d overflows int64", val)
		}
		return int64(val), nil
	case uint8:
		return int64(val), nil
	case uint16:
		return int64(val), nil
	case uint32:
		return int64(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d overflows int64", val)
		}
		return int64(val), nil
	case float32:
		return float64(val), nil
	case *big.Int:
		if !val.IsInt64() {
			return nil, fmt.Errorf("integer %s overflows int64", val)
		}
		return val.Int64(), nil
	case map[string]any:
		out := make(Object, len(val))
		for k, elem := range val {
			n, err := Normalize(elem)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = n
		}
		return out, nil
	case map[any]any:
		out := make(Object, len(val))
		for k, elem := range val {
			key, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("non-string key %v (%T)", k, k)
			}
			n, err := Normalize(elem)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			out[key] = n
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			n, err := Normalize(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = n
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported state value type %T", v)
	}
}

// NormalizeObject is Normalize for a top-level object. A nil map yields an
// empty Object.
func NormalizeObject(m map[string]any) (Object, error) {
	if m == nil {
		return Object{}, nil
	}
	n, err := Normalize(m)
	if err != nil {
		return nil, err
	}
	return n.(Object), nil
}
