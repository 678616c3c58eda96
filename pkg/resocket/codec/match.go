package codec

import (
	"context"
	"fmt"
	"reflect"

	"github.com/tsarna/resocket/pkg/resocket"
)

// MatchField returns an identify predicate that matches a reply when the
// value at path equals the value at the same path in the sent payload.
// Numbers compare by value regardless of their Go type, so an id sent as
// int matches the float64 a JSON decoder produces.
//
// A reply without the field never matches. A sent payload without it is an
// error, as no reply could ever match.
func MatchField(path ...string) resocket.IdentifyFunc {
	return func(ctx context.Context, sent, reply any) (bool, error) {
		want, ok := lookup(sent, path)
		if !ok {
			return false, fmt.Errorf("sent payload has no field %v", path)
		}

		got, ok := lookup(reply, path)
		if !ok {
			return false, nil
		}

		return equalValues(want, got), nil
	}
}

func lookup(v any, path []string) (any, bool) {
	for _, key := range path {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return v, true
}

func equalValues(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
