package codec

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/itchyny/gojq"
	"github.com/tsarna/resocket/pkg/resocket"
)

// JQIdentify compiles a jq predicate. The reply is the input and the sent
// payload is available as $sent. The reply matches when the first output is
// truthy (anything but false and null).
//
//	identify, err := codec.JQIdentify(`.id == $sent.id and .type == "result"`)
func JQIdentify(query string) (resocket.IdentifyFunc, error) {
	code, err := compileJQ(query, "$sent")
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context, sent, reply any) (bool, error) {
		input, err := toJQValue(reply)
		if err != nil {
			return false, err
		}
		sentValue, err := toJQValue(sent)
		if err != nil {
			return false, err
		}

		iter := code.RunWithContext(ctx, input, sentValue)
		result, ok := iter.Next()
		if !ok {
			return false, nil
		}
		if err, isErr := result.(error); isErr {
			return false, fmt.Errorf("jq query %q: %w", query, err)
		}

		return result != nil && result != false, nil
	}, nil
}

// JQTransform compiles a jq expression applied to outgoing payloads. A
// single output replaces the payload, several are collected into an array,
// and no output is an error.
//
//	transform, err := codec.JQTransform(`. + {source: "resocket"}`)
func JQTransform(query string) (resocket.TransformFunc, error) {
	code, err := compileJQ(query)
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context, payload any) (any, error) {
		input, err := toJQValue(payload)
		if err != nil {
			return nil, err
		}

		var results []any
		iter := code.RunWithContext(ctx, input)
		for {
			result, ok := iter.Next()
			if !ok {
				break
			}
			if err, isErr := result.(error); isErr {
				return nil, fmt.Errorf("jq query %q: %w", query, err)
			}
			results = append(results, result)
		}

		switch len(results) {
		case 0:
			return nil, fmt.Errorf("jq query %q produced no output", query)
		case 1:
			return results[0], nil
		default:
			return results, nil
		}
	}, nil
}

func compileJQ(query string, variables ...string) (*gojq.Code, error) {
	parsed, err := gojq.Parse(query)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JQ query '%s': %w", query, err)
	}

	code, err := gojq.Compile(parsed, gojq.WithVariables(variables))
	if err != nil {
		return nil, fmt.Errorf("failed to compile JQ query '%s': %w", query, err)
	}
	return code, nil
}

// toJQValue converts v into the value types gojq accepts. JSON text is
// parsed, frames are parsed as JSON when possible, and anything that is not
// already a plain JSON value goes through a JSON round trip.
func toJQValue(v any) (any, error) {
	switch p := v.(type) {
	case resocket.Frame:
		return parseJSONOrString(p.Data), nil
	case []byte:
		return parseJSONOrString(p), nil
	case json.RawMessage:
		return parseJSONOrString(p), nil
	}

	if isPlain(v) {
		return v, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("cannot convert %T for jq: %w", v, err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func parseJSONOrString(data []byte) any {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return string(data)
	}
	return v
}

func isPlain(v any) bool {
	switch x := v.(type) {
	case nil, bool, int, float64, string:
		return true
	case []any:
		for _, e := range x {
			if !isPlain(e) {
				return false
			}
		}
		return true
	case map[string]any:
		for _, e := range x {
			if !isPlain(e) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
