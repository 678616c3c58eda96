package codec

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tsarna/resocket/pkg/resocket"
)

// JSONCodec encodes payloads as JSON text frames and decodes inbound frames
// into generic values (map[string]any, []any, float64, string, bool, nil).
type JSONCodec struct {
	// Lenient makes Decode return the frame text instead of an error when it
	// is not valid JSON.
	Lenient bool
}

// JSON returns a strict JSON codec.
func JSON() *JSONCodec {
	return &JSONCodec{}
}

// Encode marshals payload. json.RawMessage, []byte and resocket.Frame
// payloads are taken to be encoded already and pass through.
func (c *JSONCodec) Encode(ctx context.Context, payload any) (any, error) {
	switch p := payload.(type) {
	case resocket.Frame:
		return p, nil
	case json.RawMessage:
		if !json.Valid(p) {
			return nil, fmt.Errorf("invalid raw JSON")
		}
		return resocket.TextFrame(string(p)), nil
	case []byte:
		if !json.Valid(p) {
			return nil, fmt.Errorf("invalid raw JSON")
		}
		return resocket.TextFrame(string(p)), nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return resocket.TextFrame(string(data)), nil
}

// Decode unmarshals the frame payload.
func (c *JSONCodec) Decode(ctx context.Context, frame resocket.Frame) (any, error) {
	var v any
	if err := json.Unmarshal(frame.Data, &v); err != nil {
		if c.Lenient {
			return frame.String(), nil
		}
		return nil, err
	}
	return v, nil
}
