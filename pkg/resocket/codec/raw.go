package codec

import (
	"context"
	"fmt"

	"github.com/tsarna/resocket/pkg/resocket"
)

// RawCodec sends strings as text frames and byte slices as binary frames,
// and decodes text frames to strings and binary frames to byte slices.
type RawCodec struct{}

// Raw returns a raw codec.
func Raw() RawCodec {
	return RawCodec{}
}

func (RawCodec) Encode(ctx context.Context, payload any) (any, error) {
	switch p := payload.(type) {
	case string, []byte, resocket.Frame:
		return p, nil
	case fmt.Stringer:
		return p.String(), nil
	default:
		return nil, fmt.Errorf("raw codec cannot encode %T", payload)
	}
}

func (RawCodec) Decode(ctx context.Context, frame resocket.Frame) (any, error) {
	if frame.Type == resocket.MessageBinary {
		return frame.Data, nil
	}
	return frame.String(), nil
}

// ByName returns the codec registered under name: "json", "cbor" or "raw".
func ByName(name string) (resocket.Codec, error) {
	switch name {
	case "", "json":
		return JSON(), nil
	case "cbor":
		return CBOR(), nil
	case "raw":
		return Raw(), nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}
