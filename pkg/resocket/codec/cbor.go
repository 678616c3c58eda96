package codec

import (
	"context"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/tsarna/resocket/pkg/resocket"
)

// CBORCodec encodes payloads as CBOR binary frames. Maps decode to
// map[string]any so decoded values work with MatchField and jq.
type CBORCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// CBOR returns a CBOR codec using canonical encoding.
func CBOR() *CBORCodec {
	enc, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	dec, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return &CBORCodec{enc: enc, dec: dec}
}

// Encode marshals payload. resocket.Frame payloads pass through.
func (c *CBORCodec) Encode(ctx context.Context, payload any) (any, error) {
	if f, ok := payload.(resocket.Frame); ok {
		return f, nil
	}

	data, err := c.enc.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return resocket.BinaryFrame(data), nil
}

// Decode unmarshals the frame payload.
func (c *CBORCodec) Decode(ctx context.Context, frame resocket.Frame) (any, error) {
	var v any
	if err := c.dec.Unmarshal(frame.Data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
