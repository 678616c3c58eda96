package resocket

import "context"

// AddressFunc produces the address to dial. It is called before every
// connection attempt, so a changing address is picked up on reconnect.
type AddressFunc func(ctx context.Context) (string, error)

// StaticAddress returns an AddressFunc that always yields address.
func StaticAddress(address string) AddressFunc {
	return func(ctx context.Context) (string, error) {
		return address, nil
	}
}

// TransformFunc enriches an outgoing payload before it is encoded.
type TransformFunc func(ctx context.Context, payload any) (any, error)

// EncodeFunc converts a payload to its wire form. The result must be
// accepted by ToFrame.
type EncodeFunc func(ctx context.Context, payload any) (any, error)

// DecodeFunc converts an inbound frame to a payload.
type DecodeFunc func(ctx context.Context, frame Frame) (any, error)

// IdentifyFunc reports whether reply answers the request sent.
type IdentifyFunc func(ctx context.Context, sent any, reply any) (bool, error)

// IdentityTransform returns the payload unchanged.
func IdentityTransform(ctx context.Context, payload any) (any, error) {
	return payload, nil
}

// IdentityEncode returns the payload unchanged.
func IdentityEncode(ctx context.Context, payload any) (any, error) {
	return payload, nil
}

// IdentityDecode returns the frame itself.
func IdentityDecode(ctx context.Context, frame Frame) (any, error) {
	return frame, nil
}

// MatchAny treats every inbound message as the reply.
func MatchAny(ctx context.Context, sent any, reply any) (bool, error) {
	return true, nil
}
