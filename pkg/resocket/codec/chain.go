package codec

import (
	"context"

	"github.com/tsarna/resocket/pkg/resocket"
)

// ChainTransforms applies transforms in order, feeding each the previous
// result.
func ChainTransforms(transforms ...resocket.TransformFunc) resocket.TransformFunc {
	return func(ctx context.Context, payload any) (any, error) {
		var err error
		for _, t := range transforms {
			if payload, err = t(ctx, payload); err != nil {
				return nil, err
			}
		}
		return payload, nil
	}
}

// AllOf matches when every predicate matches.
func AllOf(predicates ...resocket.IdentifyFunc) resocket.IdentifyFunc {
	return func(ctx context.Context, sent, reply any) (bool, error) {
		for _, p := range predicates {
			ok, err := p(ctx, sent, reply)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}
}

// AnyOf matches when at least one predicate matches.
func AnyOf(predicates ...resocket.IdentifyFunc) resocket.IdentifyFunc {
	return func(ctx context.Context, sent, reply any) (bool, error) {
		for _, p := range predicates {
			ok, err := p(ctx, sent, reply)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}
}
