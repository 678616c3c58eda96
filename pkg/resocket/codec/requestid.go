package codec

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/tsarna/resocket/pkg/resocket"
)

// StampRequestID returns a transform that sets field to a fresh UUID on map
// payloads that do not carry it yet. The payload map is copied, never
// modified in place.
func StampRequestID(field string) resocket.TransformFunc {
	return StampRequestIDWith(field, uuid.NewString)
}

// StampRequestIDWith is StampRequestID with a custom id generator.
func StampRequestIDWith(field string, newID func() string) resocket.TransformFunc {
	return func(ctx context.Context, payload any) (any, error) {
		m, ok := payload.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("cannot stamp %q on %T payload", field, payload)
		}

		if _, present := m[field]; present {
			return payload, nil
		}

		stamped := make(map[string]any, len(m)+1)
		for k, v := range m {
			stamped[k] = v
		}
		stamped[field] = newID()
		return stamped, nil
	}
}
