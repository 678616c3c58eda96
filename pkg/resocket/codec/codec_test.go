package codec

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsarna/resocket/pkg/resocket"
)

func TestJSONCodec(t *testing.T) {
	ctx := context.Background()
	c := JSON()

	t.Run("encode map", func(t *testing.T) {
		wire, err := c.Encode(ctx, map[string]any{"cmd": "play", "id": 7})
		require.NoError(t, err)
		assert.Equal(t, resocket.TextFrame(`{"cmd":"play","id":7}`), wire)
	})

	t.Run("raw JSON passes through", func(t *testing.T) {
		wire, err := c.Encode(ctx, json.RawMessage(`{"a":1}`))
		require.NoError(t, err)
		assert.Equal(t, resocket.TextFrame(`{"a":1}`), wire)

		_, err = c.Encode(ctx, []byte(`{"a":`))
		assert.Error(t, err)
	})

	t.Run("encode error", func(t *testing.T) {
		_, err := c.Encode(ctx, map[string]any{"ch": make(chan int)})
		assert.Error(t, err)
	})

	t.Run("decode", func(t *testing.T) {
		v, err := c.Decode(ctx, resocket.TextFrame(`{"id":7,"ok":true,"tags":["x"]}`))
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"id": float64(7), "ok": true, "tags": []any{"x"}}, v)
	})

	t.Run("decode invalid", func(t *testing.T) {
		_, err := c.Decode(ctx, resocket.TextFrame("not json"))
		assert.Error(t, err)

		lenient := &JSONCodec{Lenient: true}
		v, err := lenient.Decode(ctx, resocket.TextFrame("not json"))
		require.NoError(t, err)
		assert.Equal(t, "not json", v)
	})
}

func TestCBORCodec(t *testing.T) {
	ctx := context.Background()
	c := CBOR()

	wire, err := c.Encode(ctx, map[string]any{"cmd": "volume", "level": 3})
	require.NoError(t, err)

	frame, err := resocket.ToFrame(wire)
	require.NoError(t, err)
	assert.Equal(t, resocket.MessageBinary, frame.Type)

	v, err := c.Decode(ctx, frame)
	require.NoError(t, err)

	m, ok := v.(map[string]any)
	require.True(t, ok, "decoded %T", v)
	assert.Equal(t, "volume", m["cmd"])
	assert.EqualValues(t, 3, m["level"])

	_, err = c.Decode(ctx, resocket.BinaryFrame([]byte{0xff, 0xff}))
	assert.Error(t, err)
}

func TestRawCodec(t *testing.T) {
	ctx := context.Background()
	c := Raw()

	wire, err := c.Encode(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", wire)

	_, err = c.Encode(ctx, 42)
	assert.Error(t, err)

	v, err := c.Decode(ctx, resocket.TextFrame("hi"))
	require.NoError(t, err)
	assert.Equal(t, "hi", v)

	v, err = c.Decode(ctx, resocket.BinaryFrame([]byte{1}))
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, v)
}

func TestByName(t *testing.T) {
	for _, name := range []string{"", "json", "cbor", "raw"} {
		c, err := ByName(name)
		require.NoError(t, err, name)
		assert.NotNil(t, c)
	}

	_, err := ByName("xml")
	assert.Error(t, err)
}

func TestStampRequestID(t *testing.T) {
	ctx := context.Background()
	stamp := StampRequestIDWith("id", func() string { return "req-1" })

	original := map[string]any{"cmd": "play"}
	out, err := stamp(ctx, original)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"cmd": "play", "id": "req-1"}, out)
	assert.NotContains(t, original, "id")

	existing := map[string]any{"cmd": "play", "id": 5}
	out, err = stamp(ctx, existing)
	require.NoError(t, err)
	assert.Equal(t, existing, out)

	_, err = stamp(ctx, "text")
	assert.Error(t, err)

	out, err = StampRequestID("id")(ctx, map[string]any{})
	require.NoError(t, err)
	assert.Len(t, out.(map[string]any)["id"], 36)
}

func TestMatchField(t *testing.T) {
	ctx := context.Background()
	match := MatchField("id")

	tests := []struct {
		name     string
		sent     any
		reply    any
		expected bool
	}{
		{"same string", map[string]any{"id": "a"}, map[string]any{"id": "a"}, true},
		{"different string", map[string]any{"id": "a"}, map[string]any{"id": "b"}, false},
		{"int against float", map[string]any{"id": 7}, map[string]any{"id": float64(7)}, true},
		{"uint against int", map[string]any{"id": uint64(7)}, map[string]any{"id": int64(7)}, true},
		{"number against string", map[string]any{"id": 7}, map[string]any{"id": "7"}, false},
		{"reply without field", map[string]any{"id": "a"}, map[string]any{"event": "x"}, false},
		{"reply not a map", map[string]any{"id": "a"}, "a", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := match(ctx, tt.sent, tt.reply)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ok)
		})
	}

	t.Run("sent without field", func(t *testing.T) {
		_, err := match(ctx, map[string]any{}, map[string]any{"id": "a"})
		assert.Error(t, err)
	})

	t.Run("nested path", func(t *testing.T) {
		nested := MatchField("header", "requestId")
		ok, err := nested(ctx,
			map[string]any{"header": map[string]any{"requestId": "r1"}},
			map[string]any{"header": map[string]any{"requestId": "r1"}, "body": 1})
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestJQIdentify(t *testing.T) {
	ctx := context.Background()

	identify, err := JQIdentify(`.id == $sent.id and .type == "result"`)
	require.NoError(t, err)

	sent := map[string]any{"id": 3, "cmd": "status"}

	ok, err := identify(ctx, sent, map[string]any{"id": float64(3), "type": "result"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = identify(ctx, sent, map[string]any{"id": float64(3), "type": "event"})
	require.NoError(t, err)
	assert.False(t, ok)

	t.Run("frames are parsed as JSON", func(t *testing.T) {
		ok, err := identify(ctx, sent, resocket.TextFrame(`{"id":3,"type":"result"}`))
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("structs are converted", func(t *testing.T) {
		type command struct {
			ID int `json:"id"`
		}
		ok, err := identify(ctx, command{ID: 3}, map[string]any{"id": 3, "type": "result"})
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("null is falsy", func(t *testing.T) {
		field, err := JQIdentify(".missing")
		require.NoError(t, err)
		ok, err := field(ctx, sent, map[string]any{})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("runtime error", func(t *testing.T) {
		bad, err := JQIdentify(".id | error")
		require.NoError(t, err)
		_, err = bad(ctx, sent, map[string]any{"id": "x"})
		assert.Error(t, err)
	})

	t.Run("invalid query", func(t *testing.T) {
		_, err := JQIdentify(".[")
		assert.Error(t, err)

		_, err = JQIdentify("$undefined")
		assert.Error(t, err)
	})
}

func TestJQTransform(t *testing.T) {
	ctx := context.Background()

	enrich, err := JQTransform(`. + {source: "resocket"}`)
	require.NoError(t, err)

	out, err := enrich(ctx, map[string]any{"cmd": "play"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"cmd": "play", "source": "resocket"}, out)

	multi, err := JQTransform(`.[]`)
	require.NoError(t, err)
	out, err = multi(ctx, []any{1, 2})
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2}, out)

	empty, err := JQTransform(`empty`)
	require.NoError(t, err)
	_, err = empty(ctx, map[string]any{})
	assert.Error(t, err)
}

func TestChaining(t *testing.T) {
	ctx := context.Background()

	chain := ChainTransforms(
		StampRequestIDWith("id", func() string { return "r" }),
		func(ctx context.Context, payload any) (any, error) {
			m := payload.(map[string]any)
			m["seq"] = 1
			return m, nil
		},
	)
	out, err := chain(ctx, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": "r", "seq": 1}, out)

	failing := ChainTransforms(func(ctx context.Context, payload any) (any, error) {
		return nil, errors.New("boom")
	}, resocket.IdentityTransform)
	_, err = failing(ctx, 1)
	assert.Error(t, err)

	yes := resocket.MatchAny
	no := func(ctx context.Context, sent, reply any) (bool, error) { return false, nil }
	broken := func(ctx context.Context, sent, reply any) (bool, error) { return false, errors.New("x") }

	ok, _ := AllOf(yes, yes)(ctx, nil, nil)
	assert.True(t, ok)
	ok, _ = AllOf(yes, no)(ctx, nil, nil)
	assert.False(t, ok)
	ok, _ = AnyOf(no, yes)(ctx, nil, nil)
	assert.True(t, ok)
	_, err = AnyOf(broken, yes)(ctx, nil, nil)
	assert.Error(t, err)
}
