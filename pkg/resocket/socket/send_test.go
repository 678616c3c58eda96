package socket

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsarna/resocket/pkg/resocket"
)

type sendResult struct {
	reply any
	err   error
}

func sendAsync(s *Socket, payload any, timeout time.Duration) <-chan sendResult {
	results := make(chan sendResult, 1)
	go func() {
		reply, err := s.SendWithTimeout(context.Background(), payload, timeout)
		results <- sendResult{reply, err}
	}()
	return results
}

func waitResult(t *testing.T, results <-chan sendResult) sendResult {
	t.Helper()
	select {
	case r := <-results:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("send did not finish")
		return sendResult{}
	}
}

// stringDecode decodes frames to their text.
func stringDecode(ctx context.Context, frame resocket.Frame) (any, error) {
	return frame.String(), nil
}

// prefixIdentify matches replies that start with the sent string.
func prefixIdentify(ctx context.Context, sent, reply any) (bool, error) {
	return strings.HasPrefix(reply.(string), sent.(string)), nil
}

func connectedSocket(t *testing.T, configure ...func(b *SocketBuilder)) (*Socket, *fakeTransport, *recordingObserver) {
	t.Helper()
	d := newFakeDialer()
	s, obs := newTestSocket(t, d, configure...)
	require.NoError(t, s.Connect(context.Background()))
	obs.waitConnect(t)
	tr := d.nextTransport(t)
	tr.waitStarted(t)
	return s, tr, obs
}

func TestSendDefaultIdentifyTakesNextMessage(t *testing.T) {
	s, tr, obs := connectedSocket(t)

	results := sendAsync(s, map[string]any{"cmd": "play"}, time.Second)

	// The default encode passes the payload through, which is not a wire type.
	r := waitResult(t, results)
	require.ErrorIs(t, r.err, resocket.ErrEncode)

	results = sendAsync(s, `{"cmd":"play"}`, time.Second)
	written := tr.nextWrite(t)
	assert.Equal(t, resocket.TextFrame(`{"cmd":"play"}`), written)

	tr.deliver(t, resocket.TextFrame(`{"event":"volume","level":3}`))

	r = waitResult(t, results)
	require.NoError(t, r.err)
	assert.Equal(t, resocket.TextFrame(`{"event":"volume","level":3}`), r.reply)
	assert.Equal(t, resocket.TextFrame(`{"event":"volume","level":3}`), obs.waitMessage(t))
	assert.Equal(t, 0, s.PendingRequests())
}

func TestSendCorrelation(t *testing.T) {
	s, tr, obs := connectedSocket(t, func(b *SocketBuilder) {
		b.WithDecode(stringDecode).WithIdentify(prefixIdentify)
	})

	first := sendAsync(s, "a:", time.Second)
	tr.nextWrite(t)
	second := sendAsync(s, "b:", time.Second)
	tr.nextWrite(t)

	require.Eventually(t, func() bool { return s.PendingRequests() == 2 }, time.Second, time.Millisecond)

	tr.deliver(t, resocket.TextFrame("unrelated"))
	tr.deliver(t, resocket.TextFrame("b:two"))
	tr.deliver(t, resocket.TextFrame("a:one"))

	r := waitResult(t, first)
	require.NoError(t, r.err)
	assert.Equal(t, "a:one", r.reply)

	r = waitResult(t, second)
	require.NoError(t, r.err)
	assert.Equal(t, "b:two", r.reply)

	// Every message is published regardless of correlation.
	assert.Equal(t, "unrelated", obs.waitMessage(t))
	assert.Equal(t, "b:two", obs.waitMessage(t))
	assert.Equal(t, "a:one", obs.waitMessage(t))

	assert.Equal(t, 0, s.PendingRequests())
}

func TestSendOneMessageMayAnswerSeveralRequests(t *testing.T) {
	s, tr, _ := connectedSocket(t, func(b *SocketBuilder) {
		b.WithDecode(stringDecode)
	})

	first := sendAsync(s, "x", time.Second)
	tr.nextWrite(t)
	second := sendAsync(s, "y", time.Second)
	tr.nextWrite(t)
	require.Eventually(t, func() bool { return s.PendingRequests() == 2 }, time.Second, time.Millisecond)

	tr.deliver(t, resocket.TextFrame("broadcast"))

	assert.Equal(t, "broadcast", waitResult(t, first).reply)
	assert.Equal(t, "broadcast", waitResult(t, second).reply)
}

func TestSendTransformsBeforeIdentify(t *testing.T) {
	var identified any
	s, tr, _ := connectedSocket(t, func(b *SocketBuilder) {
		b.WithTransform(func(ctx context.Context, payload any) (any, error) {
			return "id1:" + payload.(string), nil
		}).
			WithDecode(stringDecode).
			WithIdentify(func(ctx context.Context, sent, reply any) (bool, error) {
				identified = sent
				return strings.HasPrefix(reply.(string), "id1:"), nil
			})
	})

	results := sendAsync(s, "status", time.Second)
	assert.Equal(t, "id1:status", tr.nextWrite(t).String())

	tr.deliver(t, resocket.TextFrame("id1:ok"))
	r := waitResult(t, results)
	require.NoError(t, r.err)
	assert.Equal(t, "id1:ok", r.reply)
	assert.Equal(t, "id1:status", identified)
}

func TestSendTimeout(t *testing.T) {
	s, tr, _ := connectedSocket(t)

	start := time.Now()
	_, err := s.SendWithTimeout(context.Background(), "hello", 50*time.Millisecond)
	require.ErrorIs(t, err, resocket.ErrSendTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, 0, s.PendingRequests())

	// A late reply reaches nobody.
	tr.nextWrite(t)
	tr.deliver(t, resocket.TextFrame("late"))
	assert.Equal(t, 0, s.PendingRequests())
}

func TestSendContextCancel(t *testing.T) {
	s, _, _ := connectedSocket(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := s.SendWithTimeout(ctx, "hello", time.Second)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, s.PendingRequests())
}

func TestSendHookErrors(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name      string
		configure func(b *SocketBuilder)
		payload   any
		expected  error
	}{
		{
			name: "transform",
			configure: func(b *SocketBuilder) {
				b.WithTransform(func(ctx context.Context, payload any) (any, error) { return nil, boom })
			},
			payload:  "x",
			expected: resocket.ErrTransform,
		},
		{
			name: "encode",
			configure: func(b *SocketBuilder) {
				b.WithEncode(func(ctx context.Context, payload any) (any, error) { return nil, boom })
			},
			payload:  "x",
			expected: resocket.ErrEncode,
		},
		{
			name:      "unsupported wire type",
			configure: func(b *SocketBuilder) {},
			payload:   42,
			expected:  resocket.ErrEncode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, _ := connectedSocket(t, tt.configure)

			_, err := s.SendWithTimeout(context.Background(), tt.payload, time.Second)
			require.ErrorIs(t, err, tt.expected)
			assert.Equal(t, 0, s.PendingRequests())
		})
	}
}

func TestSendWriteError(t *testing.T) {
	s, tr, _ := connectedSocket(t)

	boom := errors.New("broken pipe")
	tr.mu.Lock()
	tr.writeErr = boom
	tr.mu.Unlock()

	_, err := s.SendWithTimeout(context.Background(), "x", time.Second)
	require.ErrorIs(t, err, resocket.ErrTransport)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, s.PendingRequests())
}

func TestDecodeErrorFailsPendingRequests(t *testing.T) {
	s, tr, obs := connectedSocket(t, func(b *SocketBuilder) {
		b.WithDecode(func(ctx context.Context, frame resocket.Frame) (any, error) {
			if frame.String() == "garbage" {
				return nil, errors.New("malformed")
			}
			return frame.String(), nil
		})
	})

	results := sendAsync(s, "x", time.Second)
	tr.nextWrite(t)
	require.Eventually(t, func() bool { return s.PendingRequests() == 1 }, time.Second, time.Millisecond)

	tr.deliver(t, resocket.TextFrame("garbage"))

	r := waitResult(t, results)
	require.ErrorIs(t, r.err, resocket.ErrDecode)
	assert.Empty(t, obs.messages)

	// The connection survives.
	assert.Equal(t, resocket.StateConnected, s.State())
}

func TestIdentifyErrorFailsOnlyThatRequest(t *testing.T) {
	s, tr, _ := connectedSocket(t, func(b *SocketBuilder) {
		b.WithDecode(stringDecode).
			WithIdentify(func(ctx context.Context, sent, reply any) (bool, error) {
				if sent == "bad" {
					return false, errors.New("cannot compare")
				}
				return true, nil
			})
	})

	bad := sendAsync(s, "bad", time.Second)
	tr.nextWrite(t)
	good := sendAsync(s, "good", time.Second)
	tr.nextWrite(t)
	require.Eventually(t, func() bool { return s.PendingRequests() == 2 }, time.Second, time.Millisecond)

	tr.deliver(t, resocket.TextFrame("reply"))

	assert.ErrorIs(t, waitResult(t, bad).err, resocket.ErrIdentify)
	r := waitResult(t, good)
	require.NoError(t, r.err)
	assert.Equal(t, "reply", r.reply)
}

func TestSendFailsOnTerminalDisconnect(t *testing.T) {
	t.Run("caller disconnect", func(t *testing.T) {
		s, tr, _ := connectedSocket(t)

		results := sendAsync(s, "x", 5*time.Second)
		tr.nextWrite(t)
		require.Eventually(t, func() bool { return s.PendingRequests() == 1 }, time.Second, time.Millisecond)

		require.NoError(t, s.Disconnect(context.Background()))
		assert.ErrorIs(t, waitResult(t, results).err, resocket.ErrDisconnected)
	})

	t.Run("peer closes with final code", func(t *testing.T) {
		s, tr, _ := connectedSocket(t)

		results := sendAsync(s, "x", 5*time.Second)
		tr.nextWrite(t)
		require.Eventually(t, func() bool { return s.PendingRequests() == 1 }, time.Second, time.Millisecond)

		tr.peerClose(t, resocket.StatusNormalClosure)
		err := waitResult(t, results).err
		assert.ErrorIs(t, err, resocket.ErrDisconnected)
		var closeErr *resocket.CloseError
		assert.ErrorAs(t, err, &closeErr)
	})
}

func TestSendFailsWhenFirstConnectFails(t *testing.T) {
	d := newFakeDialer()
	d.fail = func(n int) error { return errors.New("refused") }
	s, _ := newTestSocket(t, d)

	_, err := s.Send(context.Background(), "x")
	assert.ErrorIs(t, err, resocket.ErrConnectionFailed)
}
