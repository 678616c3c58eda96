package server

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsarna/resocket/pkg/resocket"
)

func startServer(t *testing.T, b *ListenerBuilder) (*Listener, string) {
	t.Helper()

	l, err := b.Build()
	require.NoError(t, err)

	srv := httptest.NewServer(l)
	t.Cleanup(srv.Close)

	return l, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) (websocket.MessageType, string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	typ, data, err := conn.Read(ctx)
	require.NoError(t, err)
	return typ, string(data)
}

func TestListenerBuilder(t *testing.T) {
	t.Run("handler is required", func(t *testing.T) {
		_, err := NewListener().WithHandler(nil).Build()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "handler is required")
	})

	t.Run("defaults", func(t *testing.T) {
		l, err := NewListener().Build()
		require.NoError(t, err)
		assert.Equal(t, 0, l.ConnectionCount())
		assert.Equal(t, time.Duration(0), l.pingInterval)
		assert.Nil(t, l.metrics)
	})
}

func TestListenerEcho(t *testing.T) {
	_, url := startServer(t, NewListener())
	conn := dial(t, url)

	ctx := context.Background()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("hello")))
	typ, data := read(t, conn)
	assert.Equal(t, websocket.MessageText, typ)
	assert.Equal(t, "hello", data)

	require.NoError(t, conn.Write(ctx, websocket.MessageBinary, []byte{1, 2, 3}))
	typ, data = read(t, conn)
	assert.Equal(t, websocket.MessageBinary, typ)
	assert.Equal(t, string([]byte{1, 2, 3}), data)
}

func TestListenerCustomHandler(t *testing.T) {
	handler := func(ctx context.Context, frame resocket.Frame) ([]resocket.Frame, error) {
		switch frame.String() {
		case "fail":
			return nil, errors.New("nope")
		case "silent":
			return nil, nil
		default:
			return []resocket.Frame{
				resocket.TextFrame("ack"),
				resocket.TextFrame(strings.ToUpper(frame.String())),
			}, nil
		}
	}

	_, url := startServer(t, NewListener().WithHandler(handler))
	conn := dial(t, url)

	ctx := context.Background()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("fail")))
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("silent")))
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("play")))

	_, data := read(t, conn)
	assert.Equal(t, "ack", data)
	_, data = read(t, conn)
	assert.Equal(t, "PLAY", data)
}

func TestListenerBroadcastAndCount(t *testing.T) {
	l, url := startServer(t, NewListener())
	first := dial(t, url)
	second := dial(t, url)

	require.Eventually(t, func() bool { return l.ConnectionCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 2, l.Broadcast(resocket.TextFrame("news")))

	_, data := read(t, first)
	assert.Equal(t, "news", data)
	_, data = read(t, second)
	assert.Equal(t, "news", data)
}

func TestListenerCloseAll(t *testing.T) {
	l, url := startServer(t, NewListener())
	conn := dial(t, url)
	require.Eventually(t, func() bool { return l.ConnectionCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, l.CloseAll(resocket.StatusServiceRestart, "restart"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	assert.Equal(t, websocket.StatusServiceRestart, websocket.CloseStatus(err))

	require.Eventually(t, func() bool { return l.ConnectionCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestListenerShutdown(t *testing.T) {
	l, url := startServer(t, NewListener())
	conn := dial(t, url)
	require.Eventually(t, func() bool { return l.ConnectionCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	readErr := make(chan error, 1)
	go func() {
		_, _, err := conn.Read(context.Background())
		readErr <- err
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, l.Shutdown(ctx))
	assert.Equal(t, 0, l.ConnectionCount())

	select {
	case err := <-readErr:
		assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
	case <-time.After(2 * time.Second):
		t.Fatal("client was not closed")
	}

	// New connections are turned away.
	late := dial(t, url)
	_, _, err := late.Read(ctx)
	assert.Equal(t, websocket.StatusServiceRestart, websocket.CloseStatus(err))
}

func TestListenerPings(t *testing.T) {
	_, url := startServer(t, NewListener().WithPingInterval(20*time.Millisecond))

	pings := make(chan struct{}, 16)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		OnPingReceived: func(ctx context.Context, payload []byte) bool {
			select {
			case pings <- struct{}{}:
			default:
			}
			return true
		},
	})
	require.NoError(t, err)
	defer conn.CloseNow()

	// Pings are only processed while reading.
	go conn.Read(ctx)

	select {
	case <-pings:
	case <-time.After(time.Second):
		t.Fatal("no ping received")
	}
}
