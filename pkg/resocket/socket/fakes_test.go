package socket

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tsarna/resocket/pkg/resocket"
)

type fakeTransport struct {
	mu       sync.Mutex
	handler  resocket.TransportHandler
	started  chan struct{}
	writes   chan resocket.Frame
	onWrite  func(t *fakeTransport, frame resocket.Frame)
	writeErr error

	closeOnce   sync.Once
	closed      chan struct{}
	closeCode   resocket.StatusCode
	closeReason string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		started: make(chan struct{}),
		writes:  make(chan resocket.Frame, 16),
		closed:  make(chan struct{}),
	}
}

func (t *fakeTransport) Start(handler resocket.TransportHandler) {
	t.mu.Lock()
	t.handler = handler
	t.mu.Unlock()
	close(t.started)
}

func (t *fakeTransport) Write(ctx context.Context, frame resocket.Frame) error {
	t.mu.Lock()
	err := t.writeErr
	onWrite := t.onWrite
	t.mu.Unlock()

	if err != nil {
		return err
	}
	t.writes <- frame
	if onWrite != nil {
		go onWrite(t, frame)
	}
	return nil
}

func (t *fakeTransport) Close(code resocket.StatusCode, reason string) error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closeCode = code
		t.closeReason = reason
		t.mu.Unlock()
		close(t.closed)
	})
	return nil
}

func (t *fakeTransport) waitStarted(tb testing.TB) resocket.TransportHandler {
	tb.Helper()
	select {
	case <-t.started:
	case <-time.After(time.Second):
		tb.Fatal("transport was never started")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handler
}

func (t *fakeTransport) handlerAfterStart() resocket.TransportHandler {
	<-t.started
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handler
}

func (t *fakeTransport) deliver(tb testing.TB, frame resocket.Frame) {
	tb.Helper()
	t.waitStarted(tb).OnMessage(frame)
}

func (t *fakeTransport) ping(tb testing.TB) {
	tb.Helper()
	t.waitStarted(tb).OnPing()
}

func (t *fakeTransport) peerClose(tb testing.TB, code resocket.StatusCode) {
	tb.Helper()
	t.waitStarted(tb).OnClose(code, nil)
}

func (t *fakeTransport) waitClosed(tb testing.TB) resocket.StatusCode {
	tb.Helper()
	select {
	case <-t.closed:
	case <-time.After(time.Second):
		tb.Fatal("transport was never closed")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeCode
}

func (t *fakeTransport) nextWrite(tb testing.TB) resocket.Frame {
	tb.Helper()
	select {
	case f := <-t.writes:
		return f
	case <-time.After(time.Second):
		tb.Fatal("no frame written")
		return resocket.Frame{}
	}
}

// fakeDialer hands out fakeTransports. fail decides, by 1-based dial
// number, whether a dial fails; dials numbered blockFrom or later wait for
// release or the dial context.
type fakeDialer struct {
	mu         sync.Mutex
	dials      int
	addresses  []string
	fail       func(n int) error
	blockFrom  int
	release    chan struct{}
	transports chan *fakeTransport
	prepare    func(t *fakeTransport)
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{
		release:    make(chan struct{}),
		transports: make(chan *fakeTransport, 16),
	}
}

func (d *fakeDialer) Dial(ctx context.Context, address string) (resocket.Transport, error) {
	d.mu.Lock()
	d.dials++
	n := d.dials
	d.addresses = append(d.addresses, address)
	fail := d.fail
	block := d.blockFrom > 0 && n >= d.blockFrom
	d.mu.Unlock()

	if block {
		select {
		case <-d.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if fail != nil {
		if err := fail(n); err != nil {
			return nil, err
		}
	}

	t := newFakeTransport()
	if d.prepare != nil {
		d.prepare(t)
	}
	d.transports <- t
	return t, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) nextTransport(tb testing.TB) *fakeTransport {
	tb.Helper()
	select {
	case t := <-d.transports:
		return t
	case <-time.After(2 * time.Second):
		tb.Fatal("no transport dialed")
		return nil
	}
}

type reconnectEvent struct {
	attempt int
	delay   time.Duration
}

type recordingObserver struct {
	connects    chan struct{}
	disconnects chan error
	reconnects  chan reconnectEvent
	messages    chan any
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{
		connects:    make(chan struct{}, 16),
		disconnects: make(chan error, 16),
		reconnects:  make(chan reconnectEvent, 16),
		messages:    make(chan any, 16),
	}
}

func (o *recordingObserver) OnConnect(ctx context.Context) {
	o.connects <- struct{}{}
}

func (o *recordingObserver) OnDisconnect(ctx context.Context, err error) {
	o.disconnects <- err
}

func (o *recordingObserver) OnReconnecting(ctx context.Context, attempt int, delay time.Duration) {
	o.reconnects <- reconnectEvent{attempt: attempt, delay: delay}
}

func (o *recordingObserver) OnMessage(ctx context.Context, message any) {
	o.messages <- message
}

func (o *recordingObserver) waitConnect(tb testing.TB) {
	tb.Helper()
	select {
	case <-o.connects:
	case <-time.After(2 * time.Second):
		tb.Fatal("no connect event")
	}
}

func (o *recordingObserver) waitDisconnect(tb testing.TB) error {
	tb.Helper()
	select {
	case err := <-o.disconnects:
		return err
	case <-time.After(2 * time.Second):
		tb.Fatal("no disconnect event")
		return nil
	}
}

func (o *recordingObserver) waitReconnecting(tb testing.TB) reconnectEvent {
	tb.Helper()
	select {
	case ev := <-o.reconnects:
		return ev
	case <-time.After(2 * time.Second):
		tb.Fatal("no reconnecting event")
		return reconnectEvent{}
	}
}

func (o *recordingObserver) waitMessage(tb testing.TB) any {
	tb.Helper()
	select {
	case m := <-o.messages:
		return m
	case <-time.After(time.Second):
		tb.Fatal("no message event")
		return nil
	}
}

// newTestSocket builds a socket on d with a deterministic, fast backoff.
func newTestSocket(t *testing.T, d *fakeDialer, configure ...func(b *SocketBuilder)) (*Socket, *recordingObserver) {
	t.Helper()

	obs := newRecordingObserver()
	b := NewSocket().
		WithURL("ws://example.test/ws").
		WithDialer(d).
		WithBackoff(BackoffConfig{Initial: 10 * time.Millisecond, Max: 50 * time.Millisecond}).
		WithJitterSource(func() float64 { return 0 }).
		WithObserver(obs)
	for _, c := range configure {
		c(b)
	}

	s, err := b.Build()
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = s.Disconnect(context.Background())
	})

	return s, obs
}
