package socket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tsarna/resocket/pkg/resocket"
	"github.com/tsarna/resocket/pkg/resocket/o11y"
	"go.uber.org/zap"
)

// Socket is a persistent duplex connection that reconnects after failures,
// watches liveness and correlates replies with sent payloads.
//
// Build one with NewSocket. A Socket is safe for concurrent use and can be
// connected and disconnected any number of times.
type Socket struct {
	// Configuration
	name                 string
	address              resocket.AddressFunc
	dialer               resocket.Dialer
	closeCodes           map[resocket.StatusCode]struct{}
	heartbeat            time.Duration
	connectTimeout       time.Duration
	sendTimeout          time.Duration
	maxReconnectAttempts int
	backoff              *Backoff

	transform resocket.TransformFunc
	encode    resocket.EncodeFunc
	decode    resocket.DecodeFunc
	identify  resocket.IdentifyFunc

	logger  *zap.Logger
	metrics *SocketMetrics
	tracer  o11y.TracingProvider

	// Connection state
	mu               sync.Mutex
	state            resocket.State
	transport        resocket.Transport
	generation       uint64 // bumped whenever a transport is installed or detached
	pending          *connectOp
	reconnectAttempt int
	heartbeatTimer   *time.Timer
	heartbeatSeq     uint64
	reconnectTimer   *time.Timer
	reconnectSeq     uint64

	requests  requestSet
	observers observerSet
}

// connectOp is the result of a connection cycle shared by every caller
// that asks to connect while it is in flight.
type connectOp struct {
	done chan struct{}
	err  error
	once sync.Once
}

func newConnectOp() *connectOp {
	return &connectOp{done: make(chan struct{})}
}

func (op *connectOp) resolve(err error) {
	op.once.Do(func() {
		op.err = err
		close(op.done)
	})
}

func (op *connectOp) wait(ctx context.Context) error {
	select {
	case <-op.done:
		return op.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Name returns the socket name.
func (s *Socket) Name() string {
	return s.name
}

// State returns the current connection state.
func (s *Socket) State() resocket.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ReconnectAttempt returns the number of reconnect attempts made since the
// last successful connection.
func (s *Socket) ReconnectAttempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnectAttempt
}

// PendingRequests returns the number of Send calls waiting for a reply.
func (s *Socket) PendingRequests() int {
	return s.requests.count()
}

// Subscribe registers observer for socket events and returns a function
// that removes it. The returned function may be called more than once.
func (s *Socket) Subscribe(observer resocket.Observer) func() {
	return s.observers.subscribe(observer)
}

// Connect connects the socket using the configured connect timeout.
func (s *Socket) Connect(ctx context.Context) error {
	return s.ConnectWithTimeout(ctx, s.connectTimeout)
}

// ConnectWithTimeout makes sure the socket is connected. It returns at once
// when a transport is live. Otherwise it joins the attempt or reconnect
// cycle in flight, or starts a new attempt bounded by timeout.
//
// Cancelling ctx abandons this caller's wait but not the attempt itself.
func (s *Socket) ConnectWithTimeout(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = s.connectTimeout
	}

	s.mu.Lock()
	if s.state == resocket.StateConnected && s.transport != nil {
		s.mu.Unlock()
		return nil
	}

	op := s.pending
	if op == nil {
		op = newConnectOp()
		s.pending = op
		s.setStateLocked(resocket.StateConnecting)
		go s.attempt(context.WithoutCancel(ctx), op, timeout)
	}
	s.mu.Unlock()

	return op.wait(ctx)
}

// attempt performs one connection attempt on behalf of op.
func (s *Socket) attempt(ctx context.Context, op *connectOp, timeout time.Duration) {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	tr, err := s.dial(dialCtx)
	if err != nil && dialCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		err = fmt.Errorf("%w after %v: %w", resocket.ErrConnectTimeout, timeout, err)
	}
	s.metrics.RecordConnect(ctx, time.Since(start), err)

	s.mu.Lock()
	if s.pending != op {
		// Disconnected while dialing.
		s.mu.Unlock()
		if tr != nil {
			go s.closeTransport(tr, resocket.StatusNormalClosure, "client disconnect")
		}
		return
	}

	if err != nil {
		s.attemptFailedLocked(ctx, op, err)
		return
	}

	s.generation++
	gen := s.generation
	s.transport = tr
	s.pending = nil
	s.reconnectAttempt = 0
	s.setStateLocked(resocket.StateConnected)
	s.armHeartbeatLocked()
	s.mu.Unlock()

	s.logger.Info("Socket connected")

	// Start reading before observers run.
	tr.Start(&transportHandler{socket: s, gen: gen})

	op.resolve(nil)
	s.emitConnect(ctx)
}

func (s *Socket) dial(ctx context.Context) (resocket.Transport, error) {
	address, err := s.address(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve address: %w", err)
	}

	s.logger.Debug("Dialing", zap.String("address", address))

	return s.dialer.Dial(ctx, address)
}

// attemptFailedLocked handles a failed attempt. Called with s.mu held;
// releases it.
func (s *Socket) attemptFailedLocked(ctx context.Context, op *connectOp, err error) {
	if s.reconnectAttempt == 0 {
		// The first attempt of a cycle is never retried.
		s.pending = nil
		s.stopTimersLocked()
		s.setStateLocked(resocket.StateDisconnected)
		s.mu.Unlock()

		reason := "connect_timeout"
		if errors.Is(err, resocket.ErrConnectTimeout) {
			s.logger.Warn("Connection attempt timed out", zap.Error(err))
		} else {
			reason = "connect_failed"
			err = fmt.Errorf("%w: %w", resocket.ErrConnectionFailed, err)
			s.logger.Warn("Connection attempt failed", zap.Error(err))
		}

		s.metrics.RecordDisconnect(ctx, reason)
		op.resolve(err)
		s.emitDisconnect(ctx, err)
		return
	}

	s.logger.Warn("Reconnect attempt failed",
		zap.Int("attempt", s.reconnectAttempt),
		zap.Error(err))

	s.reconnectOrGiveUpLocked(ctx, err)
}

// reconnectOrGiveUpLocked schedules the next reconnect attempt, or ends the
// socket when the attempt budget is spent. Called with s.mu held; releases it.
func (s *Socket) reconnectOrGiveUpLocked(ctx context.Context, cause error) {
	if s.reconnectAttempt > s.maxReconnectAttempts {
		err := fmt.Errorf("%w: %w", resocket.ErrReconnectExhausted, cause)
		s.terminateLocked(ctx, err, "reconnect_exhausted")
		return
	}

	delay := s.backoff.Delay(s.reconnectAttempt)
	s.reconnectAttempt++
	attempt := s.reconnectAttempt

	if s.pending == nil {
		s.pending = newConnectOp()
	}
	s.setStateLocked(resocket.StateReconnecting)

	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
	}
	s.reconnectSeq++
	seq := s.reconnectSeq
	s.reconnectTimer = time.AfterFunc(delay, func() {
		s.reconnectTimerFired(seq)
	})
	s.mu.Unlock()

	s.logger.Info("Reconnect scheduled",
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay),
		zap.NamedError("cause", cause))
	s.metrics.RecordReconnectScheduled(ctx)

	s.emitReconnecting(ctx, attempt, delay)
}

func (s *Socket) reconnectTimerFired(seq uint64) {
	s.mu.Lock()
	if seq != s.reconnectSeq || s.reconnectTimer == nil || s.state != resocket.StateReconnecting {
		s.mu.Unlock()
		return
	}
	s.reconnectTimer = nil
	op := s.pending
	s.setStateLocked(resocket.StateConnecting)
	s.mu.Unlock()

	s.attempt(context.Background(), op, s.connectTimeout)
}

// connectionLost handles the loss of the transport of generation gen.
func (s *Socket) connectionLost(gen uint64, code resocket.StatusCode, cause error) {
	ctx := context.Background()

	s.mu.Lock()
	if gen != s.generation || s.transport == nil {
		s.mu.Unlock()
		return
	}
	s.detachLocked(ctx)

	closeErr := &resocket.CloseError{Code: code, Err: cause}
	if _, final := s.closeCodes[code]; final {
		s.logger.Info("Connection closed", zap.Int("code", int(code)), zap.NamedError("cause", cause))
		s.terminateLocked(ctx, closeErr, "closed")
		return
	}

	s.logger.Warn("Connection lost", zap.Int("code", int(code)), zap.NamedError("cause", cause))
	s.reconnectOrGiveUpLocked(ctx, closeErr)
}

// terminateLocked moves the socket to Disconnected, failing the pending
// connection cycle and every outstanding request with err. Called with
// s.mu held; releases it.
func (s *Socket) terminateLocked(ctx context.Context, err error, reason string) {
	op := s.pending
	s.pending = nil
	s.reconnectAttempt = 0
	s.stopTimersLocked()
	s.setStateLocked(resocket.StateDisconnected)
	s.mu.Unlock()

	s.logger.Info("Socket disconnected", zap.String("reason", reason), zap.Error(err))
	s.metrics.RecordDisconnect(ctx, reason)

	if op != nil {
		op.resolve(err)
	}
	s.requests.failAll(fmt.Errorf("%w: %w", resocket.ErrDisconnected, err))
	s.emitDisconnect(ctx, err)
}

// Disconnect closes the socket with status 1000 and waits for the closing
// handshake. Any attempt in flight is abandoned and outstanding requests
// fail with ErrDisconnected. It is a no-op when nothing is active.
func (s *Socket) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case resocket.StateIdle, resocket.StateDisconnected:
		s.mu.Unlock()
		return nil
	}

	tr := s.transport
	if tr != nil {
		s.detachLocked(ctx)
	}
	op := s.pending
	s.pending = nil
	s.reconnectAttempt = 0
	s.stopTimersLocked()
	s.setStateLocked(resocket.StateDisconnected)
	s.mu.Unlock()

	s.logger.Info("Disconnecting socket")
	s.metrics.RecordDisconnect(ctx, "client")

	if op != nil {
		op.resolve(resocket.ErrDisconnected)
	}
	s.requests.failAll(resocket.ErrDisconnected)

	var err error
	if tr != nil {
		done := make(chan struct{})
		go func() {
			defer close(done)
			s.closeTransport(tr, resocket.StatusNormalClosure, "client disconnect")
		}()

		select {
		case <-done:
		case <-ctx.Done():
			err = ctx.Err()
		}
	}

	s.emitDisconnect(ctx, nil)

	return err
}

func (s *Socket) closeTransport(tr resocket.Transport, code resocket.StatusCode, reason string) {
	if err := tr.Close(code, reason); err != nil {
		s.logger.Debug("Error closing transport", zap.Int("code", int(code)), zap.Error(err))
	}
}

// detachLocked drops the live transport. Events still arriving from it are
// ignored afterwards.
func (s *Socket) detachLocked(ctx context.Context) {
	s.transport = nil
	s.generation++
	s.stopHeartbeatLocked()
	s.metrics.RecordConnectionLost(ctx)
}

func (s *Socket) stopTimersLocked() {
	s.stopHeartbeatLocked()
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	s.reconnectSeq++
}

func (s *Socket) setStateLocked(state resocket.State) {
	if s.state == state {
		return
	}
	s.logger.Debug("Socket state changed",
		zap.Stringer("from", s.state),
		zap.Stringer("to", state))
	s.state = state
}
