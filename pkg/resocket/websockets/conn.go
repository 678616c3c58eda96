package websockets

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/tsarna/resocket/pkg/resocket"
	"go.uber.org/zap"
)

// Conn is one WebSocket connection. It implements resocket.Transport.
type Conn struct {
	conn         *websocket.Conn
	logger       *zap.Logger
	writeTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	handler   resocket.TransportHandler
	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
}

func newConn(logger *zap.Logger, writeTimeout time.Duration) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		logger:       logger,
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
}

func (c *Conn) attach(conn *websocket.Conn) {
	c.conn = conn
}

// Start begins reading from the connection and delivering events to handler.
// Only the first call has any effect.
func (c *Conn) Start(handler resocket.TransportHandler) {
	c.startOnce.Do(func() {
		c.mu.Lock()
		c.handler = handler
		c.mu.Unlock()

		go c.readLoop()
	})
}

// Done is closed when the read loop has exited.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// pingReceived is called from inside Read, so it never runs concurrently
// with the other handler calls.
func (c *Conn) pingReceived() {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()

	if h != nil {
		h.OnPing()
	}
}

func (c *Conn) readLoop() {
	defer close(c.done)
	defer c.logger.Debug("WebSocket read loop stopped")

	for {
		typ, data, err := c.conn.Read(c.ctx)
		if err != nil {
			code, cause := closeReason(err)
			if code == resocket.StatusAbnormalClosure && c.ctx.Err() == nil {
				c.logger.Warn("WebSocket connection lost", zap.Error(err))
				c.handler.OnError(err)
			} else {
				c.logger.Debug("WebSocket connection closed", zap.Int("close_status", int(code)))
			}
			c.handler.OnClose(code, cause)
			return
		}

		c.handler.OnMessage(resocket.Frame{Type: messageType(typ), Data: data})
	}
}

// closeReason maps a read error to the close code to report. Without a close
// frame the connection counts as abnormally closed.
func closeReason(err error) (resocket.StatusCode, error) {
	var closeErr websocket.CloseError
	if errors.As(err, &closeErr) {
		if closeErr.Reason != "" {
			return resocket.StatusCode(closeErr.Code), errors.New(closeErr.Reason)
		}
		return resocket.StatusCode(closeErr.Code), nil
	}
	return resocket.StatusAbnormalClosure, err
}

// Write sends frame as a single WebSocket message.
func (c *Conn) Write(ctx context.Context, frame resocket.Frame) error {
	if c.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.writeTimeout)
		defer cancel()
	}

	typ := websocket.MessageText
	if frame.Type == resocket.MessageBinary {
		typ = websocket.MessageBinary
	}

	if err := c.conn.Write(ctx, typ, frame.Data); err != nil {
		c.reportError(err)
		return err
	}
	return nil
}

// reportError passes a failure that did not come from the read loop to the
// handler, if one has been started.
func (c *Conn) reportError(err error) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()

	if h != nil && c.ctx.Err() == nil {
		h.OnError(err)
	}
}

// Close performs the closing handshake with code and reason, then stops
// the read loop.
func (c *Conn) Close(code resocket.StatusCode, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close(websocket.StatusCode(code), reason)
		c.cancel()
		c.logger.Debug("WebSocket closed", zap.Int("close_status", int(code)), zap.String("reason", reason))
	})
	return err
}

func messageType(typ websocket.MessageType) resocket.MessageType {
	if typ == websocket.MessageBinary {
		return resocket.MessageBinary
	}
	return resocket.MessageText
}
