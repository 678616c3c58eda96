package server

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/tsarna/resocket/pkg/resocket"
	"go.uber.org/zap"
)

// connection serves one accepted client. All writes go through the sender
// goroutine.
type connection struct {
	ctx      context.Context
	cancel   context.CancelFunc
	conn     *websocket.Conn
	listener *Listener
	logger   *zap.Logger

	outbound chan resocket.Frame
	done     chan struct{}

	cleanupOnce sync.Once
	closeOnce   sync.Once
}

func newConnection(ctx context.Context, conn *websocket.Conn, l *Listener, logger *zap.Logger) *connection {
	ctx, cancel := context.WithCancel(ctx)
	return &connection{
		ctx:      ctx,
		cancel:   cancel,
		conn:     conn,
		listener: l,
		logger:   logger,
		outbound: make(chan resocket.Frame, l.queueSize),
		done:     make(chan struct{}),
	}
}

// start runs the connection until it closes.
func (c *connection) start() {
	go c.messageSender()

	c.messageReader()

	c.cleanup()
}

func (c *connection) messageSender() {
	defer c.logger.Debug("Message sender goroutine stopped")

	var pingChan <-chan time.Time
	if c.listener.pingInterval > 0 {
		pingTicker := time.NewTicker(c.listener.pingInterval)
		defer pingTicker.Stop()
		pingChan = pingTicker.C
	}

	for {
		select {
		case frame := <-c.outbound:
			typ := websocket.MessageText
			if frame.Type == resocket.MessageBinary {
				typ = websocket.MessageBinary
			}

			writeCtx, cancel := context.WithTimeout(c.ctx, c.listener.writeTimeout)
			err := c.conn.Write(writeCtx, typ, frame.Data)
			cancel()

			if err != nil {
				c.logger.Error("Failed to send WebSocket message", zap.Error(err))
				if websocket.CloseStatus(err) != -1 {
					return
				}
				continue
			}
			c.listener.metrics.RecordMessageSent(c.ctx)

		case <-pingChan:
			pingCtx, cancel := context.WithTimeout(c.ctx, c.listener.writeTimeout)
			err := c.conn.Ping(pingCtx)
			cancel()

			c.listener.metrics.RecordPing(c.ctx, err)
			if err != nil {
				c.logger.Debug("Failed to send ping", zap.Error(err))
				return
			}

		case <-c.done:
			return
		}
	}
}

func (c *connection) messageReader() {
	defer c.logger.Debug("Message reader stopped")

	c.conn.SetReadLimit(c.listener.readLimit)

	for {
		typ, data, err := c.conn.Read(c.ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != -1 {
				c.logger.Debug("WebSocket connection closed by client",
					zap.Int("close_status", int(status)),
				)
			} else {
				c.logger.Debug("WebSocket read ended", zap.Error(err))
			}
			return
		}

		c.listener.metrics.RecordMessageReceived(c.ctx)

		frame := resocket.Frame{Type: resocket.MessageText, Data: data}
		if typ == websocket.MessageBinary {
			frame.Type = resocket.MessageBinary
		}

		replies, err := c.listener.handler(c.ctx, frame)
		if err != nil {
			c.logger.Warn("Handler failed", zap.Error(err))
			c.listener.metrics.RecordHandlerError(c.ctx)
			continue
		}

		for _, reply := range replies {
			c.enqueue(reply)
		}
	}
}

// enqueue queues frame for sending without blocking.
func (c *connection) enqueue(frame resocket.Frame) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.outbound <- frame:
		return true
	default:
		c.logger.Warn("Outbound queue full, dropping message")
		return false
	}
}

// close performs the closing handshake with code.
func (c *connection) close(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		if err := c.conn.Close(code, reason); err != nil {
			c.logger.Debug("Error closing WebSocket connection", zap.Error(err))
		}
	})
}

func (c *connection) cleanup() {
	c.cleanupOnce.Do(func() {
		close(c.done)
		c.cancel()
		c.conn.CloseNow()
	})
}
