package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/tsarna/resocket/pkg/resocket"
	"go.uber.org/zap"
)

// Listener accepts WebSocket connections and answers their messages with a
// Handler. It implements http.Handler.
type Listener struct {
	logger         *zap.Logger
	handler        Handler
	pingInterval   time.Duration
	writeTimeout   time.Duration
	readLimit      int64
	queueSize      int
	subprotocols   []string
	originPatterns []string
	metrics        *ServerMetrics

	// Connection tracking for graceful shutdown
	connections  map[*connection]struct{}
	connMutex    sync.RWMutex
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

func newListener(b *ListenerBuilder) *Listener {
	return &Listener{
		logger:         b.logger,
		handler:        b.handler,
		pingInterval:   b.pingInterval,
		writeTimeout:   b.writeTimeout,
		readLimit:      b.readLimit,
		queueSize:      b.queueSize,
		subprotocols:   b.subprotocols,
		originPatterns: b.originPatterns,
		metrics:        NewServerMetrics(b.metricsProvider),
		connections:    make(map[*connection]struct{}),
		shutdown:       make(chan struct{}),
	}
}

// ServeHTTP upgrades the request to a WebSocket connection and serves it
// until it closes.
func (l *Listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	l.ServeWebsocket(w, r)
}

// ServeWebsocket handles incoming HTTP requests and upgrades them to WebSocket connections.
// This method can be plugged directly into HTTP routers.
//
//	http.HandleFunc("/ws", listener.ServeWebsocket)
func (l *Listener) ServeWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:    l.subprotocols,
		OriginPatterns:  l.originPatterns,
		CompressionMode: websocket.CompressionContextTakeover,
	})
	if err != nil {
		l.logger.Error("Failed to accept WebSocket connection",
			zap.Error(err),
			zap.String("remote_addr", r.RemoteAddr),
			zap.String("user_agent", r.UserAgent()),
		)
		l.metrics.RecordConnectionError(r.Context())
		return
	}

	// Check if we're shutting down
	select {
	case <-l.shutdown:
		l.logger.Debug("Rejecting new connection due to shutdown")
		conn.Close(websocket.StatusServiceRestart, "Server shutting down")
		return
	default:
	}

	c := newConnection(r.Context(), conn, l, l.logger.With(zap.String("remote_addr", r.RemoteAddr)))

	l.connMutex.Lock()
	l.connections[c] = struct{}{}
	connCount := len(l.connections)
	l.connMutex.Unlock()

	l.logger.Debug("WebSocket connection established",
		zap.String("remote_addr", r.RemoteAddr),
		zap.String("subprotocol", conn.Subprotocol()),
		zap.Int("active_connections", connCount),
	)
	l.metrics.RecordConnectionStart(r.Context(), connCount)

	start := time.Now()
	c.start()

	l.connMutex.Lock()
	delete(l.connections, c)
	connCount = len(l.connections)
	l.connMutex.Unlock()

	l.logger.Debug("WebSocket connection removed from tracking",
		zap.String("remote_addr", r.RemoteAddr),
		zap.Int("active_connections", connCount),
	)
	l.metrics.RecordConnectionEnd(context.Background(), time.Since(start), connCount)
}

func (l *Listener) snapshot() []*connection {
	l.connMutex.RLock()
	defer l.connMutex.RUnlock()

	connections := make([]*connection, 0, len(l.connections))
	for c := range l.connections {
		connections = append(connections, c)
	}
	return connections
}

// Broadcast queues frame for every connected client and returns how many
// clients it was queued for.
func (l *Listener) Broadcast(frame resocket.Frame) int {
	n := 0
	for _, c := range l.snapshot() {
		if c.enqueue(frame) {
			n++
		}
	}
	return n
}

// CloseAll closes every active connection with code and reason without
// shutting the listener down. Returns the number of connections closed.
func (l *Listener) CloseAll(code resocket.StatusCode, reason string) int {
	connections := l.snapshot()
	for _, c := range connections {
		go c.close(websocket.StatusCode(code), reason)
	}
	return len(connections)
}

// Shutdown gracefully closes all active WebSocket connections and stops accepting new ones.
//
// The shutdown process:
//  1. Stop accepting new connections (returns StatusServiceRestart)
//  2. Close all active connections with StatusGoingAway
//  3. Wait for all connections to finish cleanup
//
// This method blocks until all connections are closed or the context is cancelled.
func (l *Listener) Shutdown(ctx context.Context) error {
	l.shutdownOnce.Do(func() {
		l.logger.Info("Starting graceful WebSocket shutdown")

		close(l.shutdown)

		connections := l.snapshot()
		if len(connections) == 0 {
			l.logger.Info("No active connections to close")
			return
		}

		l.logger.Info("Closing active WebSocket connections",
			zap.Int("connection_count", len(connections)),
		)

		for _, c := range connections {
			go c.close(websocket.StatusGoingAway, "Server shutting down")
		}
	})

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		remaining := l.ConnectionCount()
		if remaining == 0 {
			l.logger.Info("All WebSocket connections closed successfully")
			return nil
		}

		select {
		case <-ctx.Done():
			l.logger.Warn("Shutdown timeout reached with active connections",
				zap.Int("remaining_connections", remaining),
			)
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ConnectionCount returns the current number of active WebSocket connections.
func (l *Listener) ConnectionCount() int {
	l.connMutex.RLock()
	defer l.connMutex.RUnlock()
	return len(l.connections)
}
