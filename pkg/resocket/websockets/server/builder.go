package server

import (
	"context"
	"fmt"
	"time"

	"github.com/tsarna/resocket/pkg/resocket"
	"github.com/tsarna/resocket/pkg/resocket/o11y"
	"go.uber.org/zap"
)

// Handler answers one inbound message. The returned frames are sent back to
// the same client in order; returning none sends nothing. An error is
// logged and the connection stays open.
type Handler func(ctx context.Context, frame resocket.Frame) ([]resocket.Frame, error)

// Echo returns every message unchanged.
func Echo(ctx context.Context, frame resocket.Frame) ([]resocket.Frame, error) {
	return []resocket.Frame{frame}, nil
}

// ListenerBuilder provides a fluent interface for building listeners.
type ListenerBuilder struct {
	logger          *zap.Logger
	handler         Handler
	pingInterval    time.Duration
	writeTimeout    time.Duration
	readLimit       int64
	queueSize       int
	subprotocols    []string
	originPatterns  []string
	metricsProvider o11y.MetricsProvider
}

// NewListener creates a new listener builder with an echo handler.
func NewListener() *ListenerBuilder {
	return &ListenerBuilder{
		logger:       zap.NewNop(),
		handler:      Echo,
		writeTimeout: 10 * time.Second,
		readLimit:    32768,
		queueSize:    100,
	}
}

// WithLogger sets the logger for the listener.
func (b *ListenerBuilder) WithLogger(logger *zap.Logger) *ListenerBuilder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// WithHandler sets the function answering inbound messages.
func (b *ListenerBuilder) WithHandler(handler Handler) *ListenerBuilder {
	b.handler = handler
	return b
}

// WithPingInterval sets how often ping frames are sent to each client.
// Zero disables pings.
func (b *ListenerBuilder) WithPingInterval(interval time.Duration) *ListenerBuilder {
	if interval >= 0 {
		b.pingInterval = interval
	}
	return b
}

// WithWriteTimeout bounds each write and ping.
func (b *ListenerBuilder) WithWriteTimeout(timeout time.Duration) *ListenerBuilder {
	if timeout > 0 {
		b.writeTimeout = timeout
	}
	return b
}

// WithReadLimit sets the largest inbound message in bytes.
func (b *ListenerBuilder) WithReadLimit(limit int64) *ListenerBuilder {
	if limit > 0 {
		b.readLimit = limit
	}
	return b
}

// WithQueueSize sets the per-connection outbound queue size.
func (b *ListenerBuilder) WithQueueSize(size int) *ListenerBuilder {
	if size > 0 {
		b.queueSize = size
	}
	return b
}

// WithSubprotocols sets the subprotocols the listener negotiates.
func (b *ListenerBuilder) WithSubprotocols(subprotocols ...string) *ListenerBuilder {
	b.subprotocols = append([]string(nil), subprotocols...)
	return b
}

// WithOriginPatterns authorizes cross-origin clients.
func (b *ListenerBuilder) WithOriginPatterns(patterns ...string) *ListenerBuilder {
	b.originPatterns = append([]string(nil), patterns...)
	return b
}

// WithMetrics sets the metrics provider. If nil, no metrics are recorded.
func (b *ListenerBuilder) WithMetrics(provider o11y.MetricsProvider) *ListenerBuilder {
	b.metricsProvider = provider
	return b
}

// Build creates and returns a new listener.
func (b *ListenerBuilder) Build() (*Listener, error) {
	if err := b.IsValid(); err != nil {
		return nil, err
	}
	return newListener(b), nil
}

// IsValid checks that all required configuration is present.
func (b *ListenerBuilder) IsValid() error {
	if b.handler == nil {
		return fmt.Errorf("handler is required")
	}

	if b.logger == nil {
		b.logger = zap.NewNop()
	}

	if b.queueSize <= 0 {
		b.queueSize = 100
	}

	return nil
}
