package server

import (
	"context"
	"time"

	"github.com/tsarna/resocket/pkg/resocket/o11y"
)

// ServerMetrics holds the instruments recorded by a Listener. A nil
// *ServerMetrics records nothing.
type ServerMetrics struct {
	// Connection metrics
	activeConnections  o11y.Gauge     // Current number of active WebSocket connections
	totalConnections   o11y.Counter   // Total number of connections established
	connectionDuration o11y.Histogram // Duration of WebSocket connections
	connectionErrors   o11y.Counter   // Number of connection errors (upgrade failures, etc.)

	// Message metrics
	messagesReceived o11y.Counter
	messagesSent     o11y.Counter
	handlerErrors    o11y.Counter

	// Health metrics
	pingsSent    o11y.Counter
	pingFailures o11y.Counter
}

// NewServerMetrics creates the listener instruments from provider. If the
// provider is nil, returns nil (no metrics will be collected).
func NewServerMetrics(provider o11y.MetricsProvider) *ServerMetrics {
	if provider == nil {
		return nil
	}

	return &ServerMetrics{
		activeConnections:  provider.Gauge("websocket_active_connections"),
		totalConnections:   provider.Counter("websocket_connections_total"),
		connectionDuration: provider.Histogram("websocket_connection_duration_seconds"),
		connectionErrors:   provider.Counter("websocket_connection_errors_total"),

		messagesReceived: provider.Counter("websocket_messages_received_total"),
		messagesSent:     provider.Counter("websocket_messages_sent_total"),
		handlerErrors:    provider.Counter("websocket_handler_errors_total"),

		pingsSent:    provider.Counter("websocket_pings_sent_total"),
		pingFailures: provider.Counter("websocket_ping_failures_total"),
	}
}

// RecordConnectionStart records when a new WebSocket connection is established.
func (m *ServerMetrics) RecordConnectionStart(ctx context.Context, active int) {
	if m == nil {
		return
	}
	m.totalConnections.Add(ctx, 1)
	m.activeConnections.Set(ctx, float64(active))
}

// RecordConnectionEnd records when a WebSocket connection is closed.
func (m *ServerMetrics) RecordConnectionEnd(ctx context.Context, duration time.Duration, active int) {
	if m == nil {
		return
	}
	m.connectionDuration.Record(ctx, duration.Seconds())
	m.activeConnections.Set(ctx, float64(active))
}

// RecordConnectionError records a failed upgrade.
func (m *ServerMetrics) RecordConnectionError(ctx context.Context) {
	if m == nil {
		return
	}
	m.connectionErrors.Add(ctx, 1)
}

// RecordMessageReceived records an inbound message.
func (m *ServerMetrics) RecordMessageReceived(ctx context.Context) {
	if m == nil {
		return
	}
	m.messagesReceived.Add(ctx, 1)
}

// RecordMessageSent records an outbound message.
func (m *ServerMetrics) RecordMessageSent(ctx context.Context) {
	if m == nil {
		return
	}
	m.messagesSent.Add(ctx, 1)
}

// RecordHandlerError records a handler failure.
func (m *ServerMetrics) RecordHandlerError(ctx context.Context) {
	if m == nil {
		return
	}
	m.handlerErrors.Add(ctx, 1)
}

// RecordPing records the outcome of a ping.
func (m *ServerMetrics) RecordPing(ctx context.Context, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.pingFailures.Add(ctx, 1)
		return
	}
	m.pingsSent.Add(ctx, 1)
}
