package socket

import (
	"context"
	"time"

	"github.com/tsarna/resocket/pkg/resocket/o11y"
)

// SocketMetrics holds the instruments recorded by a Socket. A nil
// *SocketMetrics records nothing.
type SocketMetrics struct {
	labels []o11y.Label

	// Connection metrics
	connects          o11y.Counter   // Successful connection attempts
	connectFailures   o11y.Counter   // Failed connection attempts (including timeouts)
	connectDuration   o11y.Histogram // Time spent dialing
	reconnects        o11y.Counter   // Scheduled reconnect attempts
	disconnects       o11y.Counter   // Terminal disconnects
	connected         o11y.Gauge     // 1 while a transport is live
	heartbeatTimeouts o11y.Counter   // Transports dropped for missing liveness signals

	// Message metrics
	messagesReceived o11y.Counter
	messagesSent     o11y.Counter
	messageSize      o11y.Histogram
	decodeErrors     o11y.Counter
	transportErrors  o11y.Counter

	// Request metrics
	requestDuration o11y.Histogram
	requestTimeouts o11y.Counter
	requestErrors   o11y.Counter
	pendingRequests o11y.Gauge
}

// NewSocketMetrics creates the socket instruments from provider. If the
// provider is nil, returns nil (no metrics will be collected).
func NewSocketMetrics(provider o11y.MetricsProvider, socketName string) *SocketMetrics {
	if provider == nil {
		return nil
	}

	var labels []o11y.Label
	if socketName != "" {
		labels = []o11y.Label{o11y.L("socket", socketName)}
	}

	return &SocketMetrics{
		labels: labels,

		connects:          provider.Counter("resocket_connects_total"),
		connectFailures:   provider.Counter("resocket_connect_failures_total"),
		connectDuration:   provider.Histogram("resocket_connect_duration_seconds"),
		reconnects:        provider.Counter("resocket_reconnect_attempts_total"),
		disconnects:       provider.Counter("resocket_disconnects_total"),
		connected:         provider.Gauge("resocket_connected"),
		heartbeatTimeouts: provider.Counter("resocket_heartbeat_timeouts_total"),

		messagesReceived: provider.Counter("resocket_messages_received_total"),
		messagesSent:     provider.Counter("resocket_messages_sent_total"),
		messageSize:      provider.Histogram("resocket_message_size_bytes"),
		decodeErrors:     provider.Counter("resocket_decode_errors_total"),
		transportErrors:  provider.Counter("resocket_transport_errors_total"),

		requestDuration: provider.Histogram("resocket_request_duration_seconds"),
		requestTimeouts: provider.Counter("resocket_request_timeouts_total"),
		requestErrors:   provider.Counter("resocket_request_errors_total"),
		pendingRequests: provider.Gauge("resocket_pending_requests"),
	}
}

func (m *SocketMetrics) with(extra ...o11y.Label) []o11y.Label {
	if len(extra) == 0 {
		return m.labels
	}
	labels := make([]o11y.Label, 0, len(m.labels)+len(extra))
	labels = append(labels, m.labels...)
	return append(labels, extra...)
}

// RecordConnect records the outcome of a connection attempt.
func (m *SocketMetrics) RecordConnect(ctx context.Context, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.connectDuration.Record(ctx, duration.Seconds(), m.labels...)
	if err != nil {
		m.connectFailures.Add(ctx, 1, m.labels...)
		return
	}
	m.connects.Add(ctx, 1, m.labels...)
	m.connected.Set(ctx, 1, m.labels...)
}

// RecordConnectionLost records that the live transport went away.
func (m *SocketMetrics) RecordConnectionLost(ctx context.Context) {
	if m == nil {
		return
	}
	m.connected.Set(ctx, 0, m.labels...)
}

// RecordReconnectScheduled records a scheduled reconnect attempt.
func (m *SocketMetrics) RecordReconnectScheduled(ctx context.Context) {
	if m == nil {
		return
	}
	m.reconnects.Add(ctx, 1, m.labels...)
}

// RecordDisconnect records a terminal disconnect.
func (m *SocketMetrics) RecordDisconnect(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.disconnects.Add(ctx, 1, m.with(o11y.L("reason", reason))...)
	m.connected.Set(ctx, 0, m.labels...)
}

// RecordHeartbeatTimeout records a transport dropped for missing liveness signals.
func (m *SocketMetrics) RecordHeartbeatTimeout(ctx context.Context) {
	if m == nil {
		return
	}
	m.heartbeatTimeouts.Add(ctx, 1, m.labels...)
}

// RecordMessageReceived records an inbound frame.
func (m *SocketMetrics) RecordMessageReceived(ctx context.Context, size int) {
	if m == nil {
		return
	}
	m.messagesReceived.Add(ctx, 1, m.labels...)
	m.messageSize.Record(ctx, float64(size), m.with(o11y.L("direction", "in"))...)
}

// RecordMessageSent records an outbound frame.
func (m *SocketMetrics) RecordMessageSent(ctx context.Context, size int) {
	if m == nil {
		return
	}
	m.messagesSent.Add(ctx, 1, m.labels...)
	m.messageSize.Record(ctx, float64(size), m.with(o11y.L("direction", "out"))...)
}

// RecordDecodeError records an inbound frame that could not be decoded.
func (m *SocketMetrics) RecordDecodeError(ctx context.Context) {
	if m == nil {
		return
	}
	m.decodeErrors.Add(ctx, 1, m.labels...)
}

// RecordTransportError records a transport error.
func (m *SocketMetrics) RecordTransportError(ctx context.Context) {
	if m == nil {
		return
	}
	m.transportErrors.Add(ctx, 1, m.labels...)
}

// RecordRequest records the outcome of a Send.
func (m *SocketMetrics) RecordRequest(ctx context.Context, duration time.Duration, err error, timedOut bool) {
	if m == nil {
		return
	}
	m.requestDuration.Record(ctx, duration.Seconds(), m.labels...)
	switch {
	case timedOut:
		m.requestTimeouts.Add(ctx, 1, m.labels...)
	case err != nil:
		m.requestErrors.Add(ctx, 1, m.labels...)
	}
}

// RecordPendingRequests updates the number of outstanding requests.
func (m *SocketMetrics) RecordPendingRequests(ctx context.Context, count int) {
	if m == nil {
		return
	}
	m.pendingRequests.Set(ctx, float64(count), m.labels...)
}
