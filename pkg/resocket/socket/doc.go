// Package socket implements the resilient socket: a persistent connection
// that reconnects with exponential backoff, drops connections that stop
// sending liveness signals, and pairs sent payloads with their replies
// through a caller-supplied predicate.
//
// # Basic Usage
//
//	s, err := socket.NewSocket().
//		WithURL("ws://localhost:8080/ws").
//		WithCodec(codec.JSON()).
//		WithIdentify(codec.MatchField("id")).
//		WithHeartbeat(30 * time.Second).
//		WithLogger(logger).
//		Build()
//	if err != nil {
//		return err
//	}
//
//	reply, err := s.Send(ctx, map[string]any{"id": 1, "cmd": "status"})
//
// # Lifecycle
//
// A socket starts Idle. Connect moves it to Connecting and then Connected.
// If an established connection closes with a code outside the configured
// close codes, or goes silent for a heartbeat interval, the socket moves to
// Reconnecting and retries after a backoff of
//
//	min(1s * 2^(n-1), 30s) + random[0, 1s)
//
// where n counts the reconnect attempts made so far. After more than the
// configured number of attempts (3 by default) it gives up and moves to
// Disconnected. A failure of the first attempt is never retried.
//
// Concurrent Connect calls share one attempt and all see its outcome.
// Send calls issued while reconnecting wait for the reconnect cycle.
//
// # Events
//
// Observers registered with Subscribe are told about connects, terminal
// disconnects, scheduled reconnects and every decoded inbound message.
// They are called synchronously and must not block.
package socket
