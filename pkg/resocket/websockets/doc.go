// Package websockets provides the WebSocket transport for resilient sockets,
// built on github.com/coder/websocket.
//
// A Dialer opens connections with optional custom handshake headers,
// authorization, subprotocols and compression:
//
//	dialer, err := websockets.NewDialer().
//		WithLogger(logger).
//		WithSubprotocols("v1.json").
//		WithAuthorization("Bearer token123").
//		Build()
//
// Ping frames received from the server are reported to the socket as
// liveness signals, and the close code of the peer's close frame is passed
// on so the socket can tell a final closure from a failure. A connection
// that drops without a close frame reports 1006 (abnormal closure).
//
// The server subpackage contains a small WebSocket server that sends pings
// and echoes or answers messages. It backs the "serve" command and the
// integration tests.
package websockets
