package socket

import "errors"

// ErrHeartbeatTimeout is the cause recorded when a connection is dropped
// for missing liveness signals.
var ErrHeartbeatTimeout = errors.New("heartbeat timeout")
