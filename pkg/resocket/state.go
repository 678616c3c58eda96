package resocket

// State is the connection state of a socket.
type State uint8

const (
	// StateIdle means the socket has never connected.
	StateIdle State = iota

	// StateConnecting means a connection attempt is in flight.
	StateConnecting

	// StateConnected means a transport is live.
	StateConnected

	// StateReconnecting means the transport was lost and a retry is scheduled.
	StateReconnecting

	// StateDisconnected means the socket stopped and will not retry until
	// Connect is called again.
	StateDisconnected
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateDisconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}
