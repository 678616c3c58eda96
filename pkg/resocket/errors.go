package resocket

import "errors"

// Errors returned by socket operations. Hook and transport failures wrap both
// the sentinel and the underlying cause, so errors.Is works for either.
var (
	ErrConnectTimeout     = errors.New("connection timeout")
	ErrConnectionFailed   = errors.New("connection failed")
	ErrSendTimeout        = errors.New("send timeout")
	ErrTransform          = errors.New("transform failed")
	ErrEncode             = errors.New("encode failed")
	ErrDecode             = errors.New("decode failed")
	ErrIdentify           = errors.New("identify failed")
	ErrTransport          = errors.New("transport error")
	ErrDisconnected       = errors.New("socket disconnected")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	ErrNotConnected       = errors.New("not connected")
)
