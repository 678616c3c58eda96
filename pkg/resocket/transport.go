package resocket

import (
	"context"
	"fmt"
)

// MessageType identifies the kind of data carried by a Frame.
type MessageType int

const (
	MessageText MessageType = iota + 1
	MessageBinary
)

func (t MessageType) String() string {
	switch t {
	case MessageText:
		return "text"
	case MessageBinary:
		return "binary"
	default:
		return fmt.Sprintf("MessageType(%d)", int(t))
	}
}

// Frame is a single message as it travels over the wire.
type Frame struct {
	Type MessageType
	Data []byte
}

// TextFrame returns a text frame holding s.
func TextFrame(s string) Frame {
	return Frame{Type: MessageText, Data: []byte(s)}
}

// BinaryFrame returns a binary frame holding b.
func BinaryFrame(b []byte) Frame {
	return Frame{Type: MessageBinary, Data: b}
}

// String returns the frame payload as a string.
func (f Frame) String() string {
	return string(f.Data)
}

// ToFrame converts the output of an EncodeFunc into a Frame.
// Frames are passed through, []byte becomes a binary frame and string a text frame.
func ToFrame(v any) (Frame, error) {
	switch m := v.(type) {
	case Frame:
		return m, nil
	case *Frame:
		if m == nil {
			return Frame{}, fmt.Errorf("nil frame")
		}
		return *m, nil
	case []byte:
		return BinaryFrame(m), nil
	case string:
		return TextFrame(m), nil
	default:
		return Frame{}, fmt.Errorf("unsupported wire type %T", v)
	}
}

// StatusCode is a close code as defined by RFC 6455 section 7.4.
type StatusCode int

const (
	StatusNormalClosure   StatusCode = 1000
	StatusGoingAway       StatusCode = 1001
	StatusProtocolError   StatusCode = 1002
	StatusNoStatusRcvd    StatusCode = 1005
	StatusAbnormalClosure StatusCode = 1006
	StatusInternalError   StatusCode = 1011
	StatusServiceRestart  StatusCode = 1012
)

func (c StatusCode) String() string {
	switch c {
	case StatusNormalClosure:
		return "StatusNormalClosure"
	case StatusGoingAway:
		return "StatusGoingAway"
	case StatusProtocolError:
		return "StatusProtocolError"
	case StatusNoStatusRcvd:
		return "StatusNoStatusRcvd"
	case StatusAbnormalClosure:
		return "StatusAbnormalClosure"
	case StatusInternalError:
		return "StatusInternalError"
	case StatusServiceRestart:
		return "StatusServiceRestart"
	default:
		return fmt.Sprintf("StatusCode(%d)", int(c))
	}
}

// DefaultCloseCodes are the close codes treated as a clean, final closure.
func DefaultCloseCodes() []StatusCode {
	return []StatusCode{StatusNormalClosure, StatusNoStatusRcvd, StatusAbnormalClosure}
}

// Transport is one live duplex connection.
type Transport interface {
	// Start begins delivering inbound events to handler. No events are
	// delivered before Start is called.
	Start(handler TransportHandler)

	// Write sends a frame to the peer.
	Write(ctx context.Context, frame Frame) error

	// Close performs the closing handshake and releases the connection.
	// It blocks until the handshake finishes or gives up.
	Close(code StatusCode, reason string) error
}

// TransportHandler receives the events of a single Transport. Calls for one
// transport are never concurrent with each other.
type TransportHandler interface {
	// OnMessage is called for every inbound frame.
	OnMessage(frame Frame)

	// OnPing is called for every transport-level liveness signal.
	OnPing()

	// OnError reports a transport error that does not by itself close the connection.
	OnError(err error)

	// OnClose is called once when the connection is gone. err is nil for a
	// close handshake initiated by this side.
	OnClose(code StatusCode, err error)
}

// Dialer opens transports. Dial returns once the connection is open or
// has failed; ctx bounds the whole opening handshake.
type Dialer interface {
	Dial(ctx context.Context, address string) (Transport, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, address string) (Transport, error)

func (f DialerFunc) Dial(ctx context.Context, address string) (Transport, error) {
	return f(ctx, address)
}

// CloseError describes why the peer connection went away.
type CloseError struct {
	Code StatusCode
	Err  error
}

func (e *CloseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("connection closed with status %d: %v", int(e.Code), e.Err)
	}
	return fmt.Sprintf("connection closed with status %d", int(e.Code))
}

func (e *CloseError) Unwrap() error {
	return e.Err
}

// Codec bundles an encode and a decode hook.
type Codec interface {
	Encode(ctx context.Context, payload any) (any, error)
	Decode(ctx context.Context, frame Frame) (any, error)
}
