package socket

import (
	"context"
	"fmt"

	"github.com/tsarna/resocket/pkg/resocket"
	"go.uber.org/zap"
)

// transportHandler routes the events of one transport generation to the
// socket. Once the socket has moved past that generation the events are
// dropped.
type transportHandler struct {
	socket *Socket
	gen    uint64
}

// touch resets the heartbeat and reports whether the transport is still live.
func (h *transportHandler) touch() bool {
	s := h.socket

	s.mu.Lock()
	defer s.mu.Unlock()

	if h.gen != s.generation || s.transport == nil {
		return false
	}
	s.armHeartbeatLocked()
	return true
}

func (h *transportHandler) OnMessage(frame resocket.Frame) {
	if !h.touch() {
		return
	}
	h.socket.handleFrame(context.Background(), frame)
}

func (h *transportHandler) OnPing() {
	h.touch()
}

func (h *transportHandler) OnError(err error) {
	s := h.socket
	s.logger.Warn("Transport error", zap.Error(err))
	s.metrics.RecordTransportError(context.Background())
}

func (h *transportHandler) OnClose(code resocket.StatusCode, err error) {
	h.socket.connectionLost(h.gen, code, err)
}

// handleFrame decodes an inbound frame, publishes it to observers and then
// offers it to the outstanding requests.
func (s *Socket) handleFrame(ctx context.Context, frame resocket.Frame) {
	s.metrics.RecordMessageReceived(ctx, len(frame.Data))

	message, err := s.decode(ctx, frame)
	if err != nil {
		err = fmt.Errorf("%w: %w", resocket.ErrDecode, err)
		s.logger.Warn("Failed to decode message", zap.Error(err))
		s.metrics.RecordDecodeError(ctx)
		s.requests.failAll(err)
		return
	}

	s.emitMessage(ctx, message)

	if n := s.requests.offer(ctx, message, s.identify); n > 0 {
		s.logger.Debug("Reply matched", zap.Int("requests", n))
	}
}
