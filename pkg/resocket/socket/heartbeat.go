package socket

import (
	"context"
	"time"

	"github.com/tsarna/resocket/pkg/resocket"
	"go.uber.org/zap"
)

// armHeartbeatLocked (re)starts the liveness timer. Every call supersedes
// the previous timer, so a late-firing one is ignored.
func (s *Socket) armHeartbeatLocked() {
	if s.heartbeat <= 0 || s.state != resocket.StateConnected {
		return
	}

	if s.heartbeatTimer != nil {
		s.heartbeatTimer.Stop()
	}
	s.heartbeatSeq++
	seq := s.heartbeatSeq
	s.heartbeatTimer = time.AfterFunc(s.heartbeat, func() {
		s.heartbeatExpired(seq)
	})
}

func (s *Socket) stopHeartbeatLocked() {
	if s.heartbeatTimer != nil {
		s.heartbeatTimer.Stop()
		s.heartbeatTimer = nil
	}
	s.heartbeatSeq++
}

// heartbeatExpired drops a transport that has been silent for a whole
// heartbeat interval and starts reconnecting.
func (s *Socket) heartbeatExpired(seq uint64) {
	ctx := context.Background()

	s.mu.Lock()
	if seq != s.heartbeatSeq || s.state != resocket.StateConnected || s.transport == nil {
		s.mu.Unlock()
		return
	}
	tr := s.transport
	s.heartbeatTimer = nil
	s.detachLocked(ctx)

	s.logger.Warn("Heartbeat timed out", zap.Duration("interval", s.heartbeat))
	s.metrics.RecordHeartbeatTimeout(ctx)

	go s.closeTransport(tr, resocket.StatusGoingAway, "heartbeat timeout")

	s.reconnectOrGiveUpLocked(ctx, ErrHeartbeatTimeout)
}
