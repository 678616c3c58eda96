package socket

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/tsarna/resocket/pkg/resocket"
	"github.com/tsarna/resocket/pkg/resocket/o11y"
	"go.uber.org/zap"
)

// Send sends payload and waits for its reply using the configured send
// timeout.
func (s *Socket) Send(ctx context.Context, payload any) (any, error) {
	return s.SendWithTimeout(ctx, payload, s.sendTimeout)
}

// SendWithTimeout connects if needed, runs payload through the transform
// and encode hooks, writes it, and returns the first decoded inbound
// message that the identify hook matches against the transformed payload.
//
// The timeout covers only the wait for the reply. A reply arriving on a
// replacement transport after a reconnect still counts.
func (s *Socket) SendWithTimeout(ctx context.Context, payload any, timeout time.Duration) (reply any, err error) {
	if timeout <= 0 {
		timeout = s.sendTimeout
	}

	ctx, span := s.startSpan(ctx, "resocket.send")
	start := time.Now()
	timedOut := false
	defer func() {
		s.metrics.RecordRequest(ctx, time.Since(start), err, timedOut)
		o11y.EndSpan(span, err)
	}()

	if err := s.Connect(ctx); err != nil {
		return nil, err
	}

	transformed, err := s.transform(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", resocket.ErrTransform, err)
	}

	wire, err := s.encode(ctx, transformed)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", resocket.ErrEncode, err)
	}

	frame, err := resocket.ToFrame(wire)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", resocket.ErrEncode, err)
	}

	if span != nil {
		span.SetAttributes(
			o11y.L("message.type", frame.Type.String()),
			o11y.L("message.size", strconv.Itoa(len(frame.Data))),
		)
	}

	// Register before writing so a fast reply is not missed.
	req, n := s.requests.add(transformed)
	s.metrics.RecordPendingRequests(ctx, n)
	defer func() {
		remaining := s.requests.remove(req)
		s.metrics.RecordPendingRequests(ctx, remaining)
	}()

	s.mu.Lock()
	tr := s.transport
	s.mu.Unlock()
	if tr == nil {
		return nil, resocket.ErrNotConnected
	}

	if err := tr.Write(ctx, frame); err != nil {
		return nil, fmt.Errorf("%w: %w", resocket.ErrTransport, err)
	}
	s.metrics.RecordMessageSent(ctx, len(frame.Data))

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-req.result:
		return res.reply, res.err
	case <-timer.C:
		timedOut = true
		s.logger.Debug("Send timed out", zap.Duration("timeout", timeout))
		return nil, fmt.Errorf("%w after %v", resocket.ErrSendTimeout, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Socket) startSpan(ctx context.Context, name string) (context.Context, o11y.Span) {
	if s.tracer == nil {
		return ctx, nil
	}
	ctx, span := s.tracer.StartSpan(ctx, name)
	if s.name != "" {
		span.SetAttributes(o11y.L("socket", s.name))
	}
	return ctx, span
}
