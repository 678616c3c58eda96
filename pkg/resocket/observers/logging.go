package observers

import (
	"context"
	"fmt"
	"time"

	"github.com/tsarna/resocket/pkg/resocket"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggingObserver wraps another observer and logs every event.
// If the wrapped observer is nil, it acts as a standalone logging observer.
type LoggingObserver struct {
	wrapped  resocket.Observer
	logger   *zap.Logger
	logLevel zapcore.Level
	name     string
}

// NewLoggingObserver creates a LoggingObserver that wraps another observer.
func NewLoggingObserver(wrapped resocket.Observer, logger *zap.Logger, logLevel zapcore.Level) *LoggingObserver {
	return NewNamedLoggingObserver(wrapped, logger, logLevel, "LoggingObserver")
}

// NewNamedLoggingObserver creates a LoggingObserver with a custom name.
func NewNamedLoggingObserver(wrapped resocket.Observer, logger *zap.Logger, logLevel zapcore.Level, name string) *LoggingObserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingObserver{
		wrapped:  wrapped,
		logger:   logger,
		logLevel: logLevel,
		name:     name,
	}
}

func (l *LoggingObserver) OnConnect(ctx context.Context) {
	l.logger.Log(l.logLevel, "Socket connected", zap.String("observer", l.name))

	if l.wrapped != nil {
		l.wrapped.OnConnect(ctx)
	}
}

func (l *LoggingObserver) OnDisconnect(ctx context.Context, err error) {
	l.logger.Log(l.logLevel, "Socket disconnected",
		zap.String("observer", l.name),
		zap.Error(err),
	)

	if l.wrapped != nil {
		l.wrapped.OnDisconnect(ctx, err)
	}
}

func (l *LoggingObserver) OnReconnecting(ctx context.Context, attempt int, delay time.Duration) {
	l.logger.Log(l.logLevel, "Socket reconnecting",
		zap.String("observer", l.name),
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay),
	)

	if l.wrapped != nil {
		l.wrapped.OnReconnecting(ctx, attempt, delay)
	}
}

func (l *LoggingObserver) OnMessage(ctx context.Context, message any) {
	var messageStr string
	switch m := message.(type) {
	case nil:
		messageStr = "<nil>"
	case string:
		messageStr = m
	case []byte:
		messageStr = string(m)
	case fmt.Stringer:
		messageStr = m.String()
	default:
		messageStr = fmt.Sprintf("%+v", m)
	}

	l.logger.Log(l.logLevel, "Socket message",
		zap.String("observer", l.name),
		zap.String("message", messageStr),
		zap.String("messageType", fmt.Sprintf("%T", message)),
	)

	if l.wrapped != nil {
		l.wrapped.OnMessage(ctx, message)
	}
}
