package config

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/tsarna/resocket/pkg/resocket/socket"
	"go.uber.org/zap"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// SocketResolver returns the live socket for a socket block name.
type SocketResolver func(name string) (*socket.Socket, error)

// ReplyFunc receives the outcome of every scheduled request.
type ReplyFunc func(request string, reply any, err error)

// NewScheduler returns a cron that sends every request with a schedule over
// the socket returned by resolve. The cron is not started.
func (c *Config) NewScheduler(resolve SocketResolver, onReply ReplyFunc) (*cron.Cron, error) {
	scheduler := cron.New(cron.WithLogger(NewZapCronLogger(c.Logger)), cron.WithParser(cronParser))

	for name, rc := range c.Requests {
		if rc.Schedule == "" {
			continue
		}

		s, err := resolve(rc.Socket)
		if err != nil {
			return nil, fmt.Errorf("request %q: %w", name, err)
		}

		job := &requestJob{
			request: rc,
			socket:  s,
			logger:  c.Logger.With(zap.String("request", name)),
			onReply: onReply,
		}

		if _, err := scheduler.AddJob(rc.Schedule, cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(job)); err != nil {
			return nil, fmt.Errorf("request %q: %w", name, err)
		}
	}

	return scheduler, nil
}

type requestJob struct {
	request *RequestConfig
	socket  *socket.Socket
	logger  *zap.Logger
	onReply ReplyFunc
}

func (j *requestJob) Run() {
	j.logger.Debug("Sending scheduled request")

	reply, err := j.socket.SendWithTimeout(context.Background(), j.request.Payload, j.request.Timeout)
	if err != nil {
		j.logger.Warn("Scheduled request failed", zap.Error(err))
	}

	if j.onReply != nil {
		j.onReply(j.request.Name, reply, err)
	}
}

// ZapCronLogger adapts a zap.Logger to implement the cron.Logger interface
type ZapCronLogger struct {
	logger *zap.Logger
}

// NewZapCronLogger creates a new ZapCronLogger that wraps the given zap.Logger
func NewZapCronLogger(logger *zap.Logger) *ZapCronLogger {
	return &ZapCronLogger{logger: logger}
}

// Info logs cron's routine messages at debug level.
func (z *ZapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	z.logger.Debug(msg, cronFields(keysAndValues)...)
}

// Error logs error conditions using zap's Error level
func (z *ZapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	z.logger.Error(msg, append(cronFields(keysAndValues), zap.Error(err))...)
}

func cronFields(keysAndValues []interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2+1)
	for i := 0; i < len(keysAndValues)-1; i += 2 {
		if key, ok := keysAndValues[i].(string); ok {
			fields = append(fields, zap.Any(key, keysAndValues[i+1]))
		}
	}
	return fields
}
