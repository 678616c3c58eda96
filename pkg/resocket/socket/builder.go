package socket

import (
	"fmt"
	"time"

	"github.com/tsarna/resocket/pkg/resocket"
	"github.com/tsarna/resocket/pkg/resocket/o11y"
	"github.com/tsarna/resocket/pkg/resocket/websockets"
	"go.uber.org/zap"
)

const (
	DefaultConnectTimeout       = 10 * time.Second
	DefaultSendTimeout          = 10 * time.Second
	DefaultMaxReconnectAttempts = 3
)

// SocketBuilder provides a fluent interface for building sockets.
type SocketBuilder struct {
	name                 string
	address              resocket.AddressFunc
	dialer               resocket.Dialer
	closeCodes           []resocket.StatusCode
	heartbeat            time.Duration
	connectTimeout       time.Duration
	sendTimeout          time.Duration
	maxReconnectAttempts int
	backoff              BackoffConfig

	transform resocket.TransformFunc
	encode    resocket.EncodeFunc
	decode    resocket.DecodeFunc
	identify  resocket.IdentifyFunc

	observers       []resocket.Observer
	logger          *zap.Logger
	metricsProvider o11y.MetricsProvider
	tracingProvider o11y.TracingProvider
}

// NewSocket creates a new socket builder.
func NewSocket() *SocketBuilder {
	return &SocketBuilder{
		closeCodes:           resocket.DefaultCloseCodes(),
		connectTimeout:       DefaultConnectTimeout,
		sendTimeout:          DefaultSendTimeout,
		maxReconnectAttempts: DefaultMaxReconnectAttempts,
		transform:            resocket.IdentityTransform,
		encode:               resocket.IdentityEncode,
		decode:               resocket.IdentityDecode,
		identify:             resocket.MatchAny,
		logger:               zap.NewNop(),
	}
}

// WithName sets the name used in logs and metric labels.
func (b *SocketBuilder) WithName(name string) *SocketBuilder {
	b.name = name
	return b
}

// WithAddress sets the function that resolves the address before every
// connection attempt.
func (b *SocketBuilder) WithAddress(address resocket.AddressFunc) *SocketBuilder {
	b.address = address
	return b
}

// WithURL sets a fixed address to connect to.
func (b *SocketBuilder) WithURL(url string) *SocketBuilder {
	b.address = resocket.StaticAddress(url)
	return b
}

// WithDialer sets the dialer used to open transports. Protocol negotiation
// and handshake options belong to the dialer. Defaults to a WebSocket dialer.
func (b *SocketBuilder) WithDialer(dialer resocket.Dialer) *SocketBuilder {
	b.dialer = dialer
	return b
}

// WithCloseCodes replaces the set of close codes that end the socket
// instead of triggering a reconnect. Default is 1000, 1005 and 1006.
func (b *SocketBuilder) WithCloseCodes(codes ...resocket.StatusCode) *SocketBuilder {
	b.closeCodes = append([]resocket.StatusCode(nil), codes...)
	return b
}

// WithHeartbeat sets the longest time a connection may go without a ping or
// message before it is considered dead. Zero disables the check.
func (b *SocketBuilder) WithHeartbeat(interval time.Duration) *SocketBuilder {
	if interval >= 0 {
		b.heartbeat = interval
	}
	return b
}

// WithConnectTimeout sets the default timeout of a connection attempt.
func (b *SocketBuilder) WithConnectTimeout(timeout time.Duration) *SocketBuilder {
	if timeout > 0 {
		b.connectTimeout = timeout
	}
	return b
}

// WithSendTimeout sets the default time Send waits for a reply.
func (b *SocketBuilder) WithSendTimeout(timeout time.Duration) *SocketBuilder {
	if timeout > 0 {
		b.sendTimeout = timeout
	}
	return b
}

// WithMaxReconnectAttempts sets how many reconnect attempts are made after
// the connection is lost before the socket gives up. Default is 3, which
// allows attempts numbered 1 through 4 as the counter is checked before it
// is incremented.
func (b *SocketBuilder) WithMaxReconnectAttempts(n int) *SocketBuilder {
	if n >= 0 {
		b.maxReconnectAttempts = n
	}
	return b
}

// WithBackoff overrides the reconnect backoff parameters.
func (b *SocketBuilder) WithBackoff(cfg BackoffConfig) *SocketBuilder {
	b.backoff = cfg
	return b
}

// WithJitterSource sets the random source for backoff jitter. It must
// return values in [0, 1).
func (b *SocketBuilder) WithJitterSource(rand func() float64) *SocketBuilder {
	b.backoff.Rand = rand
	return b
}

// WithTransform sets the hook applied to outgoing payloads before encoding.
func (b *SocketBuilder) WithTransform(transform resocket.TransformFunc) *SocketBuilder {
	if transform != nil {
		b.transform = transform
	}
	return b
}

// WithEncode sets the hook that converts a payload to its wire form.
func (b *SocketBuilder) WithEncode(encode resocket.EncodeFunc) *SocketBuilder {
	if encode != nil {
		b.encode = encode
	}
	return b
}

// WithDecode sets the hook that converts inbound frames to payloads.
func (b *SocketBuilder) WithDecode(decode resocket.DecodeFunc) *SocketBuilder {
	if decode != nil {
		b.decode = decode
	}
	return b
}

// WithIdentify sets the predicate that decides whether an inbound message
// is the reply to a sent payload. The default matches any message.
func (b *SocketBuilder) WithIdentify(identify resocket.IdentifyFunc) *SocketBuilder {
	if identify != nil {
		b.identify = identify
	}
	return b
}

// WithCodec sets both the encode and decode hooks from codec.
func (b *SocketBuilder) WithCodec(codec resocket.Codec) *SocketBuilder {
	if codec != nil {
		b.encode = codec.Encode
		b.decode = codec.Decode
	}
	return b
}

// WithObserver subscribes observer from the start. It cannot be unsubscribed.
func (b *SocketBuilder) WithObserver(observer resocket.Observer) *SocketBuilder {
	if observer != nil {
		b.observers = append(b.observers, observer)
	}
	return b
}

// WithLogger sets the logger for the socket.
func (b *SocketBuilder) WithLogger(logger *zap.Logger) *SocketBuilder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// WithMetrics sets the metrics provider. If nil, no metrics are recorded.
func (b *SocketBuilder) WithMetrics(provider o11y.MetricsProvider) *SocketBuilder {
	b.metricsProvider = provider
	return b
}

// WithTracing sets the tracing provider used for Send spans.
func (b *SocketBuilder) WithTracing(provider o11y.TracingProvider) *SocketBuilder {
	b.tracingProvider = provider
	return b
}

// Build creates and returns a new socket with the configured options.
func (b *SocketBuilder) Build() (*Socket, error) {
	if err := b.IsValid(); err != nil {
		return nil, err
	}

	logger := b.logger
	if b.name != "" {
		logger = logger.With(zap.String("socket", b.name))
	}

	dialer := b.dialer
	if dialer == nil {
		d, err := websockets.NewDialer().WithLogger(logger).Build()
		if err != nil {
			return nil, fmt.Errorf("failed to create default dialer: %w", err)
		}
		dialer = d
	}

	closeCodes := make(map[resocket.StatusCode]struct{}, len(b.closeCodes))
	for _, code := range b.closeCodes {
		closeCodes[code] = struct{}{}
	}

	s := &Socket{
		name:                 b.name,
		address:              b.address,
		dialer:               dialer,
		closeCodes:           closeCodes,
		heartbeat:            b.heartbeat,
		connectTimeout:       b.connectTimeout,
		sendTimeout:          b.sendTimeout,
		maxReconnectAttempts: b.maxReconnectAttempts,
		backoff:              NewBackoffWithConfig(b.backoff),
		transform:            b.transform,
		encode:               b.encode,
		decode:               b.decode,
		identify:             b.identify,
		logger:               logger,
		metrics:              NewSocketMetrics(b.metricsProvider, b.name),
		tracer:               b.tracingProvider,
		state:                resocket.StateIdle,
	}

	for _, o := range b.observers {
		s.observers.subscribe(o)
	}

	return s, nil
}

// IsValid checks that all required configuration is present.
func (b *SocketBuilder) IsValid() error {
	if b.address == nil {
		return fmt.Errorf("address is required")
	}

	if b.logger == nil {
		b.logger = zap.NewNop()
	}

	if b.connectTimeout <= 0 {
		b.connectTimeout = DefaultConnectTimeout
	}

	if b.sendTimeout <= 0 {
		b.sendTimeout = DefaultSendTimeout
	}

	if b.maxReconnectAttempts < 0 {
		return fmt.Errorf("max reconnect attempts must not be negative")
	}

	return nil
}
