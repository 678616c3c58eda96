package websockets

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/tsarna/resocket/pkg/resocket"
	"go.uber.org/zap"
)

// DefaultReadLimit is the largest inbound message accepted by default.
const DefaultReadLimit = 1 << 20

// AuthorizationProvider is a function that returns an authorization header value.
// It receives a context and should return the authorization value (e.g., "Bearer token123")
// or an error if authorization cannot be obtained. It is called before every
// connection attempt, so refreshed credentials are picked up on reconnect.
type AuthorizationProvider func(ctx context.Context) (string, error)

// DialerBuilder provides a fluent interface for building WebSocket dialers.
type DialerBuilder struct {
	logger       *zap.Logger
	headers      http.Header
	authProvider AuthorizationProvider
	subprotocols []string
	httpClient   *http.Client
	readLimit    int64
	compression  websocket.CompressionMode
	writeTimeout time.Duration
}

// NewDialer creates a new WebSocket dialer builder.
func NewDialer() *DialerBuilder {
	return &DialerBuilder{
		logger:    zap.NewNop(),
		readLimit: DefaultReadLimit,
	}
}

// WithLogger sets the logger for the dialer and its connections.
func (b *DialerBuilder) WithLogger(logger *zap.Logger) *DialerBuilder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// WithHeaders sets custom HTTP headers for the WebSocket handshake.
// Headers set by earlier calls are kept unless overridden.
func (b *DialerBuilder) WithHeaders(headers map[string][]string) *DialerBuilder {
	if b.headers == nil {
		b.headers = make(http.Header)
	}
	for key, values := range headers {
		b.headers[http.CanonicalHeaderKey(key)] = values
	}
	return b
}

// WithHeader sets a single HTTP header for the WebSocket handshake.
func (b *DialerBuilder) WithHeader(key, value string) *DialerBuilder {
	if b.headers == nil {
		b.headers = make(http.Header)
	}
	b.headers.Set(key, value)
	return b
}

// WithAuthorization sets a static Authorization header value.
func (b *DialerBuilder) WithAuthorization(authHeader string) *DialerBuilder {
	b.authProvider = func(ctx context.Context) (string, error) {
		return authHeader, nil
	}
	return b
}

// WithAuthorizationProvider sets an authorization provider function.
func (b *DialerBuilder) WithAuthorizationProvider(provider AuthorizationProvider) *DialerBuilder {
	b.authProvider = provider
	return b
}

// WithSubprotocols sets the subprotocols offered in the handshake.
func (b *DialerBuilder) WithSubprotocols(subprotocols ...string) *DialerBuilder {
	b.subprotocols = append([]string(nil), subprotocols...)
	return b
}

// WithHTTPClient sets the HTTP client used for the handshake.
func (b *DialerBuilder) WithHTTPClient(client *http.Client) *DialerBuilder {
	b.httpClient = client
	return b
}

// WithReadLimit sets the largest inbound message in bytes. -1 disables the limit.
func (b *DialerBuilder) WithReadLimit(limit int64) *DialerBuilder {
	if limit > 0 || limit == -1 {
		b.readLimit = limit
	}
	return b
}

// WithCompression enables permessage-deflate negotiation.
func (b *DialerBuilder) WithCompression(enabled bool) *DialerBuilder {
	if enabled {
		b.compression = websocket.CompressionContextTakeover
	} else {
		b.compression = websocket.CompressionDisabled
	}
	return b
}

// WithWriteTimeout bounds each write. Zero leaves writes bounded only by the
// caller's context.
func (b *DialerBuilder) WithWriteTimeout(timeout time.Duration) *DialerBuilder {
	if timeout >= 0 {
		b.writeTimeout = timeout
	}
	return b
}

// Build creates and returns a new dialer with the configured options.
func (b *DialerBuilder) Build() (*Dialer, error) {
	if err := b.IsValid(); err != nil {
		return nil, err
	}

	return &Dialer{
		logger:       b.logger,
		headers:      b.headers.Clone(),
		authProvider: b.authProvider,
		subprotocols: b.subprotocols,
		httpClient:   b.httpClient,
		readLimit:    b.readLimit,
		compression:  b.compression,
		writeTimeout: b.writeTimeout,
	}, nil
}

// IsValid checks the configuration.
func (b *DialerBuilder) IsValid() error {
	if b.logger == nil {
		b.logger = zap.NewNop()
	}

	if b.readLimit == 0 || b.readLimit < -1 {
		return fmt.Errorf("invalid read limit %d", b.readLimit)
	}

	return nil
}

// Dialer opens WebSocket transports. It implements resocket.Dialer.
type Dialer struct {
	logger       *zap.Logger
	headers      http.Header
	authProvider AuthorizationProvider
	subprotocols []string
	httpClient   *http.Client
	readLimit    int64
	compression  websocket.CompressionMode
	writeTimeout time.Duration
}

// Dial performs the WebSocket handshake with address. ctx bounds the
// handshake only.
func (d *Dialer) Dial(ctx context.Context, address string) (resocket.Transport, error) {
	u, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return nil, fmt.Errorf("invalid URL scheme %q", u.Scheme)
	}

	dialOptions := &websocket.DialOptions{
		HTTPClient:      d.httpClient,
		Subprotocols:    d.subprotocols,
		CompressionMode: d.compression,
	}

	if len(d.headers) > 0 {
		dialOptions.HTTPHeader = d.headers.Clone()
	}

	// Set authorization header if configured (this may override a custom Authorization header)
	if d.authProvider != nil {
		authValue, err := d.authProvider(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get authorization: %w", err)
		}
		if authValue != "" {
			if dialOptions.HTTPHeader == nil {
				dialOptions.HTTPHeader = make(http.Header)
			}
			dialOptions.HTTPHeader.Set("Authorization", authValue)
		}
	}

	c := newConn(d.logger.With(zap.String("url", address)), d.writeTimeout)
	dialOptions.OnPingReceived = func(ctx context.Context, payload []byte) bool {
		c.pingReceived()
		return true
	}

	conn, resp, err := websocket.Dial(ctx, address, dialOptions)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect to WebSocket (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to connect to WebSocket: %w", err)
	}

	conn.SetReadLimit(d.readLimit)
	c.attach(conn)

	c.logger.Debug("WebSocket connected", zap.String("subprotocol", conn.Subprotocol()))

	return c, nil
}
