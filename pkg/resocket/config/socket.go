package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/tsarna/resocket/pkg/resocket"
	"github.com/tsarna/resocket/pkg/resocket/codec"
	"github.com/tsarna/resocket/pkg/resocket/socket"
	"github.com/tsarna/resocket/pkg/resocket/websockets"
	"go.uber.org/zap"
)

// SocketDefinition is the body of a socket block.
type SocketDefinition struct {
	URL                  string            `hcl:"url"`
	Subprotocols         []string          `hcl:"subprotocols,optional"`
	Headers              map[string]string `hcl:"headers,optional"`
	Authorization        string            `hcl:"authorization,optional"`
	CloseCodes           []int             `hcl:"close_codes,optional"`
	Heartbeat            hcl.Expression    `hcl:"heartbeat,optional"`
	ConnectTimeout       hcl.Expression    `hcl:"connect_timeout,optional"`
	SendTimeout          hcl.Expression    `hcl:"send_timeout,optional"`
	MaxReconnectAttempts *int              `hcl:"max_reconnect_attempts,optional"`
	ReadLimit            *int64            `hcl:"read_limit,optional"`
	Codec                string            `hcl:"codec,optional"`
	RequestIDField       string            `hcl:"request_id_field,optional"`
	MatchField           string            `hcl:"match_field,optional"`
	Identify             string            `hcl:"identify,optional"`
	Transform            string            `hcl:"transform,optional"`
}

// SocketConfig is a validated socket block, ready to build sockets from.
type SocketConfig struct {
	Name                 string
	URL                  string
	Subprotocols         []string
	Headers              map[string]string
	Authorization        string
	CloseCodes           []resocket.StatusCode
	Heartbeat            time.Duration
	ConnectTimeout       time.Duration
	SendTimeout          time.Duration
	MaxReconnectAttempts *int
	ReadLimit            int64
	Codec                resocket.Codec
	Transform            resocket.TransformFunc
	Identify             resocket.IdentifyFunc
	DefRange             hcl.Range
}

func (c *Config) processSocketBlock(block *hcl.Block) hcl.Diagnostics {
	name := block.Labels[0]

	if existing, ok := c.Sockets[name]; ok {
		return hcl.Diagnostics{duplicateDiagnostic("socket", name, existing.DefRange, &block.DefRange)}
	}

	def := SocketDefinition{}
	diags := gohcl.DecodeBody(block.Body, c.evalCtx, &def)
	if diags.HasErrors() {
		return diags
	}

	sc := &SocketConfig{
		Name:                 name,
		URL:                  def.URL,
		Subprotocols:         def.Subprotocols,
		Headers:              def.Headers,
		Authorization:        def.Authorization,
		MaxReconnectAttempts: def.MaxReconnectAttempts,
		DefRange:             block.DefRange,
	}

	if def.ReadLimit != nil {
		sc.ReadLimit = *def.ReadLimit
	}

	if def.MaxReconnectAttempts != nil && *def.MaxReconnectAttempts < 0 {
		diags = diags.Append(&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Invalid reconnect attempts",
			Detail:   "max_reconnect_attempts must not be negative",
			Subject:  &block.DefRange,
		})
	}

	if def.CloseCodes != nil {
		sc.CloseCodes = make([]resocket.StatusCode, 0, len(def.CloseCodes))
		for _, code := range def.CloseCodes {
			if code < 1000 || code > 4999 {
				diags = diags.Append(&hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Invalid close code",
					Detail:   fmt.Sprintf("Close code %d is outside 1000-4999", code),
					Subject:  &block.DefRange,
				})
				continue
			}
			sc.CloseCodes = append(sc.CloseCodes, resocket.StatusCode(code))
		}
	}

	diags = diags.Extend(c.parseOptionalDuration(def.Heartbeat, &sc.Heartbeat))
	diags = diags.Extend(c.parseOptionalDuration(def.ConnectTimeout, &sc.ConnectTimeout))
	diags = diags.Extend(c.parseOptionalDuration(def.SendTimeout, &sc.SendTimeout))

	cdc, err := codec.ByName(def.Codec)
	if err != nil {
		diags = diags.Append(&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Invalid codec",
			Detail:   err.Error(),
			Subject:  &block.DefRange,
		})
	}
	sc.Codec = cdc

	var transforms []resocket.TransformFunc
	if def.RequestIDField != "" {
		transforms = append(transforms, codec.StampRequestID(def.RequestIDField))
	}
	if def.Transform != "" {
		transform, err := codec.JQTransform(def.Transform)
		if err != nil {
			diags = diags.Append(jqDiagnostic("transform", err, &block.DefRange))
		} else {
			transforms = append(transforms, transform)
		}
	}
	if len(transforms) > 0 {
		sc.Transform = codec.ChainTransforms(transforms...)
	}

	var predicates []resocket.IdentifyFunc
	if def.MatchField != "" {
		predicates = append(predicates, codec.MatchField(strings.Split(def.MatchField, ".")...))
	}
	if def.Identify != "" {
		identify, err := codec.JQIdentify(def.Identify)
		if err != nil {
			diags = diags.Append(jqDiagnostic("identify", err, &block.DefRange))
		} else {
			predicates = append(predicates, identify)
		}
	}
	if len(predicates) > 0 {
		sc.Identify = codec.AllOf(predicates...)
	}

	if diags.HasErrors() {
		return diags
	}

	c.Sockets[name] = sc

	return diags
}

func jqDiagnostic(attr string, err error, subject *hcl.Range) *hcl.Diagnostic {
	return &hcl.Diagnostic{
		Severity: hcl.DiagError,
		Summary:  fmt.Sprintf("Invalid %s query", attr),
		Detail:   err.Error(),
		Subject:  subject,
	}
}

// NewSocketBuilder returns a socket builder for the socket block called name.
func (c *Config) NewSocketBuilder(name string) (*socket.SocketBuilder, error) {
	sc, ok := c.Sockets[name]
	if !ok {
		return nil, fmt.Errorf("socket %q is not defined", name)
	}

	return sc.NewSocketBuilder(c.Logger)
}

// NewSocketBuilder returns a socket builder carrying every setting of the
// block, with a WebSocket dialer for its handshake options.
func (sc *SocketConfig) NewSocketBuilder(logger *zap.Logger) (*socket.SocketBuilder, error) {
	dialerBuilder := websockets.NewDialer().
		WithLogger(logger).
		WithSubprotocols(sc.Subprotocols...)

	for key, value := range sc.Headers {
		dialerBuilder = dialerBuilder.WithHeader(key, value)
	}
	if sc.Authorization != "" {
		dialerBuilder = dialerBuilder.WithAuthorization(sc.Authorization)
	}
	if sc.ReadLimit != 0 {
		dialerBuilder = dialerBuilder.WithReadLimit(sc.ReadLimit)
	}

	dialer, err := dialerBuilder.Build()
	if err != nil {
		return nil, fmt.Errorf("socket %q: %w", sc.Name, err)
	}

	builder := socket.NewSocket().
		WithName(sc.Name).
		WithURL(sc.URL).
		WithDialer(dialer).
		WithLogger(logger).
		WithHeartbeat(sc.Heartbeat).
		WithConnectTimeout(sc.ConnectTimeout).
		WithSendTimeout(sc.SendTimeout).
		WithCodec(sc.Codec).
		WithTransform(sc.Transform).
		WithIdentify(sc.Identify)

	if sc.CloseCodes != nil {
		builder = builder.WithCloseCodes(sc.CloseCodes...)
	}
	if sc.MaxReconnectAttempts != nil {
		builder = builder.WithMaxReconnectAttempts(*sc.MaxReconnectAttempts)
	}

	return builder, nil
}
