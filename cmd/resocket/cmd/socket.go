package cmd

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tsarna/resocket/pkg/resocket"
	"github.com/tsarna/resocket/pkg/resocket/codec"
	"github.com/tsarna/resocket/pkg/resocket/config"
	"github.com/tsarna/resocket/pkg/resocket/otel"
	"github.com/tsarna/resocket/pkg/resocket/socket"
	"github.com/tsarna/resocket/pkg/resocket/websockets"
	"go.uber.org/zap"
)

// socketOptions describes a socket from command line flags, or selects one
// from configuration files.
type socketOptions struct {
	configPaths []string
	socketName  string

	codecName      string
	matchField     string
	identify       string
	transform      string
	requestID      string
	headers        []string
	authorization  string
	subprotocols   []string
	heartbeat      time.Duration
	connectTimeout time.Duration
	sendTimeout    time.Duration
	maxReconnects  int
}

func (o *socketOptions) addFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringSliceVarP(&o.configPaths, "config", "c", nil, "configuration files or directories")
	flags.StringVarP(&o.socketName, "socket", "s", "", "socket block to use from the configuration")
	flags.StringVar(&o.codecName, "codec", "json", "message codec (json, cbor, raw)")
	flags.StringVar(&o.matchField, "match-field", "", "dotted field path that must be equal in request and reply")
	flags.StringVar(&o.identify, "jq", "", "jq predicate selecting the reply; the request is $sent")
	flags.StringVar(&o.transform, "transform", "", "jq expression applied to outgoing payloads")
	flags.StringVar(&o.requestID, "request-id", "", "field to stamp with a fresh UUID on outgoing payloads")
	flags.StringArrayVarP(&o.headers, "header", "H", nil, "handshake header as 'Name: value' (repeatable)")
	flags.StringVar(&o.authorization, "authorization", "", "Authorization header value")
	flags.StringSliceVar(&o.subprotocols, "subprotocol", nil, "subprotocols to negotiate")
	flags.DurationVar(&o.heartbeat, "heartbeat", 0, "reconnect when the server is silent this long (0 disables)")
	flags.DurationVar(&o.connectTimeout, "connect-timeout", socket.DefaultConnectTimeout, "connection attempt timeout")
	flags.DurationVar(&o.sendTimeout, "timeout", socket.DefaultSendTimeout, "time to wait for a reply")
	flags.IntVar(&o.maxReconnects, "max-reconnects", socket.DefaultMaxReconnectAttempts, "reconnect attempts before giving up")
}

// loadConfig builds the configuration named by --config, or returns nil when
// no configuration was given.
func (o *socketOptions) loadConfig(logger *zap.Logger) (*config.Config, error) {
	if len(o.configPaths) == 0 {
		return nil, nil
	}

	cfg, diags := config.NewConfig().
		WithLogger(logger).
		WithSources(stringSliceToAnySlice(o.configPaths)...).
		Build()
	if diags.HasErrors() {
		return nil, diags
	}

	return cfg, nil
}

// builder returns a socket builder and the codec it uses. url is ignored
// when a configuration is given.
func (o *socketOptions) builder(logger *zap.Logger, cfg *config.Config, url string) (*socket.SocketBuilder, resocket.Codec, error) {
	var (
		builder *socket.SocketBuilder
		cdc     resocket.Codec
		err     error
	)

	if cfg != nil {
		name := o.socketName
		if name == "" {
			names := cfg.SocketNames()
			if len(names) != 1 {
				return nil, nil, fmt.Errorf("%d sockets configured, use --socket to pick one", len(names))
			}
			name = names[0]
		}

		builder, err = cfg.NewSocketBuilder(name)
		if err != nil {
			return nil, nil, err
		}
		cdc = cfg.Sockets[name].Codec
	} else {
		builder, cdc, err = o.flagBuilder(logger, url)
		if err != nil {
			return nil, nil, err
		}
	}

	provider := otel.NewProvider("resocket", Version)

	return builder.WithMetrics(provider).WithTracing(provider), cdc, nil
}

func (o *socketOptions) flagBuilder(logger *zap.Logger, url string) (*socket.SocketBuilder, resocket.Codec, error) {
	if url == "" {
		return nil, nil, fmt.Errorf("a URL or --config is required")
	}

	cdc, err := codec.ByName(o.codecName)
	if err != nil {
		return nil, nil, err
	}

	dialerBuilder := websockets.NewDialer().
		WithLogger(logger).
		WithSubprotocols(o.subprotocols...)

	for _, header := range o.headers {
		key, value, ok := strings.Cut(header, ":")
		if !ok {
			return nil, nil, fmt.Errorf("invalid header %q, expected 'Name: value'", header)
		}
		dialerBuilder = dialerBuilder.WithHeader(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	if o.authorization != "" {
		dialerBuilder = dialerBuilder.WithAuthorization(o.authorization)
	}

	dialer, err := dialerBuilder.Build()
	if err != nil {
		return nil, nil, err
	}

	builder := socket.NewSocket().
		WithName("cli").
		WithURL(url).
		WithDialer(dialer).
		WithLogger(logger).
		WithCodec(cdc).
		WithHeartbeat(o.heartbeat).
		WithConnectTimeout(o.connectTimeout).
		WithSendTimeout(o.sendTimeout).
		WithMaxReconnectAttempts(o.maxReconnects)

	var transforms []resocket.TransformFunc
	if o.requestID != "" {
		transforms = append(transforms, codec.StampRequestID(o.requestID))
	}
	if o.transform != "" {
		transform, err := codec.JQTransform(o.transform)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid --transform: %w", err)
		}
		transforms = append(transforms, transform)
	}
	if len(transforms) > 0 {
		builder = builder.WithTransform(codec.ChainTransforms(transforms...))
	}

	var predicates []resocket.IdentifyFunc
	if o.matchField != "" {
		predicates = append(predicates, codec.MatchField(strings.Split(o.matchField, ".")...))
	}
	if o.identify != "" {
		identify, err := codec.JQIdentify(o.identify)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid --jq: %w", err)
		}
		predicates = append(predicates, identify)
	}
	if len(predicates) > 0 {
		builder = builder.WithIdentify(codec.AllOf(predicates...))
	}

	return builder, cdc, nil
}

// parsePayload turns a command line argument into a payload for cdc. Raw
// sockets send the text as is; other codecs get the parsed JSON value, or
// the text as a string when it is not JSON.
func parsePayload(cdc resocket.Codec, arg string) any {
	if _, raw := cdc.(codec.RawCodec); raw {
		return arg
	}

	var v any
	if err := json.Unmarshal([]byte(arg), &v); err != nil {
		return arg
	}
	return v
}

// formatMessage renders a decoded message as one line of output.
func formatMessage(message any) string {
	switch m := message.(type) {
	case string:
		return m
	case []byte:
		return base64.StdEncoding.EncodeToString(m)
	case resocket.Frame:
		if m.Type == resocket.MessageBinary {
			return base64.StdEncoding.EncodeToString(m.Data)
		}
		return m.String()
	}

	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Sprintf("%v", message)
	}
	return string(data)
}
