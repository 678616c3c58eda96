package config

import (
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/tsarna/resocket/pkg/resocket/websockets/server"
	"go.uber.org/zap"
)

// DefaultListenAddress is used by server blocks without a listen attribute.
const DefaultListenAddress = ":8080"

// ServerDefinition is the body of a server block.
type ServerDefinition struct {
	Listen         string         `hcl:"listen,optional"`
	PingInterval   hcl.Expression `hcl:"ping_interval,optional"`
	WriteTimeout   hcl.Expression `hcl:"write_timeout,optional"`
	ReadLimit      *int64         `hcl:"read_limit,optional"`
	QueueSize      *int           `hcl:"queue_size,optional"`
	Subprotocols   []string       `hcl:"subprotocols,optional"`
	OriginPatterns []string       `hcl:"origin_patterns,optional"`
}

// ServerConfig is a validated server block.
type ServerConfig struct {
	Name           string
	Listen         string
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadLimit      int64
	QueueSize      int
	Subprotocols   []string
	OriginPatterns []string
	DefRange       hcl.Range
}

func (c *Config) processServerBlock(block *hcl.Block) hcl.Diagnostics {
	name := block.Labels[0]

	if existing, ok := c.Servers[name]; ok {
		return hcl.Diagnostics{duplicateDiagnostic("server", name, existing.DefRange, &block.DefRange)}
	}

	def := ServerDefinition{}
	diags := gohcl.DecodeBody(block.Body, c.evalCtx, &def)
	if diags.HasErrors() {
		return diags
	}

	sc := &ServerConfig{
		Name:           name,
		Listen:         def.Listen,
		Subprotocols:   def.Subprotocols,
		OriginPatterns: def.OriginPatterns,
		DefRange:       block.DefRange,
	}
	if sc.Listen == "" {
		sc.Listen = DefaultListenAddress
	}
	if def.ReadLimit != nil {
		sc.ReadLimit = *def.ReadLimit
	}
	if def.QueueSize != nil {
		sc.QueueSize = *def.QueueSize
	}

	diags = diags.Extend(c.parseOptionalDuration(def.PingInterval, &sc.PingInterval))
	diags = diags.Extend(c.parseOptionalDuration(def.WriteTimeout, &sc.WriteTimeout))
	if diags.HasErrors() {
		return diags
	}

	c.Servers[name] = sc

	return diags
}

// NewListenerBuilder returns a listener builder carrying the settings of
// the block. Unset values keep the listener defaults.
func (sc *ServerConfig) NewListenerBuilder(logger *zap.Logger) *server.ListenerBuilder {
	builder := server.NewListener().
		WithLogger(logger).
		WithPingInterval(sc.PingInterval).
		WithWriteTimeout(sc.WriteTimeout).
		WithReadLimit(sc.ReadLimit).
		WithQueueSize(sc.QueueSize)

	if len(sc.Subprotocols) > 0 {
		builder = builder.WithSubprotocols(sc.Subprotocols...)
	}
	if len(sc.OriginPatterns) > 0 {
		builder = builder.WithOriginPatterns(sc.OriginPatterns...)
	}

	return builder
}
