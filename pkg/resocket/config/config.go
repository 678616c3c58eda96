// Package config loads socket, server and request definitions from HCL files.
package config

import (
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"go.uber.org/zap"
)

type ConfigBuilder struct {
	logger  *zap.Logger
	sources []any
}

// Config holds the sockets, servers and requests declared in one or more
// configuration sources.
type Config struct {
	Logger    *zap.Logger
	Functions map[string]function.Function
	Constants map[string]cty.Value
	evalCtx   *hcl.EvalContext

	Sockets  map[string]*SocketConfig
	Servers  map[string]*ServerConfig
	Requests map[string]*RequestConfig
}

func NewConfig() *ConfigBuilder {
	return &ConfigBuilder{
		logger:  zap.NewNop(),
		sources: make([]any, 0),
	}
}

func (cb *ConfigBuilder) WithLogger(logger *zap.Logger) *ConfigBuilder {
	if logger != nil {
		cb.logger = logger
	}
	return cb
}

// WithSources adds configuration sources: file or directory paths,
// []byte contents, or an embed.FS.
func (cb *ConfigBuilder) WithSources(sources ...any) *ConfigBuilder {
	cb.sources = append(cb.sources, sources...)
	return cb
}

func (cb *ConfigBuilder) Build() (*Config, hcl.Diagnostics) {
	config := &Config{
		Logger:    cb.logger,
		Functions: GetFunctions(),
		Constants: make(map[string]cty.Value),
		Sockets:   make(map[string]*SocketConfig),
		Servers:   make(map[string]*ServerConfig),
		Requests:  make(map[string]*RequestConfig),
	}

	bodies, diags := ParseConfigFiles(cb.sources...)
	if diags.HasErrors() {
		return nil, diags
	}

	blocks, addDiags := cb.GetBlocks(bodies)
	diags = diags.Extend(addDiags)
	if diags.HasErrors() {
		return nil, diags
	}

	config.Constants["env"] = GetEnvObject()

	config.evalCtx = &hcl.EvalContext{
		Functions: config.Functions,
		Variables: config.Constants,
	}

	consts := newConstCollector()
	for _, block := range blocks.OfType("const") {
		diags = diags.Extend(consts.add(block))
	}
	if diags.HasErrors() {
		return nil, diags
	}

	diags = diags.Extend(consts.evaluate(config))
	if diags.HasErrors() {
		return nil, diags
	}

	for _, blockType := range processingOrder {
		for _, block := range blocks.OfType(blockType) {
			diags = diags.Extend(config.processBlock(block))
		}
	}

	if diags.HasErrors() {
		return nil, diags
	}

	config.Logger.Info("Config built successfully",
		zap.Int("sockets", len(config.Sockets)),
		zap.Int("servers", len(config.Servers)),
		zap.Int("requests", len(config.Requests)))

	return config, diags
}

func (c *Config) processBlock(block *hcl.Block) hcl.Diagnostics {
	switch block.Type {
	case "socket":
		return c.processSocketBlock(block)
	case "server":
		return c.processServerBlock(block)
	case "request":
		return c.processRequestBlock(block)
	default:
		return hcl.Diagnostics{
			&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Invalid block type",
				Detail:   fmt.Sprintf("Invalid block type: %s", block.Type),
				Subject:  &block.DefRange,
			},
		}
	}
}

// Request returns the request block called name.
func (c *Config) Request(name string) (*RequestConfig, error) {
	rc, ok := c.Requests[name]
	if !ok {
		return nil, fmt.Errorf("request %q is not defined", name)
	}
	return rc, nil
}

// Server returns the server block called name. An empty name selects the
// only server block when there is exactly one.
func (c *Config) Server(name string) (*ServerConfig, error) {
	if name == "" {
		if len(c.Servers) != 1 {
			return nil, fmt.Errorf("%d server blocks defined, a server name is required", len(c.Servers))
		}
		for _, sc := range c.Servers {
			return sc, nil
		}
	}

	sc, ok := c.Servers[name]
	if !ok {
		return nil, fmt.Errorf("server %q is not defined", name)
	}
	return sc, nil
}

// SocketNames returns the names of all socket blocks in sorted order.
func (c *Config) SocketNames() []string {
	names := make([]string, 0, len(c.Sockets))
	for name := range c.Sockets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
