package config

import (
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/tsarna/go2cty2go"
)

// RequestDefinition is the body of a request block.
type RequestDefinition struct {
	Socket   string         `hcl:"socket"`
	Payload  hcl.Expression `hcl:"payload"`
	Timeout  hcl.Expression `hcl:"timeout,optional"`
	Schedule string         `hcl:"schedule,optional"`
}

// RequestConfig is a named payload to send over a configured socket, either
// on demand or on a cron schedule.
type RequestConfig struct {
	Name     string
	Socket   string
	Payload  any
	Timeout  time.Duration
	Schedule string
	DefRange hcl.Range
}

func (c *Config) processRequestBlock(block *hcl.Block) hcl.Diagnostics {
	name := block.Labels[0]

	if existing, ok := c.Requests[name]; ok {
		return hcl.Diagnostics{duplicateDiagnostic("request", name, existing.DefRange, &block.DefRange)}
	}

	def := RequestDefinition{}
	diags := gohcl.DecodeBody(block.Body, c.evalCtx, &def)
	if diags.HasErrors() {
		return diags
	}

	if _, ok := c.Sockets[def.Socket]; !ok {
		return diags.Append(&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Unknown socket",
			Detail:   fmt.Sprintf("Request %s refers to undefined socket %s", name, def.Socket),
			Subject:  &block.DefRange,
		})
	}

	rc := &RequestConfig{
		Name:     name,
		Socket:   def.Socket,
		Schedule: def.Schedule,
		DefRange: block.DefRange,
	}

	value, valueDiags := def.Payload.Value(c.evalCtx)
	diags = diags.Extend(valueDiags)
	if valueDiags.HasErrors() {
		return diags
	}

	payload, err := go2cty2go.CtyToAny(value)
	if err != nil {
		return diags.Append(&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Invalid payload",
			Detail:   fmt.Sprintf("Unable to convert payload of request %s: %s", name, err),
			Subject:  def.Payload.Range().Ptr(),
		})
	}
	rc.Payload = payload

	diags = diags.Extend(c.parseOptionalDuration(def.Timeout, &rc.Timeout))

	if rc.Schedule != "" {
		if _, err := cronParser.Parse(rc.Schedule); err != nil {
			diags = diags.Append(&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Invalid schedule",
				Detail:   fmt.Sprintf("Invalid schedule %q for request %s: %s", rc.Schedule, name, err),
				Subject:  &block.DefRange,
			})
		}
	}

	if diags.HasErrors() {
		return diags
	}

	c.Requests[name] = rc

	return diags
}
