package config

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
)

// constCollector gathers the attributes of every const block so they can be
// evaluated together in dependency order.
type constCollector struct {
	consts hcl.Attributes
}

func newConstCollector() *constCollector {
	return &constCollector{
		consts: make(hcl.Attributes),
	}
}

func (b *constCollector) add(block *hcl.Block) hcl.Diagnostics {
	attrs, diags := block.Body.JustAttributes()
	if diags.HasErrors() {
		return diags
	}

	for name, attr := range attrs {
		if existing, exists := b.consts[name]; exists {
			diags = diags.Append(&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Duplicate attribute",
				Detail:   fmt.Sprintf("Attribute %s at %v is already defined at %v", name, attr.NameRange, existing.NameRange),
				Subject:  &attr.NameRange,
			})
			continue
		}
		if name == "env" {
			diags = diags.Append(&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Reserved name",
				Detail:   "The name env is reserved for environment variables",
				Subject:  &attr.NameRange,
			})
			continue
		}
		b.consts[name] = attr
	}

	return diags
}

func (b *constCollector) evaluate(config *Config) hcl.Diagnostics {
	attrs, diags := SortAttributesByDependencies(b.consts)
	if diags.HasErrors() {
		return diags
	}

	for _, attribute := range attrs {
		value, evalDiags := attribute.Expr.Value(config.evalCtx)
		diags = diags.Extend(evalDiags)
		config.Constants[attribute.Name] = value
	}

	return diags
}
