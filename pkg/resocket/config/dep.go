package config

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/heimdalr/dag"
)

// ExtractReferencesFromAttribute returns the root names referenced by attr,
// so `base = "ws://${host}:${port}"` yields host and port.
func ExtractReferencesFromAttribute(attr *hcl.Attribute) []string {
	var refs []string

	for _, traversal := range attr.Expr.Variables() {
		if len(traversal) > 0 {
			refs = append(refs, traversal.RootName())
		}
	}

	return refs
}

// SortAttributesByDependencies orders the attributes of the const blocks so
// a constant is evaluated after every constant it refers to. Names that are
// not constants, such as env, are resolved by the evaluation context.
// A reference cycle is reported on the attribute that closes it.
func SortAttributesByDependencies(attrs hcl.Attributes) ([]*hcl.Attribute, hcl.Diagnostics) {
	var diags hcl.Diagnostics

	graph := dag.NewDAG()

	for _, attr := range attrs {
		err := graph.AddVertexByID(attr.Name, attr)
		if err != nil {
			diags = diags.Append(&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Failed to add attribute to dependency graph",
				Detail:   fmt.Sprintf("Error adding attribute %s: %s", attr.Name, err),
				Subject:  &attr.NameRange,
			})
		}
	}

	for name, attr := range attrs {
		for _, ref := range ExtractReferencesFromAttribute(attr) {
			if _, exists := attrs[ref]; !exists {
				continue
			}

			err := graph.AddEdge(ref, name)
			if err != nil {
				diags = diags.Append(&hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Circular dependency detected",
					Detail:   fmt.Sprintf("Cannot add dependency from %s to %s: %s", ref, name, err),
					Subject:  &attr.Range,
				})
			}
		}
	}

	if diags.HasErrors() {
		return nil, diags
	}

	visitor := &attributeVertexVisitor{}
	graph.OrderedWalk(visitor)

	return visitor.attrs, diags
}

// attributeVertexVisitor collects constants in walk order.
type attributeVertexVisitor struct {
	attrs []*hcl.Attribute
}

func (v *attributeVertexVisitor) Visit(vertex dag.Vertexer) {
	_, value := vertex.Vertex()
	v.attrs = append(v.attrs, value.(*hcl.Attribute))
}
