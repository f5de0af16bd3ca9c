// Package model defines the service model: the externally supplied shape
// description of a namespace's API surface. Models are pre-generated from
// published API definitions and loaded from disk at run time; nothing here
// reflects over a live client.
package model

import "context"

// Member describes one input or output member of an operation shape.
type Member struct {
	// Name is the member name as it appears on the wire.
	Name string `yaml:"name" json:"name"`

	// Type is the member's declared type (string, integer, list, structure...).
	Type string `yaml:"type,omitempty" json:"type,omitempty"`

	// Required marks input members that the shape declares mandatory.
	Required bool `yaml:"required,omitempty" json:"required,omitempty"`
}

// Operation is one callable action within a namespace.
type Operation struct {
	// Name is the operation name (PascalCase, e.g. "ListBuckets").
	Name string `yaml:"name" json:"name"`

	// Input lists the operation's input shape members.
	Input []Member `yaml:"input,omitempty" json:"input,omitempty"`

	// Output lists the operation's output shape members.
	Output []Member `yaml:"output,omitempty" json:"output,omitempty"`
}

// RequiredInput returns the required input members in declaration order.
func (o Operation) RequiredInput() []Member {
	var req []Member
	for _, m := range o.Input {
		if m.Required {
			req = append(req, m)
		}
	}
	return req
}

// OptionalInput returns the optional input members in declaration order.
func (o Operation) OptionalInput() []Member {
	var opt []Member
	for _, m := range o.Input {
		if !m.Required {
			opt = append(opt, m)
		}
	}
	return opt
}

// Service is the full shape description of one namespace.
type Service struct {
	// Name is the namespace name (e.g. "s3").
	Name string `yaml:"name" json:"name"`

	// Global marks namespaces that are not partitioned by region and are
	// queried once against the reference region.
	Global bool `yaml:"global,omitempty" json:"global,omitempty"`

	// Operations lists every operation the namespace exposes, in the order
	// the model declares them (discovery order).
	Operations []Operation `yaml:"operations" json:"operations"`
}

// Loader provides service models by namespace.
type Loader interface {
	// Namespaces lists every namespace the loader knows about, sorted.
	Namespaces(ctx context.Context) ([]string, error)

	// Load returns the model for one namespace.
	Load(ctx context.Context, namespace string) (*Service, error)
}
