// Package graph defines the property-graph element model: vertices, edges,
// their properties, and the conversion of stored documents into elements.
package graph

import (
	"fmt"
	"strings"
)

// Reserved edge document keys holding the endpoint vertex ids.
const (
	OutIDKey = "outId"
	InIDKey  = "inId"
)

// Kind distinguishes vertices from edges.
type Kind int

const (
	VertexKind Kind = iota
	EdgeKind
)

func (k Kind) String() string {
	switch k {
	case VertexKind:
		return "vertex"
	case EdgeKind:
		return "edge"
	default:
		return "unknown"
	}
}

// ParseKind converts "vertex" or "edge" into a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "vertex", "vertices":
		return VertexKind, nil
	case "edge", "edges":
		return EdgeKind, nil
	default:
		return 0, fmt.Errorf("unknown element kind %q", s)
	}
}

// Property is one key/value pair of an element.
type Property struct {
	Key   string
	Value any
}

// Element is a vertex or an edge. Elements are snapshots of stored documents
// and are never cached.
type Element interface {
	ID() string
	Label() string
	Kind() Kind

	// Properties returns the properties in a stable order.
	Properties() []Property

	// Property returns the value stored under key.
	Property(key string) (any, bool)
}

// Ref addresses a stored element without materializing it.
type Ref struct {
	ID    string
	Label string
	Kind  Kind
}

// RefOf returns the reference of el.
func RefOf(el Element) Ref {
	return Ref{ID: el.ID(), Label: el.Label(), Kind: el.Kind()}
}

// AddRequest describes an element to create. An empty ID asks for a
// generated one. OutID and InID are required for edges and ignored for
// vertices.
type AddRequest struct {
	Kind       Kind
	Label      string
	ID         string
	OutID      string
	InID       string
	Properties []Property
}

// =============================================================================
// Vertex
// =============================================================================

// Vertex is a graph node.
type Vertex struct {
	id    string
	label string
	props []Property
}

// NewVertex creates a vertex. The property slice is copied.
func NewVertex(id, label string, props []Property) *Vertex {
	return &Vertex{id: id, label: label, props: cloneProperties(props)}
}

func (v *Vertex) ID() string                      { return v.id }
func (v *Vertex) Label() string                   { return v.label }
func (v *Vertex) Kind() Kind                      { return VertexKind }
func (v *Vertex) Properties() []Property          { return cloneProperties(v.props) }
func (v *Vertex) Property(key string) (any, bool) { return lookup(v.props, key) }

func (v *Vertex) String() string {
	return fmt.Sprintf("v[%s:%s]", v.label, v.id)
}

// =============================================================================
// Edge
// =============================================================================

// Edge is a directed relation from the out vertex to the in vertex.
type Edge struct {
	id    string
	label string
	outID string
	inID  string
	props []Property
}

// NewEdge creates an edge. The property slice is copied.
func NewEdge(id, label, outID, inID string, props []Property) *Edge {
	return &Edge{id: id, label: label, outID: outID, inID: inID, props: cloneProperties(props)}
}

func (e *Edge) ID() string                      { return e.id }
func (e *Edge) Label() string                   { return e.label }
func (e *Edge) Kind() Kind                      { return EdgeKind }
func (e *Edge) OutID() string                   { return e.outID }
func (e *Edge) InID() string                    { return e.inID }
func (e *Edge) Properties() []Property          { return cloneProperties(e.props) }
func (e *Edge) Property(key string) (any, bool) { return lookup(e.props, key) }

func (e *Edge) String() string {
	return fmt.Sprintf("e[%s:%s][%s->%s]", e.label, e.id, e.outID, e.inID)
}

func cloneProperties(props []Property) []Property {
	if props == nil {
		return nil
	}
	out := make([]Property, len(props))
	copy(out, props)
	return out
}

func lookup(props []Property, key string) (any, bool) {
	for _, p := range props {
		if p.Key == key {
			return p.Value, true
		}
	}
	return nil, false
}
