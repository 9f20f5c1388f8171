package graph

import (
	"sort"

	errs "github.com/adalundhe/docgraph/core/errors"
)

// Materialize builds an element of the given kind from stored fields. Every
// field becomes a property, ordered by key. Edges additionally take their
// endpoints from the reserved keys, which stay in the property list.
func Materialize(kind Kind, id, label string, fields map[string]any) (Element, error) {
	const op = "materialize"

	props := make([]Property, 0, len(fields))
	for k, v := range fields {
		props = append(props, Property{Key: k, Value: v})
	}
	sort.Slice(props, func(i, j int) bool { return props[i].Key < props[j].Key })

	switch kind {
	case VertexKind:
		return &Vertex{id: id, label: label, props: props}, nil

	case EdgeKind:
		outID, err := endpoint(fields, OutIDKey)
		if err != nil {
			return nil, errs.Materialization(op, "edge %s: %v", id, err)
		}
		inID, err := endpoint(fields, InIDKey)
		if err != nil {
			return nil, errs.Materialization(op, "edge %s: %v", id, err)
		}
		return &Edge{id: id, label: label, outID: outID, inID: inID, props: props}, nil

	default:
		return nil, errs.Materialization(op, "unknown element kind %d", kind)
	}
}

type endpointError struct {
	key    string
	reason string
}

func (e *endpointError) Error() string {
	return "endpoint field " + e.key + " " + e.reason
}

func endpoint(fields map[string]any, key string) (string, error) {
	raw, ok := fields[key]
	if !ok {
		return "", &endpointError{key: key, reason: "is missing"}
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", &endpointError{key: key, reason: "is not a vertex id"}
	}
	return s, nil
}
