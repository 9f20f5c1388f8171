package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/adalundhe/docgraph/core/graph"
)

// elementOutput is the JSON form of an element.
type elementOutput struct {
	ID         string         `json:"id"`
	Label      string         `json:"label"`
	Kind       string         `json:"kind"`
	OutID      string         `json:"outId,omitempty"`
	InID       string         `json:"inId,omitempty"`
	Properties map[string]any `json:"properties"`
}

func newElementOutput(el graph.Element) elementOutput {
	out := elementOutput{
		ID:         el.ID(),
		Label:      el.Label(),
		Kind:       el.Kind().String(),
		Properties: make(map[string]any),
	}
	if e, ok := el.(*graph.Edge); ok {
		out.OutID = e.OutID()
		out.InID = e.InID()
	}
	for _, p := range el.Properties() {
		out.Properties[p.Key] = p.Value
	}
	return out
}

// printElements writes one element per line, or a JSON array.
func printElements(w io.Writer, els []graph.Element, jsonOut bool) error {
	if jsonOut {
		out := make([]elementOutput, len(els))
		for i, el := range els {
			out[i] = newElementOutput(el)
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	for _, el := range els {
		fmt.Fprintln(w, formatElement(el))
	}
	return nil
}

// formatElement renders v[person:1] name=marko age=29.
func formatElement(el graph.Element) string {
	var b strings.Builder
	fmt.Fprint(&b, el)
	for _, p := range el.Properties() {
		if el.Kind() == graph.EdgeKind && (p.Key == graph.OutIDKey || p.Key == graph.InIDKey) {
			continue
		}
		fmt.Fprintf(&b, " %s=%v", p.Key, p.Value)
	}
	return b.String()
}
