package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/adalundhe/docgraph/core/filter"
	"github.com/adalundhe/docgraph/core/graph"
	"github.com/adalundhe/docgraph/core/service"
)

type elementKind struct {
	kind   graph.Kind
	name   string
	plural string
}

var (
	elementVertex = elementKind{kind: graph.VertexKind, name: "vertex", plural: "vertices"}
	elementEdge   = elementKind{kind: graph.EdgeKind, name: "edge", plural: "edges"}
)

// newElementCmd builds the vertex or edge command group.
func newElementCmd(opts *rootOptions, ek elementKind) *cobra.Command {
	group := &cobra.Command{
		Use:   ek.name,
		Short: fmt.Sprintf("Add, get, search and delete %s", ek.plural),
	}
	group.AddCommand(
		newAddCmd(opts, ek),
		newGetCmd(opts, ek),
		newSearchCmd(opts, ek),
		newDeleteCmd(opts, ek),
	)
	return group
}

// =============================================================================
// Add
// =============================================================================

func newAddCmd(opts *rootOptions, ek elementKind) *cobra.Command {
	var id string

	use := "add <label> [key=value...]"
	minArgs := 1
	if ek.kind == graph.EdgeKind {
		use = "add <label> <out-id> <in-id> [key=value...]"
		minArgs = 3
	}

	cmd := &cobra.Command{
		Use:   use,
		Short: fmt.Sprintf("Create a %s", ek.name),
		Long: fmt.Sprintf(`Create a %s. Property values are typed from their text:
integers, then floats, then true/false, otherwise strings.

The %s id is generated unless --id is given. Creating an id that
already exists fails.`, ek.name, ek.name),
		Args: cobra.MinimumNArgs(minArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := graph.AddRequest{Kind: ek.kind, Label: args[0], ID: id}
			rest := args[1:]
			if ek.kind == graph.EdgeKind {
				req.OutID, req.InID = args[1], args[2]
				rest = args[3:]
			}

			props, err := parseProperties(rest)
			if err != nil {
				return err
			}
			req.Properties = props

			return withService(cmd, opts, func(ctx context.Context, svc *service.Service) error {
				created, err := svc.AddElement(ctx, req)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), created)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Element id (generated when empty)")
	return cmd
}

// =============================================================================
// Get
// =============================================================================

func newGetCmd(opts *rootOptions, ek elementKind) *cobra.Command {
	var label string

	cmd := &cobra.Command{
		Use:   "get <id>...",
		Short: fmt.Sprintf("Fetch %s by id", ek.plural),
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, opts, func(ctx context.Context, svc *service.Service) error {
				var els []graph.Element
				if ek.kind == graph.VertexKind {
					vs, err := svc.GetVertices(ctx, label, args...)
					if err != nil {
						return err
					}
					for _, v := range vs {
						els = append(els, v)
					}
				} else {
					es, err := svc.GetEdges(ctx, label, args...)
					if err != nil {
						return err
					}
					for _, e := range es {
						els = append(els, e)
					}
				}
				return printElements(cmd.OutOrStdout(), els, opts.jsonOut)
			})
		},
	}
	cmd.Flags().StringVarP(&label, "label", "l", "", "Element label (required by the label strategy)")
	return cmd
}

// =============================================================================
// Search
// =============================================================================

func newSearchCmd(opts *rootOptions, ek elementKind) *cobra.Command {
	var (
		labels   []string
		ids      []string
		prefixes []string
	)

	cmd := &cobra.Command{
		Use:   "search [key=value...]",
		Short: fmt.Sprintf("Search %s by property", ek.plural),
		Long: fmt.Sprintf(`Search %s. Every key=value argument must match exactly;
--starts-with key=value matches values starting with value. With no
arguments every %s is returned.`, ek.plural, ek.name),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := buildFilter(args, prefixes)
			if err != nil {
				return err
			}

			return withService(cmd, opts, func(ctx context.Context, svc *service.Service) error {
				var els []graph.Element
				if ek.kind == graph.VertexKind {
					stream, err := svc.SearchVertices(ctx, f, ids, labels)
					if err != nil {
						return err
					}
					for v := range stream.All() {
						els = append(els, v)
					}
					if err := stream.Err(); err != nil {
						return err
					}
				} else {
					stream, err := svc.SearchEdges(ctx, f, ids, labels)
					if err != nil {
						return err
					}
					for e := range stream.All() {
						els = append(els, e)
					}
					if err := stream.Err(); err != nil {
						return err
					}
				}
				return printElements(cmd.OutOrStdout(), els, opts.jsonOut)
			})
		},
	}
	cmd.Flags().StringSliceVarP(&labels, "label", "l", nil, "Restrict to labels")
	cmd.Flags().StringSliceVar(&ids, "id", nil, "Restrict to ids")
	cmd.Flags().StringSliceVar(&prefixes, "starts-with", nil, "Prefix match (key=value)")
	return cmd
}

// buildFilter conjoins exact terms and prefix matches.
func buildFilter(terms, prefixes []string) (filter.Filter, error) {
	f, err := filter.ParseTerms(terms)
	if err != nil {
		return nil, err
	}

	clauses := []filter.Filter{f}
	for _, p := range prefixes {
		key, value, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("prefix %q: expected key=value", p)
		}
		clauses = append(clauses, filter.Prefix(key, value))
	}
	return filter.And(clauses...), nil
}

// =============================================================================
// Delete
// =============================================================================

func newDeleteCmd(opts *rootOptions, ek elementKind) *cobra.Command {
	var label string

	cmd := &cobra.Command{
		Use:   "delete <id>...",
		Short: fmt.Sprintf("Delete %s by id", ek.plural),
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, opts, func(ctx context.Context, svc *service.Service) error {
				els := make([]graph.Element, len(args))
				for i, id := range args {
					els[i] = elementRef(ek.kind, id, label)
				}
				if err := svc.DeleteElements(ctx, els...); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d %s\n", len(els), ek.plural)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&label, "label", "l", "", "Element label")
	return cmd
}

// elementRef stands in for an element known only by id and label.
func elementRef(kind graph.Kind, id, label string) graph.Element {
	if kind == graph.EdgeKind {
		return graph.NewEdge(id, label, "", "", nil)
	}
	return graph.NewVertex(id, label, nil)
}
