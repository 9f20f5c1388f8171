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

func newPropCmd(opts *rootOptions) *cobra.Command {
	prop := &cobra.Command{
		Use:   "prop",
		Short: "Set and remove element properties",
	}

	set := &cobra.Command{
		Use:   "set <vertex|edge> <label> <id> <key=value>...",
		Short: "Set properties on an element",
		Args:  cobra.MinimumNArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := graph.ParseKind(args[0])
			if err != nil {
				return err
			}
			props, err := parseProperties(args[3:])
			if err != nil {
				return err
			}
			el := elementRef(kind, args[2], args[1])

			return withService(cmd, opts, func(ctx context.Context, svc *service.Service) error {
				for _, p := range props {
					if err := svc.AddProperty(ctx, el, p.Key, p.Value); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	remove := &cobra.Command{
		Use:   "remove <vertex|edge> <label> <id> <key>...",
		Short: "Remove properties from an element",
		Args:  cobra.MinimumNArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := graph.ParseKind(args[0])
			if err != nil {
				return err
			}
			el := elementRef(kind, args[2], args[1])

			return withService(cmd, opts, func(ctx context.Context, svc *service.Service) error {
				for _, key := range args[3:] {
					if err := svc.RemoveProperty(ctx, el, key); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	prop.AddCommand(set, remove)
	return prop
}

// parseProperties turns key=value arguments into typed properties, keeping
// their order.
func parseProperties(args []string) ([]graph.Property, error) {
	props := make([]graph.Property, 0, len(args))
	for _, a := range args {
		key, raw, ok := strings.Cut(a, "=")
		if !ok {
			return nil, fmt.Errorf("property %q: expected key=value", a)
		}
		props = append(props, graph.Property{Key: key, Value: filter.ParseValue(raw)})
	}
	return props, nil
}
