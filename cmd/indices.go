package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adalundhe/docgraph/core/service"
)

func newIndicesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "indices",
		Short: "List the document indices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, opts, func(ctx context.Context, svc *service.Service) error {
				names, err := svc.Backend().Indices(ctx)
				if err != nil {
					return err
				}

				w := cmd.OutOrStdout()
				if opts.jsonOut {
					if names == nil {
						names = []string{}
					}
					return json.NewEncoder(w).Encode(names)
				}
				for _, name := range names {
					fmt.Fprintln(w, name)
				}
				return nil
			})
		},
	}
}
