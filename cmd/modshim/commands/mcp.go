package commands

import (
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/modshim/pkg/mcp"
	"github.com/Sumatoshi-tech/modshim/pkg/observability"
)

func newMCPCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the scan, resolve and graph tools over MCP stdio",
		Long: `Start a Model Context Protocol (MCP) server on stdio transport.

Tools:
  - modshim_scan: list the imports and exports of inline module source
  - modshim_resolve: resolve a specifier through an inline import map
  - modshim_graph: load a graph of inline modules and report its order and cycles`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := opts.start(observability.ModeMCP, nil)
			if err != nil {
				return err
			}
			defer e.close()

			red, err := observability.NewREDMetrics(e.providers.Meter)
			if err != nil {
				return err
			}

			srv := mcp.NewServer(mcp.ServerDeps{
				Logger:        e.providers.Logger,
				Metrics:       red,
				LoaderMetrics: e.loaderMetrics,
				Tracer:        e.providers.Tracer,
			})

			return srv.Run(cmd.Context())
		},
	}
}
