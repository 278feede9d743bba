package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/modshim/pkg/observability"
)

func newResolveCommand(opts *options) *cobra.Command {
	var (
		parent     string
		importMaps []string
	)

	cmd := &cobra.Command{
		Use:   "resolve SPECIFIER",
		Short: "Resolve a specifier through the configured import maps",
		Long: `Resolve SPECIFIER as if it were imported from --parent, which defaults to
the working directory. Import maps from the config file are composed first,
then every --import-map in order.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.start(observability.ModeCLI, nil)
			if err != nil {
				return err
			}
			defer e.close()

			ctx, span := e.providers.Tracer.Start(cmd.Context(), "modshim.resolve")
			defer span.End()

			reg, err := e.newRegistry(ctx, importMaps)
			if err != nil {
				return err
			}

			resolved, err := reg.Resolve(args[0], parent)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), resolved)

			return err
		},
	}

	cmd.Flags().StringVar(&parent, "parent", "", "URL of the importing module (default: working directory)")
	cmd.Flags().StringArrayVarP(&importMaps, "import-map", "m", nil, "Import map file (JSON or YAML), repeatable")

	return cmd
}
