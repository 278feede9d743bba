// Package commands implements the modshim cobra commands.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/modshim/pkg/observability"
)

// InitFunc initializes observability for one command run.
type InitFunc func(observability.Config) (observability.Providers, error)

// options are shared by every subcommand.
type options struct {
	configPath string
	verbose    bool
	initObs    InitFunc
}

// NewRootCommand creates the modshim root command with all subcommands.
func NewRootCommand() *cobra.Command {
	return newRootCommand(observability.Init)
}

func newRootCommand(initObs InitFunc) *cobra.Command {
	opts := &options{initObs: initObs}

	root := &cobra.Command{
		Use:   "modshim",
		Short: "Module graph loader with import maps and hot reload",
		Long: `modshim resolves module specifiers through import maps, loads module
graphs with cycle-safe execution ordering and reloads them as files change.

Commands:
  scan      List the imports and exports of one module
  resolve   Resolve a specifier through the configured import maps
  graph     Load a module graph and report it
  watch     Load a module graph and hot reload it on file changes
  mcp       Serve the scan, resolve and graph tools over MCP stdio`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"Config file (default: modshim.yaml in the working directory or $HOME)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Debug logging and unfiltered traces")

	root.AddCommand(
		newScanCommand(opts),
		newResolveCommand(opts),
		newGraphCommand(opts),
		newWatchCommand(opts),
		newMCPCommand(opts),
		newVersionCommand(),
	)

	return root
}
