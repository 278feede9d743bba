package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/modshim/pkg/observability"
	"github.com/Sumatoshi-tech/modshim/pkg/registry"
	"github.com/Sumatoshi-tech/modshim/pkg/report"
)

const graphFileName = "graph"

func newGraphCommand(opts *options) *cobra.Command {
	var (
		format     string
		outDir     string
		importMaps []string
	)

	cmd := &cobra.Command{
		Use:   "graph ENTRY",
		Short: "Load a module graph and report it",
		Long: `Load the module graph below ENTRY, a path or URL, without executing it and
report every module with its state, size and dependencies, the execution
order and the cycle through the entry if there is one.

With --out the report is written to DIR/graph.<format> instead of stdout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}

			e, err := opts.start(observability.ModeCLI, nil)
			if err != nil {
				return err
			}
			defer e.close()

			ctx, span := e.providers.Tracer.Start(cmd.Context(), "modshim.graph")
			defer span.End()

			reg, err := e.newRegistry(ctx, importMaps)
			if err != nil {
				return err
			}

			entry, err := entryURL(args[0])
			if err != nil {
				return err
			}

			root, err := reg.Load(ctx, entry, "")
			if err != nil {
				return err
			}

			w, closeOut, err := graphOutput(cmd.OutOrStdout(), outDir, f)
			if err != nil {
				return err
			}

			defer func() {
				closeErr := closeOut()
				if err == nil {
					err = closeErr
				}
			}()

			return report.WriteGraph(w, graphOf(reg, root), f)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", string(report.FormatTable), "Output format: table, json, yaml, html")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Write the report into this directory")
	cmd.Flags().StringArrayVarP(&importMaps, "import-map", "m", nil, "Import map file (JSON or YAML), repeatable")

	return cmd
}

func graphOf(reg *registry.Registry, root string) report.Graph {
	return report.Graph{
		Root:    root,
		Modules: reg.Graph(root),
		Order:   reg.Order(root),
		Cycle:   reg.Cycle(root),
	}
}

// graphOutput returns stdout, or a fresh file in dir when dir is set.
func graphOutput(stdout io.Writer, dir string, f report.Format) (io.Writer, func() error, error) {
	if dir == "" {
		return stdout, func() error { return nil }, nil
	}

	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return nil, nil, fmt.Errorf("create output dir: %w", err)
	}

	file, err := os.Create(filepath.Join(dir, graphFileName+"."+extension(f)))
	if err != nil {
		return nil, nil, fmt.Errorf("create report: %w", err)
	}

	return file, file.Close, nil
}

func extension(f report.Format) string {
	if f == report.FormatTable {
		return "txt"
	}

	return string(f)
}
