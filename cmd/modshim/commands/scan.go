package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Sumatoshi-tech/modshim/pkg/lexer"
	"github.com/Sumatoshi-tech/modshim/pkg/observability"
	"github.com/Sumatoshi-tech/modshim/pkg/report"
)

// stdinName selects standard input as the scanned file.
const stdinName = "-"

func newScanCommand(opts *options) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "scan FILE",
		Short: "List the imports and exports of one module",
		Long: `Scan one module without loading it. The report lists every static import,
dynamic import and import.meta reference with its offsets, followed by the
module's export names. Use - to read standard input.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}

			e, err := opts.start(observability.ModeCLI, nil)
			if err != nil {
				return err
			}
			defer e.close()

			_, span := e.providers.Tracer.Start(cmd.Context(), "modshim.scan")
			defer span.End()

			span.SetAttributes(attribute.String("modshim.file", args[0]))

			source, err := readSource(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			analysis, err := lexer.Scan(source)
			if err != nil {
				return fmt.Errorf("scan %s: %w", args[0], err)
			}

			return report.WriteScan(cmd.OutOrStdout(), report.NewScan(args[0], source, analysis), f)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", string(report.FormatTable), "Output format: table, json, yaml")

	return cmd
}

func readSource(stdin io.Reader, name string) (string, error) {
	var (
		data []byte
		err  error
	)

	if name == stdinName {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(name)
	}

	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}

	return string(data), nil
}
