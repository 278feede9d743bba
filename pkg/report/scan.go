package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Sumatoshi-tech/modshim/pkg/lexer"
)

// Occurrence kind names.
const (
	kindStatic  = "static"
	kindDynamic = "dynamic"
	kindMeta    = "meta"
)

// Scan is the report of one scanned source file.
type Scan struct {
	File       string             `json:"file"       yaml:"file"`
	Imports    []lexer.Occurrence `json:"imports"    yaml:"imports"`
	Exports    []string           `json:"exports"    yaml:"exports"`
	Specifiers []string           `json:"specifiers" yaml:"specifiers"`
}

// NewScan builds the report of source, scanned into a.
func NewScan(file, source string, a *lexer.Analysis) Scan {
	s := Scan{
		File:       file,
		Imports:    a.Imports,
		Exports:    a.Exports,
		Specifiers: make([]string, len(a.Imports)),
	}

	if s.Imports == nil {
		s.Imports = []lexer.Occurrence{}
	}

	if s.Exports == nil {
		s.Exports = []string{}
	}

	for i, occ := range a.Imports {
		s.Specifiers[i] = a.Specifier(source, occ)
	}

	return s
}

// WriteScan writes s in format. FormatHTML is not available for scans.
func WriteScan(w io.Writer, s Scan, format Format) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, s)
	case FormatYAML:
		return writeYAML(w, s)
	case FormatTable, "":
		_, err := io.WriteString(w, scanTable(s))

		return err
	default:
		return fmt.Errorf("%w for scan: %q", ErrUnknownFormat, format)
	}
}

func scanTable(s Scan) string {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.Style().Options.DrawBorder = false

	tbl.AppendHeader(table.Row{"#", "Kind", "Start", "End", "Specifier"})

	for i, occ := range s.Imports {
		tbl.AppendRow(table.Row{i + 1, occurrenceKind(occ), occ.Start, occ.End, s.Specifiers[i]})
	}

	tbl.AppendFooter(table.Row{"", "Total", len(s.Imports), "", ""})

	var sb strings.Builder

	fmt.Fprintf(&sb, "%s\n%s\n", s.File, tbl.Render())

	if len(s.Exports) > 0 {
		fmt.Fprintf(&sb, "exports: %s\n", strings.Join(s.Exports, ", "))
	} else {
		sb.WriteString("exports: none\n")
	}

	return sb.String()
}

func occurrenceKind(occ lexer.Occurrence) string {
	switch {
	case occ.IsStatic():
		return kindStatic
	case occ.IsMeta():
		return kindMeta
	default:
		return kindDynamic
	}
}
