package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Sumatoshi-tech/modshim/pkg/registry"
	"github.com/Sumatoshi-tech/modshim/pkg/toposort"
)

// Graph is the report of a loaded module graph.
type Graph struct {
	Root    string          `json:"root"    yaml:"root"`
	Modules []registry.Node `json:"modules" yaml:"modules"`
	Order   toposort.Order  `json:"order"   yaml:"order"`
	Cycle   []string        `json:"cycle"   yaml:"cycle"`
}

// TotalSize returns the summed response size of all modules.
func (g Graph) TotalSize() uint64 {
	var total uint64

	for _, n := range g.Modules {
		if n.Size > 0 {
			total += uint64(n.Size)
		}
	}

	return total
}

// WriteGraph writes g in format.
func WriteGraph(w io.Writer, g Graph, format Format) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, g)
	case FormatYAML:
		return writeYAML(w, g)
	case FormatHTML:
		return writeGraphHTML(w, g)
	case FormatTable, "":
		_, err := io.WriteString(w, graphTable(g))

		return err
	default:
		return fmt.Errorf("%w for graph: %q", ErrUnknownFormat, format)
	}
}

func graphTable(g Graph) string {
	position := make(map[string]int, len(g.Order.Modules))
	for i, url := range g.Order.Modules {
		position[url] = i + 1
	}

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.Style().Options.DrawBorder = false

	tbl.AppendHeader(table.Row{"Order", "URL", "State", "Kind", "Size", "Exports", "Deps"})

	for _, n := range g.Modules {
		order := ""
		if p, ok := position[n.URL]; ok {
			order = fmt.Sprint(p)
		}

		tbl.AppendRow(table.Row{
			order, n.URL, stateLabel(n), string(n.Kind),
			humanize.Bytes(uint64(max(n.Size, 0))), len(n.Exports), len(n.Deps),
		})
	}

	tbl.AppendFooter(table.Row{"", fmt.Sprintf("Total: %d modules", len(g.Modules)), "", "",
		humanize.Bytes(g.TotalSize()), "", ""})

	var sb strings.Builder

	sb.WriteString(tbl.Render())
	sb.WriteString("\n")

	for _, edge := range g.Order.BackEdges {
		fmt.Fprintf(&sb, "cycle edge: %s -> %s\n", edge[0], edge[1])
	}

	for _, n := range g.Modules {
		if n.Error != "" {
			fmt.Fprintf(&sb, "%s %s: %s\n", color.New(color.FgRed).Sprint("error"), n.URL, n.Error)
		}
	}

	return sb.String()
}

func stateLabel(n registry.Node) string {
	label := n.State.String()

	switch {
	case n.Skipped:
		return color.New(color.FgCyan).Sprint("skipped")
	case n.Stale:
		return color.New(color.FgYellow).Sprint(label + " (stale)")
	case n.State == registry.StateFinalized:
		return color.New(color.FgGreen).Sprint(label)
	case n.State == registry.StateFailed:
		return color.New(color.FgRed).Sprint(label)
	default:
		return color.New(color.FgYellow).Sprint(label)
	}
}
