package report

import (
	"fmt"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/Sumatoshi-tech/modshim/pkg/registry"
)

const (
	graphHeight     = "800px"
	graphWidth      = "100%"
	graphRepulsion  = 600
	graphEdgeLength = 120
	minSymbolSize   = 8
	maxSymbolSize   = 48
)

var stateColors = map[registry.State]string{
	registry.StatePending:   "#9e9e9e",
	registry.StateAnalyzed:  "#ffb300",
	registry.StateLinked:    "#ffb300",
	registry.StateFinalized: "#43a047",
	registry.StateFailed:    "#e53935",
}

const (
	skippedColor = "#1e88e5"
	staleColor   = "#8d6e63"
)

func writeGraphHTML(w io.Writer, g Graph) error {
	err := graphChart(g).Render(w)
	if err != nil {
		return fmt.Errorf("render graph chart: %w", err)
	}

	return nil
}

func graphChart(g Graph) *charts.Graph {
	nodes := make([]opts.GraphNode, 0, len(g.Modules))
	links := make([]opts.GraphLink, 0, len(g.Modules))

	for _, n := range g.Modules {
		nodes = append(nodes, opts.GraphNode{
			Name:       n.URL,
			Value:      float32(n.Size),
			SymbolSize: symbolSize(n.Size),
			ItemStyle:  &opts.ItemStyle{Color: nodeColor(n)},
		})

		for _, dep := range n.Deps {
			links = append(links, opts.GraphLink{Source: n.URL, Target: dep})
		}
	}

	chart := charts.NewGraph()
	chart.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: graphWidth, Height: graphHeight}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Module graph",
			Subtitle: fmt.Sprintf("%s (%d modules, %d cycle edges)", g.Root, len(g.Modules), len(g.Order.BackEdges)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	chart.AddSeries("modules", nodes, links, charts.WithGraphChartOpts(opts.GraphChart{
		Layout:     "force",
		Roam:       opts.Bool(true),
		EdgeSymbol: []string{"none", "arrow"},
		Force:      &opts.GraphForce{Repulsion: graphRepulsion, EdgeLength: graphEdgeLength},
	}))

	return chart
}

// symbolSize scales with the logarithm of the module size.
func symbolSize(size int) int {
	if size <= 0 {
		return minSymbolSize
	}

	return min(maxSymbolSize, minSymbolSize+int(4*math.Log2(float64(size)/256+1)))
}

func nodeColor(n registry.Node) string {
	switch {
	case n.Skipped:
		return skippedColor
	case n.Stale:
		return staleColor
	default:
		return stateColors[n.State]
	}
}
