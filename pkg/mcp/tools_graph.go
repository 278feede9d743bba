package mcp

import (
	"context"
	"fmt"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/modshim/pkg/fetch"
	"github.com/Sumatoshi-tech/modshim/pkg/observability"
	"github.com/Sumatoshi-tech/modshim/pkg/registry"
	"github.com/Sumatoshi-tech/modshim/pkg/report"
)

// graphTool builds a fresh registry over the call's modules for every call.
type graphTool struct {
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *observability.LoaderMetrics
}

// handle processes modshim_graph tool calls.
func (g graphTool) handle(
	ctx context.Context,
	_ *mcpsdk.CallToolRequest,
	input GraphInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	err := validateGraphInput(input)
	if err != nil {
		return errorResult(err)
	}

	base := baseOrDefault(input.BaseURL)

	m, err := composeInline(input.ImportMap, base, g.logger)
	if err != nil {
		return errorResult(err)
	}

	mem := fetch.NewMemory()
	for url, source := range input.Modules {
		mem.Set(url, source)
	}

	reg := registry.New(mem,
		registry.WithImportMap(m),
		registry.WithBaseURL(base),
		registry.WithSkip(input.Skip...),
		registry.WithLogger(g.logger),
		registry.WithTracer(g.tracer),
		registry.WithMetrics(g.metrics),
	)

	root, err := reg.Load(ctx, input.Entry, "")
	if err != nil {
		return errorResult(fmt.Errorf("load graph: %w", err))
	}

	return jsonResult(report.Graph{
		Root:    root,
		Modules: reg.Graph(root),
		Order:   reg.Order(root),
		Cycle:   reg.Cycle(root),
	})
}

func validateGraphInput(input GraphInput) error {
	if input.Entry == "" {
		return ErrEmptyEntry
	}

	if len(input.Modules) == 0 {
		return ErrNoModules
	}

	if len(input.Modules) > MaxGraphModules {
		return fmt.Errorf("%w: %d (max %d)", ErrTooManyModules, len(input.Modules), MaxGraphModules)
	}

	for url, source := range input.Modules {
		err := validateSource(url, source)
		if err != nil {
			return err
		}
	}

	return nil
}
