// Package mcp implements a Model Context Protocol server exposing the modshim
// scanner, resolver and graph loader as MCP tools over stdio transport.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/modshim/pkg/observability"
	"github.com/Sumatoshi-tech/modshim/pkg/version"
)

const (
	// serverName is the MCP server implementation name.
	serverName = "modshim"

	// toolCount is the expected number of registered tools.
	toolCount = 3
)

// ServerDeps holds injectable dependencies for the MCP server.
// Zero-value fields use production defaults.
type ServerDeps struct {
	// Logger is an optional structured logger. Nil discards server and loader logs.
	Logger *slog.Logger

	// Metrics is an optional RED metrics recorder. Nil disables per-tool metrics.
	Metrics *observability.REDMetrics

	// LoaderMetrics is handed to the registry built for each graph call.
	LoaderMetrics *observability.LoaderMetrics

	// Tracer is an optional OTel tracer for per-tool-call spans. Nil disables tracing.
	Tracer trace.Tracer
}

// Server wraps the MCP SDK server with modshim tool registrations.
type Server struct {
	inner   *mcpsdk.Server
	tools   []string
	metrics *observability.REDMetrics
	tracer  trace.Tracer
}

// NewServer creates a new MCP server with all modshim tools registered.
func NewServer(deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	tracer := deps.Tracer
	if tracer == nil {
		tracer = nooptrace.NewTracerProvider().Tracer(serverName)
	}

	srv := &Server{
		inner: mcpsdk.NewServer(
			&mcpsdk.Implementation{Name: serverName, Version: version.Version},
			&mcpsdk.ServerOptions{Logger: logger},
		),
		tools:   make([]string, 0, toolCount),
		metrics: deps.Metrics,
		tracer:  tracer,
	}

	graph := graphTool{logger: logger, tracer: deps.Tracer, metrics: deps.LoaderMetrics}

	addTool(srv, ToolNameScan, scanToolDescription, handleScan)
	addTool(srv, ToolNameResolve, resolveToolDescription, handleResolve)
	addTool(srv, ToolNameGraph, graphToolDescription, graph.handle)

	return srv
}

// ListToolNames returns the sorted names of all registered tools.
func (s *Server) ListToolNames() []string {
	return slices.Sorted(slices.Values(s.tools))
}

// Run serves MCP on stdio until ctx is canceled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.RunWithTransport(ctx, &mcpsdk.StdioTransport{})
}

// RunWithTransport serves MCP on transport until ctx is canceled or the
// connection closes.
func (s *Server) RunWithTransport(ctx context.Context, transport mcpsdk.Transport) error {
	err := s.inner.Run(ctx, transport)
	if err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	return nil
}

const (
	mcpSpanPrefix = "mcp."

	// traceIDMetaKey prefixes the trace id appended to sampled tool results.
	traceIDMetaKey = "trace_id"
)

func addTool[Input any](
	s *Server,
	name, description string,
	handler func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error),
) {
	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{Name: name, Description: description}, instrument(s, name, handler))
	s.tools = append(s.tools, name)
}

// instrument runs handler inside an "mcp.<tool>" server span and records
// RED metrics for the call. Sampled results get the trace id appended as a
// trailing text block.
func instrument[Input any](
	s *Server,
	toolName string,
	handler func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error),
) func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
	op := mcpSpanPrefix + toolName

	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
		start := time.Now()

		done := s.metrics.TrackInflight(ctx, op)
		defer done()

		ctx, span := s.tracer.Start(ctx, op,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("mcp.tool", toolName)),
		)
		defer span.End()

		result, output, err := handler(ctx, req, input)

		status := "ok"
		if err != nil || (result != nil && result.IsError) {
			status = "error"

			span.SetStatus(codes.Error, toolName+" failed")
		}

		if sc := span.SpanContext(); sc.IsSampled() && result != nil {
			result.Content = append(result.Content, &mcpsdk.TextContent{
				Text: traceIDMetaKey + "=" + sc.TraceID().String(),
			})
		}

		s.metrics.RecordRequest(ctx, op, status, time.Since(start))

		return result, output, err
	}
}

const (
	scanToolDescription = "Scan JavaScript module source for static imports, dynamic imports, " +
		"import.meta references and export names. Returns occurrence offsets."

	resolveToolDescription = "Resolve a module specifier against a parent URL through an optional " +
		"import map document (JSON). Returns the resolved URL."

	graphToolDescription = "Load a graph of in-memory modules from an entry specifier. Returns every " +
		"module with its state and dependencies, the execution order and any cycle edges."
)
