package mcp_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Sumatoshi-tech/modshim/pkg/mcp"
	"github.com/Sumatoshi-tech/modshim/pkg/observability"
)

// connect runs srv on an in-memory transport and returns a client session.
func connect(t *testing.T, srv *mcp.Server) *mcpsdk.ClientSession {
	t.Helper()

	clientTransport, serverTransport := mcpsdk.NewInMemoryTransports()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)

	serverDone := make(chan error, 1)

	go func() {
		serverDone <- srv.RunWithTransport(ctx, serverTransport)
	}()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    "test-client",
		Version: "1.0.0",
	}, nil)

	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = session.Close()

		cancel()
		<-serverDone
	})

	return session
}

func TestMCPServer_InMemoryTransport_ToolsList(t *testing.T) {
	t.Parallel()

	session := connect(t, mcp.NewServer(mcp.ServerDeps{}))

	toolsResult, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	toolNames := make([]string, 0, len(toolsResult.Tools))
	for _, tool := range toolsResult.Tools {
		toolNames = append(toolNames, tool.Name)
		assert.NotNil(t, tool.InputSchema, "tool %s missing input schema", tool.Name)
	}

	assert.ElementsMatch(t, []string{"modshim_scan", "modshim_resolve", "modshim_graph"}, toolNames)
}

func TestMCPServer_InMemoryTransport_CallGraph(t *testing.T) {
	t.Parallel()

	session := connect(t, mcp.NewServer(mcp.ServerDeps{}))

	result, err := session.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name: "modshim_graph",
		Arguments: map[string]any{
			"entry":    "./main.js",
			"base_url": "https://h/",
			"modules": map[string]any{
				"https://h/main.js": `import { x } from "./x.js"; export default x;`,
				"https://h/x.js":    `export const x = 1;`,
			},
		},
	})
	require.NoError(t, err)
	require.False(t, result.IsError)

	text, ok := result.Content[0].(*mcpsdk.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, "https://h/x.js")
}

func TestMCPServer_InMemoryTransport_CallScan_Error(t *testing.T) {
	t.Parallel()

	session := connect(t, mcp.NewServer(mcp.ServerDeps{}))

	result, err := session.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      "modshim_scan",
		Arguments: map[string]any{"source": ""},
	})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestMCPServer_Instrumented(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	red, err := observability.NewREDMetrics(mp.Meter("test"))
	require.NoError(t, err)

	session := connect(t, mcp.NewServer(mcp.ServerDeps{
		Metrics: red,
		Tracer:  tp.Tracer("test"),
	}))

	result, err := session.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name: "modshim_resolve",
		Arguments: map[string]any{
			"specifier": "./b.js",
			"parent":    "https://h/a.js",
		},
	})
	require.NoError(t, err)
	require.False(t, result.IsError)

	last, ok := result.Content[len(result.Content)-1].(*mcpsdk.TextContent)
	require.True(t, ok)
	assert.Contains(t, last.Text, "trace_id=")

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "mcp.modshim_resolve", spans[0].Name)

	var rm metricdata.ResourceMetrics

	require.NoError(t, reader.Collect(context.Background(), &rm))

	found := false

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == "modshim.requests.total" {
				found = true
			}
		}
	}

	assert.True(t, found, "request counter recorded")
}
