// Package observability wires OpenTelemetry tracing and metrics and the
// structured logger for every modshim mode (CLI, MCP, watch).
package observability

import "log/slog"

// AppMode identifies how the binary was launched.
type AppMode string

const (
	// ModeCLI is a one-shot command such as scan, resolve or graph.
	ModeCLI AppMode = "cli"
	// ModeMCP is the MCP stdio server.
	ModeMCP AppMode = "mcp"
	// ModeWatch is the long-running hot reload watcher.
	ModeWatch AppMode = "watch"
)

const (
	defaultServiceName        = "modshim"
	defaultShutdownTimeoutSec = 5
)

// Config holds all observability configuration.
type Config struct {
	// ServiceName is the OTel resource service name.
	ServiceName string

	ServiceVersion string

	// Environment is the deployment environment (e.g. "production", "dev").
	Environment string

	Mode AppMode

	// OTLPEndpoint is the OTLP gRPC collector address (e.g. "localhost:4317").
	// Empty disables push export.
	OTLPEndpoint string

	// OTLPHeaders are additional gRPC metadata headers for the OTLP exporter.
	OTLPHeaders map[string]string

	OTLPInsecure bool

	// Prometheus attaches a pull exporter to the meter provider. Init then
	// returns its scrape handler in Providers.MetricsHandler.
	Prometheus bool

	// DebugTrace forces 100% trace sampling when true.
	DebugTrace bool

	// SampleRatio is the trace sampling ratio (0.0 to 1.0) when DebugTrace is false.
	// Zero uses parent-based sampling with an always-on root.
	SampleRatio float64

	LogLevel slog.Level

	// TraceVerbose keeps per-fetch spans. When false only import and reload
	// spans are exported.
	TraceVerbose bool

	LogJSON bool

	// ShutdownTimeoutSec is the maximum seconds to wait for flush on shutdown.
	ShutdownTimeoutSec int
}

// DefaultConfig returns a Config for zero-config startup.
func DefaultConfig() Config {
	return Config{
		ServiceName:        defaultServiceName,
		Mode:               ModeCLI,
		LogLevel:           slog.LevelInfo,
		ShutdownTimeoutSec: defaultShutdownTimeoutSec,
	}
}
