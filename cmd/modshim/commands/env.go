package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	noopmetric "go.opentelemetry.io/otel/metric/noop"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/modshim/pkg/config"
	"github.com/Sumatoshi-tech/modshim/pkg/fetch"
	"github.com/Sumatoshi-tech/modshim/pkg/importmap"
	"github.com/Sumatoshi-tech/modshim/pkg/observability"
	"github.com/Sumatoshi-tech/modshim/pkg/registry"
	"github.com/Sumatoshi-tech/modshim/pkg/version"
)

// env is the runtime of one command: loaded configuration and live
// observability providers.
type env struct {
	cfg           *config.Config
	providers     observability.Providers
	loaderMetrics *observability.LoaderMetrics
}

// start loads the configuration and initializes observability for mode.
// A non-nil prometheus decides from the loaded configuration whether the
// scrape handler is built. The caller must call close.
func (o *options) start(mode observability.AppMode, prometheus func(*config.Config) bool) (*env, error) {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return nil, err
	}

	obsCfg, err := observabilityConfig(cfg, mode, o.verbose)
	if err != nil {
		return nil, err
	}

	obsCfg.Prometheus = prometheus != nil && prometheus(cfg)

	providers, err := o.initObs(obsCfg)
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}

	if providers.Logger == nil {
		providers.Logger = slog.New(slog.DiscardHandler)
	}

	if providers.Tracer == nil {
		providers.Tracer = nooptrace.NewTracerProvider().Tracer("modshim")
	}

	if providers.Meter == nil {
		providers.Meter = noopmetric.NewMeterProvider().Meter("modshim")
	}

	lm, err := observability.NewLoaderMetrics(providers.Meter)
	if err != nil {
		return nil, err
	}

	return &env{cfg: cfg, providers: providers, loaderMetrics: lm}, nil
}

func (e *env) close() {
	if e.providers.Shutdown == nil {
		return
	}

	err := e.providers.Shutdown(context.Background())
	if err != nil {
		e.providers.Logger.Warn("observability shutdown failed", "error", err)
	}
}

func observabilityConfig(cfg *config.Config, mode observability.AppMode, verbose bool) (observability.Config, error) {
	level, err := cfg.LogLevel()
	if err != nil {
		return observability.Config{}, err
	}

	obs := observability.DefaultConfig()
	obs.ServiceVersion = version.Version
	obs.Mode = mode
	obs.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	obs.OTLPHeaders = observability.ParseOTLPHeaders(cfg.Telemetry.OTLPHeaders)
	obs.OTLPInsecure = cfg.Telemetry.OTLPInsecure
	obs.SampleRatio = cfg.Telemetry.SampleRatio
	obs.LogLevel = level
	// MCP owns stdout; its stderr logs are always JSON.
	obs.LogJSON = cfg.Logging.Format == config.LogFormatJSON || mode == observability.ModeMCP

	if verbose {
		obs.LogLevel = slog.LevelDebug
		obs.DebugTrace = true
		obs.TraceVerbose = true
	}

	return obs, nil
}

// newRegistry builds a registry over the default fetchers and composes the
// configured import maps followed by extra.
func (e *env) newRegistry(ctx context.Context, extra []string) (*registry.Registry, error) {
	maxSize, err := e.cfg.MaxSizeBytes()
	if err != nil {
		return nil, err
	}

	fetcher := fetch.Chain(fetch.Default(),
		fetch.WithTracing(e.providers.Tracer),
		fetch.WithLogging(e.providers.Logger),
		fetch.WithSizeLimit(maxSize),
	)

	base, err := baseURL()
	if err != nil {
		return nil, err
	}

	reg := registry.New(fetcher,
		registry.WithBaseURL(base),
		registry.WithOverride(e.cfg.Override),
		registry.WithSkip(e.cfg.Skip...),
		registry.WithFetchTimeout(e.cfg.Fetch.Timeout),
		registry.WithLogger(e.providers.Logger),
		registry.WithTracer(e.providers.Tracer),
		registry.WithMetrics(e.loaderMetrics),
	)

	for _, path := range slices.Concat(e.cfg.ImportMaps, extra) {
		err = addImportMapFile(ctx, reg, path)
		if err != nil {
			return nil, err
		}
	}

	return reg, nil
}

// baseURL is the working directory as a directory file URL.
func baseURL() (string, error) {
	u, err := fetch.URLFromPath(".")
	if err != nil {
		return "", err
	}

	return strings.TrimSuffix(u, "/") + "/", nil
}

// entryURL turns a CLI argument into a module URL. URLs pass through;
// anything else is a local path.
func entryURL(arg string) (string, error) {
	if importmap.IsURL(arg) {
		return arg, nil
	}

	return fetch.URLFromPath(arg)
}

func addImportMapFile(ctx context.Context, reg *registry.Registry, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read import map: %w", err)
	}

	var doc *importmap.Document

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		doc, err = importmap.ParseYAML(data)
	default:
		doc, err = importmap.ParseDocument(data)
	}

	if err != nil {
		return fmt.Errorf("import map %s: %w", path, err)
	}

	atURL, err := fetch.URLFromPath(path)
	if err != nil {
		return err
	}

	return reg.AddImportMap(ctx, doc, atURL)
}
