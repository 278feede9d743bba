package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Sumatoshi-tech/modshim/pkg/config"
	"github.com/Sumatoshi-tech/modshim/pkg/fetch"
	"github.com/Sumatoshi-tech/modshim/pkg/hot"
	"github.com/Sumatoshi-tech/modshim/pkg/observability"
	"github.com/Sumatoshi-tech/modshim/pkg/registry"
	"github.com/Sumatoshi-tech/modshim/pkg/report"
	"github.com/Sumatoshi-tech/modshim/pkg/watch"
)

const (
	readHeaderTimeout = 5 * time.Second
	serverStopTimeout = 5 * time.Second
)

// errReloadPending fails the readiness probe while a reload is scheduled.
var errReloadPending = errors.New("reload pending")

type watchFlags struct {
	dir         string
	metricsAddr string
	importMaps  []string
}

func newWatchCommand(opts *options) *cobra.Command {
	var flags watchFlags

	cmd := &cobra.Command{
		Use:   "watch ENTRY",
		Short: "Load a module graph and hot reload it on file changes",
		Long: `Import ENTRY, then watch the source directory. Every changed file that is
part of the graph is invalidated; after the hot reload window the affected
modules are imported again under a new version.

With --metrics-addr the Prometheus scrape endpoint and the /healthz and
/readyz probes are served on that address.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), opts, flags, args[0])
		},
	}

	cmd.Flags().StringVarP(&flags.dir, "dir", "d", "", "Directory to watch (default: watch.dir from config)")
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "", "Serve metrics and health probes on this address")
	cmd.Flags().StringArrayVarP(&flags.importMaps, "import-map", "m", nil, "Import map file (JSON or YAML), repeatable")

	return cmd
}

func runWatch(ctx context.Context, opts *options, flags watchFlags, arg string) error {
	e, err := opts.start(observability.ModeWatch, func(cfg *config.Config) bool {
		return metricsAddr(flags, cfg) != ""
	})
	if err != nil {
		return err
	}
	defer e.close()

	addr := metricsAddr(flags, e.cfg)
	logger := e.providers.Logger

	reg, err := e.newRegistry(ctx, flags.importMaps)
	if err != nil {
		return err
	}

	graph := hot.New(reg, hot.Options{
		Interval: e.cfg.Hot.Interval,
		Logger:   logger,
		Tracer:   e.providers.Tracer,
		Metrics:  e.loaderMetrics,
		OnError: func(url string, reloadErr error) {
			logger.Error("reload failed", "url", url, "error", reloadErr)
		},
	})
	defer graph.Close()

	reg.AttachHot(graph)

	entry, err := entryURL(arg)
	if err != nil {
		return err
	}

	_, err = reg.Import(ctx, entry, "")
	if err != nil {
		return err
	}

	graph.MarkEntry(entry)

	sources := newSourceCache(logger, reg.Has)
	sources.seed(reg, entry)

	logger.InfoContext(ctx, "graph loaded", "entry", entry, "modules", reg.Len())

	dir := flags.dir
	if dir == "" {
		dir = e.cfg.Watch.Dir
	}

	w, err := watch.New(watch.Config{
		Dir:      dir,
		Patterns: e.cfg.Watch.Patterns,
		Ignore:   e.cfg.Watch.Ignore,
		Debounce: e.cfg.Watch.Debounce,
		Logger:   logger,
		OnChange: func(ctx context.Context, urls []string) error {
			for _, url := range urls {
				if sources.changed(ctx, url) {
					graph.Invalidate(url)
				}
			}

			return nil
		},
	})
	if err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return w.Run(groupCtx)
	})

	if addr != "" {
		ready := func(context.Context) error {
			if len(graph.Pending()) > 0 {
				return errReloadPending
			}

			return nil
		}

		srv := &http.Server{
			Addr:              addr,
			Handler:           observability.NewMux(e.providers.Tracer, e.providers.MetricsHandler, ready),
			ReadHeaderTimeout: readHeaderTimeout,
		}

		group.Go(func() error {
			return serve(groupCtx, srv, logger)
		})
	}

	return group.Wait()
}

// metricsAddr prefers the flag over the config file.
func metricsAddr(flags watchFlags, cfg *config.Config) string {
	if flags.metricsAddr != "" {
		return flags.metricsAddr
	}

	return cfg.Telemetry.MetricsAddr
}

// serve runs srv until ctx is done.
func serve(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)

	go func() {
		logger.InfoContext(ctx, "serving metrics", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), serverStopTimeout)
	defer cancel()

	err := srv.Shutdown(stopCtx)
	if err != nil {
		return fmt.Errorf("metrics server shutdown: %w", err)
	}

	return nil
}

// sourceCache remembers the last seen text of every local module in the
// graph so that writes which leave a file unchanged do not trigger reloads.
// known reports whether the registry has loaded a URL, which covers modules
// a reload added after the cache was seeded.
type sourceCache struct {
	mu      sync.Mutex
	sources map[string]string
	known   func(url string) bool
	logger  *slog.Logger
}

func newSourceCache(logger *slog.Logger, known func(url string) bool) *sourceCache {
	return &sourceCache{sources: map[string]string{}, known: known, logger: logger}
}

func (c *sourceCache) seed(reg *registry.Registry, root string) {
	for _, node := range reg.Graph(root) {
		url := hot.StripVersion(node.URL)
		if !strings.HasPrefix(url, "file:") {
			continue
		}

		text, ok := readFileURL(url)
		if !ok {
			continue
		}

		c.mu.Lock()
		c.sources[url] = text
		c.mu.Unlock()
	}
}

// changed records the current text of url and reports whether it differs
// from the last one. A URL the registry loaded but the cache has not seen is
// a change. URLs that were never part of the graph are not.
func (c *sourceCache) changed(ctx context.Context, url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	old, cached := c.sources[url]
	if !cached {
		return c.adopt(ctx, url)
	}

	text, ok := readFileURL(url)
	if !ok {
		c.logger.WarnContext(ctx, "module removed", "url", url)
		delete(c.sources, url)

		return true
	}

	stat := report.Diff(old, text)
	if !stat.Changed() {
		return false
	}

	c.sources[url] = text
	c.logger.InfoContext(ctx, "module changed", "url", url, "diff", stat.String())

	return true
}

// adopt starts tracking a module the registry loaded after seeding. The
// caller holds c.mu.
func (c *sourceCache) adopt(ctx context.Context, url string) bool {
	if c.known == nil || !c.known(url) {
		return false
	}

	text, ok := readFileURL(url)
	if !ok {
		return false
	}

	c.sources[url] = text
	c.logger.InfoContext(ctx, "module changed", "url", url)

	return true
}

func readFileURL(url string) (string, bool) {
	path, err := fetch.PathFromURL(url)
	if err != nil {
		return "", false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}

	return string(data), true
}
