// Package registry loads module graphs. Every URL is fetched and analyzed
// once; the graph is finalized bottom-up into executable units, with cycle
// shells standing in for modules whose units do not exist yet.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/modshim/pkg/blob"
	"github.com/Sumatoshi-tech/modshim/pkg/fetch"
	"github.com/Sumatoshi-tech/modshim/pkg/hot"
	"github.com/Sumatoshi-tech/modshim/pkg/importmap"
	"github.com/Sumatoshi-tech/modshim/pkg/observability"
	"github.com/Sumatoshi-tech/modshim/pkg/toposort"
)

const (
	importSpanName = "modshim.import"

	defaultFetchTimeout = 30 * time.Second
)

// Option configures a Registry.
type Option func(*Registry)

// WithImportMap starts the registry with m instead of an empty map.
func WithImportMap(m *importmap.ImportMap) Option {
	return func(r *Registry) { r.importMap = m.Clone() }
}

// WithOverride lets AddImportMap replace existing mappings.
func WithOverride(override bool) Option {
	return func(r *Registry) { r.override = override }
}

// WithExecutor sets the executor. The default is AnalysisExecutor.
func WithExecutor(e Executor) Option {
	return func(r *Registry) { r.executor = e }
}

// WithStore sets the handle store units are written to.
func WithStore(s *blob.Store) Option {
	return func(r *Registry) { r.store = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithTracer sets the tracer used for import spans.
func WithTracer(t trace.Tracer) Option {
	return func(r *Registry) { r.tracer = t }
}

// WithMetrics sets the loader metrics.
func WithMetrics(m *observability.LoaderMetrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithSkip leaves URLs matching any of the glob patterns to the host:
// imports of them keep the resolved URL and they are never fetched.
func WithSkip(patterns ...string) Option {
	return func(r *Registry) { r.skip = append(r.skip, patterns...) }
}

// WithBaseURL sets the parent URL of top-level imports.
func WithBaseURL(u string) Option {
	return func(r *Registry) { r.baseURL = u }
}

// WithFetchTimeout bounds each fetch. Zero disables the bound.
func WithFetchTimeout(d time.Duration) Option {
	return func(r *Registry) { r.fetchTimeout = d }
}

// Registry is the module registry. It is safe for concurrent use.
type Registry struct {
	fetcher      fetch.Fetcher
	executor     Executor
	store        *blob.Store
	logger       *slog.Logger
	tracer       trace.Tracer
	metrics      *observability.LoaderMetrics
	skip         []string
	baseURL      string
	override     bool
	fetchTimeout time.Duration

	mu        sync.Mutex
	importMap *importmap.ImportMap
	urls      *toposort.SymbolTable
	loads     map[int]*load
	versions  map[string][]int
	meta      map[string]*Meta
	hot       *hot.Graph
}

// New creates a Registry that fetches through fetcher.
func New(fetcher fetch.Fetcher, opts ...Option) *Registry {
	r := &Registry{
		fetcher:      fetcher,
		executor:     AnalysisExecutor{},
		importMap:    importmap.New(),
		fetchTimeout: defaultFetchTimeout,
		urls:         toposort.NewSymbolTable(),
		loads:        map[int]*load{},
		versions:     map[string][]int{},
		meta:         map[string]*Meta{},
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.store == nil {
		r.store = blob.NewStore()
	}

	if r.logger == nil {
		r.logger = slog.New(slog.DiscardHandler)
	}

	if r.tracer == nil {
		r.tracer = nooptrace.NewTracerProvider().Tracer("modshim.registry")
	}

	if r.baseURL == "" {
		if base, err := fetch.URLFromPath("."); err == nil {
			r.baseURL = base + "/"
		}
	}

	return r
}

// AttachHot routes resolution through g so that reloaded modules are
// imported under their versioned URLs, and gives module metadata records
// their hot handle.
func (r *Registry) AttachHot(g *hot.Graph) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.hot = g
}

// Store returns the handle store.
func (r *Registry) Store() *blob.Store { return r.store }

// ImportMap returns a copy of the current import map.
func (r *Registry) ImportMap() *importmap.ImportMap {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.importMap.Clone()
}

// AddImportMap composes doc, located at atURL, into the current map. On
// error the current map is left unchanged.
func (r *Registry) AddImportMap(ctx context.Context, doc *importmap.Document, atURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next, err := importmap.Compose(r.importMap, doc, atURL, importmap.ComposeOptions{
		Override: r.override,
		Logger:   r.logger,
	})
	if err != nil {
		return fmt.Errorf("add import map: %w", err)
	}

	r.importMap = next
	r.logger.DebugContext(ctx, "import map updated", "at", atURL, "mappings", next.Len())

	return nil
}

// Resolve maps specifier, imported from parent, to the URL that will be
// loaded. An empty parent means the base URL. With a hot graph attached the
// edge is recorded and the URL carries the child's current version.
func (r *Registry) Resolve(specifier, parent string) (string, error) {
	base := parent
	if base == "" {
		base = r.baseURL
	}

	return r.resolve(specifier, base, parent)
}

// resolve resolves specifier against base and records the edge from
// importer in the hot graph.
func (r *Registry) resolve(specifier, base, importer string) (string, error) {
	r.mu.Lock()
	m, g := r.importMap, r.hot
	r.mu.Unlock()

	resolved, err := importmap.Resolve(specifier, hot.StripVersion(base), m)
	if err != nil {
		return "", err
	}

	if g != nil {
		resolved = g.Track(importer, resolved)
	}

	return resolved, nil
}

// Import resolves specifier against parent, loads the whole graph below it
// and returns the executed namespace of its root. Importing a URL again
// returns the namespace of the first import without fetching anything.
func (r *Registry) Import(ctx context.Context, specifier, parent string) (ns Namespace, err error) {
	ctx, span := r.tracer.Start(ctx, importSpanName, trace.WithAttributes(
		attribute.String("modshim.specifier", specifier),
		attribute.String("modshim.parent", parent),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		span.End()
	}()

	url, err := r.Resolve(specifier, parent)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("modshim.url", url))

	root, err := r.prepare(ctx, url)
	if err != nil {
		return nil, err
	}

	return r.execute(ctx, root)
}

// Load resolves specifier and fetches, links and finalizes the graph below
// it without executing anything. It returns the resolved root URL for use
// with Graph, Order and Source.
func (r *Registry) Load(ctx context.Context, specifier, parent string) (string, error) {
	url, err := r.Resolve(specifier, parent)
	if err != nil {
		return "", err
	}

	_, err = r.prepare(ctx, url)
	if err != nil {
		return "", err
	}

	return url, nil
}

func (r *Registry) prepare(ctx context.Context, url string) (*load, error) {
	root := r.getOrCreate(ctx, url, "")

	tr := newTraversal()
	tr.visit(root.id)

	err := r.awaitGraph(ctx, root, tr)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.finalize(ctx, root, tr)
	r.mu.Unlock()

	return root, nil
}

// execute runs a finalized root once, then reconciles every cycle shell
// still pending in the graph below it. A shell whose module has not run yet
// gets the module executed first so it can be updated from its namespace.
func (r *Registry) execute(ctx context.Context, l *load) (Namespace, error) {
	err := r.runOnce(ctx, l)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	pending := r.pendingShells(l)

	shells := make([]Unit, len(pending))
	for i, p := range pending {
		shells[i] = r.unit(p, p.shell)
		p.shell = ""
	}
	r.mu.Unlock()

	updater, canUpdate := r.executor.(ShellUpdater)

	for i, p := range pending {
		err = r.runOnce(ctx, p)
		if err != nil {
			return nil, err
		}

		if !canUpdate {
			continue
		}

		err = updater.UpdateShell(ctx, shells[i], p.namespace)
		if err != nil {
			return nil, &LoadError{URL: p.url, Err: fmt.Errorf("update shell: %w", err)}
		}

		r.logger.DebugContext(ctx, "cycle shell updated", "url", p.url, "root", l.url)
	}

	return l.namespace, nil
}

// runOnce executes l at most once.
func (r *Registry) runOnce(ctx context.Context, l *load) error {
	l.execOnce.Do(func() {
		r.mu.Lock()
		unit := r.unit(l, l.handle)
		r.mu.Unlock()

		l.namespace, l.execErr = r.executor.Execute(ctx, unit)
		if l.execErr != nil {
			l.execErr = &LoadError{URL: l.url, Err: fmt.Errorf("execute: %w", l.execErr)}
		}
	})

	return l.execErr
}

// pendingShells returns the loads reachable from root, root included, whose
// shell no importer has linked yet, in depth-first order. The caller holds
// r.mu.
func (r *Registry) pendingShells(root *load) []*load {
	var out []*load

	seen := map[int]bool{}
	stack := []*load{root}

	for len(stack) > 0 {
		l := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if l == nil || seen[l.id] {
			continue
		}

		seen[l.id] = true

		if l.shell != "" {
			out = append(out, l)
		}

		deps := r.depLoads(l)
		for i := len(deps) - 1; i >= 0; i-- {
			stack = append(stack, deps[i])
		}
	}

	return out
}

// unit describes l under handle. The caller holds r.mu.
func (r *Registry) unit(l *load, handle string) Unit {
	code := ""
	if u, ok := r.store.Get(handle); ok {
		code = u.Source
	}

	return Unit{
		URL:         l.url,
		ResponseURL: l.responseURL,
		Handle:      handle,
		Code:        code,
		Exports:     l.exports(),
	}
}

func (r *Registry) skipped(url string) bool {
	for _, pattern := range r.skip {
		if ok, err := doublestar.Match(pattern, url); err == nil && ok {
			return true
		}
	}

	return false
}
