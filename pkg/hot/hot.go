// Package hot tracks which modules import which and turns file changes into
// the smallest set of module reloads that accepting modules allow.
package hot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/modshim/pkg/observability"
)

// DefaultInterval is the debounce window between the last invalidation and
// the reload that follows it.
const DefaultInterval = 100 * time.Millisecond

const (
	versionParam   = "?v="
	reloadSpanName = "modshim.hot.reload"
)

// Namespace is a module's export namespace.
type Namespace = map[string]any

// Loader imports modules on behalf of the graph. The registry satisfies it.
type Loader interface {
	Import(ctx context.Context, specifier, parent string) (Namespace, error)
	Resolve(specifier, parent string) (string, error)
}

// Options configure a Graph.
type Options struct {
	// Interval is the debounce window. Zero means DefaultInterval.
	Interval time.Duration
	Logger   *slog.Logger
	Tracer   trace.Tracer
	Metrics  *observability.LoaderMetrics
	// OnError is called for every reload that fails.
	OnError func(url string, err error)
}

type acceptor struct {
	// deps is nil for a module accepting its own updates.
	deps []string
	cb   func([]Namespace)
}

// state is the hot bookkeeping for one unversioned URL.
type state struct {
	version    int
	autoAccept bool
	entry      bool
	parents    []string
	acceptors  []acceptor
	dispose    func(data map[string]any)
	data       map[string]any
}

func (st *state) acceptsDep(url string) bool {
	for _, acc := range st.acceptors {
		if slices.Contains(acc.deps, url) {
			return true
		}
	}

	return false
}

// Graph is the invalidation graph. It is safe for concurrent use.
type Graph struct {
	loader  Loader
	opts    Options
	logger  *slog.Logger
	tracer  trace.Tracer
	flushMu sync.Mutex

	mu     sync.Mutex
	states map[string]*state
	roots  map[string]struct{}
	timer  *time.Timer
}

// New creates a Graph that reloads through loader.
func New(loader Loader, opts Options) *Graph {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	tracer := opts.Tracer
	if tracer == nil {
		tracer = nooptrace.NewTracerProvider().Tracer("modshim.hot")
	}

	return &Graph{
		loader: loader,
		opts:   opts,
		logger: logger,
		tracer: tracer,
		states: map[string]*state{},
		roots:  map[string]struct{}{},
	}
}

// StripVersion removes the version parameter added by Versioned.
func StripVersion(url string) string {
	if i := strings.LastIndex(url, versionParam); i != -1 {
		return url[:i]
	}

	return url
}

// Versioned returns url with its current version parameter. Version zero
// leaves the URL untouched.
func (g *Graph) Versioned(url string) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.versioned(StripVersion(url))
}

func (g *Graph) versioned(url string) string {
	st, ok := g.states[url]
	if !ok || st.version == 0 {
		return url
	}

	return url + versionParam + strconv.Itoa(st.version)
}

func (g *Graph) state(url string) *state {
	st, ok := g.states[url]
	if !ok {
		st = &state{autoAccept: true}
		g.states[url] = st
	}

	return st
}

// Track records that parent imports child and returns the versioned child
// URL to load. An empty parent records no edge.
func (g *Graph) Track(parent, child string) string {
	child = StripVersion(child)
	parent = StripVersion(parent)

	g.mu.Lock()
	defer g.mu.Unlock()

	st := g.state(child)
	if parent != "" && parent != child && !slices.Contains(st.parents, parent) {
		st.parents = append(st.parents, parent)
	}

	return g.versioned(child)
}

// MarkEntry flags url as a top-level entry. Invalidations that reach an
// entry reload it.
func (g *Graph) MarkEntry(url string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.state(StripVersion(url)).entry = true
}

// Handle returns the hot handle for url.
func (g *Graph) Handle(url string) *Hot {
	url = StripVersion(url)

	g.mu.Lock()
	g.state(url)
	g.mu.Unlock()

	return &Hot{g: g, url: url}
}

// Instantiate starts a new instance of url: the acceptors and dispose
// callback of the previous instance are dropped and the module accepts
// updates automatically until it is invalidated.
func (g *Graph) Instantiate(url string) *Hot {
	url = StripVersion(url)

	g.mu.Lock()
	st := g.state(url)
	st.acceptors = nil
	st.dispose = nil
	st.autoAccept = true
	g.mu.Unlock()

	return &Hot{g: g, url: url}
}

// Invalidate marks url changed and schedules a reload after the debounce
// window. Every call restarts the window.
func (g *Graph) Invalidate(url string) {
	g.opts.Metrics.RecordInvalidation(context.Background())

	g.mu.Lock()
	defer g.mu.Unlock()

	g.invalidate(StripVersion(url), "", map[string]bool{})

	if g.timer == nil {
		g.timer = time.AfterFunc(g.opts.Interval, g.fire)

		return
	}

	g.timer.Reset(g.opts.Interval)
}

// invalidate walks from url towards the entries. A parent that accepts
// from explicitly stops the walk and makes from the reload root.
func (g *Graph) invalidate(url, from string, seen map[string]bool) {
	if seen[url] {
		return
	}

	seen[url] = true

	st, ok := g.states[url]
	if !ok {
		return
	}

	st.autoAccept = false

	if from != "" && st.acceptsDep(from) {
		g.roots[from] = struct{}{}

		return
	}

	if st.entry || len(st.acceptors) > 0 {
		g.roots[url] = struct{}{}
	}

	st.version++

	if len(st.acceptors) > 0 {
		return
	}

	for _, parent := range st.parents {
		g.invalidate(parent, url, seen)
	}
}

func (g *Graph) fire() {
	err := g.Flush(context.Background())
	if err != nil {
		g.logger.Warn("hot reload failed", "error", err)
	}
}

// Pending returns the reload roots collected since the last flush.
func (g *Graph) Pending() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	return sortedKeys(g.roots)
}

// Flush reloads every pending root now instead of waiting for the debounce
// window. Reload failures are joined into the returned error.
func (g *Graph) Flush(ctx context.Context) error {
	g.flushMu.Lock()
	defer g.flushMu.Unlock()

	g.mu.Lock()
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}

	roots := sortedKeys(g.roots)
	g.roots = map[string]struct{}{}
	g.mu.Unlock()

	var errs []error

	for _, root := range roots {
		err := g.reload(ctx, root)
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Close stops a pending debounce timer without reloading.
func (g *Graph) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}

type dependent struct {
	parent string
	acc    acceptor
}

func (g *Graph) reload(ctx context.Context, root string) (err error) {
	ctx, span := g.tracer.Start(ctx, reloadSpanName, trace.WithAttributes(attribute.String("modshim.url", root)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		g.opts.Metrics.RecordReload(ctx, err)
		span.End()
	}()

	g.mu.Lock()
	st := g.state(root)
	target := g.versioned(root)
	self := selfAcceptors(st.acceptors)
	dispose := st.dispose
	data := st.data
	st.dispose = nil
	g.mu.Unlock()

	span.SetAttributes(attribute.String("modshim.target", target))

	ns, err := g.loader.Import(ctx, target, "")
	if err != nil {
		g.mu.Lock()
		if st.dispose == nil {
			st.dispose = dispose
		}
		g.mu.Unlock()

		if g.opts.OnError != nil {
			g.opts.OnError(root, err)
		}

		return fmt.Errorf("reload %s: %w", root, err)
	}

	g.logger.DebugContext(ctx, "hot reloaded", "url", root, "target", target)

	for _, acc := range self {
		acc.cb([]Namespace{ns})
	}

	for _, dep := range g.dependents(root) {
		mods, depErr := g.namespaces(ctx, dep, root, ns)
		if depErr != nil {
			err = errors.Join(err, depErr)

			continue
		}

		dep.acc.cb(mods)
	}

	if dispose != nil {
		dispose(data)
	}

	return err
}

// dependents returns the acceptors of root's parents that name root.
func (g *Graph) dependents(root string) []dependent {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []dependent

	for _, parent := range g.states[root].parents {
		pst, ok := g.states[parent]
		if !ok {
			continue
		}

		for _, acc := range pst.acceptors {
			if slices.Contains(acc.deps, root) {
				out = append(out, dependent{parent: parent, acc: acc})
			}
		}
	}

	return out
}

// namespaces imports every accepted dependency, reusing ns for root.
func (g *Graph) namespaces(ctx context.Context, dep dependent, root string, ns Namespace) ([]Namespace, error) {
	mods := make([]Namespace, len(dep.acc.deps))

	for i, url := range dep.acc.deps {
		if url == root {
			mods[i] = ns

			continue
		}

		mod, err := g.loader.Import(ctx, g.Versioned(url), dep.parent)
		if err != nil {
			return nil, fmt.Errorf("import accepted dependency %s: %w", url, err)
		}

		mods[i] = mod
	}

	return mods, nil
}

func selfAcceptors(accs []acceptor) []acceptor {
	var out []acceptor

	for _, acc := range accs {
		if acc.deps == nil {
			out = append(out, acc)
		}
	}

	return out
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
