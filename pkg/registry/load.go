package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Sumatoshi-tech/modshim/pkg/hot"
	"github.com/Sumatoshi-tech/modshim/pkg/lexer"
	"github.com/Sumatoshi-tech/modshim/pkg/rewrite"
)

// State is the lifecycle stage of a load.
type State int

// Load states, in lifecycle order.
const (
	StatePending State = iota
	StateAnalyzed
	StateLinked
	StateFinalized
	StateFailed
)

var stateNames = [...]string{"pending", "analyzed", "linked", "finalized", "failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}

	return stateNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// load is the registry record of one URL. Fields other than the channels
// are guarded by Registry.mu.
type load struct {
	id          int
	url         string
	parent      string
	responseURL string
	kind        Kind
	source      string
	size        int
	analysis    *lexer.Analysis
	deps        []int
	handle      string
	shell       string
	state       State
	stale       bool
	skip        bool
	err         error

	// fetched closes once the source is fetched and analyzed (or failed).
	fetched chan struct{}
	// linked closes once every static dependency is registered and has
	// itself been fetched (or this load failed).
	linked chan struct{}

	execOnce  sync.Once
	namespace Namespace
	execErr   error
}

func (l *load) exports() []string {
	if l.analysis == nil {
		return nil
	}

	return l.analysis.Exports
}

// traversal is the visited set of one Import call.
type traversal struct {
	mu   sync.Mutex
	seen map[int]bool
}

func newTraversal() *traversal {
	return &traversal{seen: map[int]bool{}}
}

// visit marks id and reports whether it was unvisited.
func (t *traversal) visit(id int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.seen[id]; ok {
		return false
	}

	t.seen[id] = true

	return true
}

// getOrCreate returns the live load for url, registering and starting a
// new one when the URL is unknown or its load went stale.
func (r *Registry) getOrCreate(ctx context.Context, url, parent string) *load {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.urls.Intern(url)
	if l, ok := r.loads[id]; ok && !l.stale {
		return l
	}

	l := &load{
		id:      id,
		url:     url,
		parent:  parent,
		fetched: make(chan struct{}),
		linked:  make(chan struct{}),
	}
	r.loads[id] = l
	r.supersede(l)

	if r.skipped(url) {
		l.skip = true
		l.handle = url
		l.state = StateFinalized
		close(l.fetched)
		close(l.linked)

		return l
	}

	go r.run(context.WithoutCancel(ctx), l)

	return l
}

// supersede marks older versions of l's URL stale. The caller holds r.mu.
func (r *Registry) supersede(l *load) {
	base := hot.StripVersion(l.url)

	for _, id := range r.versions[base] {
		if old, ok := r.loads[id]; ok && old != l && old.state == StateFinalized {
			old.stale = true
		}
	}

	for _, id := range r.versions[base] {
		if id == l.id {
			return
		}
	}

	r.versions[base] = append(r.versions[base], l.id)
}

func (r *Registry) run(ctx context.Context, l *load) {
	err := r.fetchAndAnalyze(ctx, l)
	if err != nil {
		r.fail(l, err)
		close(l.fetched)
		close(l.linked)

		return
	}

	close(l.fetched)

	err = r.link(ctx, l)
	if err != nil {
		r.fail(l, err)
	}

	close(l.linked)
}

func (r *Registry) fail(l *load, err error) {
	var loadErr *LoadError
	if !errors.As(err, &loadErr) {
		err = &LoadError{URL: l.url, Parent: l.parent, Err: err}
	}

	r.mu.Lock()
	l.err = err
	l.state = StateFailed
	r.mu.Unlock()

	r.logger.Warn("module load failed", "url", l.url, "parent", l.parent, "error", err)
}

func (r *Registry) fetchAndAnalyze(ctx context.Context, l *load) error {
	defer r.metrics.TrackInflight(ctx)()

	start := time.Now()

	fetchCtx := ctx
	if r.fetchTimeout > 0 {
		var cancel context.CancelFunc

		fetchCtx, cancel = context.WithTimeout(ctx, r.fetchTimeout)
		defer cancel()
	}

	resp, err := r.fetcher.Fetch(fetchCtx, l.url)
	if err != nil {
		r.metrics.RecordLoad(ctx, "", 0, time.Since(start), err)

		return err
	}

	responseURL := resp.URL
	if responseURL == "" {
		responseURL = l.url
	}

	mediaType := resp.MediaType()

	kind, err := KindOf(mediaType)

	var (
		source   string
		analysis *lexer.Analysis
	)

	if err == nil {
		source, err = moduleSource(kind, resp.Body, responseURL)
	}

	if err == nil {
		analysis, err = lexer.Scan(source)
	}

	r.metrics.RecordLoad(ctx, mediaType, len(resp.Body), time.Since(start), err)

	if err != nil {
		return err
	}

	r.mu.Lock()
	l.responseURL = responseURL
	l.kind = kind
	l.source = source
	l.size = len(resp.Body)
	l.analysis = analysis
	l.state = StateAnalyzed
	r.mu.Unlock()

	r.logger.DebugContext(ctx, "module analyzed", "url", l.url, "response_url", responseURL,
		"kind", kind, "imports", len(analysis.Imports), "exports", len(analysis.Exports))

	return nil
}

// link registers the static dependencies of l and waits until each of them
// is analyzed. It does not wait for their own dependencies, so cycles
// cannot block it.
func (r *Registry) link(ctx context.Context, l *load) error {
	deps := make([]*load, 0, len(l.analysis.Imports))

	for _, spec := range l.analysis.StaticSpecifiers(l.source) {
		url, err := r.resolve(spec, l.responseURL, l.url)
		if err != nil {
			return &LoadError{URL: l.url, Parent: l.parent, Err: err}
		}

		deps = append(deps, r.getOrCreate(ctx, url, l.url))
	}

	ids := make([]int, 0, len(deps))

	for _, dep := range deps {
		<-dep.fetched

		r.mu.Lock()
		err := dep.err
		r.mu.Unlock()

		if err != nil {
			return err
		}

		ids = append(ids, dep.id)
	}

	r.mu.Lock()
	l.deps = ids
	l.state = StateLinked
	r.mu.Unlock()

	return nil
}

// depLoads returns the loads of l's dependencies. The caller holds r.mu.
func (r *Registry) depLoads(l *load) []*load {
	out := make([]*load, 0, len(l.deps))
	for _, id := range l.deps {
		out = append(out, r.loads[id])
	}

	return out
}

// awaitGraph waits until every load reachable from l that is not yet
// finalized is linked. Subgraphs are awaited concurrently; tr keeps each
// load to a single visit, which is what lets cycles terminate.
func (r *Registry) awaitGraph(ctx context.Context, l *load, tr *traversal) error {
	select {
	case <-l.linked:
	case <-ctx.Done():
		return ctx.Err()
	}

	r.mu.Lock()
	err, done := l.err, l.handle != ""
	deps := r.depLoads(l)
	r.mu.Unlock()

	if err != nil || done {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	for _, dep := range deps {
		r.mu.Lock()
		finalized := dep.handle != ""
		r.mu.Unlock()

		if finalized || !tr.visit(dep.id) {
			continue
		}

		g.Go(func() error { return r.awaitGraph(gctx, dep, tr) })
	}

	return g.Wait()
}

// finalize rewrites the traversal bottom-up. A dependency that is still
// being finalized further up the stack is a cycle edge: the importer gets
// a shell for it, and the first importer to see the real unit afterwards
// links the shell to it. Shells nobody links are updated by execute. The
// caller holds r.mu.
func (r *Registry) finalize(ctx context.Context, l *load, tr *traversal) {
	if l.handle != "" || !tr.seen[l.id] {
		return
	}

	tr.seen[l.id] = false

	deps := r.depLoads(l)
	for _, dep := range deps {
		r.finalize(ctx, dep, tr)
	}

	targets := make([]rewrite.Target, len(deps))

	for i, dep := range deps {
		switch {
		case dep.handle == "":
			if dep.shell == "" {
				dep.shell = r.store.PutShell(dep.url, rewrite.Shell(dep.exports(), dep.responseURL))
				r.metrics.RecordShell(ctx)
				r.logger.DebugContext(ctx, "cycle shell created", "url", dep.url, "importer", l.url)
			}

			targets[i] = rewrite.Target{Handle: dep.shell}
		case dep.shell != "":
			targets[i] = rewrite.Target{Handle: dep.handle, Link: rewrite.ShellLink(i+1, dep.handle, dep.shell)}
			dep.shell = ""
		default:
			targets[i] = rewrite.Target{Handle: dep.handle}
		}
	}

	code := rewrite.Rewrite(rewrite.Input{
		Source:      l.source,
		Analysis:    l.analysis,
		URL:         l.url,
		ResponseURL: l.responseURL,
		Targets:     targets,
	})

	l.handle = r.store.Put(l.url, code)
	l.source = ""
	l.state = StateFinalized

	if usesMeta(l.analysis) {
		r.meta[l.url] = r.newMeta(l)
	}
}

func usesMeta(a *lexer.Analysis) bool {
	for _, occ := range a.Imports {
		if occ.IsMeta() {
			return true
		}
	}

	return false
}
