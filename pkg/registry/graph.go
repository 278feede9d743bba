package registry

import (
	"slices"

	"github.com/Sumatoshi-tech/modshim/pkg/hot"
	"github.com/Sumatoshi-tech/modshim/pkg/toposort"
)

// Node is a snapshot of one load.
type Node struct {
	URL         string   `json:"url" yaml:"url"`
	ResponseURL string   `json:"response_url,omitempty" yaml:"response_url,omitempty"`
	State       State    `json:"state" yaml:"state"`
	Kind        Kind     `json:"kind,omitempty" yaml:"kind,omitempty"`
	Handle      string   `json:"handle,omitempty" yaml:"handle,omitempty"`
	Size        int      `json:"size" yaml:"size"`
	Exports     []string `json:"exports" yaml:"exports"`
	Deps        []string `json:"deps" yaml:"deps"`
	Skipped     bool     `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Stale       bool     `json:"stale,omitempty" yaml:"stale,omitempty"`
	Error       string   `json:"error,omitempty" yaml:"error,omitempty"`
}

// Graph returns the loads reachable from url in breadth-first order.
func (r *Registry) Graph(url string) []Node {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.urls.Lookup(url)
	if !ok {
		return nil
	}

	var nodes []Node

	seen := map[int]bool{id: true}
	queue := []int{id}

	for len(queue) > 0 {
		l, ok := r.loads[queue[0]]
		queue = queue[1:]

		if !ok {
			continue
		}

		nodes = append(nodes, r.node(l))

		for _, dep := range l.deps {
			if !seen[dep] {
				seen[dep] = true
				queue = append(queue, dep)
			}
		}
	}

	return nodes
}

// node snapshots l. The caller holds r.mu.
func (r *Registry) node(l *load) Node {
	n := Node{
		URL:         l.url,
		ResponseURL: l.responseURL,
		State:       l.state,
		Kind:        l.kind,
		Handle:      l.handle,
		Size:        l.size,
		Exports:     slices.Clone(l.exports()),
		Deps:        make([]string, 0, len(l.deps)),
		Skipped:     l.skip,
		Stale:       l.stale,
	}

	for _, dep := range l.deps {
		n.Deps = append(n.Deps, r.urls.Resolve(dep))
	}

	if l.err != nil {
		n.Error = l.err.Error()
	}

	return n
}

// dependencyGraph builds the graph of loads reachable from url.
func (r *Registry) dependencyGraph(url string) *toposort.Graph {
	g := toposort.NewGraph()
	g.AddNode(url)

	for _, n := range r.Graph(url) {
		g.AddNode(n.URL)

		for _, dep := range n.Deps {
			g.AddEdge(n.URL, dep)
		}
	}

	return g
}

// Order returns the evaluation order of the graph rooted at url and the
// import edges that close cycles.
func (r *Registry) Order(url string) toposort.Order {
	return r.dependencyGraph(url).ExecutionOrder(url)
}

// Cycle returns the shortest import cycle through url, or an empty slice.
func (r *Registry) Cycle(url string) []string {
	return r.dependencyGraph(url).FindCycle(url)
}

// Source returns the code stored under a handle.
func (r *Registry) Source(handle string) (string, bool) {
	u, ok := r.store.Get(handle)

	return u.Source, ok
}

// MarkStale flags the finalized load of url so that the next import
// fetches it again. It reports whether such a load existed; loads still in
// flight are left alone.
func (r *Registry) MarkStale(url string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.urls.Lookup(url)
	if !ok {
		return false
	}

	l, ok := r.loads[id]
	if !ok || l.state != StateFinalized {
		return false
	}

	l.stale = true

	return true
}

// Has reports whether any version of url has been registered.
func (r *Registry) Has(url string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.versions[hot.StripVersion(url)]) > 0
}

// Len returns the number of registered loads.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.loads)
}
