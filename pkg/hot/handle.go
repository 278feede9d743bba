package hot

import (
	"fmt"
	"slices"
)

// Hot is the per-module handle exposed to module code as import.meta.hot.
type Hot struct {
	g   *Graph
	url string
}

// URL returns the unversioned module URL.
func (h *Hot) URL() string { return h.url }

// Accept registers cb to receive the module's own new namespace after
// every reload.
func (h *Hot) Accept(cb func(Namespace)) {
	h.addAcceptor(acceptor{cb: func(mods []Namespace) { cb(mods[0]) }})
}

// AcceptDeps registers cb to receive the new namespaces of deps, in order,
// whenever one of them reloads. Specifiers resolve against the module URL.
func (h *Hot) AcceptDeps(deps []string, cb func([]Namespace)) error {
	resolved := make([]string, 0, len(deps))

	for _, dep := range deps {
		url, err := h.g.loader.Resolve(dep, h.url)
		if err != nil {
			return fmt.Errorf("accept %q: %w", dep, err)
		}

		resolved = append(resolved, StripVersion(url))
	}

	if resolved == nil {
		resolved = []string{}
	}

	h.addAcceptor(acceptor{deps: resolved, cb: cb})

	return nil
}

func (h *Hot) addAcceptor(acc acceptor) {
	h.g.mu.Lock()
	defer h.g.mu.Unlock()

	st := h.g.state(h.url)
	st.acceptors = append(st.acceptors, acc)
}

// Dispose registers cb to run with the module's data after a newer
// instance has loaded.
func (h *Hot) Dispose(cb func(data map[string]any)) {
	h.g.mu.Lock()
	defer h.g.mu.Unlock()

	h.g.state(h.url).dispose = cb
}

// Data returns the map that survives across instances of the module.
func (h *Hot) Data() map[string]any {
	h.g.mu.Lock()
	defer h.g.mu.Unlock()

	st := h.g.state(h.url)
	if st.data == nil {
		st.data = map[string]any{}
	}

	return st.data
}

// Invalidate requests a reload of the module from module code.
func (h *Hot) Invalidate() {
	h.g.Invalidate(h.url)
}

// Snapshot is a read-only view of one module's hot state.
type Snapshot struct {
	URL        string   `json:"url"`
	Version    int      `json:"version"`
	Entry      bool     `json:"entry"`
	AutoAccept bool     `json:"auto_accept"`
	Acceptors  int      `json:"acceptors"`
	Parents    []string `json:"parents"`
}

// State returns the hot state of url.
func (g *Graph) State(url string) (Snapshot, bool) {
	url = StripVersion(url)

	g.mu.Lock()
	defer g.mu.Unlock()

	st, ok := g.states[url]
	if !ok {
		return Snapshot{}, false
	}

	return Snapshot{
		URL:        url,
		Version:    st.version,
		Entry:      st.entry,
		AutoAccept: st.autoAccept,
		Acceptors:  len(st.acceptors),
		Parents:    slices.Clone(st.parents),
	}, true
}
