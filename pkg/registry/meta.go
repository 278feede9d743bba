package registry

import "github.com/Sumatoshi-tech/modshim/pkg/hot"

// Meta is the metadata record a rewritten module reads in place of
// import.meta.
type Meta struct {
	// URL is the module's response URL.
	URL string `json:"url"`
	// Hot is set when a hot graph is attached.
	Hot *hot.Hot `json:"-"`

	r   *Registry
	key string
}

// Resolve resolves specifier the way an import in the module would.
func (m *Meta) Resolve(specifier string) (string, error) {
	return m.r.resolve(specifier, m.URL, m.key)
}

// newMeta builds the record for l. The caller holds r.mu.
func (r *Registry) newMeta(l *load) *Meta {
	m := &Meta{URL: l.responseURL, r: r, key: l.url}
	if r.hot != nil {
		m.Hot = r.hot.Instantiate(l.url)
	}

	return m
}

// Meta returns the metadata record of a finalized module that references
// import.meta.
func (r *Registry) Meta(url string) (*Meta, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.meta[url]

	return m, ok
}
