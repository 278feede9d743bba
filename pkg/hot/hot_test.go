package hot_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/modshim/pkg/hot"
	"github.com/Sumatoshi-tech/modshim/pkg/importmap"
)

const (
	mainURL   = "https://h/main.js"
	parentURL = "https://h/parent.js"
	childURL  = "https://h/child.js"
)

var errBoom = errors.New("boom")

type fakeLoader struct {
	mu      sync.Mutex
	imports []string
	fail    error
}

func (f *fakeLoader) Import(_ context.Context, specifier, _ string) (hot.Namespace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.imports = append(f.imports, specifier)
	if f.fail != nil {
		return nil, f.fail
	}

	return hot.Namespace{"url": specifier}, nil
}

func (f *fakeLoader) Resolve(specifier, parent string) (string, error) {
	return importmap.ResolveURL(specifier, parent), nil
}

func (f *fakeLoader) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.imports...)
}

// newChain builds main -> parent -> child with main as the entry.
func newChain(t *testing.T, opts hot.Options) (*hot.Graph, *fakeLoader) {
	t.Helper()

	if opts.Interval == 0 {
		opts.Interval = time.Hour
	}

	loader := &fakeLoader{}
	g := hot.New(loader, opts)
	t.Cleanup(g.Close)

	g.MarkEntry(mainURL)
	g.Track("", mainURL)
	g.Track(mainURL, parentURL)
	g.Track(parentURL, childURL)

	return g, loader
}

func TestStripVersion(t *testing.T) {
	t.Parallel()

	assert.Equal(t, childURL, hot.StripVersion(childURL+"?v=3"))
	assert.Equal(t, childURL, hot.StripVersion(childURL))
	assert.Equal(t, "https://h/a.js?x=1", hot.StripVersion("https://h/a.js?x=1?v=2"))
}

func TestTrack_VersionsAndParents(t *testing.T) {
	t.Parallel()

	g, _ := newChain(t, hot.Options{})

	assert.Equal(t, childURL, g.Track(parentURL+"?v=4", childURL))

	st, ok := g.State(childURL)
	require.True(t, ok)
	assert.Equal(t, []string{parentURL}, st.Parents)
	assert.Equal(t, 0, st.Version)
	assert.True(t, st.AutoAccept)

	_, ok = g.State("https://h/unknown.js")
	assert.False(t, ok)
}

func TestInvalidate_AcceptedByParentReloadsOnlyChild(t *testing.T) {
	t.Parallel()

	g, loader := newChain(t, hot.Options{})

	var got [][]hot.Namespace

	err := g.Handle(parentURL).AcceptDeps([]string{"./child.js"}, func(mods []hot.Namespace) {
		got = append(got, mods)
	})
	require.NoError(t, err)

	g.Invalidate(childURL)
	assert.Equal(t, []string{childURL}, g.Pending())

	require.NoError(t, g.Flush(context.Background()))

	assert.Equal(t, []string{childURL + "?v=1"}, loader.calls())
	require.Len(t, got, 1)
	assert.Equal(t, childURL+"?v=1", got[0][0]["url"])

	parent, _ := g.State(parentURL)
	assert.Equal(t, 0, parent.Version)

	child, _ := g.State(childURL)
	assert.Equal(t, 1, child.Version)
	assert.False(t, child.AutoAccept)
	assert.Equal(t, childURL+"?v=1", g.Versioned(childURL))
}

func TestInvalidate_PropagatesToEntry(t *testing.T) {
	t.Parallel()

	g, loader := newChain(t, hot.Options{})

	g.Invalidate(childURL)
	assert.Equal(t, []string{mainURL}, g.Pending())

	require.NoError(t, g.Flush(context.Background()))
	assert.Equal(t, []string{mainURL + "?v=1"}, loader.calls())

	for _, url := range []string{mainURL, parentURL, childURL} {
		st, _ := g.State(url)
		assert.Equal(t, 1, st.Version, url)
	}

	assert.Empty(t, g.Pending())
}

func TestInvalidate_SelfAcceptStopsPropagation(t *testing.T) {
	t.Parallel()

	g, loader := newChain(t, hot.Options{})

	var got []hot.Namespace

	g.Handle(childURL).Accept(func(ns hot.Namespace) { got = append(got, ns) })

	g.Invalidate(childURL)
	require.NoError(t, g.Flush(context.Background()))

	assert.Equal(t, []string{childURL + "?v=1"}, loader.calls())
	require.Len(t, got, 1)

	parent, _ := g.State(parentURL)
	assert.Equal(t, 0, parent.Version)
}

func TestInvalidate_CyclicParentsTerminate(t *testing.T) {
	t.Parallel()

	g, loader := newChain(t, hot.Options{})
	g.Track(childURL, parentURL)

	g.Invalidate(childURL)
	require.NoError(t, g.Flush(context.Background()))
	assert.Equal(t, []string{mainURL + "?v=1"}, loader.calls())
}

func TestInvalidate_Debounced(t *testing.T) {
	t.Parallel()

	g, loader := newChain(t, hot.Options{Interval: 20 * time.Millisecond})
	g.Handle(childURL).Accept(func(hot.Namespace) {})

	g.Invalidate(childURL)
	g.Invalidate(childURL)

	require.Eventually(t, func() bool { return len(loader.calls()) > 0 }, 2*time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{childURL + "?v=2"}, loader.calls())
}

func TestDisposeRunsAfterAcceptorsWithData(t *testing.T) {
	t.Parallel()

	g, _ := newChain(t, hot.Options{})
	h := g.Handle(childURL)

	var order []string

	h.Data()["count"] = 1
	h.Accept(func(hot.Namespace) { order = append(order, "accept") })
	h.Dispose(func(data map[string]any) {
		order = append(order, "dispose")
		data["count"] = data["count"].(int) + 1
	})

	g.Invalidate(childURL)
	require.NoError(t, g.Flush(context.Background()))

	assert.Equal(t, []string{"accept", "dispose"}, order)
	assert.Equal(t, 2, h.Data()["count"])

	g.Invalidate(childURL)
	require.NoError(t, g.Flush(context.Background()))
	assert.Equal(t, []string{"accept", "dispose", "accept"}, order, "dispose runs once per instance")
}

func TestReloadFailure(t *testing.T) {
	t.Parallel()

	var failed []string

	g, loader := newChain(t, hot.Options{OnError: func(url string, _ error) { failed = append(failed, url) }})
	loader.fail = errBoom

	disposed := false
	h := g.Handle(childURL)
	h.Accept(func(hot.Namespace) { t.Error("acceptor must not run after a failed reload") })
	h.Dispose(func(map[string]any) { disposed = true })

	g.Invalidate(childURL)

	err := g.Flush(context.Background())
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, []string{childURL}, failed)
	assert.False(t, disposed)
}

func TestInstantiateDropsPreviousAcceptors(t *testing.T) {
	t.Parallel()

	g, loader := newChain(t, hot.Options{})
	g.Handle(childURL).Accept(func(hot.Namespace) {})

	h := g.Instantiate(childURL + "?v=1")
	assert.Equal(t, childURL, h.URL())

	st, _ := g.State(childURL)
	assert.Equal(t, 0, st.Acceptors)

	g.Invalidate(childURL)
	require.NoError(t, g.Flush(context.Background()))
	assert.Equal(t, []string{mainURL + "?v=1"}, loader.calls())
}

func TestHot_Invalidate(t *testing.T) {
	t.Parallel()

	g, _ := newChain(t, hot.Options{})

	g.Handle(parentURL).Invalidate()
	assert.Equal(t, []string{mainURL}, g.Pending())
}
