package toposort_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/modshim/pkg/toposort"
)

func TestSymbolTable_Intern(t *testing.T) {
	t.Parallel()

	st := toposort.NewSymbolTable()

	id1 := st.Intern("https://h/a.js")
	id2 := st.Intern("https://h/b.js")
	id3 := st.Intern("https://h/a.js")

	assert.NotEqual(t, id1, id2)
	assert.Equal(t, id1, id3)
	assert.Equal(t, 2, st.Len())
	assert.Equal(t, "https://h/b.js", st.Resolve(id2))
	assert.Empty(t, st.Resolve(999))
	assert.Empty(t, st.Resolve(-1))

	id, ok := st.Lookup("https://h/a.js")
	assert.True(t, ok)
	assert.Equal(t, id1, id)

	_, ok = st.Lookup("https://h/missing.js")
	assert.False(t, ok)
	assert.Equal(t, 2, st.Len())
}

func TestSymbolTable_Concurrent(t *testing.T) {
	t.Parallel()

	st := toposort.NewSymbolTable()

	var wg sync.WaitGroup

	for range 10 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			st.Intern("concurrent")
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, st.Len())
	assert.Equal(t, "concurrent", st.Resolve(0))
}

func TestGraph_AddNodeAndEdge(t *testing.T) {
	t.Parallel()

	g := toposort.NewGraph()

	assert.True(t, g.AddNode("a"))
	assert.False(t, g.AddNode("a"))
	assert.True(t, g.AddEdge("a", "b"))
	assert.False(t, g.AddEdge("a", "b"))
	assert.True(t, g.AddEdge("a", "c"))

	assert.Equal(t, 3, g.Len())
	assert.Equal(t, []string{"b", "c"}, g.Children("a"))
	assert.Equal(t, []string{"a"}, g.Parents("c"))
	assert.Empty(t, g.Children("missing"))
	assert.Empty(t, g.Parents("missing"))
}

func TestGraph_Toposort(t *testing.T) {
	t.Parallel()

	g := toposort.NewGraph()
	edges := [][2]string{
		{"7", "8"}, {"7", "11"}, {"5", "11"}, {"3", "8"}, {"3", "10"},
		{"11", "2"}, {"11", "9"}, {"11", "10"}, {"8", "9"},
	}

	for _, e := range edges {
		g.AddEdge(e[0], e[1])
	}

	result, ok := g.Toposort()
	require.True(t, ok)
	require.Len(t, result, g.Len())

	pos := map[string]int{}
	for i, name := range result {
		pos[name] = i
	}

	for _, e := range edges {
		assert.Less(t, pos[e[0]], pos[e[1]], "%s must precede %s", e[0], e[1])
	}
}

func TestGraph_ToposortCycle(t *testing.T) {
	t.Parallel()

	g := toposort.NewGraph()
	g.AddEdge("1", "2")
	g.AddEdge("2", "3")
	g.AddEdge("3", "1")
	g.AddNode("4")

	result, ok := g.Toposort()
	assert.False(t, ok)
	assert.Equal(t, []string{"4"}, result)
}

func TestGraph_ExecutionOrder(t *testing.T) {
	t.Parallel()

	g := toposort.NewGraph()
	g.AddEdge("main", "b")
	g.AddEdge("main", "a")
	g.AddEdge("b", "shared")
	g.AddEdge("a", "shared")
	g.AddNode("unreachable")

	order := g.ExecutionOrder("main")

	assert.Equal(t, []string{"shared", "b", "a", "main"}, order.Modules)
	assert.Empty(t, order.BackEdges)
}

func TestGraph_ExecutionOrderCycle(t *testing.T) {
	t.Parallel()

	g := toposort.NewGraph()
	g.AddEdge("main", "a")
	g.AddEdge("a", "b")
	g.AddEdge("b", "a")

	order := g.ExecutionOrder("main")

	assert.Equal(t, []string{"b", "a", "main"}, order.Modules)
	assert.Equal(t, [][2]string{{"b", "a"}}, order.BackEdges)

	assert.Empty(t, g.ExecutionOrder("missing").Modules)
}

func TestGraph_FindCycle(t *testing.T) {
	t.Parallel()

	g := toposort.NewGraph()
	g.AddEdge("1", "2")
	g.AddEdge("2", "3")
	g.AddEdge("2", "4")
	g.AddEdge("3", "1")
	g.AddEdge("5", "5")

	assert.Equal(t, []string{"1", "2", "3"}, g.FindCycle("1"))
	assert.Equal(t, []string{"5"}, g.FindCycle("5"))
	assert.Empty(t, g.FindCycle("4"))
	assert.Empty(t, g.FindCycle("missing"))
}
