// Package toposort orders module graphs. Edges keep their insertion order,
// which is the order imports appear in a module, so the evaluation order it
// computes matches how linked modules execute.
package toposort

import (
	"slices"
	"sort"
)

// Graph is a directed graph over interned names. It is not safe for
// concurrent mutation.
type Graph struct {
	symbols  *SymbolTable
	edges    [][]int
	inDegree []int
}

// NewGraph initializes an empty Graph.
func NewGraph() *Graph {
	return &Graph{symbols: NewSymbolTable()}
}

func (g *Graph) node(name string) int {
	id := g.symbols.Intern(name)
	for len(g.edges) <= id {
		g.edges = append(g.edges, nil)
		g.inDegree = append(g.inDegree, 0)
	}

	return id
}

// AddNode inserts name and reports whether it was new.
func (g *Graph) AddNode(name string) bool {
	before := g.symbols.Len()
	g.node(name)

	return g.symbols.Len() > before
}

// AddEdge records that from depends on to. Duplicate edges are ignored and
// reported as false.
func (g *Graph) AddEdge(from, to string) bool {
	u, v := g.node(from), g.node(to)

	if slices.Contains(g.edges[u], v) {
		return false
	}

	g.edges[u] = append(g.edges[u], v)
	g.inDegree[v]++

	return true
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.edges)
}

// Children returns the dependencies of from in insertion order.
func (g *Graph) Children(from string) []string {
	u, ok := g.symbols.Lookup(from)
	if !ok {
		return []string{}
	}

	return g.names(g.edges[u])
}

// Parents returns the sorted names that depend on to.
func (g *Graph) Parents(to string) []string {
	v, ok := g.symbols.Lookup(to)
	if !ok {
		return []string{}
	}

	parents := []string{}

	for u, children := range g.edges {
		if slices.Contains(children, v) {
			parents = append(parents, g.symbols.Resolve(u))
		}
	}

	sort.Strings(parents)

	return parents
}

// Toposort orders all nodes so that every node precedes its dependencies
// using Kahn's algorithm, picking the smallest available ID first. It
// reports false when the graph has a cycle; the result then holds only the
// nodes outside it.
func (g *Graph) Toposort() ([]string, bool) {
	inDegree := slices.Clone(g.inDegree)
	queue := []int{}

	for id, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, id)
		}
	}

	result := make([]int, 0, len(g.edges))

	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		result = append(result, u)

		for _, v := range g.edges[u] {
			inDegree[v]--
			if inDegree[v] == 0 {
				i, _ := slices.BinarySearch(queue, v)
				queue = slices.Insert(queue, i, v)
			}
		}
	}

	return g.names(result), len(result) == len(g.edges)
}

// Order is the result of ExecutionOrder.
type Order struct {
	// Modules lists reachable nodes in evaluation order: dependencies first,
	// siblings in import order.
	Modules []string `json:"modules" yaml:"modules"`
	// BackEdges lists the [from, to] edges that close a cycle.
	BackEdges [][2]string `json:"back_edges" yaml:"back_edges"`
}

// ExecutionOrder walks the graph depth first from root and returns the
// post-order along with every edge that points back into the active path.
func (g *Graph) ExecutionOrder(root string) Order {
	id, ok := g.symbols.Lookup(root)
	if !ok {
		return Order{Modules: []string{}}
	}

	const (
		unvisited = iota
		active
		done
	)

	state := make([]int, len(g.edges))
	order := Order{Modules: make([]string, 0, len(g.edges))}

	var visit func(u int)
	visit = func(u int) {
		state[u] = active

		for _, v := range g.edges[u] {
			switch state[v] {
			case unvisited:
				visit(v)
			case active:
				order.BackEdges = append(order.BackEdges, [2]string{g.symbols.Resolve(u), g.symbols.Resolve(v)})
			}
		}

		state[u] = done
		order.Modules = append(order.Modules, g.symbols.Resolve(u))
	}

	visit(id)

	return order
}

// FindCycle returns a shortest cycle through seed, without repeating seed
// at the end, or an empty slice.
func (g *Graph) FindCycle(seed string) []string {
	start, ok := g.symbols.Lookup(seed)
	if !ok {
		return []string{}
	}

	parent := map[int]int{start: -1}
	queue := []int{start}

	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]

		for _, v := range g.edges[u] {
			if v == start {
				cycle := []int{}
				for cur := u; cur != -1; cur = parent[cur] {
					cycle = append(cycle, cur)
				}

				slices.Reverse(cycle)

				return g.names(cycle)
			}

			if _, seen := parent[v]; !seen {
				parent[v] = u
				queue = append(queue, v)
			}
		}
	}

	return []string{}
}

func (g *Graph) names(ids []int) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = g.symbols.Resolve(id)
	}

	return out
}
