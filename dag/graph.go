package dag

import (
	"container/heap"
	"fmt"
	"sort"
)

// Default port names used when an edge leaves its ports empty.
const (
	DefaultOutPort = "out"
	DefaultInPort  = "in"
)

// Edge connects an output port of one node to an input port of another.
type Edge struct {
	From     string `json:"from"`
	FromPort string `json:"from_port,omitempty"`
	To       string `json:"to"`
	ToPort   string `json:"to_port,omitempty"`
}

// Normalize fills empty ports with their defaults.
func (e Edge) Normalize() Edge {
	if e.FromPort == "" {
		e.FromPort = DefaultOutPort
	}
	if e.ToPort == "" {
		e.ToPort = DefaultInPort
	}
	return e
}

// String renders the edge as from:port->to:port.
func (e Edge) String() string {
	n := e.Normalize()
	return fmt.Sprintf("%s:%s->%s:%s", n.From, n.FromPort, n.To, n.ToPort)
}

// CycleError is returned when Kahn's algorithm cannot order every node.
type CycleError struct {
	// Remaining lists the nodes that could not be ordered, in declaration order.
	Remaining []string
	// Total is the number of nodes in the graph.
	Total int
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dag: cycle detected, processed %d of %d nodes (unordered: %v)",
		e.Total-len(e.Remaining), e.Total, e.Remaining)
}

// Graph is an immutable set of declared nodes and the edges between them.
type Graph struct {
	ids   []string
	index map[string]int
	edges []Edge
	out   [][]int
	in    [][]int
}

// New builds a graph. ids must be unique and every edge endpoint must be one
// of them. Edges are stored with default ports filled in.
func New(ids []string, edges []Edge) (*Graph, error) {
	g := &Graph{
		ids:   append([]string(nil), ids...),
		index: make(map[string]int, len(ids)),
		edges: make([]Edge, 0, len(edges)),
		out:   make([][]int, len(ids)),
		in:    make([][]int, len(ids)),
	}
	for i, id := range ids {
		if _, dup := g.index[id]; dup {
			return nil, fmt.Errorf("dag: duplicate node %q", id)
		}
		g.index[id] = i
	}
	for _, e := range edges {
		from, ok := g.index[e.From]
		if !ok {
			return nil, fmt.Errorf("dag: edge references unknown node %q", e.From)
		}
		to, ok := g.index[e.To]
		if !ok {
			return nil, fmt.Errorf("dag: edge references unknown node %q", e.To)
		}
		g.out[from] = append(g.out[from], len(g.edges))
		g.in[to] = append(g.in[to], len(g.edges))
		g.edges = append(g.edges, e.Normalize())
	}
	return g, nil
}

// Nodes returns node ids in declaration order.
func (g *Graph) Nodes() []string { return append([]string(nil), g.ids...) }

// Edges returns all edges in insertion order.
func (g *Graph) Edges() []Edge { return append([]Edge(nil), g.edges...) }

// Has reports whether id is a node of g.
func (g *Graph) Has(id string) bool {
	_, ok := g.index[id]
	return ok
}

// Outgoing returns the edges leaving id.
func (g *Graph) Outgoing(id string) []Edge { return g.collect(g.out, id) }

// Incoming returns the edges entering id.
func (g *Graph) Incoming(id string) []Edge { return g.collect(g.in, id) }

func (g *Graph) collect(adj [][]int, id string) []Edge {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	out := make([]Edge, 0, len(adj[i]))
	for _, ei := range adj[i] {
		out = append(out, g.edges[ei])
	}
	return out
}

// Sort returns the nodes in topological order using Kahn's algorithm. Among
// nodes that are ready at the same time, the earliest declared comes first.
// A *CycleError is returned if any node cannot be ordered.
func (g *Graph) Sort() ([]string, error) {
	inDegree := make([]int, len(g.ids))
	for _, e := range g.edges {
		inDegree[g.index[e.To]]++
	}

	ready := &indexHeap{}
	for i, d := range inDegree {
		if d == 0 {
			heap.Push(ready, i)
		}
	}

	order := make([]string, 0, len(g.ids))
	for ready.Len() > 0 {
		i := heap.Pop(ready).(int)
		order = append(order, g.ids[i])
		for _, ei := range g.out[i] {
			to := g.index[g.edges[ei].To]
			inDegree[to]--
			if inDegree[to] == 0 {
				heap.Push(ready, to)
			}
		}
	}

	if len(order) != len(g.ids) {
		var remaining []string
		for i, d := range inDegree {
			if d > 0 {
				remaining = append(remaining, g.ids[i])
			}
		}
		return nil, &CycleError{Remaining: remaining, Total: len(g.ids)}
	}
	return order, nil
}

// Levels groups nodes by dependency depth. Every node in level n depends only
// on nodes in levels below n. Nodes inside a level keep declaration order.
func (g *Graph) Levels() ([][]string, error) {
	order, err := g.Sort()
	if err != nil {
		return nil, err
	}
	depth := make([]int, len(g.ids))
	maxDepth := 0
	for _, id := range order {
		i := g.index[id]
		for _, ei := range g.in[i] {
			if d := depth[g.index[g.edges[ei].From]] + 1; d > depth[i] {
				depth[i] = d
			}
		}
		if depth[i] > maxDepth {
			maxDepth = depth[i]
		}
	}
	if len(g.ids) == 0 {
		return nil, nil
	}
	levels := make([][]string, maxDepth+1)
	for i, id := range g.ids {
		levels[depth[i]] = append(levels[depth[i]], id)
	}
	return levels, nil
}

// Sort is a convenience wrapper that builds a graph and sorts it.
func Sort(ids []string, edges []Edge) ([]string, error) {
	g, err := New(ids, edges)
	if err != nil {
		return nil, err
	}
	return g.Sort()
}

// SortEdges orders edges by their string form. Useful for comparing edge sets.
func SortEdges(edges []Edge) []Edge {
	out := make([]Edge, len(edges))
	for i, e := range edges {
		out[i] = e.Normalize()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// indexHeap is a min-heap of declaration indexes.
type indexHeap []int

func (h indexHeap) Len() int           { return len(h) }
func (h indexHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h indexHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *indexHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *indexHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
