package compiler

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/kbukum/flowkit/dag"
	"github.com/kbukum/flowkit/provider"
	"github.com/kbukum/flowkit/workflow"
)

// Graph is a compiled workflow. It is immutable apart from Close.
type Graph struct {
	workflowID string
	nodes      []*Node
	byID       map[string]*Node
	dag        *dag.Graph
	snapshot   []byte

	instances []provider.Provider
	closeOnce sync.Once
	closeErr  error
}

// WorkflowID returns the id of the definition the graph was compiled from.
func (g *Graph) WorkflowID() string { return g.workflowID }

// Nodes returns the nodes in topological order.
func (g *Graph) Nodes() []*Node { return append([]*Node(nil), g.nodes...) }

// Node returns the node with the given id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.byID[id]
	return n, ok
}

// Sources returns the source nodes in topological order.
func (g *Graph) Sources() []*Node {
	var out []*Node
	for _, n := range g.nodes {
		if n.Kind == workflow.KindSource {
			out = append(out, n)
		}
	}
	return out
}

// Edges returns the resolved edge list with default ports filled in.
func (g *Graph) Edges() []dag.Edge { return g.dag.Edges() }

// Outgoing returns the edges leaving id.
func (g *Graph) Outgoing(id string) []dag.Edge { return g.dag.Outgoing(id) }

// Incoming returns the edges entering id.
func (g *Graph) Incoming(id string) []dag.Edge { return g.dag.Incoming(id) }

// Levels groups node ids by depth.
func (g *Graph) Levels() ([][]string, error) { return g.dag.Levels() }

// Snapshot returns the JSON of the resolved definition.
func (g *Graph) Snapshot() []byte { return append([]byte(nil), g.snapshot...) }

// Close releases every provider instance the compiler created. Calling it
// more than once returns the first result.
func (g *Graph) Close(ctx context.Context) error {
	g.closeOnce.Do(func() {
		g.closeErr = closeAll(ctx, g.instances)
	})
	return g.closeErr
}

func closeAll(ctx context.Context, instances []provider.Provider) error {
	var errs []error
	for i := len(instances) - 1; i >= 0; i-- {
		if err := provider.Close(ctx, instances[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}
