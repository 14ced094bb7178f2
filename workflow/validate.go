package workflow

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/kbukum/flowkit/dag"
	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/validation"
)

// ValidationError carries every problem found in one pass over a workflow.
type ValidationError struct {
	Problems []*errors.AppError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.Message
	}
	return fmt.Sprintf("workflow: %d problem(s): %s", len(e.Problems), strings.Join(msgs, "; "))
}

// Unwrap exposes the individual problems to errors.Is and errors.As.
func (e *ValidationError) Unwrap() []error {
	out := make([]error, len(e.Problems))
	for i, p := range e.Problems {
		out[i] = p
	}
	return out
}

// AsValidationError extracts a *ValidationError from err.
func AsValidationError(err error) (*ValidationError, bool) {
	var v *ValidationError
	if stderrors.As(err, &v) {
		return v, true
	}
	return nil, false
}

// Validate checks the structure of wf and returns a *ValidationError listing
// every problem, or nil. It never modifies wf. Checks run in this order:
// node shape and id uniqueness, edge and slot endpoints, switch branch labels
// and slot cardinality, presence of a source and a sink, and acyclicity of
// direct edges together with slot writer-to-reader edges.
func Validate(wf *Workflow) error {
	if wf == nil {
		return &ValidationError{Problems: []*errors.AppError{errors.InvalidDefinition("workflow is nil")}}
	}
	v := &validator{wf: wf, nodes: make(map[string]Node, len(wf.Nodes))}
	v.checkNodes()
	v.checkEndpoints()
	v.checkBranchesAndSlots()
	v.checkSourcesAndSinks()
	v.checkAcyclic()
	if len(v.problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: v.problems}
}

type validator struct {
	wf         *Workflow
	nodes      map[string]Node
	duplicates bool
	problems   []*errors.AppError
}

func (v *validator) add(p *errors.AppError) { v.problems = append(v.problems, p) }

func (v *validator) checkNodes() {
	for i, n := range v.wf.Nodes {
		if err := validation.Validate(n); err != nil {
			id := n.ID
			if id == "" {
				id = fmt.Sprintf("#%d", i)
			}
			v.add(errors.InvalidDefinition("node %s: %v", id, messageOf(err)).WithDetail("node_id", n.ID))
		}
		if n.ID == "" {
			continue
		}
		if _, dup := v.nodes[n.ID]; dup {
			v.duplicates = true
			v.add(errors.InvalidDefinition("duplicate node id %q", n.ID).WithDetail("node_id", n.ID))
			continue
		}
		v.nodes[n.ID] = n
	}
}

func (v *validator) checkEndpoints() {
	for i, e := range v.wf.Edges {
		for _, id := range []string{e.From, e.To} {
			if _, ok := v.nodes[id]; !ok {
				v.add(errors.InvalidDefinition("edge %d (%s -> %s) references unknown node %q", i, e.From, e.To, id).
					WithDetails(map[string]any{"node_id": id, "edge": i}))
			}
		}
	}
	for _, s := range v.wf.CacheSlots {
		for _, ref := range append(append([]SlotRef(nil), s.Writers...), s.Readers...) {
			if _, ok := v.nodes[ref.Node]; !ok {
				v.add(errors.InvalidDefinition("cache slot %q references unknown node %q", s.Name, ref.Node).
					WithDetails(map[string]any{"node_id": ref.Node, "slot": s.Name}))
			}
		}
	}
}

func (v *validator) checkBranchesAndSlots() {
	branches := make(map[string][2]string)
	for _, n := range v.wf.Nodes {
		if n.Kind != KindSwitch {
			continue
		}
		cfg, err := n.SwitchConfig()
		if err != nil {
			v.add(errors.InvalidDefinition("switch %q: %s", n.ID, messageOf(err)).WithDetail("node_id", n.ID))
			continue
		}
		t, f := cfg.Branches()
		branches[n.ID] = [2]string{t, f}
	}

	checkPort := func(nodeID, port, where string) {
		labels, ok := branches[nodeID]
		if !ok {
			return
		}
		if port == "" {
			port = dag.DefaultOutPort
		}
		if port != labels[0] && port != labels[1] {
			v.add(errors.InvalidDefinition("%s leaves switch %q on undeclared branch %q (declared: %q, %q)",
				where, nodeID, port, labels[0], labels[1]).
				WithDetails(map[string]any{"node_id": nodeID, "port": port}))
		}
	}
	for i, e := range v.wf.Edges {
		checkPort(e.From, e.FromPort, fmt.Sprintf("edge %d", i))
	}

	seen := make(map[string]bool, len(v.wf.CacheSlots))
	for _, s := range v.wf.CacheSlots {
		if s.Name == "" {
			v.add(errors.InvalidDefinition("cache slot without a name"))
		} else if seen[s.Name] {
			v.add(errors.InvalidDefinition("duplicate cache slot %q", s.Name).WithDetail("slot", s.Name))
		}
		seen[s.Name] = true
		if len(s.Writers) != 1 {
			v.add(errors.InvalidDefinition("cache slot %q must have exactly one writer, has %d", s.Name, len(s.Writers)).
				WithDetail("slot", s.Name))
		}
		if len(s.Readers) == 0 {
			v.add(errors.InvalidDefinition("cache slot %q has no readers", s.Name).WithDetail("slot", s.Name))
		}
		for _, w := range s.Writers {
			checkPort(w.Node, w.Port, fmt.Sprintf("cache slot %q", s.Name))
		}
	}
}

func (v *validator) checkSourcesAndSinks() {
	var sources, sinks int
	for _, n := range v.wf.Nodes {
		switch n.Kind {
		case KindSource:
			sources++
		case KindSink:
			sinks++
		}
	}
	if sources == 0 {
		v.add(errors.InvalidDefinition("workflow has no source node"))
	}
	if sinks == 0 {
		v.add(errors.InvalidDefinition("workflow has no sink node"))
	}
}

func (v *validator) checkAcyclic() {
	if v.duplicates {
		return
	}
	edges := make([]dag.Edge, 0, len(v.wf.Edges))
	for _, e := range v.wf.Edges {
		if v.known(e.From) && v.known(e.To) {
			edges = append(edges, e.DAG())
		}
	}
	edges = append(edges, v.slotEdges()...)

	ids := make([]string, 0, len(v.nodes))
	for _, n := range v.wf.Nodes {
		if n.ID != "" {
			ids = append(ids, n.ID)
		}
	}
	if _, err := dag.Sort(ids, edges); err != nil {
		var cycle *dag.CycleError
		if stderrors.As(err, &cycle) {
			v.add(errors.CycleDetected(cycle.Remaining))
			return
		}
		v.add(errors.InvalidDefinition("%v", err))
	}
}

// slotEdges treats every slot as a set of writer-to-reader edges.
func (v *validator) slotEdges() []dag.Edge {
	var out []dag.Edge
	for _, s := range v.wf.CacheSlots {
		for _, w := range s.Writers {
			for _, r := range s.Readers {
				if v.known(w.Node) && v.known(r.Node) {
					out = append(out, slotEdge(w, r))
				}
			}
		}
	}
	return out
}

func (v *validator) known(id string) bool {
	_, ok := v.nodes[id]
	return ok
}

func slotEdge(w, r SlotRef) dag.Edge {
	return dag.Edge{From: w.Node, FromPort: w.Port, To: r.Node, ToPort: r.Port}.Normalize()
}

func messageOf(err error) string {
	if appErr, ok := errors.AsAppError(err); ok {
		return appErr.Message
	}
	return err.Error()
}
