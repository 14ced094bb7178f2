package workflow

import (
	stderrors "errors"

	"github.com/kbukum/flowkit/dag"
	"github.com/kbukum/flowkit/errors"
)

// ResolveCacheSlots returns a copy of wf in which every cache slot has been
// replaced by direct edges from its writer to each of its readers, ports
// preserved. wf must already have passed Validate. The rewritten edge set is
// checked for cycles again, since a slot can close a loop that the separate
// halves of the graph did not show.
func ResolveCacheSlots(wf *Workflow) (*Workflow, error) {
	out := wf.Clone()
	if len(out.CacheSlots) == 0 {
		return out, nil
	}

	seen := make(map[dag.Edge]bool, len(out.Edges))
	for _, e := range out.Edges {
		seen[e.DAG()] = true
	}
	for _, s := range out.CacheSlots {
		if len(s.Writers) != 1 {
			return nil, errors.InvalidDefinition("cache slot %q must have exactly one writer, has %d", s.Name, len(s.Writers)).
				WithDetail("slot", s.Name)
		}
		w := s.Writers[0]
		for _, r := range s.Readers {
			e := slotEdge(w, r)
			if seen[e] {
				continue
			}
			seen[e] = true
			out.Edges = append(out.Edges, Edge{From: e.From, FromPort: e.FromPort, To: e.To, ToPort: e.ToPort})
		}
	}
	out.CacheSlots = nil

	if _, err := dag.Sort(out.NodeIDs(), out.DAGEdges()); err != nil {
		var cycle *dag.CycleError
		if stderrors.As(err, &cycle) {
			return nil, errors.CycleDetected(cycle.Remaining).WithDetail("phase", "cache_resolution")
		}
		return nil, errors.InvalidDefinition("%v", err).WithCause(err)
	}
	return out, nil
}
