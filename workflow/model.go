package workflow

import (
	"github.com/kbukum/flowkit/dag"
)

// NodeKind is the closed set of node behaviours.
type NodeKind string

const (
	KindSource    NodeKind = "source"
	KindTransform NodeKind = "transform"
	KindSink      NodeKind = "sink"
	KindSwitch    NodeKind = "switch"
)

// Valid reports whether k is one of the four known kinds.
func (k NodeKind) Valid() bool {
	switch k {
	case KindSource, KindTransform, KindSink, KindSwitch:
		return true
	default:
		return false
	}
}

// Workflow is a named, versioned pipeline definition owned by a workspace.
type Workflow struct {
	ID         string      `json:"id,omitempty" yaml:"id,omitempty"`
	Name       string      `json:"name,omitempty" yaml:"name,omitempty"`
	Version    int         `json:"version,omitempty" yaml:"version,omitempty"`
	Workspace  string      `json:"workspace,omitempty" yaml:"workspace,omitempty"`
	Nodes      []Node      `json:"nodes" yaml:"nodes"`
	Edges      []Edge      `json:"edges" yaml:"edges"`
	CacheSlots []CacheSlot `json:"cache_slots,omitempty" yaml:"cache_slots,omitempty"`
}

// Node is one declared step. Config is kind-specific and decoded during
// compilation (see SourceConfig, SinkConfig, TransformConfig, SwitchConfig).
type Node struct {
	ID     string         `json:"id" yaml:"id" validate:"required"`
	Kind   NodeKind       `json:"kind" yaml:"kind" validate:"required,oneof=source transform sink switch"`
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// Edge connects (From, FromPort) to (To, ToPort). Empty ports mean "out" and
// "in".
type Edge struct {
	From     string `json:"from" yaml:"from"`
	FromPort string `json:"from_port,omitempty" yaml:"from_port,omitempty"`
	To       string `json:"to" yaml:"to"`
	ToPort   string `json:"to_port,omitempty" yaml:"to_port,omitempty"`
}

// DAG converts e to the graph package's edge with default ports filled in.
func (e Edge) DAG() dag.Edge {
	return dag.Edge{From: e.From, FromPort: e.FromPort, To: e.To, ToPort: e.ToPort}.Normalize()
}

// SlotRef names one side of a cache slot: a node and the port it writes from
// or reads into.
type SlotRef struct {
	Node string `json:"node" yaml:"node"`
	Port string `json:"port,omitempty" yaml:"port,omitempty"`
}

// CacheSlot is a named rendezvous with exactly one writer and one or more
// readers. It is resolved into direct edges before execution.
type CacheSlot struct {
	Name    string    `json:"name" yaml:"name"`
	Writers []SlotRef `json:"writers" yaml:"writers"`
	Readers []SlotRef `json:"readers" yaml:"readers"`
}

// Node returns the node with the given id.
func (wf *Workflow) Node(id string) (Node, bool) {
	for _, n := range wf.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// NodeIDs returns node ids in declaration order.
func (wf *Workflow) NodeIDs() []string {
	ids := make([]string, len(wf.Nodes))
	for i, n := range wf.Nodes {
		ids[i] = n.ID
	}
	return ids
}

// DAGEdges returns the direct edges in graph form.
func (wf *Workflow) DAGEdges() []dag.Edge {
	out := make([]dag.Edge, len(wf.Edges))
	for i, e := range wf.Edges {
		out[i] = e.DAG()
	}
	return out
}

// Clone returns a deep copy of wf.
func (wf *Workflow) Clone() *Workflow {
	out := &Workflow{
		ID:        wf.ID,
		Name:      wf.Name,
		Version:   wf.Version,
		Workspace: wf.Workspace,
		Nodes:     make([]Node, len(wf.Nodes)),
		Edges:     append([]Edge(nil), wf.Edges...),
	}
	for i, n := range wf.Nodes {
		out.Nodes[i] = Node{ID: n.ID, Kind: n.Kind, Config: copyMap(n.Config)}
	}
	if len(wf.CacheSlots) > 0 {
		out.CacheSlots = make([]CacheSlot, len(wf.CacheSlots))
		for i, s := range wf.CacheSlots {
			out.CacheSlots[i] = CacheSlot{
				Name:    s.Name,
				Writers: append([]SlotRef(nil), s.Writers...),
				Readers: append([]SlotRef(nil), s.Readers...),
			}
		}
	}
	return out
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}
