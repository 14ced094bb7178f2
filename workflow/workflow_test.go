package workflow

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kbukum/flowkit/errors"
)

// --- test helpers ---

func source(id string) Node {
	return Node{ID: id, Kind: KindSource, Config: map[string]any{"provider": "memory"}}
}

func sink(id string) Node {
	return Node{ID: id, Kind: KindSink, Config: map[string]any{"provider": "memory"}}
}

func transform(id string) Node {
	return Node{ID: id, Kind: KindTransform, Config: map[string]any{"processor": "identity"}}
}

func switchNode(id, onTrue, onFalse string) Node {
	return Node{ID: id, Kind: KindSwitch, Config: map[string]any{
		"condition":    map[string]any{"predicate": "divisible_by", "params": map[string]any{"divisor": 2}},
		"true_branch":  onTrue,
		"false_branch": onFalse,
	}}
}

func problems(t *testing.T, err error) []*errors.AppError {
	t.Helper()
	v, ok := AsValidationError(err)
	if !ok {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	return v.Problems
}

func hasProblem(ps []*errors.AppError, substr string) bool {
	for _, p := range ps {
		if strings.Contains(p.Message, substr) {
			return true
		}
	}
	return false
}

// --- Validate ---

func TestValidate_AcceptsLinearWorkflow(t *testing.T) {
	wf := &Workflow{
		Nodes: []Node{source("src"), transform("t"), sink("out")},
		Edges: []Edge{{From: "src", To: "t"}, {From: "t", To: "out"}},
	}
	if err := Validate(wf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_DanglingEdgeNamesMissingNode(t *testing.T) {
	wf := &Workflow{
		Nodes: []Node{source("n1"), sink("n2")},
		Edges: []Edge{{From: "n1", To: "n2"}, {From: "n1", To: "n99"}},
	}
	ps := problems(t, Validate(wf))
	if len(ps) != 1 {
		t.Fatalf("expected 1 problem, got %d: %v", len(ps), ps)
	}
	if ps[0].Details["node_id"] != "n99" {
		t.Errorf("expected node_id=n99, got %v", ps[0].Details["node_id"])
	}
	if !strings.Contains(ps[0].Message, `"n99"`) {
		t.Errorf("expected message to name n99, got %q", ps[0].Message)
	}
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	wf := &Workflow{
		Nodes: []Node{transform("a"), transform("b"), {ID: "a", Kind: "widget"}},
		Edges: []Edge{{From: "a", To: "ghost"}},
	}
	ps := problems(t, Validate(wf))
	for _, want := range []string{
		`duplicate node id "a"`,
		"must be one of",
		`unknown node "ghost"`,
		"no source node",
		"no sink node",
	} {
		if !hasProblem(ps, want) {
			t.Errorf("expected a problem containing %q in %v", want, ps)
		}
	}
}

func TestValidate_SwitchBranchLabels(t *testing.T) {
	wf := &Workflow{
		Nodes: []Node{source("src"), switchNode("sw", "even", "odd"), sink("x"), sink("y")},
		Edges: []Edge{
			{From: "src", To: "sw"},
			{From: "sw", FromPort: "even", To: "x"},
			{From: "sw", FromPort: "maybe", To: "y"},
		},
	}
	ps := problems(t, Validate(wf))
	if len(ps) != 1 || !strings.Contains(ps[0].Message, `undeclared branch "maybe"`) {
		t.Fatalf("expected one undeclared branch problem, got %v", ps)
	}
}

func TestValidate_SwitchDefaultPortIsNotABranch(t *testing.T) {
	wf := &Workflow{
		Nodes: []Node{source("src"), switchNode("sw", "", ""), sink("x")},
		Edges: []Edge{{From: "src", To: "sw"}, {From: "sw", To: "x"}},
	}
	ps := problems(t, Validate(wf))
	if !hasProblem(ps, `undeclared branch "out"`) {
		t.Fatalf("expected default port to be rejected, got %v", ps)
	}
}

func TestValidate_SwitchWithoutCondition(t *testing.T) {
	wf := &Workflow{
		Nodes: []Node{source("src"), {ID: "sw", Kind: KindSwitch}, sink("x")},
		Edges: []Edge{{From: "src", To: "sw"}, {From: "sw", FromPort: "true", To: "x"}},
	}
	ps := problems(t, Validate(wf))
	if !hasProblem(ps, "condition.predicate: is required") {
		t.Fatalf("expected missing predicate problem, got %v", ps)
	}
}

func TestValidate_DirectCycle(t *testing.T) {
	wf := &Workflow{
		Nodes: []Node{source("src"), transform("a"), transform("b"), sink("out")},
		Edges: []Edge{
			{From: "src", To: "a"},
			{From: "a", To: "b"},
			{From: "b", To: "a"},
			{From: "b", To: "out"},
		},
	}
	ps := problems(t, Validate(wf))
	if len(ps) != 1 || ps[0].Code != errors.ErrCodeCycleDetected {
		t.Fatalf("expected a single cycle problem, got %v", ps)
	}
}

func TestValidate_CycleThroughCacheSlot(t *testing.T) {
	wf := &Workflow{
		Nodes: []Node{source("src"), transform("a"), transform("b"), sink("out")},
		Edges: []Edge{{From: "src", To: "a"}, {From: "a", To: "b"}, {From: "b", To: "out"}},
		CacheSlots: []CacheSlot{{
			Name:    "loop",
			Writers: []SlotRef{{Node: "b"}},
			Readers: []SlotRef{{Node: "a"}},
		}},
	}
	ps := problems(t, Validate(wf))
	if len(ps) != 1 || ps[0].Code != errors.ErrCodeCycleDetected {
		t.Fatalf("expected slot-induced cycle, got %v", ps)
	}
}

func TestValidate_CacheSlotCardinality(t *testing.T) {
	wf := &Workflow{
		Nodes: []Node{source("s1"), source("s2"), sink("out")},
		CacheSlots: []CacheSlot{
			{Name: "two", Writers: []SlotRef{{Node: "s1"}, {Node: "s2"}}, Readers: []SlotRef{{Node: "out"}}},
			{Name: "none", Readers: []SlotRef{{Node: "out"}}},
			{Name: "deaf", Writers: []SlotRef{{Node: "s1"}}},
		},
	}
	ps := problems(t, Validate(wf))
	for _, want := range []string{
		`"two" must have exactly one writer, has 2`,
		`"none" must have exactly one writer, has 0`,
		`"deaf" has no readers`,
	} {
		if !hasProblem(ps, want) {
			t.Errorf("expected %q in %v", want, ps)
		}
	}
}

func TestValidate_DoesNotMutate(t *testing.T) {
	wf := &Workflow{
		Nodes: []Node{source("src"), sink("out")},
		Edges: []Edge{{From: "src", To: "out"}},
	}
	_ = Validate(wf)
	if wf.Edges[0].FromPort != "" || wf.Edges[0].ToPort != "" {
		t.Fatalf("validation filled ports in place: %+v", wf.Edges[0])
	}
}

func TestValidationError_Unwrap(t *testing.T) {
	wf := &Workflow{Nodes: []Node{source("src")}}
	err := Validate(wf)
	if !errors.HasCode(err, errors.ErrCodeInvalidDefinition) {
		t.Fatalf("expected INVALID_DEFINITION in chain, got %v", err)
	}
	var appErr *errors.AppError
	if !stderrors.As(err, &appErr) {
		t.Fatal("expected errors.As to reach an AppError")
	}
}

// --- ResolveCacheSlots ---

func TestResolveCacheSlots_ReplacesSlotWithDirectEdges(t *testing.T) {
	wf := &Workflow{
		Nodes: []Node{source("src"), switchNode("sw", "even", "odd"), sink("x"), sink("y")},
		Edges: []Edge{{From: "src", To: "sw"}, {From: "sw", FromPort: "odd", To: "y"}},
		CacheSlots: []CacheSlot{{
			Name:    "evens",
			Writers: []SlotRef{{Node: "sw", Port: "even"}},
			Readers: []SlotRef{{Node: "x", Port: "left"}, {Node: "y"}},
		}},
	}
	if err := Validate(wf); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	out, err := ResolveCacheSlots(wf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.CacheSlots) != 0 {
		t.Fatalf("expected slots to be removed, got %v", out.CacheSlots)
	}
	want := map[Edge]bool{
		{From: "sw", FromPort: "even", To: "x", ToPort: "left"}: true,
		{From: "sw", FromPort: "even", To: "y", ToPort: "in"}:   true,
	}
	for _, e := range out.Edges[2:] {
		if !want[e] {
			t.Errorf("unexpected synthesized edge %+v", e)
		}
		delete(want, e)
	}
	if len(want) != 0 {
		t.Errorf("missing edges %v", want)
	}
	if len(wf.CacheSlots) != 1 {
		t.Error("input workflow was modified")
	}
}

func TestResolveCacheSlots_SkipsDuplicateEdges(t *testing.T) {
	wf := &Workflow{
		Nodes: []Node{source("src"), sink("out")},
		Edges: []Edge{{From: "src", To: "out"}},
		CacheSlots: []CacheSlot{{
			Name:    "dup",
			Writers: []SlotRef{{Node: "src"}},
			Readers: []SlotRef{{Node: "out"}},
		}},
	}
	out, err := ResolveCacheSlots(wf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Edges) != 1 {
		t.Fatalf("expected duplicate edge to be suppressed, got %v", out.Edges)
	}
}

func TestResolveCacheSlots_RejectsCycle(t *testing.T) {
	wf := &Workflow{
		Nodes: []Node{source("src"), transform("a"), transform("b"), sink("out")},
		Edges: []Edge{{From: "src", To: "a"}, {From: "a", To: "b"}, {From: "b", To: "out"}},
		CacheSlots: []CacheSlot{{
			Name:    "back",
			Writers: []SlotRef{{Node: "b"}},
			Readers: []SlotRef{{Node: "a"}},
		}},
	}
	_, err := ResolveCacheSlots(wf)
	appErr, ok := errors.AsAppError(err)
	if !ok || appErr.Code != errors.ErrCodeCycleDetected {
		t.Fatalf("expected CYCLE_DETECTED, got %v", err)
	}
	if appErr.Details["phase"] != "cache_resolution" {
		t.Errorf("expected phase detail, got %v", appErr.Details)
	}
}

// --- Parsing ---

const linearJSON = `{
  "id": "wf-1",
  "name": "linear",
  "nodes": [
    {"id": "src", "kind": "source", "config": {"provider": "memory", "params": {"items": [1, 2, 3]}}},
    {"id": "t", "kind": "transform", "config": {"processor": "identity"}},
    {"id": "out", "kind": "sink", "config": {"provider": "memory"}}
  ],
  "edges": [
    {"from": "src", "to": "t"},
    {"from": "t", "to": "out", "to_port": "rows"}
  ]
}`

func TestParse_JSON(t *testing.T) {
	wf, err := Parse([]byte(linearJSON))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wf.ID != "wf-1" || len(wf.Nodes) != 3 || len(wf.Edges) != 2 {
		t.Fatalf("unexpected workflow %+v", wf)
	}
	if wf.Edges[1].ToPort != "rows" {
		t.Errorf("expected to_port rows, got %q", wf.Edges[1].ToPort)
	}
	if err := Validate(wf); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestParse_RejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte(`{"nodes": [], "edges": [], "links": []}`))
	if !errors.HasCode(err, errors.ErrCodeInvalidDefinition) {
		t.Fatalf("expected INVALID_DEFINITION, got %v", err)
	}
}

const linearYAML = `
name: linear
nodes:
  - id: src
    kind: source
    config:
      provider: memory
      params:
        items: [a, b]
  - id: out
    kind: sink
    config:
      provider: memory
edges:
  - from: src
    to: out
cache_slots: []
`

func TestLoadFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "linear.yaml")
	if err := os.WriteFile(path, []byte(linearYAML), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	wf, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg, err := wf.Nodes[0].SourceConfig()
	if err != nil {
		t.Fatalf("unexpected config error: %v", err)
	}
	items, ok := cfg.Params["items"].([]any)
	if !ok || len(items) != 2 {
		t.Fatalf("unexpected params %v", cfg.Params)
	}
}

func TestLoadFile_UnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wf.toml")
	if err := os.WriteFile(path, []byte(""), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for .toml")
	}
}

// --- Node configs ---

func TestNode_SinkConfig(t *testing.T) {
	n := Node{ID: "out", Kind: KindSink, Config: map[string]any{
		"provider":    "sql-table",
		"connection":  "warehouse",
		"batch_size":  float64(50),
		"parallelism": "2",
		"retry":       map[string]any{"max_attempts": 5, "initial_backoff": "50ms"},
	}}
	cfg, err := n.SinkConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BatchSize != 50 || cfg.Parallelism != 2 || cfg.Retry == nil || cfg.Retry.MaxAttempts != 5 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Retry.InitialBackoff.Milliseconds() != 50 {
		t.Errorf("expected 50ms, got %v", cfg.Retry.InitialBackoff)
	}
}

func TestNode_ConfigKindMismatch(t *testing.T) {
	if _, err := source("src").SinkConfig(); err == nil {
		t.Fatal("expected kind mismatch error")
	}
}

func TestNode_SwitchConfigRejectsEqualBranches(t *testing.T) {
	if _, err := switchNode("sw", "same", "same").SwitchConfig(); err == nil {
		t.Fatal("expected error for identical branch labels")
	}
}
