package provider

import (
	"context"
	"strconv"
	"sync"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/pipeline"
	"github.com/kbukum/flowkit/stream"
	"github.com/kbukum/flowkit/validation"
)

// Memory is an in-process store backing the "memory" provider. Sources read
// named item lists, sinks append to named lists. Cursors are the 1-based
// position of an item in its list.
type Memory struct {
	mu      sync.Mutex
	sources map[string][]stream.Item
	written map[string][]stream.Item
	writes  map[string]int
}

// NewMemory creates an empty Memory.
func NewMemory() *Memory {
	return &Memory{
		sources: make(map[string][]stream.Item),
		written: make(map[string][]stream.Item),
		writes:  make(map[string]int),
	}
}

type memoryParams struct {
	// Name selects the list. Defaults to "default".
	Name string `json:"name"`
	// Items are inline payloads; when set they take precedence over the
	// named list.
	Items []any `json:"items"`
}

// SetSource replaces the named list a memory source reads. Item cursors are
// overwritten with their positions.
func (m *Memory) SetSource(name string, items ...stream.Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[name] = append([]stream.Item(nil), items...)
}

// Written returns a copy of what sinks appended to the named list.
func (m *Memory) Written(name string) []stream.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]stream.Item(nil), m.written[name]...)
}

// Writes returns how many Write calls the named list received.
func (m *Memory) Writes(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes[name]
}

// Factory is the provider.Factory for "memory".
func (m *Memory) Factory(_ context.Context, _ Credentials, params map[string]any) (Provider, error) {
	var p memoryParams
	if err := validation.Decode(params, &p); err != nil {
		return nil, err
	}
	if p.Name == "" {
		p.Name = "default"
	}
	return &memoryProvider{mem: m, params: p}, nil
}

type memoryProvider struct {
	mem    *Memory
	params memoryParams
}

func (p *memoryProvider) Name() string { return "memory" }

func (p *memoryProvider) Capabilities() Capabilities {
	return Capabilities{ConcurrencySafe: true}
}

func (p *memoryProvider) Read(_ context.Context, resume stream.Cursor) (pipeline.Iterator[stream.Item], error) {
	var items []stream.Item
	if p.params.Items != nil {
		items = make([]stream.Item, len(p.params.Items))
		for i, payload := range p.params.Items {
			items[i] = stream.Item{Payload: payload}
		}
	} else {
		p.mem.mu.Lock()
		items = append([]stream.Item(nil), p.mem.sources[p.params.Name]...)
		p.mem.mu.Unlock()
	}

	start := 0
	if !resume.IsZero() {
		pos, err := strconv.Atoi(string(resume))
		if err != nil || pos < 0 {
			return nil, errors.InvalidParams("memory cursor must be a non-negative integer").
				WithDetail("cursor", string(resume))
		}
		start = min(pos, len(items))
	}

	out := make([]stream.Item, 0, len(items)-start)
	for i := start; i < len(items); i++ {
		it := items[i]
		it.Cursor = stream.Cursor(strconv.Itoa(i + 1))
		out = append(out, it)
	}
	return pipeline.FromSlice(out), nil
}

func (p *memoryProvider) Write(_ context.Context, items []stream.Item) error {
	p.mem.mu.Lock()
	defer p.mem.mu.Unlock()
	p.mem.written[p.params.Name] = append(p.mem.written[p.params.Name], items...)
	p.mem.writes[p.params.Name]++
	return nil
}
