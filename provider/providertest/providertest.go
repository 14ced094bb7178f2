// Package providertest checks a provider against the source and sink
// contract the engine relies on.
//
//	providertest.Run(t, providertest.Harness{
//	    Open: func(t *testing.T) provider.Provider {
//	        p, err := provider.JSONLinesFactory(ctx, provider.Credentials{}, map[string]any{"path": path})
//	        ...
//	        return p
//	    },
//	    Items: []stream.Item{{Payload: "a"}, {Payload: "b"}, {Payload: "c"}},
//	})
package providertest

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kbukum/flowkit/pipeline"
	"github.com/kbukum/flowkit/provider"
	"github.com/kbukum/flowkit/stream"
)

// Harness describes a provider over backing data that starts empty.
type Harness struct {
	// Open returns a new provider instance over the shared backing data. It
	// is called once for the write and once for every read.
	Open func(t *testing.T) provider.Provider

	// Items are written in a single batch and must read back in order.
	// At least two are required.
	Items []stream.Item

	// Payload maps a payload before comparison. Payloads are compared after
	// a JSON round trip, so numeric types need no normalization. Nil keeps
	// payloads as they are.
	Payload func(any) any
}

// Run writes h.Items through one instance and reads them back through fresh
// ones. It checks:
//
//   - items come back in write order
//   - every item read carries a cursor and cursors never repeat
//   - a read resumed from an item's cursor starts strictly after that item
//   - a read resumed from the last cursor is empty
func Run(t *testing.T, h Harness) {
	t.Helper()
	if h.Open == nil || len(h.Items) < 2 {
		t.Fatal("providertest: Harness needs Open and at least two Items")
	}
	ctx := context.Background()

	sink, ok := open(t, h).(provider.Sink)
	if !ok {
		t.Fatal("providertest: provider is not a Sink")
	}
	if err := sink.Write(ctx, h.Items); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := provider.Close(ctx, sink); err != nil {
		t.Fatalf("Close after write: %v", err)
	}

	all := read(t, h, "")
	if diff := cmp.Diff(h.payloads(t, h.Items), h.payloads(t, all)); diff != "" {
		t.Fatalf("read back differs from written items (-want +got):\n%s", diff)
	}
	seen := make(map[stream.Cursor]bool, len(all))
	for i, item := range all {
		if item.Cursor.IsZero() {
			t.Fatalf("item %d has no cursor", i)
		}
		if seen[item.Cursor] {
			t.Fatalf("item %d repeats cursor %q", i, item.Cursor)
		}
		seen[item.Cursor] = true
	}

	for i := range all {
		rest := read(t, h, all[i].Cursor)
		if diff := cmp.Diff(h.payloads(t, all[i+1:]), h.payloads(t, rest)); diff != "" {
			t.Errorf("resume after item %d (cursor %q) (-want +got):\n%s", i, all[i].Cursor, diff)
		}
	}
}

func open(t *testing.T, h Harness) provider.Provider {
	t.Helper()
	p := h.Open(t)
	if err := provider.Init(context.Background(), p); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return p
}

func read(t *testing.T, h Harness, resume stream.Cursor) []stream.Item {
	t.Helper()
	ctx := context.Background()
	p := open(t, h)
	defer provider.Close(ctx, p)

	src, ok := p.(provider.Source)
	if !ok {
		t.Fatal("providertest: provider is not a Source")
	}
	it, err := src.Read(ctx, resume)
	if err != nil {
		t.Fatalf("Read(%q): %v", resume, err)
	}
	items, err := pipeline.Collect(ctx, it)
	if err != nil {
		t.Fatalf("Collect(%q): %v", resume, err)
	}
	return items
}

func (h Harness) payloads(t *testing.T, items []stream.Item) []any {
	t.Helper()
	out := make([]any, 0, len(items))
	for _, item := range items {
		v := item.Payload
		if h.Payload != nil {
			v = h.Payload(v)
		}
		raw, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("providertest: encode payload: %v", err)
		}
		var norm any
		if err := json.Unmarshal(raw, &norm); err != nil {
			t.Fatalf("providertest: decode payload: %v", err)
		}
		out = append(out, norm)
	}
	return out
}
