// Package stream defines the unit of data that flows through a compiled
// workflow.
package stream

// Cursor is an opaque resumption context issued by a source provider. It marks
// an item's position in that source; only the issuing provider interprets it.
// The empty cursor means "from the beginning".
type Cursor string

// IsZero reports whether c is the empty cursor.
func (c Cursor) IsZero() bool { return c == "" }

// Item is one record travelling through the graph.
type Item struct {
	// Payload is the user data, typed by the producing node.
	Payload any `json:"payload"`
	// Metadata carries provider or processor annotations such as names,
	// sizes, or content types. Predicates route on it.
	Metadata map[string]any `json:"metadata,omitempty"`
	// Cursor is the resumption context of the source item this one was
	// read as or derived from.
	Cursor Cursor `json:"cursor,omitempty"`
}

// New returns an item with the given payload and cursor.
func New(payload any, cursor Cursor) Item {
	return Item{Payload: payload, Cursor: cursor}
}

// Meta returns the metadata value for key.
func (it Item) Meta(key string) (any, bool) {
	if it.Metadata == nil {
		return nil, false
	}
	v, ok := it.Metadata[key]
	return v, ok
}

// WithPayload returns a copy of it carrying payload. Metadata is copied so the
// derived item can be annotated without touching the original.
func (it Item) WithPayload(payload any) Item {
	out := Item{Payload: payload, Cursor: it.Cursor}
	if len(it.Metadata) > 0 {
		out.Metadata = make(map[string]any, len(it.Metadata))
		for k, v := range it.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// WithMeta returns a copy of it with key set to value.
func (it Item) WithMeta(key string, value any) Item {
	out := it.WithPayload(it.Payload)
	if out.Metadata == nil {
		out.Metadata = make(map[string]any, 1)
	}
	out.Metadata[key] = value
	return out
}
