package stream

import "testing"

func TestItem_WithMetaCopies(t *testing.T) {
	orig := Item{Payload: "doc", Metadata: map[string]any{"name": "a.pdf"}, Cursor: "7"}
	derived := orig.WithMeta("lang", "en")

	if _, ok := orig.Meta("lang"); ok {
		t.Fatal("original item was mutated")
	}
	if v, _ := derived.Meta("name"); v != "a.pdf" {
		t.Errorf("expected name to be carried over, got %v", v)
	}
	if derived.Cursor != "7" {
		t.Errorf("expected cursor 7, got %q", derived.Cursor)
	}
}

func TestCursor_IsZero(t *testing.T) {
	if !Cursor("").IsZero() {
		t.Error("empty cursor should be zero")
	}
	if Cursor("0").IsZero() {
		t.Error("\"0\" is a real position")
	}
}
