package validation

import (
	"strings"
	"testing"
	"time"

	"github.com/kbukum/flowkit/errors"
)

type chunkParams struct {
	Size    int           `json:"size" validate:"gt=0"`
	Mode    string        `json:"mode" validate:"omitempty,oneof=bytes runes"`
	Timeout time.Duration `json:"timeout"`
}

func TestDecode_WeakTypes(t *testing.T) {
	var p chunkParams
	err := Decode(map[string]any{"size": "16", "mode": "runes", "timeout": "2s"}, &p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Size != 16 || p.Mode != "runes" || p.Timeout != 2*time.Second {
		t.Errorf("unexpected params %+v", p)
	}
}

func TestDecode_RejectsUnknownKeys(t *testing.T) {
	var p chunkParams
	err := Decode(map[string]any{"size": 4, "sise": 8}, &p)
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
	appErr, ok := errors.AsAppError(err)
	if !ok || appErr.Code != errors.ErrCodeInvalidParams {
		t.Fatalf("expected INVALID_PARAMS, got %v", err)
	}
}

func TestDecode_RunsStructValidation(t *testing.T) {
	var p chunkParams
	err := Decode(map[string]any{"size": 0}, &p)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "size: must be greater than 0") {
		t.Errorf("unexpected message %q", err.Error())
	}
	appErr, _ := errors.AsAppError(err)
	fields, ok := appErr.Details["fields"].([]FieldError)
	if !ok || len(fields) != 1 || fields[0].Field != "size" {
		t.Errorf("unexpected field details %v", appErr.Details)
	}
}

func TestDecode_NilParams(t *testing.T) {
	var p struct {
		Label string `json:"label"`
	}
	if err := Decode(nil, &p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_OneOf(t *testing.T) {
	err := Validate(chunkParams{Size: 1, Mode: "lines"})
	if err == nil || !strings.Contains(err.Error(), "must be one of: bytes runes") {
		t.Fatalf("expected oneof error, got %v", err)
	}
}

func TestToSnakeCase(t *testing.T) {
	if got := toSnakeCase("CursorColumn"); got != "cursor_column" {
		t.Errorf("expected cursor_column, got %q", got)
	}
}
