package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew_RetryableDetection(t *testing.T) {
	tests := []struct {
		code      ErrorCode
		retryable bool
	}{
		{ErrCodeTimeout, true},
		{ErrCodeRateLimited, true},
		{ErrCodeTransient, true},
		{ErrCodeInvalidDefinition, false},
		{ErrCodePredicateFailed, false},
		{ErrCodeNotFound, false},
	}
	for _, tc := range tests {
		t.Run(string(tc.code), func(t *testing.T) {
			if got := New(tc.code, "x").Retryable; got != tc.retryable {
				t.Errorf("expected retryable=%v, got %v", tc.retryable, got)
			}
		})
	}
}

func TestAppError_ErrorIncludesCause(t *testing.T) {
	err := Transient("sink write", fmt.Errorf("connection reset"))
	msg := err.Error()
	if !strings.Contains(msg, "TRANSIENT") || !strings.Contains(msg, "connection reset") {
		t.Errorf("unexpected message %q", msg)
	}
	if !stderrors.Is(err, err.Cause) {
		t.Error("expected Unwrap to expose the cause")
	}
}

func TestAppError_WithDetail(t *testing.T) {
	err := InvalidDefinition("edge references unknown node %q", "n99").WithDetail("node_id", "n99")
	if err.Details["node_id"] != "n99" {
		t.Errorf("expected node_id detail, got %v", err.Details)
	}
	err.WithDetails(map[string]any{"edge": 3})
	if err.Details["edge"] != 3 || err.Details["node_id"] != "n99" {
		t.Errorf("expected merged details, got %v", err.Details)
	}
}

func TestClassOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"nil", nil, ClassNone},
		{"definition", CycleDetected([]string{"a", "b"}), ClassDefinition},
		{"unknown provider", UnknownProvider("ftp"), ClassDefinition},
		{"transient", Transient("read", nil), ClassTransient},
		{"wrapped transient", fmt.Errorf("lane: %w", Timeout("write")), ClassTransient},
		{"fatal predicate", PredicateFailed("even", nil), ClassFatal},
		{"plain error", stderrors.New("boom"), ClassFatal},
		{"cancelled", fmt.Errorf("stop: %w", context.Canceled), ClassCancelled},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassOf(tc.err); got != tc.want {
				t.Errorf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestHasCode_WalksCauses(t *testing.T) {
	inner := MalformedItem("map", 42)
	outer := Permanent("sink write", inner)
	if !HasCode(outer, ErrCodeMalformedItem) {
		t.Error("expected nested code to be found")
	}
	if HasCode(outer, ErrCodeTimeout) {
		t.Error("did not expect TIMEOUT")
	}
	if HasCode(stderrors.New("plain"), ErrCodePermanent) {
		t.Error("plain errors carry no code")
	}
}

func TestMalformedItem_OmitsPayload(t *testing.T) {
	err := MalformedItem("map", "secret-value")
	if strings.Contains(err.Error(), "secret-value") {
		t.Errorf("payload leaked into error: %q", err.Error())
	}
}
