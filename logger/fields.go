package logger

import (
	"time"
)

// Standard field keys.
const (
	FieldComponent  = "component"
	FieldTraceID    = "trace_id"
	FieldSpanID     = "span_id"
	FieldRunID      = "run_id"
	FieldWorkflowID = "workflow_id"
	FieldNodeID     = "node_id"
	FieldNodeKind   = "node_kind"
	FieldProvider   = "provider"
	FieldCursor     = "cursor"
	FieldCount      = "count"
	FieldStatus     = "status"
	FieldError      = "error"
	FieldDuration   = "duration_ms"
	FieldAttempt    = "attempt"
)

// Fields builds a field map from alternating key-value pairs.
//
//	log.Info("checkpoint advanced", logger.Fields("source", id, "cursor", c))
func Fields(kvs ...any) map[string]any {
	m := make(map[string]any, len(kvs)/2)
	for i := 0; i < len(kvs)-1; i += 2 {
		if key, ok := kvs[i].(string); ok {
			m[key] = kvs[i+1]
		}
	}
	return m
}

// ErrorFields creates fields for an operation that failed.
func ErrorFields(op string, err error) map[string]any {
	return map[string]any{
		"operation": op,
		FieldError:  err.Error(),
	}
}

// DurationFields creates fields for a timed operation.
func DurationFields(op string, d time.Duration) map[string]any {
	return map[string]any{
		"operation":   op,
		FieldDuration: d.Milliseconds(),
	}
}
