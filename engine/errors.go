package engine

import (
	"fmt"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/stream"
	"github.com/kbukum/flowkit/workflow"
)

// NodeError is returned by Execute when a node fails fatally.
type NodeError struct {
	NodeID string
	Kind   workflow.NodeKind
	// Cursor is the resumption context of the item being handled, if any.
	Cursor stream.Cursor
	Class  errors.Class
	Err    error
}

func (e *NodeError) Error() string {
	if e.Cursor.IsZero() {
		return fmt.Sprintf("%s %q failed (%s): %v", e.Kind, e.NodeID, e.Class, e.Err)
	}
	return fmt.Sprintf("%s %q failed at cursor %q (%s): %v", e.Kind, e.NodeID, e.Cursor, e.Class, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// Code returns the AppError code of the cause, or INTERNAL_ERROR.
func (e *NodeError) Code() errors.ErrorCode {
	if appErr, ok := errors.AsAppError(e.Err); ok {
		return appErr.Code
	}
	return errors.ErrCodeInternal
}

// Message returns the cause's message without its wrapped chain.
func (e *NodeError) Message() string {
	if appErr, ok := errors.AsAppError(e.Err); ok {
		return appErr.Message
	}
	return e.Err.Error()
}

func nodeError(nodeID string, kind workflow.NodeKind, cursor stream.Cursor, err error) *NodeError {
	// Transient errors reach here only once their retries are exhausted.
	class := errors.ClassFatal
	if errors.ClassOf(err) == errors.ClassTransient {
		class = errors.ClassTransient
	}
	return &NodeError{NodeID: nodeID, Kind: kind, Cursor: cursor, Class: class, Err: err}
}
