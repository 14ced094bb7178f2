package errors

import (
	"context"
	stderrors "errors"
)

// Class groups errors by how the engine reacts to them.
type Class string

const (
	// ClassNone is returned for a nil error.
	ClassNone Class = ""
	// ClassDefinition errors are raised before execution and never retried.
	ClassDefinition Class = "definition"
	// ClassTransient errors are retried with the provider's backoff policy.
	ClassTransient Class = "transient"
	// ClassFatal errors terminate the run as failed.
	ClassFatal Class = "fatal"
	// ClassCancelled marks cooperative cancellation, which is not a failure.
	ClassCancelled Class = "cancelled"
)

// ClassOf classifies err. Errors that are not AppErrors are fatal unless they
// are context cancellations.
func ClassOf(err error) Class {
	if err == nil {
		return ClassNone
	}
	if appErr, ok := AsAppError(err); ok {
		switch {
		case IsDefinitionCode(appErr.Code):
			return ClassDefinition
		case appErr.Retryable:
			return ClassTransient
		default:
			return ClassFatal
		}
	}
	if stderrors.Is(err, context.Canceled) {
		return ClassCancelled
	}
	return ClassFatal
}
