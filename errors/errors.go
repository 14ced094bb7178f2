package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError is the unified application error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetails merges the provided details into the error and returns the receiver.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Retryable: IsRetryableCode(code),
	}
}

// --- Definition errors ---

// InvalidDefinition reports a structural problem in a workflow definition.
func InvalidDefinition(format string, args ...any) *AppError {
	return New(ErrCodeInvalidDefinition, fmt.Sprintf(format, args...))
}

// CycleDetected reports the nodes left over by a topological sort.
func CycleDetected(nodes []string) *AppError {
	return New(ErrCodeCycleDetected, fmt.Sprintf("workflow graph contains a cycle through %v", nodes)).
		WithDetail("nodes", nodes)
}

// UnknownProvider reports a provider id with no registered factory.
func UnknownProvider(id string) *AppError {
	return New(ErrCodeUnknownProvider, fmt.Sprintf("provider %q is not registered", id)).
		WithDetail("provider", id)
}

// UnknownProcessor reports a processor or predicate id with no registered factory.
func UnknownProcessor(id string) *AppError {
	return New(ErrCodeUnknownProcessor, fmt.Sprintf("processor %q is not registered", id)).
		WithDetail("processor", id)
}

// InvalidParams reports parameters that could not be decoded or validated.
func InvalidParams(reason string) *AppError {
	return New(ErrCodeInvalidParams, "invalid parameters: "+reason)
}

// MissingCredentials reports a connection reference the resolver does not know.
func MissingCredentials(ref string) *AppError {
	return New(ErrCodeMissingCredentials, fmt.Sprintf("no credentials for connection %q", ref)).
		WithDetail("connection", ref)
}

// --- Operational errors ---

// Transient wraps a provider failure that is safe to retry.
func Transient(operation string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeTransient, Message: fmt.Sprintf("%s failed temporarily", operation),
		Retryable: true, Cause: cause,
		Details: map[string]any{"operation": operation},
	}
}

// Permanent wraps a provider failure that must not be retried.
func Permanent(operation string, cause error) *AppError {
	return &AppError{
		Code: ErrCodePermanent, Message: fmt.Sprintf("%s failed", operation),
		Retryable: false, Cause: cause,
		Details: map[string]any{"operation": operation},
	}
}

// Timeout creates a new AppError for an operation that timed out.
func Timeout(operation string) *AppError {
	return &AppError{
		Code: ErrCodeTimeout, Message: "the operation took too long",
		Retryable: true,
		Details:   map[string]any{"operation": operation},
	}
}

// RateLimited creates a new AppError for too many requests or saturated capacity.
func RateLimited(reason string) *AppError {
	return &AppError{Code: ErrCodeRateLimited, Message: reason, Retryable: true}
}

// ConnectionFailed creates a new AppError for a failed connection to a service.
func ConnectionFailed(service string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeConnectionFailed, Message: fmt.Sprintf("unable to connect to %s", service),
		Retryable: true, Cause: cause,
		Details: map[string]any{"service": service},
	}
}

// PredicateFailed reports a switch predicate that could not produce a result.
func PredicateFailed(predicate string, cause error) *AppError {
	return &AppError{
		Code: ErrCodePredicateFailed, Message: fmt.Sprintf("predicate %q could not be evaluated", predicate),
		Cause: cause, Details: map[string]any{"predicate": predicate},
	}
}

// MalformedItem reports an item payload of an unexpected shape. The payload
// itself is never included.
func MalformedItem(expected string, got any) *AppError {
	return &AppError{
		Code:    ErrCodeMalformedItem,
		Message: fmt.Sprintf("expected %s payload, got %T", expected, got),
	}
}

// Unauthorized creates a new AppError for rejected credentials.
func Unauthorized(reason string) *AppError {
	if reason == "" {
		reason = "credentials were rejected"
	}
	return &AppError{Code: ErrCodeUnauthorized, Message: reason}
}

// --- Resource errors ---

// NotFound creates a new AppError for a resource that was not found.
func NotFound(resource, id string) *AppError {
	details := map[string]any{"resource": resource}
	if id != "" {
		details["id"] = id
	}
	return &AppError{
		Code: ErrCodeNotFound, Message: fmt.Sprintf("%s %q was not found", resource, id),
		Details: details,
	}
}

// Conflict creates a new AppError for a conflict with the current state of the resource.
func Conflict(reason string) *AppError {
	return &AppError{Code: ErrCodeConflict, Message: reason}
}

// Internal creates a new AppError for an unexpected failure.
func Internal(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInternal, Message: "an unexpected error occurred",
		Cause: cause,
	}
}

// DatabaseError creates a new AppError for a database error.
func DatabaseError(cause error) *AppError {
	return &AppError{
		Code: ErrCodeDatabaseError, Message: "a database error occurred",
		Retryable: true, Cause: cause,
	}
}

// AsAppError converts an error to an AppError if possible.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsRetryable reports whether err is an AppError marked retryable.
func IsRetryable(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Retryable
	}
	return false
}

// HasCode reports whether any AppError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		appErr, ok := AsAppError(err)
		if !ok {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Cause
	}
	return false
}
