package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Definition errors (compile time, never retried)
const (
	// ErrCodeInvalidDefinition indicates a structural problem in a workflow definition.
	ErrCodeInvalidDefinition ErrorCode = "INVALID_DEFINITION"
	// ErrCodeCycleDetected indicates the workflow graph contains a cycle.
	ErrCodeCycleDetected ErrorCode = "CYCLE_DETECTED"
	// ErrCodeUnknownProvider indicates a node references an unregistered provider.
	ErrCodeUnknownProvider ErrorCode = "UNKNOWN_PROVIDER"
	// ErrCodeUnknownProcessor indicates a node references an unregistered processor or predicate.
	ErrCodeUnknownProcessor ErrorCode = "UNKNOWN_PROCESSOR"
	// ErrCodeInvalidParams indicates node parameters could not be decoded or validated.
	ErrCodeInvalidParams ErrorCode = "INVALID_PARAMS"
	// ErrCodeMissingCredentials indicates a connection reference could not be resolved.
	ErrCodeMissingCredentials ErrorCode = "MISSING_CREDENTIALS"
)

// Connection/Availability errors (retryable)
const (
	// ErrCodeServiceUnavailable indicates the service is temporarily unavailable.
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	// ErrCodeConnectionFailed indicates a failed connection to a service.
	ErrCodeConnectionFailed ErrorCode = "CONNECTION_FAILED"
	// ErrCodeTimeout indicates the operation timed out.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeRateLimited indicates the caller is rate limited.
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"
	// ErrCodeTransient is a generic provider-declared transient failure.
	ErrCodeTransient ErrorCode = "TRANSIENT"
)

// Operational errors (fatal)
const (
	// ErrCodePredicateFailed indicates a switch predicate could not be evaluated.
	ErrCodePredicateFailed ErrorCode = "PREDICATE_FAILED"
	// ErrCodeMalformedItem indicates an item payload does not have the expected shape.
	ErrCodeMalformedItem ErrorCode = "MALFORMED_ITEM"
	// ErrCodePermanent is a generic provider-declared permanent failure.
	ErrCodePermanent ErrorCode = "PERMANENT"
	// ErrCodeUnauthorized indicates the external system rejected the credentials.
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
)

// Resource errors
const (
	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeAlreadyExists indicates the resource already exists.
	ErrCodeAlreadyExists ErrorCode = "ALREADY_EXISTS"
	// ErrCodeConflict indicates a conflict with the current state of the resource.
	ErrCodeConflict ErrorCode = "CONFLICT"
)

// Internal errors
const (
	// ErrCodeInternal indicates an unexpected internal error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	// ErrCodeDatabaseError indicates a database error.
	ErrCodeDatabaseError ErrorCode = "DATABASE_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeServiceUnavailable: true,
	ErrCodeConnectionFailed:   true,
	ErrCodeTimeout:            true,
	ErrCodeRateLimited:        true,
	ErrCodeTransient:          true,
	ErrCodeDatabaseError:      true,
}

var definitionCodes = map[ErrorCode]bool{
	ErrCodeInvalidDefinition:  true,
	ErrCodeCycleDetected:      true,
	ErrCodeUnknownProvider:    true,
	ErrCodeUnknownProcessor:   true,
	ErrCodeInvalidParams:      true,
	ErrCodeMissingCredentials: true,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}

// IsDefinitionCode returns true if the code describes a compile-time problem.
func IsDefinitionCode(code ErrorCode) bool {
	return definitionCodes[code]
}
