// Package errors provides the structured error type shared by the compiler,
// the engine, and the run controller. Every error carries a machine-readable
// code, a retryable flag, and optional details, and can be classified as a
// definition, transient, or fatal failure.
package errors
