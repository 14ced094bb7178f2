// Package component defines the lifecycle contract shared by flowkit's
// long-lived parts (run controller, run stores, connection pools) and a
// registry that starts them in order and stops them in reverse.
package component
