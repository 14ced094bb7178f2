// Package version reports the flowkit build.
//
// Version and Commit are stamped at link time:
//
//	go build -ldflags "-X github.com/kbukum/flowkit/version.Version=0.3.0" ./cmd/flowkit
//
// Unstamped builds fall back to the VCS settings the Go toolchain embeds.
package version
