package storage

import (
	"context"
	"io"
	"time"
)

// FileInfo contains metadata about a stored object.
type FileInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
	ContentType  string
}

// ListOptions selects one page of a listing.
type ListOptions struct {
	// Prefix restricts the listing to keys starting with it.
	Prefix string
	// StartAfter excludes every key that does not sort strictly after it.
	StartAfter string
	// MaxKeys caps the page size. Zero lets the backend choose.
	MaxKeys int
}

// Storage defines the object storage operations the providers need.
type Storage interface {
	// Upload writes data from reader to the given path, replacing any
	// existing object.
	Upload(ctx context.Context, path string, reader io.Reader, contentType string) error

	// Download returns a reader for the object at the given path.
	// The caller is responsible for closing the returned ReadCloser.
	Download(ctx context.Context, path string) (io.ReadCloser, error)

	// List returns one page of objects in ascending key order.
	List(ctx context.Context, opts ListOptions) ([]FileInfo, error)
}
