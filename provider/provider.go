package provider

import (
	"context"

	"github.com/kbukum/flowkit/pipeline"
	"github.com/kbukum/flowkit/resilience"
	"github.com/kbukum/flowkit/stream"
)

// Provider is the base interface all providers implement.
type Provider interface {
	// Name returns the registered provider id.
	Name() string
	// Capabilities reports what the compiler and engine may assume.
	Capabilities() Capabilities
}

// Capabilities is declared by each provider.
type Capabilities struct {
	// ConcurrencySafe means one instance may serve several nodes and several
	// concurrent Write calls.
	ConcurrencySafe bool
	// Retry is the provider's backoff for transient failures. Zero fields
	// fall back to resilience.DefaultRetryConfig.
	Retry resilience.RetryConfig
}

// Source reads items in a stable order.
type Source interface {
	Provider
	// Read opens a stream positioned strictly after resume. The zero cursor
	// starts from the beginning.
	Read(ctx context.Context, resume stream.Cursor) (pipeline.Iterator[stream.Item], error)
}

// Sink writes batches of items.
type Sink interface {
	Provider
	// Write persists items. A nil error means every item is durable.
	Write(ctx context.Context, items []stream.Item) error
}

// Factory creates a provider from decrypted credentials and node params.
type Factory func(ctx context.Context, creds Credentials, params map[string]any) (Provider, error)
