// Package processor defines the user code that runs inside transform and
// switch nodes, a registry keyed by processor id, and the builtin catalog.
package processor

import (
	"context"

	"github.com/kbukum/flowkit/stream"
)

// Emit forwards one derived item downstream. It blocks while the downstream
// queue is full and returns an error once the run is aborting; transforms
// should return that error unchanged.
type Emit func(stream.Item) error

// Transform turns one input item into zero or more output items.
// The engine never calls Process concurrently on one instance.
type Transform interface {
	Process(ctx context.Context, item stream.Item, emit Emit) error
}

// Flusher is implemented by transforms that retain inputs across calls
// (fan-in). Flush runs once after the last input on normal end of stream and
// must emit whatever is still retained. It is not called when a run is
// cancelled.
type Flusher interface {
	Flush(ctx context.Context, emit Emit) error
}

// Predicate decides which branch a switch routes an item to.
type Predicate interface {
	Evaluate(ctx context.Context, item stream.Item) (bool, error)
}

// TransformFunc adapts a function to Transform.
type TransformFunc func(ctx context.Context, item stream.Item, emit Emit) error

// Process calls f.
func (f TransformFunc) Process(ctx context.Context, item stream.Item, emit Emit) error {
	return f(ctx, item, emit)
}

// PredicateFunc adapts a function to Predicate.
type PredicateFunc func(ctx context.Context, item stream.Item) (bool, error)

// Evaluate calls f.
func (f PredicateFunc) Evaluate(ctx context.Context, item stream.Item) (bool, error) {
	return f(ctx, item)
}

// TransformFactory builds a transform from node params. Each node gets its
// own instance, so stateful transforms need no locking.
type TransformFactory func(params map[string]any) (Transform, error)

// PredicateFactory builds a predicate from condition params.
type PredicateFactory func(params map[string]any) (Predicate, error)
