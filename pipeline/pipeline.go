package pipeline

import "context"

// Iterator provides pull-based sequential access to a stream of values.
type Iterator[T any] interface {
	// Next returns the next value. Returns (zero, false, nil) when exhausted.
	Next(ctx context.Context) (T, bool, error)
	// Close releases any resources held by the iterator.
	Close() error
}

// FromSlice iterates over items in order.
func FromSlice[T any](items []T) Iterator[T] {
	return &sliceIter[T]{items: items}
}

// FromFunc adapts a next function and an optional close function.
func FromFunc[T any](next func(ctx context.Context) (T, bool, error), closeFn func() error) Iterator[T] {
	return &funcIter[T]{next: next, close: closeFn}
}

// Paged iterates over a paginated listing. fetch receives the token returned
// by the previous call (start for the first) and returns one page plus the
// token for the next; an empty page or an empty next token ends the stream.
func Paged[T any](fetch func(ctx context.Context, token string) ([]T, string, error), start string) Iterator[T] {
	return &pagedIter[T]{fetch: fetch, token: start}
}

// Map transforms each value using fn.
func Map[I, O any](src Iterator[I], fn func(context.Context, I) (O, error)) Iterator[O] {
	return &mapIter[I, O]{source: src, fn: fn}
}

// Collect pulls every value and closes the iterator.
func Collect[T any](ctx context.Context, it Iterator[T]) ([]T, error) {
	defer it.Close()
	var out []T
	for {
		v, ok, err := it.Next(ctx)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, v)
	}
}

// --- Internal iterators ---

type sliceIter[T any] struct {
	items []T
	index int
}

func (it *sliceIter[T]) Next(_ context.Context) (T, bool, error) {
	if it.index >= len(it.items) {
		var zero T
		return zero, false, nil
	}
	val := it.items[it.index]
	it.index++
	return val, true, nil
}

func (it *sliceIter[T]) Close() error { return nil }

type funcIter[T any] struct {
	next  func(ctx context.Context) (T, bool, error)
	close func() error
}

func (it *funcIter[T]) Next(ctx context.Context) (T, bool, error) { return it.next(ctx) }

func (it *funcIter[T]) Close() error {
	if it.close != nil {
		return it.close()
	}
	return nil
}

type pagedIter[T any] struct {
	fetch func(ctx context.Context, token string) ([]T, string, error)
	token string
	page  []T
	pos   int
	done  bool
}

func (it *pagedIter[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	for it.pos >= len(it.page) {
		if it.done {
			return zero, false, nil
		}
		if err := ctx.Err(); err != nil {
			return zero, false, err
		}
		page, next, err := it.fetch(ctx, it.token)
		if err != nil {
			return zero, false, err
		}
		it.page, it.pos, it.token = page, 0, next
		if len(page) == 0 || next == "" {
			it.done = true
		}
	}
	v := it.page[it.pos]
	it.pos++
	return v, true, nil
}

func (it *pagedIter[T]) Close() error { return nil }

type mapIter[I, O any] struct {
	source Iterator[I]
	fn     func(context.Context, I) (O, error)
}

func (it *mapIter[I, O]) Next(ctx context.Context) (O, bool, error) {
	var zero O
	v, ok, err := it.source.Next(ctx)
	if err != nil || !ok {
		return zero, ok, err
	}
	out, err := it.fn(ctx, v)
	if err != nil {
		return zero, false, err
	}
	return out, true, nil
}

func (it *mapIter[I, O]) Close() error { return it.source.Close() }
