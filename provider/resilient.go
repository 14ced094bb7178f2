package provider

import (
	"context"

	"github.com/kbukum/flowkit/pipeline"
	"github.com/kbukum/flowkit/resilience"
	"github.com/kbukum/flowkit/stream"
)

// WithSourceRetry wraps src so that opening the stream and every Next call
// are retried with cfg. Iterators must leave their position unchanged when
// Next fails for a retry to be meaningful; the iterators in this module do.
func WithSourceRetry(src Source, cfg resilience.RetryConfig) Source {
	return &retryingSource{Source: src, cfg: cfg}
}

// WithSinkRetry wraps sink so that Write is retried with cfg. The same batch
// is passed to every attempt, so a sink must tolerate a partially applied
// batch being written again.
func WithSinkRetry(sink Sink, cfg resilience.RetryConfig) Sink {
	return &retryingSink{Sink: sink, cfg: cfg}
}

type retryingSource struct {
	Source
	cfg resilience.RetryConfig
}

func (r *retryingSource) Read(ctx context.Context, resume stream.Cursor) (pipeline.Iterator[stream.Item], error) {
	it, err := resilience.Retry(ctx, r.cfg, func() (pipeline.Iterator[stream.Item], error) {
		return r.Source.Read(ctx, resume)
	})
	if err != nil {
		return nil, err
	}
	return &retryingIter{inner: it, cfg: r.cfg}, nil
}

// Unwrap returns the wrapped source.
func (r *retryingSource) Unwrap() Source { return r.Source }

type retryingIter struct {
	inner pipeline.Iterator[stream.Item]
	cfg   resilience.RetryConfig
}

type nextResult struct {
	item stream.Item
	ok   bool
}

func (r *retryingIter) Next(ctx context.Context) (stream.Item, bool, error) {
	res, err := resilience.Retry(ctx, r.cfg, func() (nextResult, error) {
		item, ok, err := r.inner.Next(ctx)
		return nextResult{item: item, ok: ok}, err
	})
	return res.item, res.ok, err
}

func (r *retryingIter) Close() error { return r.inner.Close() }

type retryingSink struct {
	Sink
	cfg resilience.RetryConfig
}

func (r *retryingSink) Write(ctx context.Context, items []stream.Item) error {
	return resilience.RetryFunc(ctx, r.cfg, func() error {
		return r.Sink.Write(ctx, items)
	})
}

// Unwrap returns the wrapped sink.
func (r *retryingSink) Unwrap() Sink { return r.Sink }
