// Package pipeline provides the pull-based Iterator that sources hand to the
// engine, plus the handful of constructors providers build them from.
//
// Iterators are lazy: no work happens until Next is called, and each call
// pulls exactly one value, which gives the engine natural backpressure
// against slow consumers.
//
//	rows := pipeline.Paged(func(ctx context.Context, after string) ([]Row, string, error) {
//	    return db.page(ctx, after, 500)
//	}, resumeAfter)
//	items := pipeline.Map(rows, rowToItem)
//	all, err := pipeline.Collect(ctx, items)
package pipeline
