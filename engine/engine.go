package engine

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	"golang.org/x/sync/errgroup"

	"github.com/kbukum/flowkit/compiler"
	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/logger"
	"github.com/kbukum/flowkit/observability"
	"github.com/kbukum/flowkit/processor"
	"github.com/kbukum/flowkit/provider"
	"github.com/kbukum/flowkit/resilience"
	"github.com/kbukum/flowkit/stream"
	"github.com/kbukum/flowkit/workflow"
)

// Engine executes compiled graphs. One Engine can run many graphs
// concurrently; all per-run state lives in Execute.
type Engine struct {
	cfg     Config
	log     *logger.Logger
	metrics *observability.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithMetrics sets the instruments the engine records into.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an engine.
func New(cfg Config, opts ...Option) *Engine {
	cfg.ApplyDefaults()
	e := &Engine{cfg: cfg}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = logger.NewNop()
	}
	if e.metrics == nil {
		e.metrics = defaultMetrics()
	}
	return e
}

func defaultMetrics() *observability.Metrics {
	m, err := observability.NewMetrics(observability.Meter(observability.InstrumentationName))
	if err != nil {
		m, _ = observability.NewMetrics(noop.NewMeterProvider().Meter(observability.InstrumentationName))
	}
	return m
}

// ExecOptions parameterize one execution.
type ExecOptions struct {
	// RunID tags logs and spans.
	RunID string
	// Resume maps source node ids to the cursor their read starts after.
	Resume map[string]stream.Cursor
	// OnCheckpoint is called, in source order per source, whenever a source's
	// checkpoint advances. Calls for one source never overlap.
	OnCheckpoint func(sourceID string, cursor stream.Cursor)
}

// Result summarizes an execution.
type Result struct {
	// Cancelled is set when the caller's context ended the run early.
	Cancelled bool
	// Checkpoints holds the last checkpoint of every source, falling back to
	// the resume cursor for sources that made no progress.
	Checkpoints map[string]stream.Cursor
	// ItemsRead counts items read per source node.
	ItemsRead map[string]int64
	// ItemsWritten counts items durably written per sink node.
	ItemsWritten map[string]int64
}

// Execute runs g to completion, cancellation, or the first fatal error.
//
// Cancelling ctx stops every source from reading. Items already read drain
// through the graph and in-flight sink writes finish, but retaining
// transforms are not flushed, so their inputs stay behind the checkpoint.
// A fatal error aborts all stages and is returned as a *NodeError together
// with the partial Result.
func (e *Engine) Execute(ctx context.Context, g *compiler.Graph, opts ExecOptions) (*Result, error) {
	ctx, span := observability.StartSpan(ctx, observability.SpanRun,
		attribute.String(observability.AttrRunID, opts.RunID),
		attribute.String(observability.AttrWorkflowID, g.WorkflowID()),
	)
	defer span.End()

	x, err := e.prepare(g, opts)
	if err != nil {
		return nil, err
	}
	x.log.Info("Execution started", map[string]any{"sources": len(g.Sources()), "nodes": len(x.order)})
	start := time.Now()

	// Processing survives cancellation of ctx so that read items drain; the
	// group context ends only on a fatal error.
	grp, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	readCtx, stopReading := context.WithCancel(ctx)
	defer stopReading()
	stop := context.AfterFunc(gctx, stopReading)
	defer stop()

	for _, s := range x.order {
		if s.node.Kind != workflow.KindSource && s.pending.Load() == 0 {
			close(s.in)
		}
	}
	for _, s := range x.order {
		switch s.node.Kind {
		case workflow.KindSource:
			grp.Go(func() error { return x.runSource(ctx, readCtx, gctx, s) })
		case workflow.KindTransform:
			grp.Go(func() error { return x.runTransform(ctx, gctx, s) })
		case workflow.KindSwitch:
			grp.Go(func() error { return x.runSwitch(gctx, s) })
		case workflow.KindSink:
			for range s.node.Parallelism {
				grp.Go(func() error { return x.runSink(ctx, gctx, s) })
			}
		}
	}
	err = grp.Wait()
	res := x.result()

	fields := logger.DurationFields("execute", time.Since(start))
	switch {
	case err != nil:
		observability.SetSpanError(ctx, err)
		x.log.Warn("Execution failed", fields)
		return res, err
	case res.Cancelled:
		x.log.Info("Execution cancelled", fields)
	default:
		x.log.Info("Execution completed", fields)
	}
	return res, nil
}

type stage struct {
	node *compiler.Node
	in   chan envelope
	// pending counts upstream stages that may still send.
	pending atomic.Int32
	// routes maps a switch branch label to its targets. Other kinds route
	// everything under "".
	routes     map[string][]*stage
	downstream []*stage
	tracker    *tracker
	limiter    *resilience.RateLimiter
	log        *logger.Logger
}

type execution struct {
	engine  *Engine
	graph   *compiler.Graph
	opts    ExecOptions
	log     *logger.Logger
	metrics *observability.Metrics
	slots   *resilience.Bulkhead
	order   []*stage

	cancelled atomic.Bool
	read      map[string]*atomic.Int64
	written   map[string]*atomic.Int64
}

func (e *Engine) prepare(g *compiler.Graph, opts ExecOptions) (*execution, error) {
	x := &execution{
		engine:  e,
		graph:   g,
		opts:    opts,
		log:     e.log.WithComponent("engine").WithRun(opts.RunID, g.WorkflowID()),
		metrics: e.metrics,
		slots:   resilience.NewBulkhead(resilience.BulkheadConfig{Name: "engine-workers", MaxConcurrent: e.cfg.Workers}),
		read:    make(map[string]*atomic.Int64),
		written: make(map[string]*atomic.Int64),
	}

	stages := make(map[string]*stage)
	for _, n := range g.Nodes() {
		s := &stage{node: n, routes: make(map[string][]*stage), log: x.log.WithNode(n.ID, string(n.Kind))}
		switch n.Kind {
		case workflow.KindSource:
			id := n.ID
			s.tracker = newTracker(id, func(c stream.Cursor) { x.checkpointed(id, c) })
			x.read[id] = new(atomic.Int64)
		case workflow.KindSink:
			s.in = make(chan envelope, e.cfg.QueueSize)
			if n.RateLimit > 0 {
				s.limiter = resilience.NewRateLimiter(resilience.RateLimiterConfig{
					Name: n.ID, Rate: n.RateLimit, Burst: n.BatchSize,
				})
			}
			x.written[n.ID] = new(atomic.Int64)
		case workflow.KindTransform, workflow.KindSwitch:
			s.in = make(chan envelope, e.cfg.QueueSize)
		default:
			return nil, errors.InvalidDefinition("node %q has unknown kind %q", n.ID, n.Kind)
		}
		stages[n.ID] = s
		x.order = append(x.order, s)
	}

	for _, s := range x.order {
		seen := make(map[*stage]bool)
		routed := make(map[string]map[*stage]bool)
		for _, edge := range g.Outgoing(s.node.ID) {
			to := stages[edge.To]
			port := ""
			if s.node.Kind == workflow.KindSwitch {
				port = edge.FromPort
			}
			if routed[port] == nil {
				routed[port] = make(map[*stage]bool)
			}
			if !routed[port][to] {
				routed[port][to] = true
				s.routes[port] = append(s.routes[port], to)
			}
			if !seen[to] {
				seen[to] = true
				s.downstream = append(s.downstream, to)
				to.pending.Add(1)
			}
		}
	}
	return x, nil
}

func (x *execution) checkpointed(sourceID string, c stream.Cursor) {
	x.metrics.CheckpointAdvanced(context.Background(), sourceID)
	if x.opts.OnCheckpoint != nil {
		x.opts.OnCheckpoint(sourceID, c)
	}
}

func (x *execution) result() *Result {
	res := &Result{
		Cancelled:    x.cancelled.Load(),
		Checkpoints:  make(map[string]stream.Cursor),
		ItemsRead:    make(map[string]int64, len(x.read)),
		ItemsWritten: make(map[string]int64, len(x.written)),
	}
	for _, s := range x.order {
		if s.tracker == nil {
			continue
		}
		c := s.tracker.checkpoint()
		if c.IsZero() {
			c = x.opts.Resume[s.node.ID]
		}
		if !c.IsZero() {
			res.Checkpoints[s.node.ID] = c
		}
	}
	for id, n := range x.read {
		res.ItemsRead[id] = n.Load()
	}
	for id, n := range x.written {
		res.ItemsWritten[id] = n.Load()
	}
	return res
}

// finish tells s's downstream stages that s will send nothing more.
func (x *execution) finish(s *stage) {
	for _, d := range s.downstream {
		if d.pending.Add(-1) == 0 {
			close(d.in)
		}
	}
}

// route sends item to every target of port. Each delivery takes its own
// reference on lin.
func (x *execution) route(ctx context.Context, s *stage, port string, item stream.Item, lin lineage) error {
	for _, d := range s.routes[port] {
		lin.retain()
		select {
		case d.in <- envelope{item: item, lin: lin}:
		case <-ctx.Done():
			lin.release()
			return ctx.Err()
		}
	}
	return nil
}

// receive returns the next envelope, or false when the queue is closed or
// the run is aborting.
func receive(ctx context.Context, in <-chan envelope) (envelope, bool) {
	select {
	case env, ok := <-in:
		return env, ok
	case <-ctx.Done():
		return envelope{}, false
	}
}

// fail converts err into a *NodeError unless the run is already aborting,
// in which case the first failure has been recorded elsewhere.
func (x *execution) fail(ctx context.Context, s *stage, cursor stream.Cursor, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	nerr := nodeError(s.node.ID, s.node.Kind, cursor, err)
	x.metrics.Error(ctx, s.node.ID, string(s.node.Kind), string(nerr.Class))
	s.log.Error("Node failed", map[string]any{
		logger.FieldCursor: string(cursor),
		"class":            string(nerr.Class),
		"code":             string(nerr.Code()),
		logger.FieldError:  nerr.Message(),
	})
	return nerr
}

func (x *execution) retryPolicy(s *stage) resilience.RetryConfig {
	cfg := s.node.Retry
	prev := cfg.OnRetry
	cfg.OnRetry = func(attempt int, err error, backoff time.Duration) {
		x.metrics.Retried(context.Background(), s.node.ID, string(s.node.Kind))
		s.log.Warn("Retrying provider call", map[string]any{
			logger.FieldAttempt: attempt,
			"backoff_ms":        backoff.Milliseconds(),
			logger.FieldError:   errMessage(err),
		})
		if prev != nil {
			prev(attempt, err, backoff)
		}
	}
	return cfg
}

func errMessage(err error) string {
	if appErr, ok := errors.AsAppError(err); ok {
		return appErr.Message
	}
	return err.Error()
}

// runSource is a source lane: it reads in source order, issues a ticket per
// item, and pushes the item downstream.
func (x *execution) runSource(ctx, readCtx, gctx context.Context, s *stage) error {
	defer x.finish(s)
	n := s.node
	src := provider.WithSourceRetry(n.Source, x.retryPolicy(s))
	position := x.opts.Resume[n.ID]

	it, err := src.Read(readCtx, position)
	if err != nil {
		return x.sourceStopped(ctx, gctx, s, position, err)
	}
	defer it.Close()

	for {
		if readCtx.Err() != nil {
			return x.sourceStopped(ctx, gctx, s, position, readCtx.Err())
		}
		item, ok, err := it.Next(readCtx)
		if err != nil {
			return x.sourceStopped(ctx, gctx, s, position, err)
		}
		if !ok {
			return nil
		}
		x.read[n.ID].Add(1)
		x.metrics.ItemsRead(gctx, n.ID, 1)
		position = item.Cursor

		lin := lineage{s.tracker.issue(item.Cursor)}
		err = x.route(gctx, s, "", item, lin)
		lin.release()
		if err != nil {
			return err
		}
	}
}

func (x *execution) sourceStopped(ctx, gctx context.Context, s *stage, position stream.Cursor, err error) error {
	if gctx.Err() != nil {
		return gctx.Err()
	}
	if ctx.Err() != nil {
		x.cancelled.Store(true)
		return nil
	}
	return x.fail(gctx, s, position, err)
}

// runTransform feeds every input through the node's transform. Retaining
// transforms keep the lineage of inputs they have not emitted for; the
// next emission carries all of it.
func (x *execution) runTransform(ctx, gctx context.Context, s *stage) error {
	defer x.finish(s)
	n := s.node
	flusher, retains := n.Transform.(processor.Flusher)
	var held lineage

	for {
		env, ok := receive(gctx, s.in)
		if !ok {
			break
		}
		w := &worker{x: x, s: s, ctx: gctx, lin: join(held, env.lin)}
		err := w.run(gctx, func(ctx context.Context) error {
			return n.Transform.Process(ctx, env.item, w.emit)
		})
		x.metrics.ItemProcessed(gctx, n.ID, string(n.Kind))
		if err != nil {
			return x.fail(gctx, s, env.lin.cursor(), err)
		}
		switch {
		case w.emitted:
			held.release()
			env.lin.release()
			held = nil
		case retains:
			held = join(held, env.lin)
		default:
			env.lin.release()
		}
	}
	if gctx.Err() != nil {
		return gctx.Err()
	}
	if !retains {
		return nil
	}
	if ctx.Err() != nil {
		if len(held) > 0 {
			x.cancelled.Store(true)
		}
		return nil
	}

	w := &worker{x: x, s: s, ctx: gctx, lin: held}
	if err := w.run(gctx, func(ctx context.Context) error { return flusher.Flush(ctx, w.emit) }); err != nil {
		return x.fail(gctx, s, held.cursor(), err)
	}
	held.release()
	return nil
}

// runSwitch routes every input to exactly one branch.
func (x *execution) runSwitch(gctx context.Context, s *stage) error {
	defer x.finish(s)
	n := s.node
	for {
		env, ok := receive(gctx, s.in)
		if !ok {
			return gctx.Err()
		}
		var matched bool
		w := &worker{x: x, s: s, ctx: gctx}
		err := w.run(gctx, func(ctx context.Context) error {
			var err error
			matched, err = n.Predicate.Evaluate(ctx, env.item)
			return err
		})
		x.metrics.ItemProcessed(gctx, n.ID, string(n.Kind))
		if err != nil {
			if !errors.HasCode(err, errors.ErrCodePredicateFailed) {
				err = errors.PredicateFailed(n.Processor, err)
			}
			return x.fail(gctx, s, env.lin.cursor(), err)
		}
		err = x.route(gctx, s, n.Branch(matched), env.item, env.lin)
		env.lin.release()
		if err != nil {
			return err
		}
	}
}

// runSink is one writer of a sink. It takes up to BatchSize queued items
// per write without waiting for more.
func (x *execution) runSink(ctx, gctx context.Context, s *stage) error {
	n := s.node
	sink := provider.WithSinkRetry(n.Sink, x.retryPolicy(s))
	// A write that has started always completes.
	writeCtx := context.WithoutCancel(ctx)
	batch := make([]envelope, 0, n.BatchSize)

	for {
		env, ok := receive(gctx, s.in)
		if !ok {
			return gctx.Err()
		}
		batch = append(batch[:0], env)
	fill:
		for len(batch) < n.BatchSize {
			select {
			case env, ok := <-s.in:
				if !ok {
					break fill
				}
				batch = append(batch, env)
			default:
				break fill
			}
		}

		items := make([]stream.Item, len(batch))
		for i, env := range batch {
			items[i] = env.item
		}
		if s.limiter != nil {
			if err := s.limiter.Wait(gctx, len(items)); err != nil {
				return gctx.Err()
			}
		}
		w := &worker{x: x, s: s, ctx: gctx}
		if err := w.run(writeCtx, func(ctx context.Context) error { return sink.Write(ctx, items) }); err != nil {
			return x.fail(gctx, s, batch[0].lin.cursor(), err)
		}
		x.written[n.ID].Add(int64(len(items)))
		x.metrics.ItemsWritten(gctx, n.ID, len(items))
		for i := len(batch) - 1; i >= 0; i-- {
			batch[i].lin.release()
		}
	}
}

// join returns a new lineage holding a followed by b.
func join(a, b lineage) lineage {
	out := make(lineage, 0, len(a)+len(b))
	return append(append(out, a...), b...)
}
