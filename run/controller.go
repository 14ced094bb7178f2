package run

import (
	"context"
	stderrors "errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/flowkit/compiler"
	"github.com/kbukum/flowkit/component"
	"github.com/kbukum/flowkit/credentials"
	"github.com/kbukum/flowkit/engine"
	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/logger"
	"github.com/kbukum/flowkit/observability"
	"github.com/kbukum/flowkit/processor"
	"github.com/kbukum/flowkit/provider"
	"github.com/kbukum/flowkit/resilience"
	"github.com/kbukum/flowkit/stream"
	"github.com/kbukum/flowkit/workflow"
)

// Config bounds the runs a controller executes.
type Config struct {
	// RunTimeout applies to runs started without their own timeout. Zero
	// means no limit.
	RunTimeout time.Duration `yaml:"run_timeout" mapstructure:"run_timeout"`
	// MaxConcurrentRuns caps active runs. Zero means no limit.
	MaxConcurrentRuns int `yaml:"max_concurrent_runs" mapstructure:"max_concurrent_runs" validate:"gte=0"`
}

// Registries are the collaborators a run is compiled against.
type Registries struct {
	Providers   *provider.Registry
	Processors  *processor.Registry
	Credentials credentials.Resolver
}

// StartOptions configure a single run.
type StartOptions struct {
	Trigger Trigger
	// ResumeFromRun loads the checkpoints of a previous run of the same
	// workflow.
	ResumeFromRun string
	// Checkpoints resume sources explicitly. They win over checkpoints
	// loaded from ResumeFromRun.
	Checkpoints map[string]stream.Cursor
	// Timeout overrides Config.RunTimeout. Reaching it cancels the run.
	Timeout time.Duration
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithEngine sets the engine runs execute on.
func WithEngine(e *engine.Engine) Option {
	return func(c *Controller) { c.engine = e }
}

// WithMetrics sets the instruments for active-run accounting.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithConfig sets timeouts and concurrency limits.
func WithConfig(cfg Config) Option {
	return func(c *Controller) { c.cfg = cfg }
}

// Controller starts, tracks, and cancels runs. Lifecycle returns its
// component.Component view.
type Controller struct {
	store   Store
	engine  *engine.Engine
	log     *logger.Logger
	metrics *observability.Metrics
	cfg     Config
	slots   *resilience.Bulkhead

	mu     sync.Mutex
	active map[string]*Handle
	wg     sync.WaitGroup
}

// NewController creates a controller persisting runs to store.
func NewController(store Store, opts ...Option) *Controller {
	c := &Controller{
		store:  store,
		active: make(map[string]*Handle),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.NewNop()
	}
	c.log = c.log.WithComponent("run-controller")
	if c.engine == nil {
		c.engine = engine.New(engine.Config{}, engine.WithLogger(c.log), engine.WithMetrics(c.metrics))
	}
	if c.cfg.MaxConcurrentRuns > 0 {
		c.slots = resilience.NewBulkhead(resilience.BulkheadConfig{
			Name:          "runs",
			MaxConcurrent: c.cfg.MaxConcurrentRuns,
		})
	}
	return c
}

// Handle follows one run started by the controller.
type Handle struct {
	id     string
	store  Store
	cancel context.CancelFunc
	done   chan struct{}
}

// ID returns the run id.
func (h *Handle) ID() string { return h.id }

// Done is closed once the run's terminal status is persisted.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Cancel asks the run to stop. Read items still drain to their sinks.
func (h *Handle) Cancel() { h.cancel() }

// Wait blocks until the run finishes and returns its final record.
func (h *Handle) Wait(ctx context.Context) (*Run, error) {
	select {
	case <-h.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return h.store.Get(context.WithoutCancel(ctx), h.id)
}

// Start compiles wf and executes it in the background. Definition errors
// are returned directly and leave no run record behind.
func (c *Controller) Start(ctx context.Context, wf *workflow.Workflow, reg Registries, opts StartOptions) (*Handle, error) {
	if err := opts.Trigger.Validate(); err != nil {
		return nil, err
	}
	if opts.Trigger.Type == "" {
		opts.Trigger.Type = TriggerManual
	}
	if c.slots != nil {
		if !c.slots.TryAcquire() {
			return nil, errors.RateLimited(fmt.Sprintf("%d runs already active", c.slots.MaxConcurrent()))
		}
	}
	h, err := c.start(ctx, wf, reg, opts)
	if err != nil && c.slots != nil {
		c.slots.Release()
	}
	return h, err
}

func (c *Controller) start(ctx context.Context, wf *workflow.Workflow, reg Registries, opts StartOptions) (*Handle, error) {
	resume, err := c.resumePoints(ctx, wf.ID, opts)
	if err != nil {
		return nil, err
	}
	g, err := compiler.Compile(ctx, wf, compiler.Options{
		Providers:   reg.Providers,
		Processors:  reg.Processors,
		Credentials: reg.Credentials,
		Logger:      c.log,
	})
	if err != nil {
		return nil, err
	}

	// A source that makes no progress keeps the position it resumed from,
	// so this run can itself be resumed.
	r := &Run{
		ID:          uuid.NewString(),
		WorkflowID:  wf.ID,
		Trigger:     opts.Trigger,
		Status:      StatusQueued,
		Snapshot:    g.Snapshot(),
		Checkpoints: inherited(g, resume),
		CreatedAt:   time.Now().UTC(),
	}
	if err := c.store.Create(ctx, r); err != nil {
		c.closeGraph(g, r.ID)
		return nil, err
	}
	if err := c.store.Transition(ctx, r.ID, Transition{To: StatusRunning}); err != nil {
		c.closeGraph(g, r.ID)
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.cfg.RunTimeout
	}
	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, timeout)
		parent := cancel
		cancel = func() { cancelTimeout(); parent() }
	}

	h := &Handle{id: r.ID, store: c.store, cancel: cancel, done: make(chan struct{})}
	c.mu.Lock()
	c.active[r.ID] = h
	c.mu.Unlock()
	c.wg.Add(1)
	if c.metrics != nil {
		c.metrics.RunStarted(ctx)
	}

	log := c.log.WithRun(r.ID, wf.ID)
	log.Info("Run started", map[string]any{
		"trigger":  string(opts.Trigger.Type),
		"resumed":  len(resume),
		"timeout":  timeout.String(),
		"snapshot": len(r.Snapshot),
	})
	go c.execute(runCtx, h, g, resume, log)
	return h, nil
}

// resumePoints merges checkpoints of a previous run with explicit ones.
func (c *Controller) resumePoints(ctx context.Context, workflowID string, opts StartOptions) (map[string]stream.Cursor, error) {
	resume := make(map[string]stream.Cursor)
	if opts.ResumeFromRun != "" {
		prev, err := c.store.Get(ctx, opts.ResumeFromRun)
		if err != nil {
			return nil, err
		}
		if prev.WorkflowID != workflowID {
			return nil, errors.InvalidParams(fmt.Sprintf("run %s belongs to workflow %s, not %s",
				prev.ID, prev.WorkflowID, workflowID))
		}
		if !prev.Status.Terminal() {
			return nil, errors.Conflict(fmt.Sprintf("run %s is still %s", prev.ID, prev.Status))
		}
		maps.Copy(resume, prev.Checkpoints)
	}
	maps.Copy(resume, opts.Checkpoints)
	return resume, nil
}

// inherited keeps the resume cursors of sources that exist in g.
func inherited(g *compiler.Graph, resume map[string]stream.Cursor) map[string]stream.Cursor {
	out := make(map[string]stream.Cursor, len(resume))
	for _, n := range g.Nodes() {
		if c, ok := resume[n.ID]; ok && n.Kind == workflow.KindSource && !c.IsZero() {
			out[n.ID] = c
		}
	}
	return out
}

func (c *Controller) execute(ctx context.Context, h *Handle, g *compiler.Graph, resume map[string]stream.Cursor, log *logger.Logger) {
	defer c.wg.Done()
	defer close(h.done)
	defer h.cancel()
	defer func() {
		c.mu.Lock()
		delete(c.active, h.id)
		c.mu.Unlock()
		if c.slots != nil {
			c.slots.Release()
		}
		if c.metrics != nil {
			c.metrics.RunFinished(context.WithoutCancel(ctx))
		}
	}()

	res, err := c.engine.Execute(ctx, g, engine.ExecOptions{
		RunID:  h.id,
		Resume: resume,
		OnCheckpoint: func(sourceID string, cursor stream.Cursor) {
			if err := c.store.SaveCheckpoint(context.WithoutCancel(ctx), h.id, sourceID, cursor); err != nil {
				log.Warn("Checkpoint not persisted", map[string]any{
					"source":           sourceID,
					logger.FieldCursor: string(cursor),
					logger.FieldError:  err.Error(),
				})
			}
		},
	})
	c.closeGraph(g, h.id)

	tr := Transition{To: StatusCompleted}
	switch {
	case err != nil:
		tr.To = StatusFailed
		tr.Error = errorRecord(err)
	case res.Cancelled:
		tr.To = StatusCancelled
	}
	if res != nil {
		tr.Metrics = &Metrics{ItemsRead: res.ItemsRead, ItemsWritten: res.ItemsWritten}
	}
	if err := c.store.Transition(context.WithoutCancel(ctx), h.id, tr); err != nil {
		log.Error("Run status not persisted", map[string]any{
			logger.FieldStatus: string(tr.To),
			logger.FieldError:  err.Error(),
		})
		return
	}
	fields := map[string]any{logger.FieldStatus: string(tr.To)}
	if tr.Error != nil {
		fields[logger.FieldNodeID] = tr.Error.NodeID
		fields["code"] = tr.Error.Code
	}
	log.Info("Run finished", fields)
}

func (c *Controller) closeGraph(g *compiler.Graph, runID string) {
	if err := g.Close(context.Background()); err != nil {
		c.log.Warn("Closing provider connections failed", map[string]any{
			logger.FieldRunID: runID,
			logger.FieldError: err.Error(),
		})
	}
}

// errorRecord converts an execution error into its persisted form.
func errorRecord(err error) *ErrorRecord {
	var nerr *engine.NodeError
	if stderrors.As(err, &nerr) {
		return &ErrorRecord{
			NodeID:  nerr.NodeID,
			Class:   string(nerr.Class),
			Code:    string(nerr.Code()),
			Message: nerr.Message(),
			Cursor:  string(nerr.Cursor),
		}
	}
	rec := &ErrorRecord{
		Class:   string(errors.ClassFatal),
		Code:    string(errors.ErrCodeInternal),
		Message: err.Error(),
	}
	if appErr, ok := errors.AsAppError(err); ok {
		rec.Class = string(errors.ClassOf(err))
		rec.Code = string(appErr.Code)
		rec.Message = appErr.Message
	}
	return rec
}

// Cancel asks an active run to stop. Unknown and finished runs are NOT_FOUND.
func (c *Controller) Cancel(runID string) error {
	c.mu.Lock()
	h, ok := c.active[runID]
	c.mu.Unlock()
	if !ok {
		return errors.NotFound("active run", runID)
	}
	h.Cancel()
	return nil
}

// Active returns the ids of runs that have not finished yet.
func (c *Controller) Active() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.active))
	for id := range c.active {
		ids = append(ids, id)
	}
	return ids
}

// Lifecycle adapts the controller to component.Component so a process can
// stop it with its other components.
func (c *Controller) Lifecycle() component.Component { return lifecycle{c} }

type lifecycle struct{ c *Controller }

func (l lifecycle) Name() string { return "run-controller" }
func (l lifecycle) Start(context.Context) error { return nil }
func (l lifecycle) Stop(ctx context.Context) error { return l.c.Stop(ctx) }
func (l lifecycle) Health(ctx context.Context) component.Health { return l.c.Health(ctx) }

// Stop cancels every active run and waits for them to persist their
// terminal status, or for ctx to end.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	for _, h := range c.active {
		h.Cancel()
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Health reports the number of active runs.
func (c *Controller) Health(ctx context.Context) component.Health {
	c.mu.Lock()
	n := len(c.active)
	c.mu.Unlock()
	h := component.Health{Name: "run-controller", Status: component.StatusHealthy}
	h.Message = fmt.Sprintf("%d active runs", n)
	if c.slots != nil && c.slots.Available() == 0 {
		h.Status = component.StatusDegraded
		h.Message += ", at capacity"
	}
	return h
}
