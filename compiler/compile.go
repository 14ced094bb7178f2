package compiler

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/kbukum/flowkit/credentials"
	"github.com/kbukum/flowkit/dag"
	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/logger"
	"github.com/kbukum/flowkit/processor"
	"github.com/kbukum/flowkit/provider"
	"github.com/kbukum/flowkit/resilience"
	"github.com/kbukum/flowkit/workflow"
)

// Options are the collaborators a compilation binds nodes against.
type Options struct {
	Providers  *provider.Registry
	Processors *processor.Registry
	// Credentials decrypts connection references. Nil means no node may
	// name a connection.
	Credentials credentials.Resolver
	Logger      *logger.Logger
}

// Compile validates wf, resolves its cache slots, and binds every node. wf is
// not modified. On error every provider instance created so far is closed.
func Compile(ctx context.Context, wf *workflow.Workflow, opts Options) (*Graph, error) {
	if err := workflow.Validate(wf); err != nil {
		return nil, err
	}
	resolved, err := workflow.ResolveCacheSlots(wf)
	if err != nil {
		return nil, err
	}
	if opts.Providers == nil {
		opts.Providers = provider.NewRegistry()
	}
	if opts.Processors == nil {
		opts.Processors = processor.NewBuiltinRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}

	dg, err := dag.New(resolved.NodeIDs(), resolved.DAGEdges())
	if err != nil {
		return nil, errors.InvalidDefinition("%v", err).WithCause(err)
	}
	order, err := dg.Sort()
	if err != nil {
		var cycle *dag.CycleError
		if stderrors.As(err, &cycle) {
			return nil, errors.CycleDetected(cycle.Remaining)
		}
		return nil, errors.InvalidDefinition("%v", err).WithCause(err)
	}
	if err := checkPorts(resolved, dg); err != nil {
		return nil, err
	}

	snapshot, err := resolved.Snapshot()
	if err != nil {
		return nil, errors.InvalidDefinition("serializing workflow snapshot: %v", err).WithCause(err)
	}

	c := &compilation{
		opts:   opts,
		log:    opts.Logger.WithComponent("compiler").WithFields(map[string]any{logger.FieldWorkflowID: wf.ID}),
		shared: make(map[string]provider.Provider),
	}
	byID := make(map[string]*Node, len(resolved.Nodes))
	for i, wn := range resolved.Nodes {
		n, err := c.compileNode(ctx, i, wn)
		if err != nil {
			_ = closeAll(context.WithoutCancel(ctx), c.instances)
			return nil, err
		}
		byID[n.ID] = n
	}

	nodes := make([]*Node, len(order))
	for i, id := range order {
		nodes[i] = byID[id]
	}
	c.log.Debug("Workflow compiled", map[string]any{
		"nodes":     len(nodes),
		"edges":     len(dg.Edges()),
		"instances": len(c.instances),
	})
	return &Graph{
		workflowID: wf.ID,
		nodes:      nodes,
		byID:       byID,
		dag:        dg,
		snapshot:   snapshot,
		instances:  c.instances,
	}, nil
}

// checkPorts rejects edges the engine could never deliver: inputs into a
// source and outputs from a sink.
func checkPorts(wf *workflow.Workflow, dg *dag.Graph) error {
	for _, n := range wf.Nodes {
		switch n.Kind {
		case workflow.KindSource:
			if len(dg.Incoming(n.ID)) > 0 {
				return errors.InvalidDefinition("source %q cannot have incoming edges", n.ID).WithDetail("node_id", n.ID)
			}
		case workflow.KindSink:
			if len(dg.Outgoing(n.ID)) > 0 {
				return errors.InvalidDefinition("sink %q cannot have outgoing edges", n.ID).WithDetail("node_id", n.ID)
			}
		case workflow.KindTransform, workflow.KindSwitch:
		default:
			return errors.InvalidDefinition("node %q has unknown kind %q", n.ID, n.Kind).WithDetail("node_id", n.ID)
		}
	}
	return nil
}

type compilation struct {
	opts Options
	log  *logger.Logger
	// shared holds concurrency-safe instances by (provider, connection, params).
	shared    map[string]provider.Provider
	instances []provider.Provider
}

func (c *compilation) compileNode(ctx context.Context, index int, wn workflow.Node) (*Node, error) {
	n := &Node{ID: wn.ID, Kind: wn.Kind, Index: index}
	switch wn.Kind {
	case workflow.KindSource:
		cfg, err := wn.SourceConfig()
		if err != nil {
			return nil, err
		}
		p, err := c.instance(ctx, wn.ID, cfg.Provider, cfg.Connection, cfg.Params)
		if err != nil {
			return nil, err
		}
		src, ok := p.(provider.Source)
		if !ok {
			return nil, errors.InvalidDefinition("provider %q cannot be used as a source", cfg.Provider).
				WithDetails(map[string]any{"node_id": wn.ID, "provider": cfg.Provider})
		}
		n.Provider = cfg.Provider
		n.Source = src
		n.Retry = retryPolicy(p, cfg.Retry)

	case workflow.KindSink:
		cfg, err := wn.SinkConfig()
		if err != nil {
			return nil, err
		}
		p, err := c.instance(ctx, wn.ID, cfg.Provider, cfg.Connection, cfg.Params)
		if err != nil {
			return nil, err
		}
		sink, ok := p.(provider.Sink)
		if !ok {
			return nil, errors.InvalidDefinition("provider %q cannot be used as a sink", cfg.Provider).
				WithDetails(map[string]any{"node_id": wn.ID, "provider": cfg.Provider})
		}
		if cfg.Parallelism > 1 && !p.Capabilities().ConcurrencySafe {
			return nil, errors.InvalidDefinition("sink %q sets parallelism %d but provider %q is not safe for concurrent use",
				wn.ID, cfg.Parallelism, cfg.Provider).
				WithDetails(map[string]any{"node_id": wn.ID, "provider": cfg.Provider})
		}
		n.Provider = cfg.Provider
		n.Sink = sink
		n.Retry = retryPolicy(p, cfg.Retry)
		n.BatchSize = max(cfg.BatchSize, 1)
		n.Parallelism = max(cfg.Parallelism, 1)
		n.RateLimit = cfg.RateLimit

	case workflow.KindTransform:
		cfg, err := wn.TransformConfig()
		if err != nil {
			return nil, err
		}
		factory, err := c.opts.Processors.Transform(cfg.Processor)
		if err != nil {
			return nil, withNode(err, wn.ID)
		}
		t, err := factory(cfg.Params)
		if err != nil {
			return nil, withNode(err, wn.ID)
		}
		n.Processor = cfg.Processor
		n.Transform = t

	case workflow.KindSwitch:
		cfg, err := wn.SwitchConfig()
		if err != nil {
			return nil, err
		}
		factory, err := c.opts.Processors.Predicate(cfg.Condition.Predicate)
		if err != nil {
			return nil, withNode(err, wn.ID)
		}
		pred, err := factory(cfg.Condition.Params)
		if err != nil {
			return nil, withNode(err, wn.ID)
		}
		n.Processor = cfg.Condition.Predicate
		n.Predicate = pred
		n.TrueBranch, n.FalseBranch = cfg.Branches()

	default:
		return nil, errors.InvalidDefinition("node %q has unknown kind %q", wn.ID, wn.Kind).WithDetail("node_id", wn.ID)
	}
	return n, nil
}

// instance returns a provider for one source or sink node. Instances are
// shared between nodes with the same provider, connection, and params only
// when the provider declares itself concurrency safe.
func (c *compilation) instance(ctx context.Context, nodeID, providerID, connection string, params map[string]any) (provider.Provider, error) {
	key, err := instanceKey(providerID, connection, params)
	if err != nil {
		return nil, errors.InvalidParams(fmt.Sprintf("params are not serializable: %v", err)).WithDetail("node_id", nodeID)
	}
	if p, ok := c.shared[key]; ok {
		return p, nil
	}

	factory, err := c.opts.Providers.Resolve(providerID)
	if err != nil {
		return nil, withNode(err, nodeID)
	}
	creds, err := c.credentials(ctx, connection)
	if err != nil {
		return nil, withNode(err, nodeID)
	}
	p, err := factory(ctx, creds, params)
	if err != nil {
		return nil, withNode(asDefinition(err), nodeID)
	}
	c.instances = append(c.instances, p)
	if err := provider.Init(ctx, p); err != nil {
		return nil, errors.ConnectionFailed(providerID, err).WithDetail("node_id", nodeID)
	}
	if p.Capabilities().ConcurrencySafe {
		c.shared[key] = p
	}
	c.log.Debug("Provider instance created", map[string]any{
		logger.FieldNodeID:   nodeID,
		logger.FieldProvider: providerID,
	})
	return p, nil
}

func (c *compilation) credentials(ctx context.Context, ref string) (provider.Credentials, error) {
	if ref == "" {
		return provider.Credentials{}, nil
	}
	if c.opts.Credentials == nil {
		return provider.Credentials{}, errors.MissingCredentials(ref).WithDetail("reason", "no credential resolver configured")
	}
	return c.opts.Credentials.Resolve(ctx, ref)
}

// instanceKey identifies a provider configuration. encoding/json sorts map
// keys, so equal params give equal keys.
func instanceKey(providerID, connection string, params map[string]any) (string, error) {
	b, err := json.Marshal(params)
	if err != nil {
		return "", err
	}
	return providerID + "\x00" + connection + "\x00" + string(b), nil
}

func retryPolicy(p provider.Provider, override *workflow.RetryPolicy) resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig().Merge(p.Capabilities().Retry)
	if override != nil {
		cfg = cfg.Merge(resilience.RetryConfig{
			MaxAttempts:    override.MaxAttempts,
			InitialBackoff: override.InitialBackoff,
			MaxBackoff:     override.MaxBackoff,
			BackoffFactor:  override.Factor,
		})
	}
	return cfg
}

// asDefinition keeps factory errors in the definition class. A factory that
// fails without an AppError has rejected its params.
func asDefinition(err error) error {
	if errors.ClassOf(err) == errors.ClassDefinition {
		return err
	}
	if appErr, ok := errors.AsAppError(err); ok && appErr.Code == errors.ErrCodeConnectionFailed {
		return err
	}
	return errors.InvalidParams(err.Error()).WithCause(err)
}

func withNode(err error, nodeID string) error {
	if appErr, ok := errors.AsAppError(err); ok {
		return appErr.WithDetail("node_id", nodeID)
	}
	return err
}
