package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kbukum/flowkit/component"
	"github.com/kbukum/flowkit/config"
	"github.com/kbukum/flowkit/credentials"
	"github.com/kbukum/flowkit/engine"
	"github.com/kbukum/flowkit/logger"
	"github.com/kbukum/flowkit/observability"
	"github.com/kbukum/flowkit/processor"
	"github.com/kbukum/flowkit/provider"
	"github.com/kbukum/flowkit/run"
	"github.com/kbukum/flowkit/version"
)

// App wires a flowkit process together: logging, run storage, provider and
// processor registries, telemetry and the run controller.
//
//	app, err := bootstrap.New(cfg)
//	err = app.RunTask(ctx, func(ctx context.Context) error {
//	    h, err := app.Controller.Start(ctx, wf, app.Registries(), run.StartOptions{})
//	    ...
//	})
type App struct {
	Cfg         *config.Config
	Logger      *logger.Logger
	Components  *component.Registry
	Providers   *provider.Registry
	Processors  *processor.Registry
	Credentials credentials.Resolver
	// Memory backs the "memory" provider.
	Memory *provider.Memory
	// Controller is set once Start has returned.
	Controller *run.Controller

	backend         storeBackend
	summaryOut      io.Writer
	gracefulTimeout time.Duration
	shutdownTel     func(context.Context) error
	onStart         []Hook
	onStop          []Hook
	started         bool
}

// New validates cfg and builds the registries. Nothing connects to a
// backend until Start.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	o := resolveOptions(opts)

	log := o.logger
	if log == nil {
		log = logger.New(&cfg.Logging, cfg.Name)
	}
	resolver := o.credentials
	if resolver == nil {
		r, err := cfg.Credentials.Resolver()
		if err != nil {
			return nil, err
		}
		resolver = r
	}

	app := &App{
		Cfg:             cfg,
		Logger:          log,
		Components:      component.NewRegistry(log),
		Providers:       provider.NewRegistry(),
		Processors:      processor.NewBuiltinRegistry(),
		Credentials:     resolver,
		Memory:          provider.NewMemory(),
		summaryOut:      os.Stderr,
		gracefulTimeout: 15 * time.Second,
	}
	if o.gracefulTimeout != nil {
		app.gracefulTimeout = *o.gracefulTimeout
	}
	if o.summarySet {
		app.summaryOut = o.summary
	}
	registerProviders(app.Providers, app.Memory)

	backend, err := newStoreBackend(cfg, log, o.store)
	if err != nil {
		return nil, err
	}
	app.backend = backend
	for _, c := range backend.components() {
		if err := app.Components.Register(c); err != nil {
			return nil, err
		}
	}
	return app, nil
}

// Registries returns what the controller compiles workflows against.
func (a *App) Registries() run.Registries {
	return run.Registries{
		Providers:   a.Providers,
		Processors:  a.Processors,
		Credentials: a.Credentials,
	}
}

// Start installs telemetry, starts the store backends and creates the run
// controller.
func (a *App) Start(ctx context.Context) error {
	if a.started {
		return nil
	}
	begin := time.Now()
	info := version.Get()
	a.Logger.Info("Starting flowkit", map[string]any{
		"name":        a.Cfg.Name,
		"version":     info.Version,
		"store":       a.Cfg.Store.Driver,
		"environment": a.Cfg.Environment,
	})

	tel := a.Cfg.Observability
	if tel.ServiceVersion == "" {
		tel.ServiceVersion = info.Version
	}
	shutdown, err := observability.Init(ctx, tel)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	a.shutdownTel = shutdown

	if err := a.Components.StartAll(ctx); err != nil {
		_ = a.shutdownTel(context.WithoutCancel(ctx))
		return fmt.Errorf("initialization failed: %w", err)
	}

	store, err := a.backend.store()
	if err != nil {
		a.abort(ctx)
		return err
	}
	metrics, err := observability.NewMetrics(observability.Meter("flowkit"))
	if err != nil {
		a.abort(ctx)
		return fmt.Errorf("metrics: %w", err)
	}
	eng := engine.New(a.Cfg.Engine.Config, engine.WithLogger(a.Logger), engine.WithMetrics(metrics))
	a.Controller = run.NewController(store,
		run.WithLogger(a.Logger),
		run.WithEngine(eng),
		run.WithMetrics(metrics),
		run.WithConfig(a.Cfg.Engine.Runs),
	)
	// Registered last so StopAll drains runs before the store goes away.
	if err := a.Components.Register(a.Controller.Lifecycle()); err != nil {
		a.abort(ctx)
		return err
	}
	if err := a.Components.StartAll(ctx); err != nil {
		_ = a.shutdownTel(context.WithoutCancel(ctx))
		return err
	}

	if err := runStartHooks(ctx, a.onStart); err != nil {
		a.abort(ctx)
		return fmt.Errorf("onStart hook failed: %w", err)
	}
	if err := a.ReadyCheck(ctx); err != nil {
		a.Logger.Warn("Ready check reported issues", logger.ErrorFields("ready_check", err))
	}
	a.started = true
	a.DisplaySummary(time.Since(begin))
	return nil
}

func (a *App) abort(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	_ = a.Components.StopAll(ctx)
	_ = a.shutdownTel(ctx)
}

// ReadyCheck verifies that all registered components are healthy.
func (a *App) ReadyCheck(ctx context.Context) error {
	var unhealthy []string
	for _, h := range a.Components.HealthAll(ctx) {
		if !h.OK() {
			unhealthy = append(unhealthy, h.String())
		}
	}
	if len(unhealthy) > 0 {
		return fmt.Errorf("unhealthy components: %v", unhealthy)
	}
	return nil
}

// RunTask starts the app, runs task and shuts down. SIGINT and SIGTERM
// cancel the task's context; runs in flight are cancelled with it.
func (a *App) RunTask(ctx context.Context, task func(ctx context.Context) error) error {
	if err := a.Start(ctx); err != nil {
		return err
	}

	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			a.Logger.Info("Received signal, canceling task", map[string]any{"signal": sig.String()})
			cancel()
		case <-taskCtx.Done():
		}
	}()

	taskErr := task(taskCtx)

	if stopErr := a.Shutdown(context.WithoutCancel(ctx)); stopErr != nil && taskErr == nil {
		return stopErr
	}
	return taskErr
}

// Shutdown runs the stop hooks, stops every component in reverse order and
// flushes telemetry, all within the graceful timeout.
func (a *App) Shutdown(ctx context.Context) error {
	if !a.started {
		return nil
	}
	a.started = false
	a.Logger.Info("Shutting down", map[string]any{"timeout": a.gracefulTimeout.String()})

	ctx, cancel := context.WithTimeout(ctx, a.gracefulTimeout)
	defer cancel()

	hookErr := runStopHooks(ctx, a.onStop)
	if hookErr != nil {
		a.Logger.Error("OnStop hook error", logger.ErrorFields("on_stop", hookErr))
	}
	stopErr := a.Components.StopAll(ctx)
	if stopErr != nil {
		a.Logger.Error("Shutdown completed with errors", logger.ErrorFields("stop_components", stopErr))
	}
	telErr := a.shutdownTel(ctx)
	if telErr != nil {
		a.Logger.Error("Telemetry flush failed", logger.ErrorFields("telemetry_shutdown", telErr))
	}
	a.Logger.Info("Shutdown complete")
	return errors.Join(hookErr, stopErr, telErr)
}
