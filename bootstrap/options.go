package bootstrap

import (
	"io"
	"time"

	"github.com/kbukum/flowkit/credentials"
	"github.com/kbukum/flowkit/logger"
	"github.com/kbukum/flowkit/run"
)

// Option configures the App during creation.
type Option func(*appOptions)

type appOptions struct {
	logger          *logger.Logger
	credentials     credentials.Resolver
	store           run.Store
	gracefulTimeout *time.Duration
	summary         io.Writer
	summarySet      bool
}

func resolveOptions(opts []Option) *appOptions {
	o := &appOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger sets a custom logger. If not set, the logger is built from the
// config's logging section.
func WithLogger(l *logger.Logger) Option {
	return func(o *appOptions) { o.logger = l }
}

// WithGracefulTimeout sets the maximum duration for graceful shutdown.
func WithGracefulTimeout(d time.Duration) Option {
	return func(o *appOptions) { o.gracefulTimeout = &d }
}

// WithCredentials replaces the resolver built from the config's sealed
// credentials.
func WithCredentials(r credentials.Resolver) Option {
	return func(o *appOptions) { o.credentials = r }
}

// WithRunStore uses s for run records instead of the configured store
// driver.
func WithRunStore(s run.Store) Option {
	return func(o *appOptions) { o.store = s }
}

// WithSummaryOutput sets where the startup summary is written. Nil disables
// it. The default is stderr.
func WithSummaryOutput(w io.Writer) Option {
	return func(o *appOptions) { o.summary, o.summarySet = w, true }
}
