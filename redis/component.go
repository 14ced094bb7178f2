package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/kbukum/flowkit/component"
	"github.com/kbukum/flowkit/logger"
)

// Component owns the connection behind a Redis run store. The client and the
// store exist only between Start and Stop.
type Component struct {
	cfg    Config
	log    *logger.Logger
	client *Client
}

var _ component.Component = (*Component)(nil)

// NewComponent returns a stopped component for cfg.
func NewComponent(cfg Config, log *logger.Logger) *Component {
	if log == nil {
		log = logger.NewNop()
	}
	cfg.ApplyDefaults()
	return &Component{cfg: cfg, log: log.WithComponent("redis")}
}

func (c *Component) Name() string { return "redis" }

// Start connects and pings the server.
func (c *Component) Start(ctx context.Context) error {
	client, err := New(c.cfg, c.log)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	if err := client.Ping(ctx); err != nil {
		_ = client.Close()
		return fmt.Errorf("redis: connect %s: %w", c.cfg.Addr, err)
	}
	c.client = client
	c.log.Info("Redis connected", map[string]any{"addr": c.cfg.Addr, "db": c.cfg.DB, "tls": c.cfg.TLS.Enabled})
	return nil
}

func (c *Component) Stop(context.Context) error {
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}

// Client returns the live client, or nil outside Start and Stop.
func (c *Component) Client() *Client { return c.client }

// RunStore returns a run store over the live connection, namespaced by the
// configured key prefix.
func (c *Component) RunStore() (*RunStore, error) {
	if c.client == nil {
		return nil, fmt.Errorf("redis run store: component not started")
	}
	return NewRunStore(c.client, c.cfg.KeyPrefix), nil
}

// Health pings the server and reports the round trip and pool usage.
func (c *Component) Health(ctx context.Context) component.Health {
	h := component.Health{Name: c.Name(), Status: component.StatusHealthy}
	if c.client == nil {
		h.Status, h.Message = component.StatusUnhealthy, "not connected"
		return h
	}
	begin := time.Now()
	if err := c.client.Ping(ctx); err != nil {
		h.Status, h.Message = component.StatusUnhealthy, err.Error()
		return h
	}
	stats := c.client.Unwrap().PoolStats()
	h.Message = fmt.Sprintf("ping %s, %d/%d conns idle", time.Since(begin).Round(time.Microsecond), stats.IdleConns, stats.TotalConns)
	if stats.Timeouts > 0 {
		h.Status = component.StatusDegraded
		h.Message += fmt.Sprintf(", %d pool timeouts", stats.Timeouts)
	}
	return h
}

// Describe summarises the connection for the startup banner.
func (c *Component) Describe() component.Description {
	return component.Description{
		Name:    "Redis run store",
		Type:    "redis",
		Details: fmt.Sprintf("%s db=%d prefix=%s", c.cfg.Addr, c.cfg.DB, c.cfg.KeyPrefix),
	}
}
