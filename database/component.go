package database

import (
	"context"
	"fmt"

	"github.com/kbukum/flowkit/component"
	"github.com/kbukum/flowkit/logger"
)

// Component owns the connection behind a SQL run store. With AutoMigrate set
// it applies the embedded migrations before reporting started.
type Component struct {
	cfg Config
	log *logger.Logger
	db  *DB
}

var _ component.Component = (*Component)(nil)

// NewComponent returns a stopped component for cfg.
func NewComponent(cfg Config, log *logger.Logger) *Component {
	if log == nil {
		log = logger.NewNop()
	}
	cfg.ApplyDefaults()
	return &Component{cfg: cfg, log: log.WithComponent("database")}
}

func (c *Component) Name() string { return "database" }

func (c *Component) Start(ctx context.Context) error {
	db, err := New(ctx, c.cfg, c.log)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if c.cfg.AutoMigrate {
		if err := Migrate(db); err != nil {
			_ = db.Close()
			return fmt.Errorf("database: migrate: %w", err)
		}
		version, _, _ := MigrateVersion(db)
		c.log.Info("Run store schema ready", map[string]any{"schema_version": version})
	}
	c.db = db
	return nil
}

func (c *Component) Stop(context.Context) error {
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

// DB returns the live connection, or nil outside Start and Stop.
func (c *Component) DB() *DB { return c.db }

// RunStore returns a run store over the live connection.
func (c *Component) RunStore() (*RunStore, error) {
	if c.db == nil {
		return nil, fmt.Errorf("database run store: component not started")
	}
	return NewRunStore(c.db), nil
}

// Health pings the database and reports pool usage. Callers waiting for a
// connection degrade it.
func (c *Component) Health(ctx context.Context) component.Health {
	h := component.Health{Name: c.Name(), Status: component.StatusHealthy}
	if c.db == nil {
		h.Status, h.Message = component.StatusUnhealthy, "not connected"
		return h
	}
	if err := c.db.PingContext(ctx); err != nil {
		h.Status, h.Message = component.StatusUnhealthy, err.Error()
		return h
	}
	stats := c.db.Stats()
	h.Message = fmt.Sprintf("%d open, %d in use", stats.OpenConnections, stats.InUse)
	if stats.WaitCount > 0 && stats.InUse >= stats.MaxOpenConnections {
		h.Status = component.StatusDegraded
		h.Message += fmt.Sprintf(", %d waits", stats.WaitCount)
	}
	return h
}

// Describe summarises the store for the startup banner.
func (c *Component) Describe() component.Description {
	migrate := "off"
	if c.cfg.AutoMigrate {
		migrate = "on"
	}
	return component.Description{
		Name:    "SQL run store",
		Type:    c.cfg.Driver,
		Details: fmt.Sprintf("%s max_open=%d migrate=%s", c.cfg.DSN, c.cfg.Pool.MaxOpen, migrate),
	}
}
