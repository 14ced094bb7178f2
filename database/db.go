package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/kbukum/flowkit/logger"
	"github.com/kbukum/flowkit/resilience"
)

// DB is an open GORM handle plus the pool it runs on.
type DB struct {
	GormDB *gorm.DB
	log    *logger.Logger
	cfg    Config

	closeOnce sync.Once
	closeErr  error
}

// New opens cfg.DSN and pings it. Failed attempts are retried once a second
// up to cfg.ConnectAttempts times or until ctx ends.
func New(ctx context.Context, cfg Config, log *logger.Logger) (*DB, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("database config: %w", err)
	}
	if log == nil {
		log = logger.NewNop()
	}

	gormCfg := &gorm.Config{Logger: newQueryLogger(log, cfg.Log), TranslateError: true}
	policy := resilience.RetryConfig{
		MaxAttempts:    cfg.ConnectAttempts,
		InitialBackoff: time.Second,
		MaxBackoff:     time.Second,
		BackoffFactor:  1,
		RetryIf:        func(error) bool { return true },
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			log.Warn("Database connection attempt failed, retrying", map[string]any{
				logger.FieldAttempt: attempt,
				logger.FieldError:   err.Error(),
				"backoff":           backoff.String(),
			})
		},
	}
	gdb, err := resilience.Retry(ctx, policy, func() (*gorm.DB, error) {
		return open(ctx, cfg.DSN, gormCfg)
	})
	if err != nil {
		return nil, fmt.Errorf("connect to %s after %d attempts: %w", cfg.Driver, cfg.ConnectAttempts, err)
	}

	db := &DB{GormDB: gdb, log: log, cfg: cfg}
	pool, err := db.pool()
	if err != nil {
		return nil, err
	}
	pool.SetMaxOpenConns(cfg.Pool.MaxOpen)
	pool.SetMaxIdleConns(cfg.Pool.MaxIdle)
	pool.SetConnMaxLifetime(cfg.Pool.MaxLifetime)
	log.Debug("Database connection established", map[string]any{
		"driver":   cfg.Driver,
		"max_open": cfg.Pool.MaxOpen,
	})
	return db, nil
}

func open(ctx context.Context, dsn string, cfg *gorm.Config) (*gorm.DB, error) {
	gdb, err := gorm.Open(sqlite.Open(dsn), cfg)
	if err != nil {
		return nil, err
	}
	pool, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	if err := pool.PingContext(ctx); err != nil {
		_ = pool.Close()
		return nil, err
	}
	return gdb, nil
}

func (d *DB) pool() (*sql.DB, error) {
	return d.GormDB.DB()
}

// Close releases the pool. Later calls return the first result.
func (d *DB) Close() error {
	d.closeOnce.Do(func() {
		pool, err := d.pool()
		if err != nil {
			d.closeErr = err
			return
		}
		d.log.Debug("Closing database connection")
		d.closeErr = pool.Close()
	})
	return d.closeErr
}

// PingContext checks that a connection can be obtained.
func (d *DB) PingContext(ctx context.Context) error {
	pool, err := d.pool()
	if err != nil {
		return err
	}
	return pool.PingContext(ctx)
}

// Stats reports the pool's counters.
func (d *DB) Stats() sql.DBStats {
	pool, err := d.pool()
	if err != nil {
		return sql.DBStats{}
	}
	return pool.Stats()
}

// WithContext returns a session bound to ctx.
func (d *DB) WithContext(ctx context.Context) *gorm.DB {
	return d.GormDB.WithContext(ctx)
}

// WithTransaction runs fn in a transaction bound to ctx. An error or panic
// from fn rolls it back.
func (d *DB) WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return d.GormDB.WithContext(ctx).Transaction(fn)
}
