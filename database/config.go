package database

import (
	"fmt"
	"strings"
	"time"
)

// DriverSQLite is the only bundled dialect.
const DriverSQLite = "sqlite"

// Config selects and tunes the SQL run store.
//
//	database:
//	  dsn: /var/lib/flowkit/runs.db
//	  auto_migrate: true
//	  pool: {max_open: 8, max_idle: 2, max_lifetime: 1h}
//	  log: {level: warn, slow_query: 200ms}
type Config struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DSN         string `yaml:"dsn" mapstructure:"dsn"`
	AutoMigrate bool   `yaml:"auto_migrate" mapstructure:"auto_migrate"`
	// ConnectAttempts bounds how often New dials before giving up.
	ConnectAttempts int `yaml:"connect_attempts" mapstructure:"connect_attempts"`

	Pool PoolConfig `yaml:"pool" mapstructure:"pool"`
	Log  LogConfig  `yaml:"log" mapstructure:"log"`
}

// PoolConfig sizes database/sql's connection pool.
type PoolConfig struct {
	MaxOpen     int           `yaml:"max_open" mapstructure:"max_open"`
	MaxIdle     int           `yaml:"max_idle" mapstructure:"max_idle"`
	MaxLifetime time.Duration `yaml:"max_lifetime" mapstructure:"max_lifetime"`
}

// LogConfig controls what GORM reports. Level is one of silent, error, warn
// or info; queries slower than SlowQuery are logged as warnings.
type LogConfig struct {
	Level     string        `yaml:"level" mapstructure:"level"`
	SlowQuery time.Duration `yaml:"slow_query" mapstructure:"slow_query"`
}

func (c *Config) inMemory() bool {
	return c.Driver == DriverSQLite && strings.Contains(c.DSN, ":memory:")
}

// ApplyDefaults fills zero values. An in-memory sqlite database is private to
// its connection, so its pool is pinned to one.
func (c *Config) ApplyDefaults() {
	if c.Driver == "" {
		c.Driver = DriverSQLite
	}
	if c.ConnectAttempts <= 0 {
		c.ConnectAttempts = 5
	}
	if c.Pool.MaxOpen <= 0 {
		c.Pool.MaxOpen = 25
	}
	if c.Pool.MaxIdle <= 0 {
		c.Pool.MaxIdle = 5
	}
	if c.Pool.MaxLifetime == 0 {
		c.Pool.MaxLifetime = time.Hour
	}
	if c.inMemory() {
		c.Pool.MaxOpen, c.Pool.MaxIdle = 1, 1
	}
	if c.Log.Level == "" {
		c.Log.Level = "warn"
	}
	if c.Log.SlowQuery == 0 {
		c.Log.SlowQuery = 200 * time.Millisecond
	}
}

// Validate is a no-op for a disabled store.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	switch {
	case c.Driver != DriverSQLite:
		return fmt.Errorf("unsupported database driver %q", c.Driver)
	case c.DSN == "":
		return fmt.Errorf("database DSN is required")
	case c.Pool.MaxOpen <= 0:
		return fmt.Errorf("pool.max_open must be > 0")
	case c.Pool.MaxIdle > c.Pool.MaxOpen:
		return fmt.Errorf("pool.max_idle (%d) must be <= pool.max_open (%d)", c.Pool.MaxIdle, c.Pool.MaxOpen)
	case c.Pool.MaxLifetime < 0:
		return fmt.Errorf("pool.max_lifetime must not be negative")
	}
	if _, ok := gormLevels[strings.ToLower(c.Log.Level)]; !ok {
		return fmt.Errorf("log.level must be one of silent, error, warn, info (got: %s)", c.Log.Level)
	}
	return nil
}
