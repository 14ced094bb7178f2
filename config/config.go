package config

import (
	"fmt"

	"github.com/kbukum/flowkit/credentials"
	"github.com/kbukum/flowkit/database"
	"github.com/kbukum/flowkit/engine"
	"github.com/kbukum/flowkit/observability"
	"github.com/kbukum/flowkit/redis"
	"github.com/kbukum/flowkit/run"
)

// Store drivers.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
)

// Config is the flowkit process configuration.
//
//	name: flowkit
//	environment: production
//	logging: {level: info, format: json}
//	engine: {workers: 8, queue_size: 64, run_timeout: 30m, max_concurrent_runs: 4}
//	store: {driver: sqlite}
//	database: {dsn: "flowkit.db"}
//	credentials:
//	  key: ${FLOWKIT_CREDENTIALS_KEY}
//	  sealed: {warehouse: "..."}
type Config struct {
	ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Engine        EngineConfig         `yaml:"engine" mapstructure:"engine"`
	Store         StoreConfig          `yaml:"store" mapstructure:"store"`
	Redis         redis.Config         `yaml:"redis" mapstructure:"redis"`
	Database      database.Config      `yaml:"database" mapstructure:"database"`
	Credentials   CredentialsConfig    `yaml:"credentials" mapstructure:"credentials"`
	Observability observability.Config `yaml:"observability" mapstructure:"observability"`
}

// EngineConfig combines the per-run engine limits with the controller's run
// limits.
type EngineConfig struct {
	engine.Config `yaml:",inline" mapstructure:",squash"`
	Runs          run.Config `yaml:",inline" mapstructure:",squash"`
}

// StoreConfig selects where run records live.
type StoreConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"`
}

// CredentialsConfig holds sealed connection credentials keyed by reference.
// Ciphertexts are produced by `flowkit seal`.
type CredentialsConfig struct {
	Key    string            `yaml:"key" mapstructure:"key"`
	Sealed map[string]string `yaml:"sealed" mapstructure:"sealed"`
}

// Resolver returns the credential resolver for the sealed entries.
func (c *CredentialsConfig) Resolver() (credentials.Resolver, error) {
	if c.Key == "" {
		return credentials.Static{}, nil
	}
	sealed, err := credentials.NewSealed(c.Key, c.Sealed)
	if err != nil {
		return nil, fmt.Errorf("credentials: %w", err)
	}
	return sealed, nil
}

// ApplyDefaults fills unset fields and enables the backend the store driver
// needs.
func (c *Config) ApplyDefaults() {
	c.ServiceConfig.ApplyDefaults()
	c.Engine.Config.ApplyDefaults()
	if c.Store.Driver == "" {
		c.Store.Driver = StoreMemory
	}
	switch c.Store.Driver {
	case StoreRedis:
		c.Redis.Enabled = true
	case StoreSQLite:
		c.Database.Enabled = true
		c.Database.AutoMigrate = true
		if c.Database.DSN == "" {
			c.Database.DSN = "flowkit.db"
		}
	}
	if c.Redis.Enabled {
		c.Redis.ApplyDefaults()
	}
	if c.Database.Enabled {
		c.Database.ApplyDefaults()
	}
	if c.Observability.ServiceName == "" {
		c.Observability.ServiceName = c.Name
	}
	if c.Observability.Environment == "" {
		c.Observability.Environment = c.Environment
	}
	c.Observability.ApplyDefaults()
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if err := c.Engine.Config.Validate(); err != nil {
		return err
	}
	if c.Engine.Runs.RunTimeout < 0 {
		return fmt.Errorf("engine.run_timeout must not be negative")
	}
	if c.Engine.Runs.MaxConcurrentRuns < 0 {
		return fmt.Errorf("engine.max_concurrent_runs must not be negative")
	}
	switch c.Store.Driver {
	case StoreMemory, StoreRedis, StoreSQLite:
	default:
		return fmt.Errorf("store.driver must be one of [memory, redis, sqlite] (got: %s)", c.Store.Driver)
	}
	if err := c.Redis.Validate(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if len(c.Credentials.Sealed) > 0 && c.Credentials.Key == "" {
		return fmt.Errorf("credentials.key is required when sealed credentials are configured")
	}
	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("observability: %w", err)
	}
	return nil
}
