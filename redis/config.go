package redis

import (
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kbukum/flowkit/security"
)

// Config connects the Redis run store.
//
//	redis:
//	  addr: cache:6379
//	  password: ${REDIS_PASSWORD}
//	  key_prefix: etl
//	  pool: {size: 20, min_idle: 4, max_idle_time: 5m}
//	  timeouts: {dial: 2s, read: 1s, write: 1s}
//	  tls: {enabled: true, ca_file: /etc/ssl/redis-ca.pem}
type Config struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`

	// KeyPrefix namespaces run records: <prefix>:run:<id>.
	KeyPrefix string `yaml:"key_prefix" mapstructure:"key_prefix"`
	// MaxRetries is how often go-redis retries a failed command.
	MaxRetries int `yaml:"max_retries" mapstructure:"max_retries"`

	Pool     PoolConfig         `yaml:"pool" mapstructure:"pool"`
	Timeouts TimeoutConfig      `yaml:"timeouts" mapstructure:"timeouts"`
	TLS      security.TLSConfig `yaml:"tls" mapstructure:"tls"`
}

type PoolConfig struct {
	Size        int           `yaml:"size" mapstructure:"size"`
	MinIdle     int           `yaml:"min_idle" mapstructure:"min_idle"`
	MaxIdleTime time.Duration `yaml:"max_idle_time" mapstructure:"max_idle_time"`
}

type TimeoutConfig struct {
	Dial  time.Duration `yaml:"dial" mapstructure:"dial"`
	Read  time.Duration `yaml:"read" mapstructure:"read"`
	Write time.Duration `yaml:"write" mapstructure:"write"`
}

func (c *Config) ApplyDefaults() {
	if c.KeyPrefix == "" {
		c.KeyPrefix = "flowkit"
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.Pool.Size <= 0 {
		c.Pool.Size = 10
	}
	if c.Pool.MinIdle <= 0 {
		c.Pool.MinIdle = 2
	}
	if c.Timeouts.Dial == 0 {
		c.Timeouts.Dial = 5 * time.Second
	}
	if c.Timeouts.Read == 0 {
		c.Timeouts.Read = 3 * time.Second
	}
	if c.Timeouts.Write == 0 {
		c.Timeouts.Write = 3 * time.Second
	}
}

// Validate is a no-op for a disabled store.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	switch {
	case c.Addr == "":
		return fmt.Errorf("redis addr is required")
	case c.Pool.Size <= 0:
		return fmt.Errorf("pool.size must be > 0")
	case c.Pool.MinIdle > c.Pool.Size:
		return fmt.Errorf("pool.min_idle (%d) must be <= pool.size (%d)", c.Pool.MinIdle, c.Pool.Size)
	case c.Timeouts.Dial < 0 || c.Timeouts.Read < 0 || c.Timeouts.Write < 0:
		return fmt.Errorf("timeouts must not be negative")
	}
	return c.TLS.Validate()
}

func (c *Config) options() (*goredis.Options, error) {
	tc, err := c.TLS.Build()
	if err != nil {
		return nil, err
	}
	return &goredis.Options{
		Addr:            c.Addr,
		Username:        c.Username,
		Password:        c.Password,
		DB:              c.DB,
		MaxRetries:      c.MaxRetries,
		PoolSize:        c.Pool.Size,
		MinIdleConns:    c.Pool.MinIdle,
		ConnMaxIdleTime: c.Pool.MaxIdleTime,
		DialTimeout:     c.Timeouts.Dial,
		ReadTimeout:     c.Timeouts.Read,
		WriteTimeout:    c.Timeouts.Write,
		TLSConfig:       tc,
	}, nil
}
