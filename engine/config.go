package engine

import (
	"fmt"
	"runtime"
)

// Config sizes the engine.
type Config struct {
	// Workers bounds concurrent processor, predicate, and sink calls in one run.
	Workers int `yaml:"workers" mapstructure:"workers"`
	// QueueSize is the capacity of each node's input queue.
	QueueSize int `yaml:"queue_size" mapstructure:"queue_size"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("engine.workers must not be negative")
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("engine.queue_size must not be negative")
	}
	return nil
}
