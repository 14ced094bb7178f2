package config

import (
	"fmt"

	"github.com/kbukum/flowkit/logger"
)

// Environments a process may declare.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

var environments = map[string]bool{EnvDevelopment: true, EnvStaging: true, EnvProduction: true}

// ServiceConfig is the process identity plus logging. Development turns on
// Debug, which in turn drops the log level to debug unless one is set.
type ServiceConfig struct {
	Name        string        `yaml:"name" mapstructure:"name"`
	Environment string        `yaml:"environment" mapstructure:"environment"`
	Debug       bool          `yaml:"debug" mapstructure:"debug"`
	Logging     logger.Config `yaml:"logging" mapstructure:"logging"`
}

func (c *ServiceConfig) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "flowkit"
	}
	if c.Environment == "" {
		c.Environment = EnvDevelopment
	}
	c.Debug = c.Debug || c.Environment == EnvDevelopment
	if c.Debug && c.Logging.Level == "" {
		c.Logging.Level = "debug"
	}
	c.Logging.ApplyDefaults()
}

func (c *ServiceConfig) Validate() error {
	switch {
	case c.Name == "":
		return fmt.Errorf("config.name is required")
	case !environments[c.Environment]:
		return fmt.Errorf("config.environment must be one of [%s, %s, %s] (got: %s)",
			EnvDevelopment, EnvStaging, EnvProduction, c.Environment)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("config.logging: %w", err)
	}
	return nil
}
