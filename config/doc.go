// Package config loads the flowkit process configuration.
//
// Values come from a YAML file, a .env file and FLOWKIT_ environment
// variables, in increasing order of precedence. The file is found at
// ./flowkit.yml, ./cmd/flowkit/config.yml or ./config.yml unless a path is
// given explicitly.
//
//	cfg, err := config.Load(config.WithConfigFile("flowkit.yml"))
//
// Nested keys map to underscore-joined variables: FLOWKIT_STORE_DRIVER sets
// store.driver and FLOWKIT_REDIS_ADDR sets redis.addr.
package config
