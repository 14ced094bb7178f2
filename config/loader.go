package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix marks the environment variables that override file values.
// FLOWKIT_STORE_DRIVER=redis sets store.driver.
const EnvPrefix = "FLOWKIT_"

// FileSystem abstracts the file operations the loader performs.
type FileSystem interface {
	Exists(path string) bool
	ReadFile(path string) ([]byte, error)
	LoadEnv(path string) error
}

// OSFileSystem implements FileSystem with the os package and godotenv.
type OSFileSystem struct{}

func (OSFileSystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (OSFileSystem) ReadFile(path string) ([]byte, error) { return os.ReadFile(path) }

// LoadEnv loads a dotenv file without overriding variables already set.
func (OSFileSystem) LoadEnv(path string) error { return godotenv.Load(path) }

// ResolvedFiles contains the config and env file paths a load uses.
type ResolvedFiles struct {
	ConfigFile string
	EnvFile    string
}

var (
	configSearchPaths = []string{
		"./flowkit.yml",
		"./flowkit.yaml",
		"./cmd/flowkit/config.yml",
		"./config/flowkit.yml",
		"./config.yml",
	}
	envSearchPaths = []string{
		"./.env.flowkit",
		"./.env",
		"./cmd/flowkit/.env",
	}
)

// Resolve returns the explicit paths from opts, falling back to the first
// existing file in the standard locations.
func Resolve(fs FileSystem, opts LoaderConfig) ResolvedFiles {
	files := ResolvedFiles{ConfigFile: opts.ConfigFile, EnvFile: opts.EnvFile}
	if files.ConfigFile == "" {
		files.ConfigFile = firstExisting(fs, configSearchPaths)
	}
	if files.EnvFile == "" {
		files.EnvFile = firstExisting(fs, envSearchPaths)
	}
	return files
}

func firstExisting(fs FileSystem, paths []string) string {
	for _, p := range paths {
		if fs.Exists(p) {
			return p
		}
	}
	return ""
}

// LoaderConfig holds the loader's dependencies and file overrides.
type LoaderConfig struct {
	FileSystem FileSystem
	ConfigFile string
	EnvFile    string
}

// LoaderOption is a functional option for Load.
type LoaderOption func(*LoaderConfig)

// WithFileSystem sets a custom filesystem for the loader.
func WithFileSystem(fs FileSystem) LoaderOption {
	return func(lc *LoaderConfig) { lc.FileSystem = fs }
}

// WithConfigFile sets an explicit config file path. A missing explicit file
// is an error.
func WithConfigFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.ConfigFile = path }
}

// WithEnvFile sets an explicit .env file path.
func WithEnvFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.EnvFile = path }
}

// Load reads the configuration file, applies the .env file and FLOWKIT_
// environment overrides, then applies defaults and validates the result.
//
// ${VAR} references in the file are expanded from the environment, which
// keeps keys and passwords out of the file itself.
func Load(opts ...LoaderOption) (*Config, error) {
	var lc LoaderConfig
	for _, opt := range opts {
		opt(&lc)
	}
	if lc.FileSystem == nil {
		lc.FileSystem = OSFileSystem{}
	}
	explicit := lc.ConfigFile != ""
	files := Resolve(lc.FileSystem, lc)

	// The .env file goes first so ${VAR} expansion and overrides see it.
	if files.EnvFile != "" && lc.FileSystem.Exists(files.EnvFile) {
		if err := lc.FileSystem.LoadEnv(files.EnvFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", files.EnvFile, err)
		}
	}

	v := viper.New()
	if files.ConfigFile != "" {
		if !lc.FileSystem.Exists(files.ConfigFile) {
			if explicit {
				return nil, fmt.Errorf("config file %s not found", files.ConfigFile)
			}
		} else if err := readConfig(v, lc.FileSystem, files.ConfigFile); err != nil {
			return nil, err
		}
	}
	bindEnv(v, os.Environ())

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readConfig(v *viper.Viper, fs FileSystem, path string) error {
	raw, err := fs.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		ext = "yaml"
	}
	v.SetConfigType(ext)
	if err := v.ReadConfig(bytes.NewReader([]byte(os.ExpandEnv(string(raw))))); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// bindEnv sets every FLOWKIT_ variable under each key it could name. Section
// and field names both contain underscores, so FLOWKIT_ENGINE_RUN_TIMEOUT is
// set as engine.run_timeout, engine.run.timeout and the other splits; only
// the one matching a field survives decoding.
func bindEnv(v *viper.Viper, environ []string) {
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		name, ok := strings.CutPrefix(key, EnvPrefix)
		if !ok || name == "" {
			continue
		}
		for _, variant := range envKeyVariants(name) {
			if isSection(v, variant) {
				continue
			}
			v.Set(variant, value)
		}
	}
}

// isSection reports whether key already holds a nested section, which a
// scalar must not replace.
func isSection(v *viper.Viper, key string) bool {
	_, ok := v.Get(key).(map[string]any)
	return ok
}

// envKeyVariants lists the dotted keys an underscore-separated name can
// stand for, with at most three levels of nesting.
//
//	STORE_DRIVER          -> [store_driver, store.driver]
//	ENGINE_RUN_TIMEOUT    -> [engine_run_timeout, engine.run_timeout, engine_run.timeout, engine.run.timeout]
func envKeyVariants(name string) []string {
	lower := strings.ToLower(name)
	parts := strings.Split(lower, "_")
	join := func(p []string) string { return strings.Join(p, "_") }
	variants := []string{lower}
	for i := 1; i < len(parts); i++ {
		variants = append(variants, join(parts[:i])+"."+join(parts[i:]))
	}
	for i := 1; i < len(parts); i++ {
		for j := i + 1; j < len(parts); j++ {
			variants = append(variants, join(parts[:i])+"."+join(parts[i:j])+"."+join(parts[j:]))
		}
	}
	return variants
}
