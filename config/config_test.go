package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kbukum/flowkit/credentials"
)

type memFS struct {
	files map[string]string
	envs  []string
}

func (m *memFS) Exists(path string) bool {
	_, ok := m.files[path]
	return ok
}

func (m *memFS) ReadFile(path string) ([]byte, error) {
	data, ok := m.files[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return []byte(data), nil
}

func (m *memFS) LoadEnv(path string) error {
	m.envs = append(m.envs, path)
	return nil
}

func TestServiceConfigApplyDefaults(t *testing.T) {
	t.Run("empty environment defaults to development", func(t *testing.T) {
		cfg := ServiceConfig{}
		cfg.ApplyDefaults()
		if cfg.Name != "flowkit" || cfg.Environment != "development" {
			t.Errorf("got name %q environment %q", cfg.Name, cfg.Environment)
		}
		if !cfg.Debug || cfg.Logging.Level != "debug" {
			t.Errorf("expected debug logging for development, got debug=%v level=%q", cfg.Debug, cfg.Logging.Level)
		}
	})

	t.Run("production keeps debug off", func(t *testing.T) {
		cfg := ServiceConfig{Name: "svc", Environment: "production"}
		cfg.ApplyDefaults()
		if cfg.Debug || cfg.Logging.Level != "info" {
			t.Errorf("got debug=%v level=%q", cfg.Debug, cfg.Logging.Level)
		}
	})
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"defaults", func(*Config) {}, ""},
		{"invalid environment", func(c *Config) { c.Environment = "qa" }, "config.environment must be one of"},
		{"unknown store", func(c *Config) { c.Store.Driver = "etcd" }, "store.driver must be one of"},
		{"negative run timeout", func(c *Config) { c.Engine.Runs.RunTimeout = -time.Second }, "run_timeout"},
		{"redis store without addr", func(c *Config) { c.Redis.Enabled = true; c.Redis.ApplyDefaults() }, "redis addr is required"},
		{"sealed without key", func(c *Config) { c.Credentials.Sealed = map[string]string{"db": "x"} }, "credentials.key is required"},
		{"bad sample rate", func(c *Config) { c.Observability.SampleRate = 2 }, "sample_rate"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.ApplyDefaults()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.errMsg == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.errMsg) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tc.errMsg)
			}
		})
	}
}

func TestConfigApplyDefaultsEnablesStoreBackend(t *testing.T) {
	cfg := &Config{Store: StoreConfig{Driver: StoreSQLite}}
	cfg.ApplyDefaults()
	if !cfg.Database.Enabled || !cfg.Database.AutoMigrate || cfg.Database.DSN == "" {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.Redis.Enabled {
		t.Error("redis enabled for sqlite store")
	}

	cfg = &Config{Store: StoreConfig{Driver: StoreRedis}}
	cfg.ApplyDefaults()
	if !cfg.Redis.Enabled || cfg.Redis.KeyPrefix != "flowkit" {
		t.Errorf("redis = %+v", cfg.Redis)
	}
	if cfg.Observability.ServiceName != "flowkit" || cfg.Observability.Environment != "development" {
		t.Errorf("observability = %+v", cfg.Observability)
	}
}

func TestCredentialsResolver(t *testing.T) {
	const key = "0123456789abcdef0123456789abcdef"
	sealed, err := credentials.Seal(key, "warehouse", map[string]string{"password": "pw"})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	cc := CredentialsConfig{Key: key, Sealed: map[string]string{"warehouse": sealed}}
	r, err := cc.Resolver()
	if err != nil {
		t.Fatalf("Resolver: %v", err)
	}
	creds, err := r.Resolve(context.Background(), "warehouse")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if v, _ := creds.Lookup("password"); v != "pw" {
		t.Errorf("password = %q", v)
	}

	r, err = (&CredentialsConfig{}).Resolver()
	if err != nil {
		t.Fatalf("Resolver without key: %v", err)
	}
	if _, err := r.Resolve(context.Background(), "warehouse"); err == nil {
		t.Error("expected missing credentials without a key")
	}
}

func TestLoadYAMLWithEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flowkit.yml")
	yaml := `
name: etl
environment: staging
engine:
  workers: 3
  run_timeout: 90s
  max_concurrent_runs: 2
store:
  driver: sqlite
database:
  dsn: ${FLOWKIT_TEST_DSN}
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("FLOWKIT_TEST_DSN", "file:"+filepath.Join(dir, "runs.db"))
	t.Setenv("FLOWKIT_ENGINE_QUEUE_SIZE", "7")
	t.Setenv("FLOWKIT_LOGGING_FORMAT", "json")

	cfg, err := Load(WithConfigFile(path), WithEnvFile(filepath.Join(dir, "missing.env")))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := struct {
		Name, Env, Driver, DSN, Format string
		Workers, Queue, MaxRuns        int
		Timeout                        time.Duration
	}{
		cfg.Name, cfg.Environment, cfg.Store.Driver, cfg.Database.DSN, cfg.Logging.Format,
		cfg.Engine.Workers, cfg.Engine.QueueSize, cfg.Engine.Runs.MaxConcurrentRuns,
		cfg.Engine.Runs.RunTimeout,
	}
	want := got
	want.Name, want.Env, want.Driver = "etl", "staging", StoreSQLite
	want.DSN, want.Format = "file:"+filepath.Join(dir, "runs.db"), "json"
	want.Workers, want.Queue, want.MaxRuns = 3, 7, 2
	want.Timeout = 90 * time.Second
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadNestedSections(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flowkit.yml")
	yaml := `
store:
  driver: redis
redis:
  addr: localhost:6379
  timeouts: {dial: 250ms}
database:
  pool: {max_lifetime: 30m}
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("FLOWKIT_REDIS_POOL_SIZE", "4")

	cfg, err := Load(WithConfigFile(path))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Redis.Timeouts.Dial != 250*time.Millisecond || cfg.Redis.Timeouts.Read != 3*time.Second {
		t.Errorf("redis timeouts = %+v", cfg.Redis.Timeouts)
	}
	if cfg.Redis.Pool.Size != 4 {
		t.Errorf("redis pool size = %d, want 4 from the environment", cfg.Redis.Pool.Size)
	}
	if cfg.Database.Pool.MaxLifetime != 30*time.Minute {
		t.Errorf("database max lifetime = %v", cfg.Database.Pool.MaxLifetime)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(WithConfigFile("/nonexistent/flowkit.yml")); err == nil {
		t.Fatal("expected an error for a missing explicit config file")
	}
}

func TestLoadSearchesStandardLocations(t *testing.T) {
	fs := &memFS{files: map[string]string{
		"./cmd/flowkit/config.yml": "name: found\nenvironment: production\n",
		"./.env":                   "",
	}}
	cfg, err := Load(WithFileSystem(fs))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "found" || cfg.Store.Driver != StoreMemory {
		t.Errorf("cfg = %+v", cfg.ServiceConfig)
	}
	if diff := cmp.Diff([]string{"./.env"}, fs.envs); diff != "" {
		t.Errorf("env files (-want +got):\n%s", diff)
	}
}

func TestEnvKeyVariants(t *testing.T) {
	got := envKeyVariants("ENGINE_RUN_TIMEOUT")
	want := []string{"engine_run_timeout", "engine.run_timeout", "engine_run.timeout", "engine.run.timeout"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("variants (-want +got):\n%s", diff)
	}
	if got := envKeyVariants("NAME"); len(got) != 1 || got[0] != "name" {
		t.Errorf("NAME variants = %v", got)
	}
}
