package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5*time.Minute, cfg.Probe.Cooldown)
	assert.Equal(t, 10, cfg.Batch.MaxBatchSize)
	assert.Equal(t, 100*time.Millisecond, cfg.Batch.Delay)
	assert.Equal(t, 10, cfg.Facade.StaleMultiplier)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown transport", func(c *Config) { c.Probe.BackendTransport = "smoke-signals" }},
		{"grpc without target", func(c *Config) {
			c.Probe.BackendTransport = "grpc"
			c.Probe.BackendTarget = ""
		}},
		{"zero cooldown", func(c *Config) { c.Probe.Cooldown = 0 }},
		{"unknown history backend", func(c *Config) { c.Probe.HistoryBackend = "sqlite" }},
		{"unknown cache backend", func(c *Config) { c.Cache.Backend = "disk" }},
		{"unknown queue backend", func(c *Config) { c.SyncQueue.Backend = "kafka" }},
		{"zero batch size", func(c *Config) { c.Batch.MaxBatchSize = 0 }},
		{"stale multiplier below one", func(c *Config) { c.Facade.StaleMultiplier = 0 }},
		{"bad server port", func(c *Config) { c.Server.Port = 70000 }},
		{"limiter without rate", func(c *Config) { c.RateLimiter.RequestsPerSecond = 0 }},
		{"metrics on server port", func(c *Config) { c.Metrics.Port = c.Server.Port }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
probe:
  backend_transport: grpc
  backend_target: backend:50051
  cooldown: 2m
batch:
  delay: 250ms
facade:
  resource_ttls:
    listings: 7m
sync_queue:
  backend: postgres
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("ADAPTIVENET_SERVER_PORT", "8181")
	t.Setenv("ADAPTIVENET_LOGGING_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "grpc", cfg.Probe.BackendTransport)
	assert.Equal(t, "backend:50051", cfg.Probe.BackendTarget)
	assert.Equal(t, 2*time.Minute, cfg.Probe.Cooldown)
	assert.Equal(t, 250*time.Millisecond, cfg.Batch.Delay)
	assert.Equal(t, 7*time.Minute, cfg.Facade.ResourceTTLs["listings"])
	assert.Equal(t, 60*time.Minute, cfg.Facade.ResourceTTLs["categories"])
	assert.Equal(t, "postgres", cfg.SyncQueue.Backend)
	assert.Equal(t, 8181, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 10, cfg.Batch.MaxBatchSize)
}

func TestLoad_InvalidFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("batch:\n  max_batch_size: 0\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestDump_OmitsPasswords(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Redis.Password = "hunter2"
	cfg.Database.Password = "s3cret"

	out, err := Dump(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(out), "stale_multiplier: 10")
	assert.Contains(t, string(out), "cooldown: 5m0s")
	assert.NotContains(t, string(out), "hunter2")
	assert.NotContains(t, string(out), "s3cret")
}
