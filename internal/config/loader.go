package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. ADAPTIVENET_SERVER_PORT
const EnvPrefix = "ADAPTIVENET"

// Load reads configuration from file and environment variables.
// An empty configPath searches ./config.yaml and /etc/adaptivenet/.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/adaptivenet/")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers every key so environment overrides resolve.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	// Probe defaults
	v.SetDefault("probe.targets", d.Probe.Targets)
	v.SetDefault("probe.backend_transport", d.Probe.BackendTransport)
	v.SetDefault("probe.backend_url", d.Probe.BackendURL)
	v.SetDefault("probe.backend_target", d.Probe.BackendTarget)
	v.SetDefault("probe.grpc_service", d.Probe.GRPCService)
	v.SetDefault("probe.interval", d.Probe.Interval)
	v.SetDefault("probe.cooldown", d.Probe.Cooldown)
	v.SetDefault("probe.probe_timeout", d.Probe.ProbeTimeout)
	v.SetDefault("probe.backend_timeout", d.Probe.BackendTimeout)
	v.SetDefault("probe.history_backend", d.Probe.HistoryBackend)
	v.SetDefault("probe.history_retention", d.Probe.HistoryRetention)

	// Cache defaults
	v.SetDefault("cache.backend", d.Cache.Backend)
	v.SetDefault("cache.max_entries", d.Cache.MaxEntries)
	v.SetDefault("cache.max_age", d.Cache.MaxAge)
	v.SetDefault("cache.cleanup_interval", d.Cache.CleanupInterval)
	v.SetDefault("cache.key_prefix", d.Cache.KeyPrefix)

	// Batch defaults
	v.SetDefault("batch.max_batch_size", d.Batch.MaxBatchSize)
	v.SetDefault("batch.delay", d.Batch.Delay)

	// Facade defaults
	v.SetDefault("facade.stale_multiplier", d.Facade.StaleMultiplier)
	for resource, ttl := range d.Facade.ResourceTTLs {
		v.SetDefault("facade.resource_ttls."+resource, ttl)
	}

	// Sync queue defaults
	v.SetDefault("sync_queue.backend", d.SyncQueue.Backend)
	v.SetDefault("sync_queue.max_items", d.SyncQueue.MaxItems)
	v.SetDefault("sync_queue.retention", d.SyncQueue.Retention)
	v.SetDefault("sync_queue.cleanup_interval", d.SyncQueue.CleanupInterval)

	// Redis defaults
	v.SetDefault("redis.host", d.Redis.Host)
	v.SetDefault("redis.port", d.Redis.Port)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.pool_size", d.Redis.PoolSize)
	v.SetDefault("redis.history_key", d.Redis.HistoryKey)

	// Database defaults
	v.SetDefault("database.host", d.Database.Host)
	v.SetDefault("database.port", d.Database.Port)
	v.SetDefault("database.database", d.Database.Database)
	v.SetDefault("database.user", d.Database.User)
	v.SetDefault("database.password", d.Database.Password)
	v.SetDefault("database.max_connections", d.Database.MaxConnections)
	v.SetDefault("database.min_connections", d.Database.MinConnections)

	// Server defaults
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	// Rate limiter defaults
	v.SetDefault("rate_limiter.enabled", d.RateLimiter.Enabled)
	v.SetDefault("rate_limiter.requests_per_second", d.RateLimiter.RequestsPerSecond)
	v.SetDefault("rate_limiter.burst_size", d.RateLimiter.BurstSize)

	// Metrics defaults
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.port", d.Metrics.Port)
	v.SetDefault("metrics.path", d.Metrics.Path)

	// Logging defaults
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

// Dump renders the effective configuration as YAML. Passwords are omitted.
func Dump(cfg *Config) ([]byte, error) {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return out, nil
}
