// Package config provides configuration management for the network agent
// and the adaptive request layer.
package config

import (
	"fmt"
	"time"
)

// Config holds all configuration.
type Config struct {
	Probe       ProbeConfig       `mapstructure:"probe" yaml:"probe"`
	Cache       CacheConfig       `mapstructure:"cache" yaml:"cache"`
	Batch       BatchConfig       `mapstructure:"batch" yaml:"batch"`
	Facade      FacadeConfig      `mapstructure:"facade" yaml:"facade"`
	SyncQueue   SyncQueueConfig   `mapstructure:"sync_queue" yaml:"sync_queue"`
	Redis       RedisConfig       `mapstructure:"redis" yaml:"redis"`
	Database    DatabaseConfig    `mapstructure:"database" yaml:"database"`
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
	RateLimiter RateLimiterConfig `mapstructure:"rate_limiter" yaml:"rate_limiter"`
	Metrics     MetricsConfig     `mapstructure:"metrics" yaml:"metrics"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
}

// ProbeConfig holds network probe configuration.
type ProbeConfig struct {
	Targets          []string      `mapstructure:"targets" yaml:"targets"`
	BackendTransport string        `mapstructure:"backend_transport" yaml:"backend_transport"`
	BackendURL       string        `mapstructure:"backend_url" yaml:"backend_url"`
	BackendTarget    string        `mapstructure:"backend_target" yaml:"backend_target"`
	GRPCService      string        `mapstructure:"grpc_service" yaml:"grpc_service"`
	Interval         time.Duration `mapstructure:"interval" yaml:"interval"`
	Cooldown         time.Duration `mapstructure:"cooldown" yaml:"cooldown"`
	ProbeTimeout     time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout"`
	BackendTimeout   time.Duration `mapstructure:"backend_timeout" yaml:"backend_timeout"`
	HistoryBackend   string        `mapstructure:"history_backend" yaml:"history_backend"`
	HistoryRetention time.Duration `mapstructure:"history_retention" yaml:"history_retention"`
}

// CacheConfig holds response cache configuration.
type CacheConfig struct {
	Backend         string        `mapstructure:"backend" yaml:"backend"`
	MaxEntries      int           `mapstructure:"max_entries" yaml:"max_entries"`
	MaxAge          time.Duration `mapstructure:"max_age" yaml:"max_age"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval"`
	KeyPrefix       string        `mapstructure:"key_prefix" yaml:"key_prefix"`
}

// BatchConfig holds batch scheduler configuration.
type BatchConfig struct {
	MaxBatchSize int           `mapstructure:"max_batch_size" yaml:"max_batch_size"`
	Delay        time.Duration `mapstructure:"delay" yaml:"delay"`
}

// FacadeConfig holds facade defaults.
type FacadeConfig struct {
	StaleMultiplier int                      `mapstructure:"stale_multiplier" yaml:"stale_multiplier"`
	ResourceTTLs    map[string]time.Duration `mapstructure:"resource_ttls" yaml:"resource_ttls"`
}

// SyncQueueConfig holds offline queue configuration.
type SyncQueueConfig struct {
	Backend         string        `mapstructure:"backend" yaml:"backend"`
	MaxItems        int           `mapstructure:"max_items" yaml:"max_items"`
	Retention       time.Duration `mapstructure:"retention" yaml:"retention"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval"`
}

// RedisConfig holds Redis configuration for history and the cache tier.
type RedisConfig struct {
	Host       string `mapstructure:"host" yaml:"host"`
	Port       int    `mapstructure:"port" yaml:"port"`
	Password   string `mapstructure:"password" yaml:"-"`
	DB         int    `mapstructure:"db" yaml:"db"`
	PoolSize   int    `mapstructure:"pool_size" yaml:"pool_size"`
	HistoryKey string `mapstructure:"history_key" yaml:"history_key"`
}

// DatabaseConfig holds PostgreSQL offline queue configuration.
type DatabaseConfig struct {
	Host           string `mapstructure:"host" yaml:"host"`
	Port           int    `mapstructure:"port" yaml:"port"`
	Database       string `mapstructure:"database" yaml:"database"`
	User           string `mapstructure:"user" yaml:"user"`
	Password       string `mapstructure:"password" yaml:"-"`
	MaxConnections int    `mapstructure:"max_connections" yaml:"max_connections"`
	MinConnections int    `mapstructure:"min_connections" yaml:"min_connections"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// RateLimiterConfig holds rate limiter configuration.
type RateLimiterConfig struct {
	Enabled           bool    `mapstructure:"enabled" yaml:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size" yaml:"burst_size"`
}

// MetricsConfig holds Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port" yaml:"port"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	return &Config{
		Probe: ProbeConfig{
			Targets: []string{
				"https://www.google.com/generate_204",
				"https://www.cloudflare.com/cdn-cgi/trace",
				"https://connectivitycheck.gstatic.com/generate_204",
			},
			BackendTransport: "http",
			BackendURL:       "http://localhost:8080/auth/v1/session",
			BackendTarget:    "localhost:50051",
			Interval:         time.Minute,
			Cooldown:         5 * time.Minute,
			ProbeTimeout:     5 * time.Second,
			BackendTimeout:   10 * time.Second,
			HistoryBackend:   "memory",
			HistoryRetention: 24 * time.Hour,
		},
		Cache: CacheConfig{
			Backend:         "memory",
			MaxEntries:      10000,
			MaxAge:          10 * time.Hour,
			CleanupInterval: 10 * time.Minute,
			KeyPrefix:       "adaptivenet:cache:",
		},
		Batch: BatchConfig{
			MaxBatchSize: 10,
			Delay:        100 * time.Millisecond,
		},
		Facade: FacadeConfig{
			StaleMultiplier: 10,
			ResourceTTLs: map[string]time.Duration{
				"listings":   5 * time.Minute,
				"listing":    10 * time.Minute,
				"search":     5 * time.Minute,
				"messages":   2 * time.Minute,
				"categories": 60 * time.Minute,
			},
		},
		SyncQueue: SyncQueueConfig{
			Backend:         "memory",
			MaxItems:        1000,
			Retention:       7 * 24 * time.Hour,
			CleanupInterval: time.Hour,
		},
		Redis: RedisConfig{
			Host:       "localhost",
			Port:       6379,
			DB:         0,
			PoolSize:   10,
			HistoryKey: "adaptivenet:network_quality",
		},
		Database: DatabaseConfig{
			Host:           "localhost",
			Port:           5432,
			Database:       "marketplace",
			User:           "adaptivenet",
			MaxConnections: 10,
			MinConnections: 2,
		},
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		RateLimiter: RateLimiterConfig{
			Enabled:           true,
			RequestsPerSecond: 1,
			BurstSize:         3,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Probe.BackendTransport {
	case "http":
		if c.Probe.BackendURL == "" {
			return fmt.Errorf("probe.backend_url is required for the http transport")
		}
	case "grpc":
		if c.Probe.BackendTarget == "" {
			return fmt.Errorf("probe.backend_target is required for the grpc transport")
		}
	default:
		return fmt.Errorf("probe.backend_transport must be one of: http, grpc")
	}

	if c.Probe.Cooldown <= 0 {
		return fmt.Errorf("probe cooldown must be positive")
	}
	if c.Probe.ProbeTimeout <= 0 || c.Probe.BackendTimeout <= 0 {
		return fmt.Errorf("probe timeouts must be positive")
	}
	if !oneOf(c.Probe.HistoryBackend, "memory", "redis") {
		return fmt.Errorf("probe.history_backend must be one of: memory, redis")
	}
	if !oneOf(c.Cache.Backend, "memory", "redis") {
		return fmt.Errorf("cache.backend must be one of: memory, redis")
	}
	if !oneOf(c.SyncQueue.Backend, "memory", "postgres") {
		return fmt.Errorf("sync_queue.backend must be one of: memory, postgres")
	}

	if c.Batch.MaxBatchSize <= 0 {
		return fmt.Errorf("batch max size must be positive")
	}
	if c.Batch.Delay <= 0 {
		return fmt.Errorf("batch delay must be positive")
	}
	if c.Facade.StaleMultiplier < 1 {
		return fmt.Errorf("facade stale multiplier must be at least 1")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.RateLimiter.Enabled {
		if c.RateLimiter.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate limiter requests per second must be positive")
		}
		if c.RateLimiter.BurstSize <= 0 {
			return fmt.Errorf("rate limiter burst size must be positive")
		}
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port <= 0 || c.Metrics.Port > 65535 {
			return fmt.Errorf("invalid metrics port: %d", c.Metrics.Port)
		}
		if c.Metrics.Port == c.Server.Port {
			return fmt.Errorf("metrics port must differ from server port")
		}
	}

	return nil
}

func oneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}
