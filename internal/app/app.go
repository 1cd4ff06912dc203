// Package app assembles the adaptive request layer and the network agent
// from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/devrev/adaptivenet/internal/api"
	"github.com/devrev/adaptivenet/internal/batch"
	"github.com/devrev/adaptivenet/internal/cache"
	"github.com/devrev/adaptivenet/internal/config"
	"github.com/devrev/adaptivenet/internal/handler"
	"github.com/devrev/adaptivenet/internal/health"
	"github.com/devrev/adaptivenet/internal/metrics"
	"github.com/devrev/adaptivenet/internal/netprobe"
	"github.com/devrev/adaptivenet/internal/retry"
	"github.com/devrev/adaptivenet/internal/server"
	"github.com/devrev/adaptivenet/internal/store"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Options carries what configuration cannot express
type Options struct {
	// Backend is the marketplace data service; nil leaves Service unset
	Backend api.Backend
	// Pinger replaces the configured backend pinger
	Pinger     netprobe.BackendPinger
	HTTPClient *http.Client
	Registry   *prometheus.Registry
	Logger     *zap.Logger
}

// App holds every wired component
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Registry  *prometheus.Registry
	Metrics   *metrics.Metrics
	Probe     *netprobe.Probe
	History   store.HistoryStore
	SyncQueue store.ExpiringSyncQueue
	Cache     *cache.ResponseCache
	Scheduler *batch.Scheduler
	Service   *api.Service
	Server    *server.Server

	metricsServer *metrics.MetricsServer
	closers       []func() error
}

// New builds the application. Redis and PostgreSQL connections are opened
// only when a configured backend needs them.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}

	a := &App{
		Config:   cfg,
		Logger:   opts.Logger,
		Registry: opts.Registry,
		Metrics:  metrics.NewMetrics(opts.Registry),
	}

	if err := a.initStores(ctx); err != nil {
		a.Close()
		return nil, err
	}

	pinger := opts.Pinger
	if pinger == nil {
		p, err := a.newPinger(opts.HTTPClient)
		if err != nil {
			a.Close()
			return nil, err
		}
		pinger = p
	}

	probe, err := netprobe.NewProbe(netprobe.Config{
		Targets:        cfg.Probe.Targets,
		HTTPClient:     opts.HTTPClient,
		Backend:        pinger,
		History:        a.History,
		Cooldown:       cfg.Probe.Cooldown,
		ProbeTimeout:   cfg.Probe.ProbeTimeout,
		BackendTimeout: cfg.Probe.BackendTimeout,
		Logger:         a.Logger,
		Metrics:        a.Metrics,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create network probe: %w", err)
	}
	a.Probe = probe

	a.Scheduler = batch.NewScheduler(batch.Config{
		MaxBatchSize: cfg.Batch.MaxBatchSize,
		Delay:        cfg.Batch.Delay,
		Concurrency:  api.ConcurrencyLimit(probe),
		Logger:       a.Logger,
		Metrics:      a.Metrics,
	})
	a.closers = append(a.closers, a.Scheduler.Close)

	if opts.Backend != nil {
		a.Service = api.NewService(api.Config{
			Backend:         opts.Backend,
			Network:         probe,
			Cache:           a.Cache,
			Executor:        retry.NewExecutor(retry.ExecutorConfig{Logger: a.Logger, Metrics: a.Metrics}),
			Scheduler:       a.Scheduler,
			SyncQueue:       a.SyncQueue,
			StaleMultiplier: cfg.Facade.StaleMultiplier,
			ResourceTTLs:    cfg.Facade.ResourceTTLs,
			Logger:          a.Logger,
			Metrics:         a.Metrics,
		})
	}

	handlers := handler.NewHandlers(probe, a.SyncQueue, a.Logger)
	a.Server = server.NewServer(cfg, handlers, health.NewHealthCheck(probe, a.Logger), a.Logger)

	if cfg.Metrics.Enabled {
		a.metricsServer = metrics.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, a.Registry, a.Logger)
	}

	return a, nil
}

func (a *App) initStores(ctx context.Context) error {
	cfg := a.Config

	var redisClient *redis.Client
	if cfg.Probe.HistoryBackend == "redis" || cfg.Cache.Backend == "redis" {
		client, err := store.NewRedisClient(ctx, cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize)
		if err != nil {
			return err
		}
		redisClient = client
		a.closers = append(a.closers, client.Close)
		a.Logger.Info("Redis connected", zap.String("host", cfg.Redis.Host), zap.Int("port", cfg.Redis.Port))
	}

	if cfg.Probe.HistoryBackend == "redis" {
		a.History = store.NewRedisHistoryStore(redisClient, cfg.Redis.HistoryKey, cfg.Probe.HistoryRetention, a.Logger)
	} else {
		a.History = store.NewMemoryHistoryStore(cfg.Probe.HistoryRetention, nil)
	}

	var cacheStore cache.Store
	if cfg.Cache.Backend == "redis" {
		cacheStore = cache.NewRedisStore(redisClient, cfg.Cache.KeyPrefix, cfg.Cache.MaxAge, a.Logger)
	} else {
		cacheStore = cache.NewMemoryStore(cache.MemoryStoreConfig{
			MaxEntries:      cfg.Cache.MaxEntries,
			MaxAge:          cfg.Cache.MaxAge,
			CleanupInterval: cfg.Cache.CleanupInterval,
			Logger:          a.Logger,
		})
	}
	a.closers = append(a.closers, cacheStore.Close)
	a.Cache = cache.NewResponseCache(cacheStore, nil, a.Logger)

	if cfg.SyncQueue.Backend == "postgres" {
		pool, err := store.NewPostgresPool(ctx,
			cfg.Database.Host,
			cfg.Database.Port,
			cfg.Database.Database,
			cfg.Database.User,
			cfg.Database.Password,
			cfg.Database.MaxConnections,
			cfg.Database.MinConnections,
		)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, closePool(pool))
		a.SyncQueue = store.NewPostgresSyncQueue(pool, a.Logger)
		a.Logger.Info("Offline queue backed by PostgreSQL", zap.String("host", cfg.Database.Host))
	} else {
		a.SyncQueue = store.NewMemorySyncQueue(cfg.SyncQueue.MaxItems)
	}

	return nil
}

func (a *App) newPinger(client *http.Client) (netprobe.BackendPinger, error) {
	if a.Config.Probe.BackendTransport == "grpc" {
		p, err := netprobe.NewGRPCPinger(a.Config.Probe.BackendTarget, a.Config.Probe.GRPCService)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, p.Close)
		return p, nil
	}
	return netprobe.NewHTTPPinger(client, a.Config.Probe.BackendURL), nil
}

// Run starts the probe loop, the offline queue janitor and the HTTP
// servers, and blocks until ctx is done or a server fails.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.Probe.Run(runCtx, a.Config.Probe.Interval)
	go a.cleanupSyncQueue(runCtx)

	errChan := make(chan error, 2)
	go func() {
		if err := a.Server.Start(); err != nil {
			errChan <- err
		}
	}()
	if a.metricsServer != nil {
		go func() {
			if err := a.metricsServer.Start(); err != nil {
				errChan <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errChan:
		a.Logger.Error("server error", zap.Error(runErr))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error("failed to shutdown HTTP server", zap.Error(err))
	}
	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.Logger.Error("failed to shutdown metrics server", zap.Error(err))
		}
	}

	return runErr
}

// cleanupSyncQueue periodically drops offline items past retention
func (a *App) cleanupSyncQueue(ctx context.Context) {
	interval := a.Config.SyncQueue.CleanupInterval
	if interval <= 0 || a.Config.SyncQueue.Retention <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := a.SyncQueue.CleanupOldItems(ctx, a.Config.SyncQueue.Retention)
			if err != nil {
				a.Logger.Warn("failed to clean up offline queue", zap.Error(err))
				continue
			}
			if removed > 0 {
				a.Logger.Info("Cleaned up expired offline items", zap.Int64("removed", removed))
			}
		}
	}
}

// Close drains the batch queue and releases connections in reverse order
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func closePool(pool *pgxpool.Pool) func() error {
	return func() error {
		pool.Close()
		return nil
	}
}
