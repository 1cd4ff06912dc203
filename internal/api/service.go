// Package api is the adaptive request facade domain code calls. It composes
// the network probe, adaptive policy, retry executor, response cache, batch
// scheduler and offline queue into per-resource operations.
package api

import (
	"context"
	"time"

	"github.com/devrev/adaptivenet/internal/batch"
	"github.com/devrev/adaptivenet/internal/cache"
	"github.com/devrev/adaptivenet/internal/metrics"
	"github.com/devrev/adaptivenet/internal/model"
	"github.com/devrev/adaptivenet/internal/policy"
	"github.com/devrev/adaptivenet/internal/retry"
	"github.com/devrev/adaptivenet/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultStaleMultiplier extends the fresh TTL for last-resort fallback reads
const DefaultStaleMultiplier = 10

// Backend is the marketplace data service. Implementations translate
// transport failures into *errors.RemoteError where they can.
type Backend interface {
	ListListings(ctx context.Context, filters model.ListingFilters) ([]model.Listing, error)
	GetListing(ctx context.Context, id string) (*model.Listing, error)
	GetListingsByIDs(ctx context.Context, ids []string) ([]model.Listing, error)
	CreateListing(ctx context.Context, input model.ListingInput) (*model.Listing, error)
	UpdateListing(ctx context.Context, id string, updates model.ListingInput) (*model.Listing, error)
	SearchListings(ctx context.Context, query string, filters model.ListingFilters) ([]model.Listing, error)
	ListMessages(ctx context.Context, conversationID string) ([]model.Message, error)
	SendMessage(ctx context.Context, input model.MessageInput) (*model.Message, error)
	ListCategories(ctx context.Context) ([]model.Category, error)
	UpdateProfile(ctx context.Context, userID string, input model.ProfileInput) (*model.Profile, error)
	FavoriteListing(ctx context.Context, userID, listingID string) error
}

// NetworkMonitor supplies the quality grade in effect and history stats
type NetworkMonitor interface {
	CurrentQuality(ctx context.Context) model.Quality
	Stats(ctx context.Context, window time.Duration) (model.QualityStats, error)
}

// Config holds facade dependencies
type Config struct {
	Backend   Backend
	Network   NetworkMonitor
	Cache     *cache.ResponseCache
	Executor  *retry.Executor
	Scheduler *batch.Scheduler
	SyncQueue store.SyncQueue
	// StaleMultiplier scales the fresh TTL for stale fallback reads
	StaleMultiplier int
	// ResourceTTLs overrides the default cache TTL per resource name
	ResourceTTLs map[string]time.Duration
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
}

// Service is the adaptive request facade. It holds no per-call state; the
// cache and batch queue are the only shared mutable state.
type Service struct {
	backend         Backend
	network         NetworkMonitor
	cache           *cache.ResponseCache
	executor        *retry.Executor
	scheduler       *batch.Scheduler
	ownsScheduler   bool
	syncQueue       store.SyncQueue
	staleMultiplier int
	resourceTTLs    map[string]time.Duration
	inflight        singleflight.Group
	logger          *zap.Logger
	metrics         *metrics.Metrics
}

// NewService creates the facade. Missing optional collaborators get
// in-memory defaults.
func NewService(cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.StaleMultiplier <= 0 {
		cfg.StaleMultiplier = DefaultStaleMultiplier
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.NewResponseCache(cache.NewMemoryStore(cache.MemoryStoreConfig{Logger: cfg.Logger}), nil, cfg.Logger)
	}
	if cfg.Executor == nil {
		cfg.Executor = retry.NewExecutor(retry.ExecutorConfig{Logger: cfg.Logger, Metrics: cfg.Metrics})
	}

	s := &Service{
		backend:         cfg.Backend,
		network:         cfg.Network,
		cache:           cfg.Cache,
		executor:        cfg.Executor,
		scheduler:       cfg.Scheduler,
		syncQueue:       cfg.SyncQueue,
		staleMultiplier: cfg.StaleMultiplier,
		resourceTTLs:    cfg.ResourceTTLs,
		logger:          cfg.Logger,
		metrics:         cfg.Metrics,
	}

	if s.scheduler == nil {
		s.scheduler = batch.NewScheduler(batch.Config{
			Concurrency: ConcurrencyLimit(cfg.Network),
			Logger:      cfg.Logger,
			Metrics:     cfg.Metrics,
		})
		s.ownsScheduler = true
	}

	return s
}

// ConcurrencyLimit reads the adaptive concurrency limit from the current grade
func ConcurrencyLimit(network NetworkMonitor) batch.ConcurrencyFunc {
	return func(ctx context.Context) int {
		if network == nil {
			return policy.For(model.QualityGood).Concurrency
		}
		return policy.For(network.CurrentQuality(ctx)).Concurrency
	}
}

// NetworkStats aggregates recorded network quality over window
func (s *Service) NetworkStats(ctx context.Context, window time.Duration) (model.QualityStats, error) {
	if s.network == nil {
		return model.QualityStats{}, nil
	}
	return s.network.Stats(ctx, window)
}

// Close drains the batch queue if the service created it
func (s *Service) Close() error {
	if s.ownsScheduler {
		return s.scheduler.Close()
	}
	return nil
}

func (s *Service) quality(ctx context.Context) model.Quality {
	if s.network == nil {
		return model.QualityGood
	}
	return s.network.CurrentQuality(ctx)
}

func (s *Service) ttlFor(resource string, fallback time.Duration) time.Duration {
	if ttl, ok := s.resourceTTLs[resource]; ok && ttl > 0 {
		return ttl
	}
	return fallback
}

// enqueueOffline appends a write intent. Failures are logged and never
// replace the original error.
func (s *Service) enqueueOffline(ctx context.Context, itemType model.SyncItemType, data any) {
	if s.syncQueue == nil || itemType == "" {
		return
	}

	// The caller's context may already be done; the append must still go through.
	queueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	err := s.syncQueue.AddToSyncQueue(queueCtx, &model.SyncItem{Type: itemType, Data: data})
	s.metrics.RecordOfflineQueued(string(itemType), err)
	if err != nil {
		s.logger.Warn("failed to append to offline queue",
			zap.String("type", string(itemType)),
			zap.Error(err))
		return
	}
	s.logger.Info("Queued write for offline replay", zap.String("type", string(itemType)))
}
