package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MemoryStore implements Store using an in-memory map
type MemoryStore struct {
	data       map[string]*Entry
	mu         sync.RWMutex
	maxEntries int
	maxAge     time.Duration
	now        func() time.Time
	logger     *zap.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
}

// MemoryStoreConfig holds in-memory store settings
type MemoryStoreConfig struct {
	// MaxEntries bounds the map; the oldest entry is evicted when full
	MaxEntries int
	// MaxAge is the age after which the janitor drops an entry. It must be
	// at least the longest stale-fallback TTL in use.
	MaxAge time.Duration
	// CleanupInterval is how often the janitor runs; zero disables it
	CleanupInterval time.Duration
	Clock           func() time.Time
	Logger          *zap.Logger
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore(cfg MemoryStoreConfig) *MemoryStore {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10000
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	s := &MemoryStore{
		data:       make(map[string]*Entry),
		maxEntries: cfg.MaxEntries,
		maxAge:     cfg.MaxAge,
		now:        cfg.Clock,
		logger:     cfg.Logger,
		stopCh:     make(chan struct{}),
	}

	if cfg.CleanupInterval > 0 && cfg.MaxAge > 0 {
		go s.cleanup(cfg.CleanupInterval)
	}

	return s
}

// Get retrieves an entry regardless of its age
func (s *MemoryStore) Get(ctx context.Context, key string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.data[key]
	if !exists {
		return nil, ErrNotFound
	}
	copied := *entry
	return &copied, nil
}

// Set stores an entry, overwriting any previous entry for the key
func (s *MemoryStore) Set(ctx context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[entry.Key]; !exists && len(s.data) >= s.maxEntries {
		s.evictOldest()
	}

	copied := *entry
	s.data[entry.Key] = &copied
	return nil
}

// Delete removes an entry
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

// Close stops the janitor
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	return nil
}

// Size returns the number of entries held
func (s *MemoryStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// evictOldest drops the entry with the oldest timestamp. Caller holds mu.
func (s *MemoryStore) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for key, entry := range s.data {
		if oldestKey == "" || entry.Timestamp.Before(oldest) {
			oldestKey = key
			oldest = entry.Timestamp
		}
	}
	if oldestKey != "" {
		delete(s.data, oldestKey)
		s.logger.Debug("Evicted cache entry", zap.String("key", oldestKey))
	}
}

// Purge removes entries older than maxAge and returns how many were removed
func (s *MemoryStore) Purge() int {
	if s.maxAge <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, entry := range s.data {
		if entry.Age(now) >= s.maxAge {
			delete(s.data, key)
			removed++
		}
	}
	return removed
}

// cleanup periodically removes entries past maxAge
func (s *MemoryStore) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if removed := s.Purge(); removed > 0 {
				s.logger.Debug("Purged expired cache entries", zap.Int("removed", removed))
			}
		}
	}
}
