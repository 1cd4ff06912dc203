package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ResponseCache serves fresh entries normally and stale entries as a
// last-resort fallback. It is non-authoritative: store failures are logged
// and read as misses.
type ResponseCache struct {
	store  Store
	now    func() time.Time
	logger *zap.Logger
}

// NewResponseCache creates a response cache over store
func NewResponseCache(store Store, clock func() time.Time, logger *zap.Logger) *ResponseCache {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResponseCache{
		store:  store,
		now:    clock,
		logger: logger,
	}
}

// Get returns the payload for key if it was stored less than ttl ago
func (c *ResponseCache) Get(ctx context.Context, key string, ttl time.Duration) ([]byte, bool) {
	entry, ok := c.lookup(ctx, key)
	if !ok || !entry.FreshWithin(ttl, c.now()) {
		return nil, false
	}
	return entry.Data, true
}

// GetStale is Get with an extended TTL. Only used after a live request failed.
func (c *ResponseCache) GetStale(ctx context.Context, key string, extendedTTL time.Duration) ([]byte, bool) {
	return c.Get(ctx, key, extendedTTL)
}

// Set stores data under key stamped with the current time
func (c *ResponseCache) Set(ctx context.Context, key string, data []byte) {
	entry := &Entry{
		Key:       key,
		Data:      data,
		Timestamp: c.now(),
	}
	if err := c.store.Set(ctx, entry); err != nil {
		c.logger.Warn("failed to store cache entry", zap.String("key", key), zap.Error(err))
	}
}

func (c *ResponseCache) lookup(ctx context.Context, key string) (*Entry, bool) {
	entry, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			c.logger.Warn("cache lookup failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return entry, true
}

// Load decodes a fresh cached value into T
func Load[T any](ctx context.Context, c *ResponseCache, key string, ttl time.Duration) (T, bool) {
	var value T
	data, ok := c.Get(ctx, key, ttl)
	if !ok {
		return value, false
	}
	if err := json.Unmarshal(data, &value); err != nil {
		c.logger.Warn("failed to decode cache entry", zap.String("key", key), zap.Error(err))
		return value, false
	}
	return value, true
}

// Save encodes value and stores it under key
func Save[T any](ctx context.Context, c *ResponseCache, key string, value T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache value: %w", err)
	}
	c.Set(ctx, key, data)
	return nil
}

// Key derives a deterministic cache key from a resource name and its
// parameters. Parameters are JSON encoded (maps with sorted keys), so equal
// logical inputs always produce the same key.
func Key(resource string, params ...any) string {
	payload, err := json.Marshal(params)
	if err != nil {
		payload = []byte(fmt.Sprintf("%#v", params))
	}
	sum := sha256.Sum256(payload)
	return resource + ":" + hex.EncodeToString(sum[:16])
}
