package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore implements Store for Redis. Entries carry their own timestamp
// so freshness is still decided by the ResponseCache; the Redis expiry only
// bounds how long stale entries linger.
type RedisStore struct {
	client *redis.Client
	prefix string
	maxAge time.Duration
	logger *zap.Logger
}

// NewRedisStore creates a Redis-backed store on an existing client
func NewRedisStore(client *redis.Client, prefix string, maxAge time.Duration, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		maxAge: maxAge,
		logger: logger,
	}
}

func (s *RedisStore) redisKey(key string) string {
	return s.prefix + key
}

// Get retrieves an entry
func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	data, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache entry: %w", err)
	}
	return &entry, nil
}

// Set stores an entry with the store's max age as Redis expiry
func (s *RedisStore) Set(ctx context.Context, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	return s.client.Set(ctx, s.redisKey(entry.Key), data, s.maxAge).Err()
}

// Delete removes an entry
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.redisKey(key)).Err()
}

// Close is a no-op; the client is shared and closed by its owner
func (s *RedisStore) Close() error {
	return nil
}
