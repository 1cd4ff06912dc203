package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/devrev/adaptivenet/internal/model"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisHistoryStore implements HistoryStore as a Redis sorted set scored by
// observation time in milliseconds
type RedisHistoryStore struct {
	client    *redis.Client
	key       string
	retention time.Duration
	logger    *zap.Logger
}

// NewRedisClient creates a Redis client and checks the connection
func NewRedisClient(ctx context.Context, host string, port int, password string, db, poolSize int) (*redis.Client, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: poolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// NewRedisHistoryStore creates a new Redis history store
func NewRedisHistoryStore(client *redis.Client, key string, retention time.Duration, logger *zap.Logger) *RedisHistoryStore {
	if key == "" {
		key = "adaptivenet:network_quality"
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisHistoryStore{
		client:    client,
		key:       key,
		retention: retention,
		logger:    logger,
	}
}

// RecordNetworkQuality adds an observation and trims the set to retention
func (s *RedisHistoryStore) RecordNetworkQuality(ctx context.Context, obs model.QualityObservation) error {
	if obs.ObservedAt.IsZero() {
		obs.ObservedAt = time.Now()
	}

	data, err := json.Marshal(obs)
	if err != nil {
		return fmt.Errorf("failed to marshal observation: %w", err)
	}

	cutoff := obs.ObservedAt.Add(-s.retention).UnixMilli()

	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, s.key, redis.Z{
		Score:  float64(obs.ObservedAt.UnixMilli()),
		Member: data,
	})
	pipe.ZRemRangeByScore(ctx, s.key, "-inf", "("+strconv.FormatInt(cutoff, 10))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record network quality: %w", err)
	}
	return nil
}

// GetAverageNetworkQuality aggregates observations inside window
func (s *RedisHistoryStore) GetAverageNetworkQuality(ctx context.Context, window time.Duration) (model.QualityStats, error) {
	minScore := strconv.FormatInt(time.Now().Add(-window).UnixMilli(), 10)

	members, err := s.client.ZRangeByScore(ctx, s.key, &redis.ZRangeBy{
		Min: minScore,
		Max: "+inf",
	}).Result()
	if err != nil {
		return model.QualityStats{}, fmt.Errorf("failed to read network quality history: %w", err)
	}

	observations := make([]model.QualityObservation, 0, len(members))
	for _, member := range members {
		var obs model.QualityObservation
		if err := json.Unmarshal([]byte(member), &obs); err != nil {
			s.logger.Warn("skipping undecodable quality observation", zap.Error(err))
			continue
		}
		observations = append(observations, obs)
	}

	return model.Aggregate(window, observations), nil
}
