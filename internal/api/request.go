package api

import (
	"context"
	"errors"
	"time"

	"github.com/devrev/adaptivenet/internal/cache"
	apierrors "github.com/devrev/adaptivenet/internal/errors"
	"github.com/devrev/adaptivenet/internal/model"
	"github.com/devrev/adaptivenet/internal/policy"
	"github.com/devrev/adaptivenet/internal/retry"
	"go.uber.org/zap"
)

// Options tune a single facade call. Nil pointers and zero values fall back
// to the resource defaults and then to the adaptive policy.
type Options struct {
	Priority           model.Priority
	EnableCaching      *bool
	CacheKey           string
	CacheTTL           time.Duration
	EnableOfflineQueue *bool
	RetryOnFailure     *bool
	Timeout            time.Duration
	MaxRetries         *int
	// Fallback is returned when the live call and the stale cache both fail.
	// It must hold a value of the call's result type.
	Fallback any
	// SyncType and SyncData describe the offline queue item for writes
	SyncType model.SyncItemType
	SyncData any
}

// Bool returns a pointer to b, for Options fields
func Bool(b bool) *bool {
	return &b
}

// Int returns a pointer to n, for Options fields
func Int(n int) *int {
	return &n
}

type resourceDefaults struct {
	priority     model.Priority
	caching      bool
	ttl          time.Duration
	offlineQueue bool
}

var (
	readDefaults  = resourceDefaults{priority: model.PriorityMedium, caching: true}
	writeDefaults = resourceDefaults{priority: model.PriorityHigh, offlineQueue: true}
)

func (o Options) withDefaults(d resourceDefaults) Options {
	if o.Priority == "" {
		o.Priority = d.priority
	}
	o.Priority = o.Priority.Normalize()
	if o.EnableCaching == nil {
		o.EnableCaching = Bool(d.caching)
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = d.ttl
	}
	if o.EnableOfflineQueue == nil {
		o.EnableOfflineQueue = Bool(d.offlineQueue)
	}
	if o.RetryOnFailure == nil {
		o.RetryOnFailure = Bool(true)
	}
	return o
}

// Request runs op under the adaptive policy with caching, stale fallback,
// caller fallback and offline queuing as configured by opts.
//
// Caching applies only when opts.CacheKey is set. High priority calls skip
// the fresh-cache read and always go live first.
func Request[T any](ctx context.Context, s *Service, resource string, op func(ctx context.Context) (T, error), opts Options) (T, error) {
	var zero T
	start := time.Now()
	opts = opts.withDefaults(readDefaults)

	quality := s.quality(ctx)
	params := policy.Resolve(quality, policy.Overrides{
		Timeout:    opts.Timeout,
		MaxRetries: opts.MaxRetries,
	})
	if !*opts.RetryOnFailure {
		params.MaxRetries = 0
	}

	caching := *opts.EnableCaching && opts.CacheKey != ""
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = params.CacheTTL
	}

	if caching && opts.Priority != model.PriorityHigh {
		if value, ok := cache.Load[T](ctx, s.cache, opts.CacheKey, ttl); ok {
			s.metrics.RecordCacheLookup(resource, "hit")
			s.metrics.RecordRequest(resource, "cache", time.Since(start))
			return value, nil
		}
		s.metrics.RecordCacheLookup(resource, "miss")
	}

	raw, err := s.live(ctx, func(ctx context.Context) (any, error) {
		return op(ctx)
	}, params, opts.CacheKey, caching)
	if err == nil {
		value, _ := raw.(T)
		if caching {
			if saveErr := cache.Save(ctx, s.cache, opts.CacheKey, value); saveErr != nil {
				s.logger.Warn("failed to cache response", zap.String("resource", resource), zap.Error(saveErr))
			}
		}
		s.metrics.RecordRequest(resource, "live", time.Since(start))
		return value, nil
	}

	s.logger.Warn("remote operation failed",
		zap.String("resource", resource),
		zap.String("quality", string(quality)),
		zap.String("kind", apierrors.Classify(err).String()),
		zap.Error(err))

	if *opts.EnableOfflineQueue && apierrors.IsRetryable(err) {
		s.enqueueOffline(ctx, opts.SyncType, opts.SyncData)
	}

	if caching {
		if stale, ok := cache.Load[T](ctx, s.cache, opts.CacheKey, ttl*time.Duration(s.staleMultiplier)); ok {
			s.metrics.RecordCacheLookup(resource, "stale")
			s.metrics.RecordFallback(resource, "stale_cache")
			s.metrics.RecordRequest(resource, "stale", time.Since(start))
			s.logger.Info("Serving stale cache entry", zap.String("resource", resource))
			return stale, nil
		}
	}

	if opts.Fallback != nil {
		if fallback, ok := opts.Fallback.(T); ok {
			s.metrics.RecordFallback(resource, "fallback_data")
			s.metrics.RecordRequest(resource, "fallback", time.Since(start))
			return fallback, nil
		}
		s.logger.Warn("fallback data has the wrong type", zap.String("resource", resource))
	}

	s.metrics.RecordRequest(resource, "error", time.Since(start))
	return zero, err
}

// live runs op through the retry executor. Identical cached reads in flight
// at the same time share one execution, which is detached from every
// caller's cancellation. Each caller still stops waiting when its own ctx ends.
func (s *Service) live(ctx context.Context, op retry.Operation, params policy.Params, key string, shared bool) (any, error) {
	if !shared {
		return s.executor.Run(ctx, op, params.RetryPolicy(), params.Timeout)
	}

	sharedCtx := context.WithoutCancel(ctx)
	ch := s.inflight.DoChan(key, func() (any, error) {
		return s.executor.Run(sharedCtx, op, params.RetryPolicy(), params.Timeout)
	})

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// BatchRequest runs Request through the batch scheduler at opts.Priority
func BatchRequest[T any](ctx context.Context, s *Service, resource string, op func(ctx context.Context) (T, error), opts Options) (T, error) {
	var zero T
	priority := opts.withDefaults(readDefaults).Priority

	ch := s.scheduler.Submit(ctx, func(ctx context.Context) (any, error) {
		return Request(ctx, s, resource, op, opts)
	}, priority)

	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		value, ok := res.Value.(T)
		if !ok && res.Value != nil {
			return zero, errors.New("unexpected batched result type")
		}
		return value, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
