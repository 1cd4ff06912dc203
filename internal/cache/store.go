// Package cache provides the response cache: TTL-checked reads, stale
// reads for degraded fallback, and pluggable storage backends.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by a Store when a key is absent
var ErrNotFound = errors.New("cache entry not found")

// Entry is a cached payload and the time it was stored
type Entry struct {
	Key       string    `json:"key"`
	Data      []byte    `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Age returns how old the entry is at now
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.Timestamp)
}

// FreshWithin reports whether the entry is younger than ttl at now
func (e *Entry) FreshWithin(ttl time.Duration, now time.Time) bool {
	return e.Age(now) < ttl
}

// Store defines the contract for all storage backends.
// Freshness is decided by the caller; stores only hold entries.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, entry *Entry) error
	Delete(ctx context.Context, key string) error
	Close() error
}
