package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCache(clock *fakeClock) *ResponseCache {
	store := NewMemoryStore(MemoryStoreConfig{Clock: clock.Now})
	return NewResponseCache(store, clock.Now, nil)
}

func TestResponseCache_TTLBoundary(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock)
	ctx := context.Background()
	ttl := 5 * time.Minute

	c.Set(ctx, "k", []byte("v"))

	data, ok := c.Get(ctx, "k", ttl)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), data)

	clock.Advance(ttl - time.Millisecond)
	_, ok = c.Get(ctx, "k", ttl)
	assert.True(t, ok)

	clock.Advance(time.Millisecond)
	_, ok = c.Get(ctx, "k", ttl)
	assert.False(t, ok, "entry must be absent exactly at the ttl boundary")

	clock.Advance(time.Hour)
	_, ok = c.Get(ctx, "k", ttl)
	assert.False(t, ok)
}

func TestResponseCache_GetStale(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock)
	ctx := context.Background()
	ttl := time.Minute

	c.Set(ctx, "k", []byte("old"))
	clock.Advance(3 * time.Minute)

	_, ok := c.Get(ctx, "k", ttl)
	assert.False(t, ok)

	data, ok := c.GetStale(ctx, "k", 10*ttl)
	require.True(t, ok)
	assert.Equal(t, []byte("old"), data)

	clock.Advance(10 * time.Minute)
	_, ok = c.GetStale(ctx, "k", 10*ttl)
	assert.False(t, ok)
}

func TestResponseCache_SetOverwrites(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock)
	ctx := context.Background()

	c.Set(ctx, "k", []byte("one"))
	clock.Advance(4 * time.Minute)
	c.Set(ctx, "k", []byte("two"))
	clock.Advance(2 * time.Minute)

	data, ok := c.Get(ctx, "k", 5*time.Minute)
	require.True(t, ok)
	assert.Equal(t, []byte("two"), data)
}

func TestResponseCache_MissIsNotAnError(t *testing.T) {
	c := newTestCache(newFakeClock())
	data, ok := c.Get(context.Background(), "missing", time.Minute)
	assert.False(t, ok)
	assert.Nil(t, data)
}

type failingStore struct{}

func (failingStore) Get(ctx context.Context, key string) (*Entry, error) {
	return nil, errors.New("connection refused")
}

func (failingStore) Set(ctx context.Context, entry *Entry) error {
	return errors.New("connection refused")
}

func (failingStore) Delete(ctx context.Context, key string) error {
	return nil
}

func (failingStore) Close() error {
	return nil
}

func TestResponseCache_StoreFailureReadsAsMiss(t *testing.T) {
	c := NewResponseCache(failingStore{}, nil, nil)
	ctx := context.Background()

	assert.NotPanics(t, func() { c.Set(ctx, "k", []byte("v")) })
	_, ok := c.Get(ctx, "k", time.Hour)
	assert.False(t, ok)
}

func TestLoadSave_Typed(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock)
	ctx := context.Background()

	type listing struct {
		ID    string
		Price float64
	}
	require.NoError(t, Save(ctx, c, "listing:1", []listing{{ID: "1", Price: 9.5}}))

	got, ok := Load[[]listing](ctx, c, "listing:1", time.Minute)
	require.True(t, ok)
	assert.Equal(t, []listing{{ID: "1", Price: 9.5}}, got)
}

func TestKey_Deterministic(t *testing.T) {
	a := Key("listings", map[string]any{"category": "x", "limit": 20})
	b := Key("listings", map[string]any{"limit": 20, "category": "x"})
	c := Key("listings", map[string]any{"category": "y", "limit": 20})
	d := Key("messages", map[string]any{"category": "x", "limit": 20})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)
	assert.Contains(t, a, "listings:")
}

func TestMemoryStore_EvictsOldestWhenFull(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore(MemoryStoreConfig{MaxEntries: 2, Clock: clock.Now})
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, &Entry{Key: "a", Timestamp: clock.Now()}))
	clock.Advance(time.Second)
	require.NoError(t, store.Set(ctx, &Entry{Key: "b", Timestamp: clock.Now()}))
	clock.Advance(time.Second)
	require.NoError(t, store.Set(ctx, &Entry{Key: "c", Timestamp: clock.Now()}))

	assert.Equal(t, 2, store.Size())
	_, err := store.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_Purge(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore(MemoryStoreConfig{MaxAge: time.Hour, Clock: clock.Now})
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, &Entry{Key: "old", Timestamp: clock.Now()}))
	clock.Advance(30 * time.Minute)
	require.NoError(t, store.Set(ctx, &Entry{Key: "new", Timestamp: clock.Now()}))
	clock.Advance(31 * time.Minute)

	assert.Equal(t, 1, store.Purge())
	_, err := store.Get(ctx, "new")
	assert.NoError(t, err)
	assert.NoError(t, store.Close())
}
