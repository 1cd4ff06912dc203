package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/devrev/adaptivenet/internal/model"
	"github.com/google/uuid"
)

// MemorySyncQueue implements SyncQueue in memory. Used by tests and by the
// agent when no database is configured.
type MemorySyncQueue struct {
	mu       sync.RWMutex
	items    []*model.SyncItem
	maxItems int
}

// NewMemorySyncQueue creates an in-memory sync queue. When full, the oldest
// item is dropped.
func NewMemorySyncQueue(maxItems int) *MemorySyncQueue {
	if maxItems <= 0 {
		maxItems = 10000
	}
	return &MemorySyncQueue{maxItems: maxItems}
}

// AddToSyncQueue appends an item
func (q *MemorySyncQueue) AddToSyncQueue(ctx context.Context, item *model.SyncItem) error {
	if item == nil {
		return fmt.Errorf("sync item is nil")
	}
	if !item.Type.Valid() {
		return fmt.Errorf("invalid sync item type: %q", item.Type)
	}

	copied := *item
	if copied.ID == "" {
		copied.ID = uuid.New().String()
	}
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if n := len(q.items); n >= q.maxItems {
		copy(q.items, q.items[1:])
		q.items[n-1] = nil
		q.items = q.items[:n-1]
	}
	q.items = append(q.items, &copied)
	return nil
}

// Stats reports pending items by type
func (q *MemorySyncQueue) Stats(ctx context.Context) (*model.SyncQueueStats, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	stats := &model.SyncQueueStats{
		Pending: int64(len(q.items)),
		ByType:  make(map[model.SyncItemType]int64),
	}
	for _, item := range q.items {
		stats.ByType[item.Type]++
	}
	return stats, nil
}

// Items returns a snapshot of queued items, oldest first
func (q *MemorySyncQueue) Items() []*model.SyncItem {
	q.mu.RLock()
	defer q.mu.RUnlock()

	items := make([]*model.SyncItem, len(q.items))
	copy(items, q.items)
	return items
}

// CleanupOldItems drops items older than ttl and returns how many went
func (q *MemorySyncQueue) CleanupOldItems(ctx context.Context, ttl time.Duration) (int64, error) {
	cutoff := time.Now().Add(-ttl)

	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.items[:0]
	var removed int64
	for _, item := range q.items {
		if item.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, item)
	}
	for i := len(kept); i < len(q.items); i++ {
		q.items[i] = nil
	}
	q.items = kept
	return removed, nil
}
