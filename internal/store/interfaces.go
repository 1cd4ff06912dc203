package store

import (
	"context"
	"time"

	"github.com/devrev/adaptivenet/internal/model"
)

// SyncQueue is the durable offline queue write intents are appended to
// while the backend is unreachable. Replay happens elsewhere.
type SyncQueue interface {
	// AddToSyncQueue appends one write intent
	AddToSyncQueue(ctx context.Context, item *model.SyncItem) error

	// Stats reports pending items for operators
	Stats(ctx context.Context) (*model.SyncQueueStats, error)
}

// ExpiringSyncQueue is a SyncQueue whose stale items can be purged
type ExpiringSyncQueue interface {
	SyncQueue

	// CleanupOldItems deletes items older than ttl
	CleanupOldItems(ctx context.Context, ttl time.Duration) (int64, error)
}

// HistoryStore keeps an append-only log of network quality observations
type HistoryStore interface {
	// RecordNetworkQuality appends one observation
	RecordNetworkQuality(ctx context.Context, obs model.QualityObservation) error

	// GetAverageNetworkQuality aggregates observations newer than window
	GetAverageNetworkQuality(ctx context.Context, window time.Duration) (model.QualityStats, error)
}
