package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/devrev/adaptivenet/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostgresSyncQueue implements SyncQueue using PostgreSQL.
//
// Expected table:
//
//	CREATE TABLE sync_queue (
//	    item_id     UUID PRIMARY KEY,
//	    item_type   TEXT NOT NULL,
//	    payload     JSONB NOT NULL,
//	    created_at  TIMESTAMPTZ NOT NULL,
//	    replay_count INT NOT NULL DEFAULT 0
//	);
type PostgresSyncQueue struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresSyncQueue creates a new PostgreSQL sync queue
func NewPostgresSyncQueue(pool *pgxpool.Pool, logger *zap.Logger) *PostgresSyncQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresSyncQueue{
		pool:   pool,
		logger: logger,
	}
}

// NewPostgresPool opens and pings a pgx connection pool
func NewPostgresPool(
	ctx context.Context,
	host string,
	port int,
	database, user, password string,
	maxConns, minConns int,
) (*pgxpool.Pool, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s pool_max_conns=%d pool_min_conns=%d",
		host, port, database, user, password, maxConns, minConns,
	)

	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// AddToSyncQueue inserts a write intent
func (q *PostgresSyncQueue) AddToSyncQueue(ctx context.Context, item *model.SyncItem) error {
	if item == nil {
		return fmt.Errorf("sync item is nil")
	}
	if !item.Type.Valid() {
		return fmt.Errorf("invalid sync item type: %q", item.Type)
	}

	itemID := item.ID
	if itemID == "" {
		itemID = uuid.New().String()
	}
	createdAt := item.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	payload, err := json.Marshal(item.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal sync payload: %w", err)
	}

	query := `
		INSERT INTO sync_queue (item_id, item_type, payload, created_at, replay_count)
		VALUES ($1, $2, $3, $4, 0)
	`

	if _, err := q.pool.Exec(ctx, query, itemID, string(item.Type), payload, createdAt); err != nil {
		return fmt.Errorf("failed to enqueue sync item: %w", err)
	}

	q.logger.Debug("Sync item queued",
		zap.String("item_id", itemID),
		zap.String("type", string(item.Type)))

	return nil
}

// Stats counts pending items per type
func (q *PostgresSyncQueue) Stats(ctx context.Context) (*model.SyncQueueStats, error) {
	query := `SELECT item_type, COUNT(*) FROM sync_queue GROUP BY item_type`

	rows, err := q.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count sync items: %w", err)
	}
	defer rows.Close()

	stats := &model.SyncQueueStats{ByType: make(map[model.SyncItemType]int64)}
	for rows.Next() {
		var itemType string
		var count int64
		if err := rows.Scan(&itemType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan sync item count: %w", err)
		}
		stats.ByType[model.SyncItemType(itemType)] = count
		stats.Pending += count
	}

	return stats, rows.Err()
}

// CleanupOldItems deletes items older than ttl and returns how many went
func (q *PostgresSyncQueue) CleanupOldItems(ctx context.Context, ttl time.Duration) (int64, error) {
	query := `DELETE FROM sync_queue WHERE created_at < $1`

	result, err := q.pool.Exec(ctx, query, time.Now().Add(-ttl))
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old sync items: %w", err)
	}

	return result.RowsAffected(), nil
}
