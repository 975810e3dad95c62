package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const snapshotKey = "monitoring:snapshot"

// SnapshotCache keeps the most recent health snapshot in Redis so the
// monitor endpoint does not hit the database on every external poll.
type SnapshotCache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewSnapshotCache(redisClient *redis.Client, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{redis: redisClient, ttl: ttl}
}

// Get returns the cached snapshot, or nil if none is cached.
func (c *SnapshotCache) Get(ctx context.Context) (*Snapshot, error) {
	data, err := c.redis.Get(ctx, snapshotKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot from Redis: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal([]byte(data), &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snapshot, nil
}

// Set stores the snapshot under the cache TTL.
func (c *SnapshotCache) Set(ctx context.Context, snapshot *Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := c.redis.Set(ctx, snapshotKey, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set snapshot in Redis: %w", err)
	}
	return nil
}
