package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/moodmap/internal/domain"
)

// SnapshotCache stores serialized record sets as two string keys: the payload
// under key and the freshness stamp under "<key>:<suffix>".
type SnapshotCache struct {
	rdb goredis.Cmdable
}

var _ domain.SnapshotCache = (*SnapshotCache)(nil)

func NewSnapshotCache(rdb goredis.Cmdable) *SnapshotCache {
	return &SnapshotCache{rdb: rdb}
}

// Load reads payload and stamp in one round trip. A missing payload is a miss;
// a missing stamp yields an empty Stamp.
func (c *SnapshotCache) Load(ctx context.Context, key, stampSuffix string) (domain.CachedSnapshot, bool, error) {
	vals, err := c.rdb.MGet(ctx, key, stampKey(key, stampSuffix)).Result()
	if err != nil {
		return domain.CachedSnapshot{}, false, fmt.Errorf("failed to read snapshot %s: %w", key, err)
	}

	payload, ok := vals[0].(string)
	if !ok {
		return domain.CachedSnapshot{}, false, nil
	}
	stamp, _ := vals[1].(string)
	return domain.CachedSnapshot{Payload: []byte(payload), Stamp: stamp}, true, nil
}

// Save writes payload and stamp atomically. A non-positive ttl keeps both keys
// until overwritten.
func (c *SnapshotCache) Save(ctx context.Context, key, stampSuffix string, snap domain.CachedSnapshot, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	_, err := c.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, key, snap.Payload, ttl)
		pipe.Set(ctx, stampKey(key, stampSuffix), snap.Stamp, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write snapshot %s: %w", key, err)
	}
	return nil
}

func stampKey(key, suffix string) string {
	return key + ":" + suffix
}
