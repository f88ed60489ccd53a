package domain

import (
	"context"
	"time"
)

// RecordSource queries the remote dataset for records updated after since.
type RecordSource interface {
	FetchSince(ctx context.Context, since time.Time) ([]Record, error)
}

// RecordFetcher serves records for a trailing window and the day-over-day baseline.
type RecordFetcher interface {
	FetchRecords(ctx context.Context, windowHours int) ([]Record, error)
	Yesterday(ctx context.Context) ([]Record, error)
}

// CachedSnapshot is a serialized cache entry plus its freshness stamp.
type CachedSnapshot struct {
	Payload []byte
	Stamp   string
}

// SnapshotCache persists serialized record sets next to a stamp key
// ("<key>" and "<key>:<stampSuffix>").
type SnapshotCache interface {
	Load(ctx context.Context, key, stampSuffix string) (CachedSnapshot, bool, error)
	Save(ctx context.Context, key, stampSuffix string, snap CachedSnapshot, ttl time.Duration) error
}

// SnapshotPublisher pushes refresh results to live subscribers.
type SnapshotPublisher interface {
	Publish(ctx context.Context, snap *MapSnapshot) error
	PublishStatus(ctx context.Context, degraded bool, lastErr error) error
}
