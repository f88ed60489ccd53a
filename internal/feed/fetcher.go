package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/pscheid92/moodmap/internal/adapter/metrics"
	"github.com/pscheid92/moodmap/internal/domain"
)

const (
	DefaultNamespace = "311"
	DefaultTTL       = 60 * time.Second

	stampSuffix     = "ts"
	daySuffix       = "day"
	dayLayout       = "2006-01-02"
	baselineWindow  = 48
	baselineOffset  = 24 * time.Hour
	baselineSpan    = 48 * time.Hour
	baselineRetains = 48 * time.Hour
)

// Config tunes cache keys and freshness.
type Config struct {
	Namespace string
	TTL       time.Duration
	// Location decides calendar days and floating timestamps. Nil means UTC.
	Location *time.Location
}

// Fetcher memoizes dataset queries per window size.
type Fetcher struct {
	source  domain.RecordSource
	cache   domain.SnapshotCache
	clock   clockwork.Clock
	metrics *metrics.FeedMetrics

	namespace string
	ttl       time.Duration
	loc       *time.Location

	group singleflight.Group
}

var _ domain.RecordFetcher = (*Fetcher)(nil)

// NewFetcher builds a Fetcher. m may be nil.
func NewFetcher(source domain.RecordSource, cache domain.SnapshotCache, clock clockwork.Clock, cfg Config, m *metrics.FeedMetrics) *Fetcher {
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Fetcher{
		source:    source,
		cache:     cache,
		clock:     clock,
		metrics:   m,
		namespace: cfg.Namespace,
		ttl:       cfg.TTL,
		loc:       cfg.Location,
	}
}

// WindowKey returns the cache key for a window size.
func (f *Fetcher) WindowKey(windowHours int) string {
	return fmt.Sprintf("%s:%d", f.namespace, windowHours)
}

// BaselineKey returns the cache key of the day-scoped baseline.
func (f *Fetcher) BaselineKey() string {
	return fmt.Sprintf("yesterday:%s:24h", f.namespace)
}

// FetchRecords returns records updated within the last windowHours. A cached
// result younger than the TTL is returned without touching the dataset.
func (f *Fetcher) FetchRecords(ctx context.Context, windowHours int) ([]domain.Record, error) {
	if windowHours <= 0 {
		return nil, fmt.Errorf("%w: %d hours", domain.ErrInvalidWindow, windowHours)
	}

	key := f.WindowKey(windowHours)
	now := f.clock.Now()

	if records, ok := f.loadFresh(ctx, key, now); ok {
		f.metrics.CacheHit("window")
		return records, nil
	}
	f.metrics.CacheMiss("window")

	v, err, _ := f.group.Do(key, func() (any, error) {
		records, err := f.source.FetchSince(ctx, now.Add(-time.Duration(windowHours)*time.Hour))
		if err != nil {
			return nil, err
		}
		f.store(ctx, key, stampSuffix, records, strconv.FormatInt(now.UnixMilli(), 10), f.ttl)
		return records, nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %dh window: %w", windowHours, err)
	}
	return v.([]domain.Record), nil
}

// Yesterday returns records updated between 48h and 24h ago. The result is
// computed once per calendar day and reused until the day changes.
func (f *Fetcher) Yesterday(ctx context.Context) ([]domain.Record, error) {
	key := f.BaselineKey()
	day := f.clock.Now().In(f.loc).Format(dayLayout)

	if snap, ok := f.load(ctx, key, daySuffix); ok && snap.Stamp == day {
		if records, err := decodeRecords(snap.Payload); err == nil {
			f.metrics.CacheHit("yesterday")
			return records, nil
		}
	}
	f.metrics.CacheMiss("yesterday")

	all, err := f.FetchRecords(ctx, baselineWindow)
	if err != nil {
		return nil, fmt.Errorf("fetch baseline: %w", err)
	}

	now := f.clock.Now()
	records := FilterUpdated(all, now.Add(-baselineSpan), now.Add(-baselineOffset), f.loc)
	f.store(ctx, key, daySuffix, records, day, baselineRetains)
	return records, nil
}

// FilterUpdated keeps records whose update time lies in [from, to]. Records
// with unparseable timestamps are dropped.
func FilterUpdated(records []domain.Record, from, to time.Time, loc *time.Location) []domain.Record {
	out := make([]domain.Record, 0, len(records))
	for _, r := range records {
		ts, err := r.UpdatedAt(loc)
		if err != nil {
			continue
		}
		if !ts.Before(from) && !ts.After(to) {
			out = append(out, r)
		}
	}
	return out
}

func (f *Fetcher) loadFresh(ctx context.Context, key string, now time.Time) ([]domain.Record, bool) {
	snap, ok := f.load(ctx, key, stampSuffix)
	if !ok {
		return nil, false
	}
	millis, err := strconv.ParseInt(snap.Stamp, 10, 64)
	if err != nil {
		return nil, false
	}
	if now.Sub(time.UnixMilli(millis)) >= f.ttl {
		return nil, false
	}
	records, err := decodeRecords(snap.Payload)
	if err != nil {
		slog.WarnContext(ctx, "Discarding undecodable cache entry", "key", key, "error", err)
		return nil, false
	}
	return records, true
}

// load treats cache errors as misses.
func (f *Fetcher) load(ctx context.Context, key, suffix string) (domain.CachedSnapshot, bool) {
	snap, ok, err := f.cache.Load(ctx, key, suffix)
	if err != nil {
		slog.WarnContext(ctx, "Record cache read failed", "key", key, "error", err)
		return domain.CachedSnapshot{}, false
	}
	return snap, ok
}

func (f *Fetcher) store(ctx context.Context, key, suffix string, records []domain.Record, stamp string, ttl time.Duration) {
	payload, err := json.Marshal(records)
	if err != nil {
		slog.WarnContext(ctx, "Failed to encode records for cache", "key", key, "error", err)
		return
	}
	if err := f.cache.Save(ctx, key, suffix, domain.CachedSnapshot{Payload: payload, Stamp: stamp}, ttl); err != nil {
		slog.WarnContext(ctx, "Record cache write failed", "key", key, "error", err)
	}
}

func decodeRecords(payload []byte) ([]domain.Record, error) {
	var records []domain.Record
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, err
	}
	if records == nil {
		records = []domain.Record{}
	}
	return records, nil
}
