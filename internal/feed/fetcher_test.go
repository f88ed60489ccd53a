package feed

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/moodmap/internal/adapter/metrics"
	"github.com/pscheid92/moodmap/internal/domain"
)

// --- Mocks ---

type mockSource struct {
	mu      sync.Mutex
	records []domain.Record
	err     error
	calls   []time.Time
}

func (m *mockSource) FetchSince(_ context.Context, since time.Time) ([]domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, since)
	if m.err != nil {
		return nil, m.err
	}
	return append([]domain.Record(nil), m.records...), nil
}

func (m *mockSource) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type failingCache struct{}

func (failingCache) Load(context.Context, string, string) (domain.CachedSnapshot, bool, error) {
	return domain.CachedSnapshot{}, false, errors.New("cache down")
}

func (failingCache) Save(context.Context, string, string, domain.CachedSnapshot, time.Duration) error {
	return errors.New("cache down")
}

// --- Helpers ---

var epoch = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func sampleRecords() []domain.Record {
	return []domain.Record{
		{Category: "Graffiti", Status: "Closed", Neighborhood: "Mission", UpdatedDatetime: "2024-03-10T11:59:00Z", ServiceRequestID: "1"},
		{RequestType: "Noise Complaint", Neighborhood: "Mission", UpdatedDatetime: "2024-03-10T11:00:00Z"},
	}
}

func newTestFetcher(src domain.RecordSource) (*Fetcher, *clockwork.FakeClock, *MemoryCache, *metrics.FeedMetrics) {
	clock := clockwork.NewFakeClockAt(epoch)
	cache := NewMemoryCache(clock)
	m := metrics.NewFeedMetrics(prometheus.NewRegistry())
	return NewFetcher(src, cache, clock, Config{}, m), clock, cache, m
}

// --- Window cache ---

func TestFetchRecords_CacheRoundTripWithinTTL(t *testing.T) {
	src := &mockSource{records: sampleRecords()}
	f, clock, _, m := newTestFetcher(src)
	ctx := context.Background()

	first, err := f.FetchRecords(ctx, 24)
	require.NoError(t, err)

	clock.Advance(59 * time.Second)
	second, err := f.FetchRecords(ctx, 24)
	require.NoError(t, err)

	assert.Equal(t, 1, src.callCount(), "second call must be served from cache")
	firstJSON, _ := json.Marshal(first)
	secondJSON, _ := json.Marshal(second)
	assert.Equal(t, string(firstJSON), string(secondJSON))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("window", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("window", "miss")))
}

func TestFetchRecords_RefetchesAfterTTL(t *testing.T) {
	src := &mockSource{records: sampleRecords()}
	f, clock, _, _ := newTestFetcher(src)
	ctx := context.Background()

	_, err := f.FetchRecords(ctx, 24)
	require.NoError(t, err)

	clock.Advance(61 * time.Second)
	_, err = f.FetchRecords(ctx, 24)
	require.NoError(t, err)

	assert.Equal(t, 2, src.callCount())
}

func TestFetchRecords_WindowsAreCachedSeparately(t *testing.T) {
	src := &mockSource{records: sampleRecords()}
	f, _, cache, _ := newTestFetcher(src)
	ctx := context.Background()

	_, err := f.FetchRecords(ctx, 24)
	require.NoError(t, err)
	_, err = f.FetchRecords(ctx, 6)
	require.NoError(t, err)

	assert.Equal(t, 2, src.callCount())
	assert.Equal(t, 2, cache.Len())

	snap, ok, err := cache.Load(ctx, "311:6", "ts")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1710072000000", snap.Stamp)
}

func TestFetchRecords_Cutoff(t *testing.T) {
	src := &mockSource{}
	f, _, _, _ := newTestFetcher(src)

	_, err := f.FetchRecords(context.Background(), 6)
	require.NoError(t, err)
	require.Len(t, src.calls, 1)
	assert.True(t, src.calls[0].Equal(epoch.Add(-6*time.Hour)))
}

func TestFetchRecords_InvalidWindow(t *testing.T) {
	src := &mockSource{}
	f, _, _, _ := newTestFetcher(src)

	_, err := f.FetchRecords(context.Background(), 0)
	assert.ErrorIs(t, err, domain.ErrInvalidWindow)
	assert.Zero(t, src.callCount())
}

func TestFetchRecords_ErrorIsNotCached(t *testing.T) {
	src := &mockSource{err: domain.ErrNetwork}
	f, _, cache, _ := newTestFetcher(src)
	ctx := context.Background()

	_, err := f.FetchRecords(ctx, 24)
	assert.ErrorIs(t, err, domain.ErrNetwork)
	assert.Zero(t, cache.Len())

	src.err = nil
	src.records = sampleRecords()
	records, err := f.FetchRecords(ctx, 24)
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, 2, src.callCount())
}

func TestFetchRecords_CacheFailureFallsThrough(t *testing.T) {
	src := &mockSource{records: sampleRecords()}
	clock := clockwork.NewFakeClockAt(epoch)
	f := NewFetcher(src, failingCache{}, clock, Config{}, nil)

	records, err := f.FetchRecords(context.Background(), 24)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	_, err = f.FetchRecords(context.Background(), 24)
	require.NoError(t, err)
	assert.Equal(t, 2, src.callCount())
}

func TestFetchRecords_CorruptEntryIsRefetched(t *testing.T) {
	src := &mockSource{records: sampleRecords()}
	f, _, cache, _ := newTestFetcher(src)
	ctx := context.Background()

	err := cache.Save(ctx, "311:24", "ts", domain.CachedSnapshot{
		Payload: []byte("{not json"),
		Stamp:   "1710072000000",
	}, time.Minute)
	require.NoError(t, err)

	records, err := f.FetchRecords(ctx, 24)
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, 1, src.callCount())
}

// --- Day-scoped baseline ---

func baselineRecords() []domain.Record {
	return []domain.Record{
		{RequestType: "too new", Neighborhood: "a", UpdatedDatetime: "2024-03-10T11:00:00Z"},
		{RequestType: "upper edge", Neighborhood: "a", UpdatedDatetime: "2024-03-09T12:00:00Z"},
		{RequestType: "inside", Neighborhood: "a", UpdatedDatetime: "2024-03-09T00:00:00Z"},
		{RequestType: "lower edge", Neighborhood: "a", UpdatedDatetime: "2024-03-08T12:00:00Z"},
		{RequestType: "too old", Neighborhood: "a", UpdatedDatetime: "2024-03-08T11:59:59Z"},
	}
}

func titles(records []domain.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Title())
	}
	return out
}

func TestYesterday_FiltersBetween48hAnd24hAgo(t *testing.T) {
	src := &mockSource{records: baselineRecords()}
	f, _, _, _ := newTestFetcher(src)

	records, err := f.Yesterday(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"upper edge", "inside", "lower edge"}, titles(records))

	require.Len(t, src.calls, 1)
	assert.True(t, src.calls[0].Equal(epoch.Add(-48*time.Hour)))
}

func TestYesterday_ReusedForRestOfDay(t *testing.T) {
	src := &mockSource{records: baselineRecords()}
	f, clock, _, m := newTestFetcher(src)
	ctx := context.Background()

	_, err := f.Yesterday(ctx)
	require.NoError(t, err)

	clock.Advance(6 * time.Hour)
	src.records = nil
	records, err := f.Yesterday(ctx)
	require.NoError(t, err)

	assert.Len(t, records, 3)
	assert.Equal(t, 1, src.callCount())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("yesterday", "hit")))
}

func TestYesterday_RecomputedNextDay(t *testing.T) {
	src := &mockSource{records: baselineRecords()}
	f, clock, _, _ := newTestFetcher(src)
	ctx := context.Background()

	_, err := f.Yesterday(ctx)
	require.NoError(t, err)

	clock.Advance(13 * time.Hour)
	_, err = f.Yesterday(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, src.callCount())
}

func TestYesterday_PropagatesFetchError(t *testing.T) {
	src := &mockSource{err: domain.ErrNetwork}
	f, _, _, _ := newTestFetcher(src)

	_, err := f.Yesterday(context.Background())
	assert.ErrorIs(t, err, domain.ErrNetwork)
}

func TestFilterUpdated_DropsUnparseable(t *testing.T) {
	records := []domain.Record{
		{RequestType: "bad", UpdatedDatetime: "nope"},
		{RequestType: "good", UpdatedDatetime: "2024-03-09T00:00:00Z"},
	}
	got := FilterUpdated(records, epoch.Add(-48*time.Hour), epoch, time.UTC)
	assert.Equal(t, []string{"good"}, titles(got))
}
