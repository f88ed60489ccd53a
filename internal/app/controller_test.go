package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/moodmap/internal/adapter/metrics"
	"github.com/pscheid92/moodmap/internal/aggregate"
	"github.com/pscheid92/moodmap/internal/domain"
)

// --- Mock implementations ---

type mockFetcher struct {
	mu       sync.Mutex
	records  []domain.Record
	baseline []domain.Record
	fetchErr error
	baseErr  error
	windows  []int
	entered  chan struct{}
	release  chan struct{}
}

func (m *mockFetcher) FetchRecords(ctx context.Context, windowHours int) ([]domain.Record, error) {
	m.mu.Lock()
	m.windows = append(m.windows, windowHours)
	entered, release := m.entered, m.release
	records, err := m.records, m.fetchErr
	m.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return records, err
}

func (m *mockFetcher) Yesterday(context.Context) ([]domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.baseline, m.baseErr
}

func (m *mockFetcher) set(fn func(*mockFetcher)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m)
}

func (m *mockFetcher) calls() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.windows...)
}

type statusUpdate struct {
	degraded bool
	err      error
}

type mockPublisher struct {
	mu        sync.Mutex
	snapshots []*domain.MapSnapshot
	statuses  []statusUpdate
	err       error
}

func (m *mockPublisher) Publish(_ context.Context, snap *domain.MapSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, snap)
	return m.err
}

func (m *mockPublisher) PublishStatus(_ context.Context, degraded bool, err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, statusUpdate{degraded: degraded, err: err})
	return m.err
}

func (m *mockPublisher) published() ([]*domain.MapSnapshot, []statusUpdate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.MapSnapshot(nil), m.snapshots...), append([]statusUpdate(nil), m.statuses...)
}

// --- Helpers ---

var epoch = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func rec(neighborhood, category, requestType, status string) domain.Record {
	return domain.Record{
		Neighborhood:    neighborhood,
		Category:        category,
		RequestType:     requestType,
		Status:          status,
		UpdatedDatetime: "2024-03-10T11:00:00.000",
	}
}

func todayRecords() []domain.Record {
	return []domain.Record{
		rec("Mission", "Graffiti", "", "Closed"),
		rec("Mission", "Noise Complaint", "", "Open"),
		rec("SoMa", "Street Cleaning", "Trash", "Open"),
	}
}

func baselineRecords() []domain.Record {
	return []domain.Record{
		rec("Mission", "Noise Complaint", "", "Open"),
		rec("SoMa", "Street Cleaning", "Trash", "Open"),
	}
}

func newTestController(f *mockFetcher, p *mockPublisher) (*Controller, *clockwork.FakeClock, *metrics.RefreshMetrics) {
	clock := clockwork.NewFakeClockAt(epoch)
	m := metrics.NewRefreshMetrics(prometheus.NewRegistry())
	cfg := Config{DefaultWindowHours: 24, MaxWindowHours: 72, Aggregate: aggregate.DefaultOptions(time.UTC)}

	var pub domain.SnapshotPublisher
	if p != nil {
		pub = p
	}
	return NewController(f, pub, clock, cfg, m), clock, m
}

// --- Tests ---

func TestController_NoSnapshotBeforeFirstRefresh(t *testing.T) {
	c, _, _ := newTestController(&mockFetcher{}, nil)

	_, err := c.Snapshot()
	assert.ErrorIs(t, err, domain.ErrNoSnapshot)

	st := c.State()
	assert.Nil(t, st.Snapshot)
	assert.False(t, st.Degraded)
	assert.Equal(t, 24, st.WindowHours)
}

func TestController_RefreshBuildsSnapshot(t *testing.T) {
	f := &mockFetcher{records: todayRecords(), baseline: baselineRecords()}
	pub := &mockPublisher{}
	c, _, m := newTestController(f, pub)

	snap, err := c.Refresh(context.Background(), 12)
	require.NoError(t, err)

	assert.Equal(t, 12, snap.WindowHours)
	assert.Equal(t, 3, snap.RecordCount)
	assert.Equal(t, epoch, snap.GeneratedAt)
	assert.NotEqual(t, uuid.Nil, snap.ID)

	mission, ok := snap.Lookup("Mission")
	require.True(t, ok)
	assert.Equal(t, 1, mission.Counts.Get(domain.MoodPositive))
	assert.Equal(t, 1, mission.Counts.Get(domain.MoodNegative))

	require.NotEmpty(t, snap.Leaderboard.Improved)
	assert.Equal(t, "mission", snap.Leaderboard.Improved[0].Name)
	assert.InDelta(t, 0.5, snap.Leaderboard.Improved[0].Delta, 1e-9)

	current, err := c.Snapshot()
	require.NoError(t, err)
	assert.Same(t, snap, current)
	assert.Equal(t, 12, c.WindowHours())

	snaps, statuses := pub.published()
	require.Len(t, snaps, 1)
	assert.Same(t, snap, snaps[0])
	require.Len(t, statuses, 1)
	assert.False(t, statuses[0].degraded)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Refreshes.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Neighborhoods))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Records))
}

func TestController_FailureKeepsPreviousSnapshot(t *testing.T) {
	f := &mockFetcher{records: todayRecords(), baseline: baselineRecords()}
	pub := &mockPublisher{}
	c, _, m := newTestController(f, pub)

	first, err := c.Refresh(context.Background(), 24)
	require.NoError(t, err)

	fetchErr := &domain.FetchError{Dataset: "a", FallbackDataset: "b", Primary: domain.ErrNetwork, Fallback: domain.ErrSchema}
	f.set(func(m *mockFetcher) { m.fetchErr = fetchErr })

	_, err = c.Refresh(context.Background(), 48)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNetwork)

	st := c.State()
	assert.True(t, st.Degraded)
	assert.Contains(t, st.LastError, "fetch 48h window")
	assert.Same(t, first, st.Snapshot)
	assert.Equal(t, 48, st.WindowHours)

	_, statuses := pub.published()
	require.Len(t, statuses, 2)
	assert.True(t, statuses[1].degraded)
	assert.ErrorIs(t, statuses[1].err, domain.ErrSchema)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Refreshes.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Degraded))
}

func TestController_BaselineFailureDegrades(t *testing.T) {
	f := &mockFetcher{records: todayRecords(), baseErr: domain.ErrNetwork}
	c, _, _ := newTestController(f, nil)

	_, err := c.Refresh(context.Background(), 24)
	require.ErrorIs(t, err, domain.ErrNetwork)

	st := c.State()
	assert.True(t, st.Degraded)
	assert.Nil(t, st.Snapshot)
}

func TestController_RecoversFromDegraded(t *testing.T) {
	f := &mockFetcher{fetchErr: domain.ErrNetwork}
	c, _, m := newTestController(f, nil)

	_, err := c.Refresh(context.Background(), 24)
	require.Error(t, err)
	require.True(t, c.State().Degraded)

	f.set(func(m *mockFetcher) { m.fetchErr = nil; m.records = todayRecords() })
	_, err = c.Refresh(context.Background(), 24)
	require.NoError(t, err)

	st := c.State()
	assert.False(t, st.Degraded)
	assert.Empty(t, st.LastError)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Degraded))
}

func TestController_RejectsInvalidWindow(t *testing.T) {
	f := &mockFetcher{}
	c, _, _ := newTestController(f, nil)

	for _, h := range []int{0, -3, 73} {
		_, err := c.Refresh(context.Background(), h)
		assert.ErrorIs(t, err, domain.ErrInvalidWindow, "window %d", h)
	}
	assert.Empty(t, f.calls())
	assert.Equal(t, 24, c.WindowHours())
}

func TestController_DropsOverlappingRefresh(t *testing.T) {
	f := &mockFetcher{
		records: todayRecords(),
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	c, _, m := newTestController(f, nil)

	done := make(chan error, 1)
	go func() {
		_, err := c.Refresh(context.Background(), 24)
		done <- err
	}()

	<-f.entered
	assert.True(t, c.Refreshing())

	_, err := c.Refresh(context.Background(), 6)
	assert.ErrorIs(t, err, domain.ErrRefreshInFlight)

	close(f.release)
	require.NoError(t, <-done)

	assert.False(t, c.Refreshing())
	assert.Equal(t, []int{24}, f.calls())
	assert.Equal(t, 24, c.WindowHours())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Refreshes.WithLabelValues("dropped")))
}

func TestController_PublishErrorDoesNotFailRefresh(t *testing.T) {
	f := &mockFetcher{records: todayRecords()}
	pub := &mockPublisher{err: errors.New("hub stopped")}
	c, _, _ := newTestController(f, pub)

	_, err := c.Refresh(context.Background(), 24)
	require.NoError(t, err)
	assert.False(t, c.State().Degraded)
}

func TestController_EmptyDatasetIsNotAnError(t *testing.T) {
	c, _, _ := newTestController(&mockFetcher{}, nil)

	snap, err := c.Refresh(context.Background(), 24)
	require.NoError(t, err)
	assert.Empty(t, snap.Neighborhoods)
	assert.Empty(t, snap.Leaderboard.Happiest)
	assert.Empty(t, snap.Leaderboard.Improved)
}
