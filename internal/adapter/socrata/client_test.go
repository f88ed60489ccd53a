package socrata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/moodmap/internal/adapter/metrics"
	"github.com/pscheid92/moodmap/internal/domain"
)

const validBody = `[
  {"category":"Graffiti","status":"Closed","neighborhood":"Mission","updated_datetime":"2024-03-01T10:15:00.000","service_request_id":"101"},
  {"request_type":"Street Festival","neighborhoods_sffind_boundaries":"SoMa","point":{"type":"Point","coordinates":[-122.4,37.7]},"updated_datetime":"2024-03-01T09:00:00.000"}
]`

var pst = time.FixedZone("PST", -8*60*60)

// fakeSODA serves datasets under /resource/<id>.json and the catalog under /catalog.
type fakeSODA struct {
	mu       sync.Mutex
	datasets map[string]func(w http.ResponseWriter, r *http.Request)
	catalog  func(w http.ResponseWriter, r *http.Request)
	hits     []string
	lastReq  *http.Request
}

func (f *fakeSODA) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.hits = append(f.hits, r.URL.Path)
	f.lastReq = r
	f.mu.Unlock()

	if r.URL.Path == "/catalog" {
		if f.catalog == nil {
			http.Error(w, "no catalog", http.StatusInternalServerError)
			return
		}
		f.catalog(w, r)
		return
	}

	id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/resource/"), ".json")
	if h, ok := f.datasets[id]; ok {
		h(w, r)
		return
	}
	http.NotFound(w, r)
}

func (f *fakeSODA) last() *http.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastReq
}

func (f *fakeSODA) paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.hits...)
}

func respond(status int, body string) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func newTestClient(t *testing.T, fake *fakeSODA, opts ...Option) (*Client, *metrics.FeedMetrics) {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	m := metrics.NewFeedMetrics(prometheus.NewRegistry())
	c := NewClient(Config{
		BaseURL:           srv.URL + "/resource",
		DatasetID:         "prim-ary1",
		FallbackDatasetID: "dflt-0001",
		CatalogURL:        srv.URL + "/catalog",
		AppToken:          "token-123",
		DiscoveryTimeout:  200 * time.Millisecond,
		Location:          pst,
	}, m, opts...)
	return c, m
}

func TestFetchSince_PrimarySuccess(t *testing.T) {
	fake := &fakeSODA{datasets: map[string]func(http.ResponseWriter, *http.Request){
		"prim-ary1": respond(http.StatusOK, validBody),
	}}
	c, m := newTestClient(t, fake)

	since := time.Date(2024, 3, 1, 16, 0, 0, 0, time.UTC)
	records, err := c.FetchSince(context.Background(), since)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "mission", records[0].NeighborhoodName())
	assert.Equal(t, "soma", records[1].NeighborhoodName())
	require.NotNil(t, records[1].Point)
	assert.Equal(t, []float64{-122.4, 37.7}, records[1].Point.Coordinates)

	req := fake.last()
	assert.Equal(t, "token-123", req.Header.Get("X-App-Token"))
	assert.True(t, strings.HasPrefix(req.Header.Get("User-Agent"), "moodmap/"))
	q := req.URL.Query()
	assert.Equal(t, strings.Join(domain.RecordFields, ","), q.Get("$select"))
	assert.Equal(t, "updated_datetime > '2024-03-01T08:00:00.000'", q.Get("$where"))
	assert.Equal(t, "updated_datetime DESC", q.Get("$order"))
	assert.Equal(t, "20000", q.Get("$limit"))

	assert.Equal(t, []string{"/resource/prim-ary1.json"}, fake.paths())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DatasetRequests.WithLabelValues("primary", "success")))
}

func TestFetchSince_EmptyArray(t *testing.T) {
	fake := &fakeSODA{datasets: map[string]func(http.ResponseWriter, *http.Request){
		"prim-ary1": respond(http.StatusOK, `[]`),
	}}
	c, _ := newTestClient(t, fake)

	records, err := c.FetchSince(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFetchSince_FallbackToDiscoveredDataset(t *testing.T) {
	fake := &fakeSODA{
		datasets: map[string]func(http.ResponseWriter, *http.Request){
			"prim-ary1": respond(http.StatusServiceUnavailable, "down"),
			"disc-0002": respond(http.StatusOK, validBody),
		},
		catalog: respond(http.StatusOK, `{"results":[
			{"resource":{"id":"othr-0003","name":"Street Trees"}},
			{"resource":{"id":"disc-0002","name":"311 Cases"}}
		]}`),
	}
	c, m := newTestClient(t, fake)

	records, err := c.FetchSince(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, []string{"/resource/prim-ary1.json", "/catalog", "/resource/disc-0002.json"}, fake.paths())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Discoveries.WithLabelValues("found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DatasetRequests.WithLabelValues("fallback", "success")))
}

func TestFetchSince_SchemaViolationTriggersFallback(t *testing.T) {
	tests := map[string]string{
		"missing timestamp": `[{"category":"Graffiti"}]`,
		"bad timestamp":     `[{"updated_datetime":"last tuesday"}]`,
		"wrong field type":  `[{"updated_datetime":"2024-03-01T10:15:00","category":42}]`,
		"point without xy":  `[{"updated_datetime":"2024-03-01T10:15:00","point":{"type":"Point"}}]`,
		"not an array":      `{"error":"boom"}`,
		"truncated":         `[{"updated_datetime":`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			fake := &fakeSODA{datasets: map[string]func(http.ResponseWriter, *http.Request){
				"prim-ary1": respond(http.StatusOK, body),
				"dflt-0001": respond(http.StatusOK, validBody),
			}}
			c, _ := newTestClient(t, fake)

			records, err := c.FetchSince(context.Background(), time.Now())
			require.NoError(t, err)
			assert.Len(t, records, 2)
			assert.Contains(t, fake.paths(), "/resource/dflt-0001.json")
		})
	}
}

func TestFetchSince_DiscoveryFailureUsesDefault(t *testing.T) {
	fake := &fakeSODA{
		datasets: map[string]func(http.ResponseWriter, *http.Request){
			"prim-ary1": respond(http.StatusInternalServerError, "boom"),
			"dflt-0001": respond(http.StatusOK, validBody),
		},
		catalog: respond(http.StatusOK, `{"results":[{"resource":{"id":"x","name":"Parking Citations"}}]}`),
	}
	c, m := newTestClient(t, fake)

	records, err := c.FetchSince(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Discoveries.WithLabelValues("default")))
}

func TestDiscoverDataset_Timeout(t *testing.T) {
	fake := &fakeSODA{catalog: func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}}
	c, _ := newTestClient(t, fake)

	start := time.Now()
	assert.Equal(t, "dflt-0001", c.DiscoverDataset(context.Background()))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestFetchSince_BothAttemptsFail(t *testing.T) {
	fake := &fakeSODA{
		datasets: map[string]func(http.ResponseWriter, *http.Request){
			"prim-ary1": respond(http.StatusInternalServerError, "boom"),
			"dflt-0001": respond(http.StatusOK, `[{"category":"no timestamp"}]`),
		},
	}
	c, m := newTestClient(t, fake)

	records, err := c.FetchSince(context.Background(), time.Now())
	require.Error(t, err)
	assert.Nil(t, records)

	var fetchErr *domain.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, "prim-ary1", fetchErr.Dataset)
	assert.Equal(t, "dflt-0001", fetchErr.FallbackDataset)
	assert.ErrorIs(t, fetchErr.Primary, domain.ErrNetwork)
	assert.ErrorIs(t, fetchErr.Fallback, domain.ErrSchema)
	assert.ErrorIs(t, err, domain.ErrNetwork)
	assert.ErrorIs(t, err, domain.ErrSchema)

	// Exactly one retry.
	assert.Len(t, fake.paths(), 3)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DatasetRequests.WithLabelValues("fallback", "error")))
}

func TestFetchSince_OpenBreakerSkipsPrimary(t *testing.T) {
	fake := &fakeSODA{datasets: map[string]func(http.ResponseWriter, *http.Request){
		"prim-ary1": respond(http.StatusInternalServerError, "boom"),
		"dflt-0001": respond(http.StatusOK, validBody),
	}}
	cb := circuitbreaker.NewBuilder[any]().
		WithFailureThreshold(1).
		WithDelay(time.Hour).
		Build()
	c, _ := newTestClient(t, fake, WithCircuitBreaker(cb))

	_, err := c.FetchSince(context.Background(), time.Now())
	require.NoError(t, err)
	assert.True(t, cb.IsOpen())

	_, err = c.FetchSince(context.Background(), time.Now())
	require.NoError(t, err)

	primaryHits := 0
	for _, p := range fake.paths() {
		if p == "/resource/prim-ary1.json" {
			primaryHits++
		}
	}
	assert.Equal(t, 1, primaryHits)
}

func TestQueryURL_EscapesParameters(t *testing.T) {
	c := NewClient(Config{Location: time.UTC}, nil)
	u := c.QueryURL("vw6y-z8j6", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))

	assert.True(t, strings.HasPrefix(u, "https://data.sfgov.org/resource/vw6y-z8j6.json?"))
	assert.Contains(t, u, "%24limit=20000")
	assert.NotContains(t, u, " ")
}
