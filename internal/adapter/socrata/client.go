package socrata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/go-playground/validator/v10"

	"github.com/pscheid92/moodmap/internal/adapter/metrics"
	"github.com/pscheid92/moodmap/internal/domain"
	"github.com/pscheid92/moodmap/internal/platform/version"
)

const (
	DefaultBaseURL       = "https://data.sfgov.org/resource"
	DefaultDatasetID     = "vw6y-z8j6"
	DefaultCatalogURL    = "https://api.us.socrata.com/api/catalog/v1"
	DefaultCatalogDomain = "data.sfgov.org"
	DefaultCatalogQuery  = "311 cases"
	DefaultRowLimit      = 20000

	defaultDiscoveryTimeout = 5 * time.Second
	maxErrorBody            = 512
)

// Config describes the dataset endpoints.
type Config struct {
	BaseURL   string
	DatasetID string
	// FallbackDatasetID is used when catalog discovery yields nothing.
	FallbackDatasetID string

	CatalogURL    string
	CatalogDomain string
	CatalogQuery  string

	AppToken         string
	RowLimit         int
	DiscoveryTimeout time.Duration
	// RequestTimeout bounds each dataset query. Zero means no timeout.
	RequestTimeout time.Duration

	// Location interprets floating timestamps. Nil means UTC.
	Location *time.Location
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.DatasetID == "" {
		c.DatasetID = DefaultDatasetID
	}
	if c.FallbackDatasetID == "" {
		c.FallbackDatasetID = DefaultDatasetID
	}
	if c.CatalogURL == "" {
		c.CatalogURL = DefaultCatalogURL
	}
	if c.CatalogDomain == "" {
		c.CatalogDomain = DefaultCatalogDomain
	}
	if c.CatalogQuery == "" {
		c.CatalogQuery = DefaultCatalogQuery
	}
	if c.RowLimit <= 0 {
		c.RowLimit = DefaultRowLimit
	}
	if c.DiscoveryTimeout <= 0 {
		c.DiscoveryTimeout = defaultDiscoveryTimeout
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
	return c
}

// Client fetches records from a SODA endpoint.
type Client struct {
	cfg      Config
	http     *http.Client
	cb       circuitbreaker.CircuitBreaker[any]
	validate *validator.Validate
	metrics  *metrics.FeedMetrics
}

var _ domain.RecordSource = (*Client)(nil)

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithCircuitBreaker replaces the breaker guarding the primary dataset.
func WithCircuitBreaker(cb circuitbreaker.CircuitBreaker[any]) Option {
	return func(c *Client) { c.cb = cb }
}

// NewClient builds a client. m may be nil.
func NewClient(cfg Config, m *metrics.FeedMetrics, opts ...Option) *Client {
	cfg = cfg.withDefaults()
	c := &Client{
		cfg:      cfg,
		http:     &http.Client{Timeout: cfg.RequestTimeout},
		validate: NewValidator(cfg.Location),
		metrics:  m,
	}
	c.cb = newPrimaryBreaker(m)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// newPrimaryBreaker trips after 60% failures over at least 5 requests in 10s
// and probes again after 30s.
func newPrimaryBreaker(m *metrics.FeedMetrics) circuitbreaker.CircuitBreaker[any] {
	return circuitbreaker.NewBuilder[any]().
		WithFailureRateThreshold(0.6, 5, 10*time.Second).
		WithDelay(30 * time.Second).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("Circuit breaker state changed",
				"component", "dataset",
				"from", e.OldState.String(),
				"to", e.NewState.String(),
			)
			m.SetCircuitState(e.NewState.String(), stateToFloat(e.NewState))
		}).
		Build()
}

func stateToFloat(state circuitbreaker.State) float64 {
	switch state {
	case circuitbreaker.ClosedState:
		return 0
	case circuitbreaker.HalfOpenState:
		return 1
	case circuitbreaker.OpenState:
		return 2
	default:
		return -1
	}
}

// attempt is the outcome of one dataset query.
type attempt struct {
	dataset string
	records []domain.Record
	err     error
}

func (a attempt) ok() bool { return a.err == nil }

// FetchSince returns records updated after since, newest first. When both the
// primary and the fallback attempt fail the error is a *domain.FetchError.
func (c *Client) FetchSince(ctx context.Context, since time.Time) ([]domain.Record, error) {
	primary := c.fetchPrimary(ctx, since)
	if primary.ok() {
		return primary.records, nil
	}

	slog.WarnContext(ctx, "Primary dataset fetch failed, falling back",
		"dataset", primary.dataset,
		"error", primary.err,
	)

	fallback := c.fetchDataset(ctx, "fallback", c.DiscoverDataset(ctx), since)
	if fallback.ok() {
		return fallback.records, nil
	}

	return nil, &domain.FetchError{
		Dataset:         primary.dataset,
		FallbackDataset: fallback.dataset,
		Primary:         primary.err,
		Fallback:        fallback.err,
	}
}

func (c *Client) fetchPrimary(ctx context.Context, since time.Time) attempt {
	if !c.cb.TryAcquirePermit() {
		return attempt{
			dataset: c.cfg.DatasetID,
			err:     fmt.Errorf("%w: %w", domain.ErrNetwork, circuitbreaker.ErrOpen),
		}
	}

	a := c.fetchDataset(ctx, "primary", c.cfg.DatasetID, since)
	if a.ok() {
		c.cb.RecordSuccess()
	} else {
		c.cb.RecordError(a.err)
	}
	return a
}

func (c *Client) fetchDataset(ctx context.Context, label, dataset string, since time.Time) attempt {
	start := time.Now()
	records, err := c.query(ctx, dataset, since)
	c.metrics.ObserveRequest(label, time.Since(start), len(records), err)
	return attempt{dataset: dataset, records: records, err: err}
}

// QueryURL builds the SODA query for dataset and cutoff.
func (c *Client) QueryURL(dataset string, since time.Time) string {
	q := url.Values{}
	q.Set("$select", strings.Join(domain.RecordFields, ","))
	q.Set("$where", fmt.Sprintf("updated_datetime > '%s'", domain.FormatFloating(since, c.cfg.Location)))
	q.Set("$order", "updated_datetime DESC")
	q.Set("$limit", strconv.Itoa(c.cfg.RowLimit))
	return c.cfg.BaseURL + "/" + url.PathEscape(dataset) + ".json?" + q.Encode()
}

func (c *Client) query(ctx context.Context, dataset string, since time.Time) ([]domain.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.QueryURL(dataset, since), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create dataset request: %w", domain.ErrNetwork, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if c.cfg.AppToken != "" {
		req.Header.Set("X-App-Token", c.cfg.AppToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%w: dataset %s returned status %d: %s",
			domain.ErrNetwork, dataset, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return c.decode(resp.Body)
}

// decode parses a JSON array of records. Any malformed row rejects the whole batch.
func (c *Client) decode(r io.Reader) ([]domain.Record, error) {
	var records []domain.Record
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSchema, err)
	}
	if records == nil {
		return nil, fmt.Errorf("%w: expected a JSON array", domain.ErrSchema)
	}

	for i := range records {
		if err := c.validate.Struct(&records[i]); err != nil {
			return nil, fmt.Errorf("%w: row %d: %w", domain.ErrSchema, i, err)
		}
	}
	return records, nil
}
