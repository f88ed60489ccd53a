package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/moodmap/internal/adapter/metrics"
	"github.com/pscheid92/moodmap/internal/aggregate"
	"github.com/pscheid92/moodmap/internal/domain"
	"github.com/pscheid92/moodmap/internal/leaderboard"
	"github.com/pscheid92/moodmap/internal/platform/correlation"
)

const (
	DefaultWindowHours = 24
	DefaultMaxWindow   = 24 * 7
)

// Config controls the windows a Controller accepts and how records are aggregated.
type Config struct {
	DefaultWindowHours int
	MaxWindowHours     int
	Aggregate          aggregate.Options
}

// State is a consistent copy of the controller's view for presentation.
type State struct {
	Snapshot    *domain.MapSnapshot
	WindowHours int
	Degraded    bool
	LastError   string
	LastAttempt time.Time
}

// Controller runs refresh cycles and owns their results.
type Controller struct {
	fetcher   domain.RecordFetcher
	publisher domain.SnapshotPublisher
	clock     clockwork.Clock
	metrics   *metrics.RefreshMetrics
	cfg       Config

	inFlight atomic.Bool

	mu          sync.RWMutex
	snapshot    *domain.MapSnapshot
	window      int
	degraded    bool
	lastErr     error
	lastAttempt time.Time
}

// NewController creates a controller with no snapshot yet.
// publisher and m may be nil.
func NewController(fetcher domain.RecordFetcher, publisher domain.SnapshotPublisher, clock clockwork.Clock, cfg Config, m *metrics.RefreshMetrics) *Controller {
	if cfg.DefaultWindowHours <= 0 {
		cfg.DefaultWindowHours = DefaultWindowHours
	}
	if cfg.MaxWindowHours <= 0 {
		cfg.MaxWindowHours = DefaultMaxWindow
	}
	if cfg.Aggregate.Location == nil {
		cfg.Aggregate = aggregate.DefaultOptions(time.UTC)
	}
	return &Controller{
		fetcher:   fetcher,
		publisher: publisher,
		clock:     clock,
		metrics:   m,
		cfg:       cfg,
		window:    cfg.DefaultWindowHours,
	}
}

// State returns the current snapshot and health.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st := State{
		Snapshot:    c.snapshot,
		WindowHours: c.window,
		Degraded:    c.degraded,
		LastAttempt: c.lastAttempt,
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	return st
}

// Snapshot returns the last successful snapshot, or ErrNoSnapshot before the first one.
func (c *Controller) Snapshot() (*domain.MapSnapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snapshot == nil {
		return nil, domain.ErrNoSnapshot
	}
	return c.snapshot, nil
}

// WindowHours returns the window the next periodic refresh will use.
func (c *Controller) WindowHours() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.window
}

// Refreshing reports whether a cycle is currently running.
func (c *Controller) Refreshing() bool {
	return c.inFlight.Load()
}

// ValidateWindow checks a requested window against the configured bounds.
func (c *Controller) ValidateWindow(windowHours int) error {
	if windowHours <= 0 || windowHours > c.cfg.MaxWindowHours {
		return fmt.Errorf("%w: %d hours (must be 1..%d)", domain.ErrInvalidWindow, windowHours, c.cfg.MaxWindowHours)
	}
	return nil
}

// RefreshCurrent re-runs the current window.
func (c *Controller) RefreshCurrent(ctx context.Context) (*domain.MapSnapshot, error) {
	return c.Refresh(ctx, c.WindowHours())
}

// Refresh runs one cycle for windowHours and makes it the current window.
// A call made while another cycle is running returns ErrRefreshInFlight.
// On failure the previous snapshot stays in place and the controller is degraded.
func (c *Controller) Refresh(ctx context.Context, windowHours int) (*domain.MapSnapshot, error) {
	if err := c.ValidateWindow(windowHours); err != nil {
		return nil, err
	}
	if !c.inFlight.CompareAndSwap(false, true) {
		c.metrics.Dropped()
		return nil, domain.ErrRefreshInFlight
	}
	defer c.inFlight.Store(false)

	ctx = correlation.Ensure(ctx)

	start := c.clock.Now()
	c.mu.Lock()
	c.window = windowHours
	c.lastAttempt = start
	c.mu.Unlock()

	snap, err := c.build(ctx, windowHours)
	elapsed := c.clock.Since(start)
	if err != nil {
		c.fail(ctx, err, elapsed)
		return nil, err
	}

	c.mu.Lock()
	c.snapshot = snap
	c.degraded = false
	c.lastErr = nil
	c.mu.Unlock()

	c.metrics.Succeeded(elapsed, len(snap.Neighborhoods), snap.RecordCount)
	slog.InfoContext(ctx, "Refresh completed",
		"window_hours", windowHours,
		"records", snap.RecordCount,
		"neighborhoods", len(snap.Neighborhoods),
		"duration", elapsed)

	if c.publisher != nil {
		if err := c.publisher.Publish(ctx, snap); err != nil {
			slog.WarnContext(ctx, "Failed to publish snapshot", "error", err)
		}
		if err := c.publisher.PublishStatus(ctx, false, nil); err != nil {
			slog.WarnContext(ctx, "Failed to publish status", "error", err)
		}
	}
	return snap, nil
}

func (c *Controller) build(ctx context.Context, windowHours int) (*domain.MapSnapshot, error) {
	records, err := c.fetcher.FetchRecords(ctx, windowHours)
	if err != nil {
		return nil, fmt.Errorf("fetch %dh window: %w", windowHours, err)
	}
	today := aggregate.Aggregate(records, c.cfg.Aggregate)

	baseline, err := c.fetcher.Yesterday(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch baseline: %w", err)
	}
	yesterday := aggregate.Aggregate(baseline, c.cfg.Aggregate)

	return &domain.MapSnapshot{
		ID:            uuid.New(),
		WindowHours:   windowHours,
		GeneratedAt:   c.clock.Now(),
		RecordCount:   len(records),
		Neighborhoods: today,
		Leaderboard:   leaderboard.Compute(today, yesterday),
	}, nil
}

func (c *Controller) fail(ctx context.Context, err error, elapsed time.Duration) {
	c.mu.Lock()
	c.degraded = true
	c.lastErr = err
	hasSnapshot := c.snapshot != nil
	c.mu.Unlock()

	c.metrics.Failed(elapsed)

	level := slog.LevelWarn
	if errors.Is(err, context.Canceled) {
		level = slog.LevelInfo
	}
	slog.Log(ctx, level, "Refresh failed, serving previous snapshot",
		"error", err,
		"has_snapshot", hasSnapshot,
		"duration", elapsed)

	if c.publisher != nil {
		if pubErr := c.publisher.PublishStatus(ctx, true, err); pubErr != nil {
			slog.WarnContext(ctx, "Failed to publish status", "error", pubErr)
		}
	}
}
