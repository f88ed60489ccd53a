package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/moodmap/internal/domain"
	"github.com/pscheid92/moodmap/internal/platform/correlation"
)

const DefaultRefreshInterval = 5 * time.Minute

// RefreshTicker periodically re-runs the controller's current window so the map
// follows the dataset without user interaction.
type RefreshTicker struct {
	controller *Controller
	clock      clockwork.Clock
	interval   time.Duration
}

func NewRefreshTicker(controller *Controller, clock clockwork.Clock, interval time.Duration) *RefreshTicker {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &RefreshTicker{controller: controller, clock: clock, interval: interval}
}

// Run starts the periodic refresh loop. It blocks until ctx is cancelled.
func (t *RefreshTicker) Run(ctx context.Context) {
	ticker := t.clock.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			t.tick(ctx)
		}
	}
}

func (t *RefreshTicker) tick(ctx context.Context) {
	tickCtx := correlation.WithID(ctx, correlation.NewID())

	_, err := t.controller.RefreshCurrent(tickCtx)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrRefreshInFlight):
		slog.DebugContext(tickCtx, "Ticker: refresh skipped, previous cycle still running")
	default:
		slog.DebugContext(tickCtx, "Ticker: refresh failed", "error", err)
	}
}
