package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"

	"github.com/pscheid92/moodmap/internal/adapter/boundary"
	"github.com/pscheid92/moodmap/internal/adapter/metrics"
	"github.com/pscheid92/moodmap/internal/app"
	"github.com/pscheid92/moodmap/internal/domain"
	"github.com/pscheid92/moodmap/internal/platform/config"
)

type mapService interface {
	State() app.State
	Refresh(ctx context.Context, windowHours int) (*domain.MapSnapshot, error)
	Refreshing() bool
}

// Deps are the collaborators a Server routes to. Boundaries, WebSocket,
// Metrics and HTTPMetrics may be nil; the matching routes are then
// unavailable or unmounted.
type Deps struct {
	Maps         mapService
	Boundaries   *boundary.Index
	WebSocket    http.Handler
	Metrics      http.Handler
	HTTPMetrics  *metrics.HTTPMetrics
	HealthChecks []HealthCheck
	Clock        clockwork.Clock
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	maps       mapService
	boundaries *boundary.Index

	websocketHandler http.Handler
	metricsHandler   http.Handler
	httpMetrics      *metrics.HTTPMetrics

	healthChecks []HealthCheck
	clock        clockwork.Clock
	startTime    time.Time
}

func NewServer(cfg *config.Config, deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	srv := &Server{
		echo:             e,
		config:           cfg,
		maps:             deps.Maps,
		boundaries:       deps.Boundaries,
		websocketHandler: deps.WebSocket,
		metricsHandler:   deps.Metrics,
		httpMetrics:      deps.HTTPMetrics,
		healthChecks:     deps.HealthChecks,
		clock:            clock,
		startTime:        clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// ServeHTTP lets tests and embedders drive the router directly.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
