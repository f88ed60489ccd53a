package httpserver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/pscheid92/moodmap/internal/domain"
	apperrors "github.com/pscheid92/moodmap/internal/platform/errors"
)

// refreshTimeout bounds a manual refresh, which outlives the request that triggered it.
const refreshTimeout = 2 * time.Minute

func (s *Server) registerAPIRoutes() {
	api := s.echo.Group("/api/v1")
	api.GET("/map", s.handleMap)
	api.GET("/leaderboard", s.handleLeaderboard)
	api.GET("/neighborhoods/:name", s.handleNeighborhood)
	api.GET("/choropleth", s.handleChoropleth)
	api.GET("/locate", s.handleLocate)
	api.POST("/refresh", s.handleRefresh, newRateLimiter(s.config.RefreshRateLimit, s.config.RefreshRateBurst))
}

func (s *Server) handleMap(c echo.Context) error {
	highContrast, err := parseContrast(c)
	if err != nil {
		return err
	}

	resp := newMapResponse(s.maps.State(), s.maps.Refreshing(), s.boundaries, highContrast)
	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleLeaderboard(c echo.Context) error {
	resp := newLeaderboardResponse(s.maps.State(), s.maps.Refreshing())
	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleNeighborhood(c echo.Context) error {
	highContrast, err := parseContrast(c)
	if err != nil {
		return err
	}

	name := c.Param("name")
	stats, ok := s.maps.State().Snapshot.Lookup(name)
	if !ok {
		return apperrors.NotFoundError("No data").WithContext("neighborhood", name)
	}

	if err := c.JSON(http.StatusOK, newNeighborhoodView(stats, s.boundaries, highContrast)); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleChoropleth(c echo.Context) error {
	if s.boundaries == nil {
		return apperrors.UnavailableError("boundary data not configured", nil)
	}
	highContrast, err := parseContrast(c)
	if err != nil {
		return err
	}

	var stats []domain.NeighborhoodStats
	if snap := s.maps.State().Snapshot; snap != nil {
		stats = snap.Neighborhoods
	}

	if err := c.JSON(http.StatusOK, s.boundaries.Choropleth(stats, highContrast)); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleLocate(c echo.Context) error {
	if s.boundaries == nil {
		return apperrors.UnavailableError("boundary data not configured", nil)
	}

	lat, err := parseCoordinate(c, "lat", 90)
	if err != nil {
		return err
	}
	lon, err := parseCoordinate(c, "lon", 180)
	if err != nil {
		return err
	}

	key, ok := s.boundaries.Locate(lat, lon)
	if !ok {
		return apperrors.NotFoundError("no neighborhood at this location").
			WithContext("lat", lat).
			WithContext("lon", lon)
	}

	resp := locateResponse{Name: key, DisplayName: displayName(key, s.boundaries)}
	if stats, ok := s.maps.State().Snapshot.Lookup(key); ok {
		v := newNeighborhoodView(stats, s.boundaries, false)
		resp.Neighborhood = &v
	}

	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleRefresh(c echo.Context) error {
	window := s.maps.State().WindowHours
	if raw := c.QueryParam("window"); raw != "" {
		h, err := strconv.Atoi(raw)
		if err != nil {
			return apperrors.ValidationError("window must be a whole number of hours").WithContext("window", raw)
		}
		window = h
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), refreshTimeout)
	defer cancel()

	_, err := s.maps.Refresh(ctx, window)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrInvalidWindow):
		return apperrors.ValidationError(err.Error()).WithContext("window", window)
	case errors.Is(err, domain.ErrRefreshInFlight):
		return apperrors.ConflictError("a refresh is already in progress")
	default:
		return apperrors.ExternalError("refresh failed, serving previous snapshot", err).WithContext("window", window)
	}

	resp := newMapResponse(s.maps.State(), false, s.boundaries, false)
	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func parseContrast(c echo.Context) (bool, error) {
	switch strings.ToLower(c.QueryParam("contrast")) {
	case "", "standard", "0", "false":
		return false, nil
	case "high", "1", "true":
		return true, nil
	default:
		return false, apperrors.ValidationError("contrast must be 'standard' or 'high'").
			WithContext("contrast", c.QueryParam("contrast"))
	}
}

func parseCoordinate(c echo.Context, name string, limit float64) (float64, error) {
	raw := c.QueryParam(name)
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || v < -limit || v > limit {
		return 0, apperrors.ValidationError(fmt.Sprintf("%s must be a number between -%g and %g", name, limit, limit)).
			WithContext(name, raw)
	}
	return v, nil
}
