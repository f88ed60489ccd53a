package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	AppURL    string `env:"APP_URL" default:"http://localhost:8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	// Empty keeps the record cache in process memory.
	RedisURL string `env:"REDIS_URL"`

	DatasetBaseURL   string        `env:"DATASET_BASE_URL" default:"https://data.sfgov.org/resource"`
	DatasetID        string        `env:"DATASET_ID" default:"vw6y-z8j6"`
	CatalogURL       string        `env:"CATALOG_URL" default:"https://api.us.socrata.com/api/catalog/v1"`
	CatalogDomain    string        `env:"CATALOG_DOMAIN" default:"data.sfgov.org"`
	CatalogQuery     string        `env:"CATALOG_QUERY" default:"311 cases"`
	SocrataAppToken  string        `env:"SOCRATA_APP_TOKEN"`
	RowLimit         int           `env:"ROW_LIMIT" default:"20000"`
	DiscoveryTimeout time.Duration `env:"DISCOVERY_TIMEOUT" default:"5s"`
	RequestTimeout   time.Duration `env:"REQUEST_TIMEOUT" default:"30s"`

	CacheNamespace string        `env:"CACHE_NAMESPACE" default:"311"`
	CacheTTL       time.Duration `env:"CACHE_TTL" default:"60s"`
	CityTimezone   string        `env:"CITY_TIMEZONE" default:"America/Los_Angeles"`

	DefaultWindowHours int           `env:"DEFAULT_WINDOW_HOURS" default:"24"`
	MaxWindowHours     int           `env:"MAX_WINDOW_HOURS" default:"168"`
	RefreshInterval    time.Duration `env:"REFRESH_INTERVAL" default:"5m"`
	BoundaryPath       string        `env:"BOUNDARY_PATH"`

	RefreshRateLimit float64 `env:"REFRESH_RATE_LIMIT" default:"0.2"` // requests per second per client
	RefreshRateBurst int     `env:"REFRESH_RATE_BURST" default:"3"`

	MaxWebSocketConnections int `env:"MAX_WEBSOCKET_CONNECTIONS" default:"500"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Location resolves CITY_TIMEZONE. Load has already checked that it exists.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.CityTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func validate(cfg *Config) error {
	required := map[string]string{
		"PORT":             cfg.Port,
		"DATASET_BASE_URL": cfg.DatasetBaseURL,
		"DATASET_ID":       cfg.DatasetID,
		"CATALOG_URL":      cfg.CatalogURL,
		"CACHE_NAMESPACE":  cfg.CacheNamespace,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	if _, err := time.LoadLocation(cfg.CityTimezone); err != nil {
		return fmt.Errorf("CITY_TIMEZONE is not a known time zone: %w", err)
	}

	if cfg.RowLimit <= 0 {
		return errors.New("ROW_LIMIT must be positive")
	}
	if cfg.CacheTTL <= 0 {
		return errors.New("CACHE_TTL must be positive")
	}
	if cfg.DiscoveryTimeout <= 0 || cfg.RequestTimeout <= 0 {
		return errors.New("DISCOVERY_TIMEOUT and REQUEST_TIMEOUT must be positive")
	}
	if cfg.MaxWindowHours <= 0 {
		return errors.New("MAX_WINDOW_HOURS must be positive")
	}
	if cfg.DefaultWindowHours <= 0 || cfg.DefaultWindowHours > cfg.MaxWindowHours {
		return fmt.Errorf("DEFAULT_WINDOW_HOURS must be between 1 and %d, got %d", cfg.MaxWindowHours, cfg.DefaultWindowHours)
	}
	if cfg.RefreshInterval < time.Minute {
		return fmt.Errorf("REFRESH_INTERVAL must be at least 1m, got %s", cfg.RefreshInterval)
	}
	if cfg.RefreshRateLimit <= 0 || cfg.RefreshRateBurst < 1 {
		return errors.New("REFRESH_RATE_LIMIT must be positive and REFRESH_RATE_BURST at least 1")
	}
	if cfg.MaxWebSocketConnections <= 0 {
		return errors.New("MAX_WEBSOCKET_CONNECTIONS must be positive")
	}

	return nil
}
