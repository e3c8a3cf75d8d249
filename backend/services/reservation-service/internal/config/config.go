package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	libconfig "swapstation/backend/libs/config"
)

// Selection store backends.
const (
	SelectionBackendRedis  = "redis"
	SelectionBackendMemory = "memory"
)

// Config defines reservation service configuration.
type Config struct {
	HTTP struct {
		Port string `yaml:"port" env:"RESERVATION_HTTP_PORT"`
	} `yaml:"http"`
	Database struct {
		DSN string `yaml:"dsn" env:"RESERVATION_POSTGRES_DSN"`
	} `yaml:"database"`
	Redis struct {
		Addr     string `yaml:"addr" env:"RESERVATION_REDIS_ADDR"`
		Password string `yaml:"password" env:"RESERVATION_REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"RESERVATION_REDIS_DB"`
		TTL      int    `yaml:"ttlSeconds" env:"RESERVATION_REDIS_TTL"`
	} `yaml:"redis"`
	Selection struct {
		Backend string `yaml:"backend" env:"RESERVATION_SELECTION_BACKEND"`
	} `yaml:"selection"`
	JWT struct {
		Secret string `yaml:"secret" env:"RESERVATION_JWT_SECRET"`
	} `yaml:"jwt"`
	Services struct {
		StationsURL      string `yaml:"stationsUrl" env:"STATIONS_SERVICE_URL"`
		GeocodeURL       string `yaml:"geocodeUrl" env:"GEOCODE_SERVICE_URL"`
		GeocodeUserAgent string `yaml:"geocodeUserAgent" env:"GEOCODE_USER_AGENT"`
	} `yaml:"services"`
	HTTPClient struct {
		TimeoutSeconds int `yaml:"timeoutSeconds" env:"RESERVATION_HTTP_TIMEOUT"`
	} `yaml:"httpClient"`
	Directory struct {
		DefaultRadiusKm float64       `yaml:"defaultRadiusKm" env:"RESERVATION_DEFAULT_RADIUS_KM"`
		SnapshotTTL     time.Duration `yaml:"snapshotTtl" env:"RESERVATION_SNAPSHOT_TTL"`
		PruneInterval   time.Duration `yaml:"pruneInterval" env:"RESERVATION_SNAPSHOT_PRUNE_INTERVAL"`
	} `yaml:"directory"`
	Notifications struct {
		AllowedOrigins []string `yaml:"allowedOrigins" env:"RESERVATION_ALLOWED_ORIGINS"`
	} `yaml:"notifications"`
}

// Load reads configuration via shared helper. Only the database is required here;
// Validate checks what serving needs on top.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.HTTP.Port = "8085"
	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.TTL = 7200
	cfg.Selection.Backend = SelectionBackendRedis
	cfg.Services.GeocodeUserAgent = "swapstation-reservation/1.0"
	cfg.HTTPClient.TimeoutSeconds = 5
	cfg.Directory.DefaultRadiusKm = 10
	cfg.Directory.SnapshotTTL = 2 * time.Hour
	cfg.Directory.PruneInterval = 5 * time.Minute

	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return nil, errors.New("config: database dsn required")
	}
	return cfg, nil
}

// Validate checks the settings needed to serve traffic.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return errors.New("config: jwt secret required")
	}
	if strings.TrimSpace(c.Services.StationsURL) == "" {
		return errors.New("config: stations service url required")
	}
	if c.Directory.SnapshotTTL <= 0 {
		return errors.New("config: directory snapshot ttl must be positive")
	}
	switch c.Selection.Backend {
	case SelectionBackendRedis:
		if strings.TrimSpace(c.Redis.Addr) == "" {
			return errors.New("config: redis addr required")
		}
	case SelectionBackendMemory:
	default:
		return fmt.Errorf("config: unknown selection backend %q", c.Selection.Backend)
	}
	return nil
}

// HTTPAddress returns :port style.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8085"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// HTTPTimeout returns http client timeout.
func (c *Config) HTTPTimeout() time.Duration {
	if c.HTTPClient.TimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.HTTPClient.TimeoutSeconds) * time.Second
}

// SelectionTTL returns the sliding expiry of stored selections.
func (c *Config) SelectionTTL() time.Duration {
	if c.Redis.TTL <= 0 {
		return 2 * time.Hour
	}
	return time.Duration(c.Redis.TTL) * time.Second
}
