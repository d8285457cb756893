package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Upstream Upstream
	Storage  Storage
	Cache    Cache
	Log      Log
}

// Where and how routes and delays are requested.
type Upstream struct {
	BaseURL string
	APIKey  string

	// Header carrying APIKey.
	APIKeyHeader string

	// Sent along with every request.
	ExtraHeaders map[string]string

	// GTFS-realtime TripUpdates feed. When set, delays are read
	// from it instead of the delay endpoint.
	RealtimeURL string

	RouteTimeout         time.Duration
	DelayTimeout         time.Duration
	DelayTTL             time.Duration
	DelayRefreshInterval time.Duration
}

type Storage struct {
	// One of memory, sqlite or postgres.
	Backend     string
	SQLiteDir   string
	PostgresDSN string
}

type Cache struct {
	// One of memory, filesystem or redis.
	Backend        string
	FilesystemPath string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
}

type Log struct {
	Level string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("TRANSIT_BASE_URL", "http://localhost:3000/api/v2")
	v.SetDefault("TRANSIT_API_KEY_HEADER", "x-api-key")
	v.SetDefault("TRANSIT_ROUTE_TIMEOUT", "30s")
	v.SetDefault("TRANSIT_DELAY_TIMEOUT", "10s")
	v.SetDefault("TRANSIT_DELAY_TTL", "5s")
	v.SetDefault("TRANSIT_DELAY_REFRESH_INTERVAL", "10s")
	v.SetDefault("TRANSIT_STORAGE", "memory")
	v.SetDefault("TRANSIT_SQLITE_DIR", ".")
	v.SetDefault("TRANSIT_CACHE", "memory")
	v.SetDefault("TRANSIT_CACHE_PATH", ".transit-cache")
	v.SetDefault("TRANSIT_REDIS_ADDR", "localhost:6379")
	v.SetDefault("TRANSIT_REDIS_DB", 0)
	v.SetDefault("TRANSIT_LOG_LEVEL", "info")
}

// Loads configuration from the environment. If path is non-empty, the
// env file there is read first; the environment takes precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}
	v.AutomaticEnv()

	cfg := &Config{
		Upstream: Upstream{
			BaseURL:              strings.TrimSuffix(v.GetString("TRANSIT_BASE_URL"), "/"),
			APIKey:               v.GetString("TRANSIT_API_KEY"),
			APIKeyHeader:         v.GetString("TRANSIT_API_KEY_HEADER"),
			RealtimeURL:          v.GetString("TRANSIT_REALTIME_URL"),
			RouteTimeout:         v.GetDuration("TRANSIT_ROUTE_TIMEOUT"),
			DelayTimeout:         v.GetDuration("TRANSIT_DELAY_TIMEOUT"),
			DelayTTL:             v.GetDuration("TRANSIT_DELAY_TTL"),
			DelayRefreshInterval: v.GetDuration("TRANSIT_DELAY_REFRESH_INTERVAL"),
		},
		Storage: Storage{
			Backend:     strings.ToLower(v.GetString("TRANSIT_STORAGE")),
			SQLiteDir:   v.GetString("TRANSIT_SQLITE_DIR"),
			PostgresDSN: v.GetString("TRANSIT_POSTGRES_DSN"),
		},
		Cache: Cache{
			Backend:        strings.ToLower(v.GetString("TRANSIT_CACHE")),
			FilesystemPath: v.GetString("TRANSIT_CACHE_PATH"),
			RedisAddr:      v.GetString("TRANSIT_REDIS_ADDR"),
			RedisPassword:  v.GetString("TRANSIT_REDIS_PASSWORD"),
			RedisDB:        v.GetInt("TRANSIT_REDIS_DB"),
		},
		Log: Log{
			Level: v.GetString("TRANSIT_LOG_LEVEL"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "memory", "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("postgres storage requires TRANSIT_POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("unknown storage backend '%s'", c.Storage.Backend)
	}

	switch c.Cache.Backend {
	case "memory", "filesystem", "redis":
	default:
		return fmt.Errorf("unknown cache backend '%s'", c.Cache.Backend)
	}

	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("TRANSIT_BASE_URL must be set")
	}
	if c.Upstream.DelayRefreshInterval <= 0 {
		return fmt.Errorf("TRANSIT_DELAY_REFRESH_INTERVAL must be positive")
	}

	return nil
}

// Headers sent with every upstream request.
func (u Upstream) Headers() map[string]string {
	headers := map[string]string{}
	for k, v := range u.ExtraHeaders {
		headers[k] = v
	}
	if u.APIKey != "" {
		headers[u.APIKeyHeader] = u.APIKey
	}
	return headers
}
