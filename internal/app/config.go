package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the lookupcache service.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Lookups    LookupConfig     `mapstructure:"lookups"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port      int             `mapstructure:"port"`
	LogLevel  string          `mapstructure:"log_level"`
	LogFormat string          `mapstructure:"log_format"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig bounds lookup requests per client and route. Zero requests disables it.
type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// CacheConfig holds expiry policy shared by every TimeoutCache plus per-cache overrides.
type CacheConfig struct {
	DefaultTTL     time.Duration      `mapstructure:"default_ttl"`
	RemovalWorkers int                `mapstructure:"removal_workers"`
	SweepInterval  time.Duration      `mapstructure:"sweep_interval"`
	Acronyms       NamedCacheSettings `mapstructure:"acronyms"`
	Weather        NamedCacheSettings `mapstructure:"weather"`
}

// NamedCacheSettings overrides the shared policy for a single cache.
type NamedCacheSettings struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// LookupConfig points the fetch-or-populate services at their remote sources.
type LookupConfig struct {
	Timeout  time.Duration `mapstructure:"timeout"`
	Acronyms SourceConfig  `mapstructure:"acronyms"`
	Weather  SourceConfig  `mapstructure:"weather"`
}

// SourceConfig describes one remote source. URL may contain a single %s placeholder that is
// replaced with the escaped lookup key.
type SourceConfig struct {
	URL string `mapstructure:"url"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// TTLFor returns the configured TTL for a named cache, falling back to the shared default.
func (c CacheConfig) TTLFor(name string) time.Duration {
	var override time.Duration
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "acronyms":
		override = c.Acronyms.TTL
	case "weather":
		override = c.Weather.TTL
	}
	if override > 0 {
		return override
	}
	return c.DefaultTTL
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("LOOKUPCACHE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.rate_limit.requests", 120)
	v.SetDefault("server.rate_limit.window", "1m")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/lookupcache.sqlite")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.mysql.port", 3306)

	v.SetDefault("cache.default_ttl", "10s")
	v.SetDefault("cache.removal_workers", 4)
	v.SetDefault("cache.sweep_interval", "12h")
	v.SetDefault("cache.acronyms.ttl", "24h")
	v.SetDefault("cache.weather.ttl", "30m")

	v.SetDefault("lookups.timeout", "10s")
	v.SetDefault("lookups.acronyms.url", "")
	v.SetDefault("lookups.weather.url", "")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
