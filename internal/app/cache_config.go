package app

import (
	"strings"

	"github.com/charlesng35/lookupcache/internal/cache"
)

// CacheOptions converts the cache configuration into options for the named TimeoutCache.
// Callers append their own clock, logger or recorder options.
func (c CacheConfig) CacheOptions(name string, extra ...cache.Option) []cache.Option {
	name = strings.ToLower(strings.TrimSpace(name))
	opts := []cache.Option{
		cache.WithName(name),
		cache.WithDefaultTTL(c.TTLFor(name)),
	}
	if c.RemovalWorkers > 0 {
		opts = append(opts, cache.WithRemovalWorkers(c.RemovalWorkers))
	}
	return append(opts, extra...)
}

// DatabaseSettings converts the database configuration into driver options for database.Open.
func (d DatabaseConfig) DatabaseSettings() (driver string, auth DBAuthConfig) {
	driver = strings.ToLower(strings.TrimSpace(d.Driver))
	switch driver {
	case "postgres", "postgresql":
		return "postgres", d.Postgres
	case "mysql":
		return "mysql", d.MySQL
	default:
		return "sqlite", DBAuthConfig{}
	}
}
