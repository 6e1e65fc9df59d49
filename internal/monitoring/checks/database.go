package checks

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/lookupcache/internal/models"
	"github.com/charlesng35/lookupcache/internal/monitoring"
)

const defaultDatabaseTimeout = 2 * time.Second

// Database returns a readiness probe that pings the cache database. A reachable database
// without the cache table reports degraded.
func Database(db *gorm.DB, timeout time.Duration) monitoring.Check {
	return monitoring.NewCheck("database", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if db == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "database not configured"}
		}

		sqlDB, err := db.DB()
		if err != nil {
			return monitoring.ResultFromError("database", err, time.Since(start))
		}

		probeCtx, cancel := context.WithTimeout(ctx, chooseTimeout(timeout, defaultDatabaseTimeout))
		defer cancel()

		if err := sqlDB.PingContext(probeCtx); err != nil {
			return monitoring.ResultFromError("database", err, time.Since(start))
		}
		if !db.WithContext(probeCtx).Migrator().HasTable(&models.CacheRecord{}) {
			return monitoring.ProbeResult{
				Component: "database",
				Status:    monitoring.StatusDegraded,
				Details:   "cache table missing",
				Duration:  time.Since(start),
			}
		}
		return monitoring.ResultFromError("database", nil, time.Since(start))
	})
}

func chooseTimeout(provided, fallback time.Duration) time.Duration {
	if provided <= 0 {
		return fallback
	}
	return provided
}
