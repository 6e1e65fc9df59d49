package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/lookupcache/internal/api"
	"github.com/charlesng35/lookupcache/internal/app"
	"github.com/charlesng35/lookupcache/internal/app/maintenance"
	"github.com/charlesng35/lookupcache/internal/cache"
	"github.com/charlesng35/lookupcache/internal/database"
	"github.com/charlesng35/lookupcache/internal/handlers"
	"github.com/charlesng35/lookupcache/internal/lookup"
	"github.com/charlesng35/lookupcache/internal/middleware"
	"github.com/charlesng35/lookupcache/internal/monitoring"
	"github.com/charlesng35/lookupcache/internal/monitoring/checks"
	"github.com/charlesng35/lookupcache/pkg/logger"
)

// runtimeStack bundles long-lived components used by the HTTP server.
type runtimeStack struct {
	DB         *gorm.DB
	Monitoring *monitoring.Module
	Scheduler  *maintenance.Scheduler
	Sweeper    *maintenance.Sweeper
	Acronyms   *cache.TimeoutCache[lookup.Acronym]
	Weather    *cache.TimeoutCache[lookup.Condition]
	Router     *gin.Engine
}

// bootstrapRuntime opens the database, builds both caches with their sweeps and lookup
// services, and assembles the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			_ = stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.Monitoring, err = monitoring.NewModule(monitoring.Options{})
	if err != nil {
		return nil, fmt.Errorf("initialise monitoring: %w", err)
	}
	monitoring.SetModule(stack.Monitoring)

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	stack.Monitoring.Health().RegisterReadiness(checks.Database(stack.DB, 0))
	stack.Monitoring.Health().RegisterReadiness(checks.Maintenance(2 * cfg.Cache.SweepInterval))

	cacheLog := logger.WithModule("cache")
	stack.Acronyms = cache.New[lookup.Acronym](
		cache.NewDatabaseStore(stack.DB, "acronyms"),
		cfg.Cache.CacheOptions("acronyms", cache.WithLogger(cacheLog), cache.WithRecorder(stack.Monitoring))...,
	)
	stack.Weather = cache.New[lookup.Condition](
		cache.NewDatabaseStore(stack.DB, "weather"),
		cfg.Cache.CacheOptions("weather", cache.WithLogger(cacheLog), cache.WithRecorder(stack.Monitoring))...,
	)

	stack.Scheduler = maintenance.NewScheduler()
	stack.Sweeper = maintenance.NewSweeper(stack.Scheduler, maintenance.WithInterval(cfg.Cache.SweepInterval))
	for _, target := range []maintenance.Sweepable{stack.Acronyms, stack.Weather} {
		if err := stack.Sweeper.Activate(target); err != nil {
			return nil, fmt.Errorf("activate sweep: %w", err)
		}
	}
	stack.Scheduler.Start()

	acronymSvc, err := newLookupService(stack.Acronyms, cfg.Lookups.Acronyms, cfg.Lookups, lookup.NewAcronymService, log)
	if err != nil {
		return nil, err
	}
	weatherSvc, err := newLookupService(stack.Weather, cfg.Lookups.Weather, cfg.Lookups, lookup.NewWeatherService, log)
	if err != nil {
		return nil, err
	}

	stack.Router, err = api.NewRouter(api.Dependencies{
		Config:     cfg,
		Monitoring: stack.Monitoring,
		Caches:     []handlers.CacheAdmin{handlers.AdminFor(stack.Acronyms), handlers.AdminFor(stack.Weather)},
		Acronyms:   acronymSvc,
		Weather:    weatherSvc,
		RateStore:  middleware.NewMemoryRateStore(nil),
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// newLookupService wires a fetch-or-populate service when the source URL is configured.
// An unconfigured source yields a nil service and the route reports 404.
func newLookupService[R any](
	c *cache.TimeoutCache[R],
	source app.SourceConfig,
	lookups app.LookupConfig,
	build func(*cache.TimeoutCache[R], lookup.Fetcher[R]) (*lookup.Service[R], error),
	log *zap.Logger,
) (*lookup.Service[R], error) {
	if strings.TrimSpace(source.URL) == "" {
		log.Info("lookup source not configured", zap.String("cache", c.Name()))
		return nil, nil
	}

	fetcher, err := lookup.NewHTTPFetcher[R](source.URL, nil, lookups.Timeout)
	if err != nil {
		return nil, fmt.Errorf("initialise %s fetcher: %w", c.Name(), err)
	}
	return build(c, fetcher)
}

// Shutdown stops the sweep scheduler, drains background removals and closes the database.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) error {
	if s == nil {
		return nil
	}

	var errs error
	if s.Scheduler != nil {
		select {
		case <-s.Scheduler.Stop().Done():
		case <-ctx.Done():
			errs = multierr.Append(errs, fmt.Errorf("wait for maintenance jobs: %w", ctx.Err()))
		}
	}

	if s.Acronyms != nil {
		errs = multierr.Append(errs, s.Acronyms.Close())
	}
	if s.Weather != nil {
		errs = multierr.Append(errs, s.Weather.Close())
	}

	if s.DB != nil {
		if err := database.Close(s.DB); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close database: %w", err))
		}
	}

	if errs != nil {
		log.Warn("shutdown completed with errors", zap.Error(errs))
	}
	return errs
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	logger.WithModule("database").Info("database connected", zap.String("driver", dbCfg.Driver))
	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	driver, auth := cfg.Database.DatabaseSettings()
	return database.Config{
		Driver:   driver,
		Path:     strings.TrimSpace(cfg.Database.Path),
		DSN:      strings.TrimSpace(cfg.Database.DSN),
		Host:     strings.TrimSpace(auth.Host),
		Port:     auth.Port,
		Name:     strings.TrimSpace(auth.Database),
		User:     strings.TrimSpace(auth.Username),
		Password: auth.Password,
	}
}
