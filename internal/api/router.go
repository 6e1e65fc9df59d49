package api

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/lookupcache/internal/app"
	"github.com/charlesng35/lookupcache/internal/handlers"
	"github.com/charlesng35/lookupcache/internal/lookup"
	"github.com/charlesng35/lookupcache/internal/middleware"
	"github.com/charlesng35/lookupcache/internal/monitoring"
)

// Dependencies are the components the router exposes over HTTP.
type Dependencies struct {
	Config     *app.Config
	Monitoring *monitoring.Module
	Caches     []handlers.CacheAdmin
	Acronyms   *lookup.Service[lookup.Acronym]
	Weather    *lookup.Service[lookup.Condition]
	RateStore  middleware.RateStore
}

// NewRouter builds the Gin engine, wires middleware and registers every route.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	cfg := deps.Config
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}

	r := gin.New()

	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())

	registerHealthRoutes(r, cfg, deps.Monitoring)
	registerMetricsRoute(r, cfg, deps.Monitoring)

	api := r.Group("/api")

	lookups := handlers.NewLookupHandler(deps.Acronyms, deps.Weather)
	limited := api.Group("", middleware.RateLimit(deps.RateStore, cfg.Server.RateLimit.Requests, cfg.Server.RateLimit.Window))
	{
		limited.GET("/acronyms/:term", lookups.Acronym)
		limited.GET("/weather/:location", lookups.Weather)
	}

	cacheHandler, err := handlers.NewCacheHandler(deps.Caches...)
	if err != nil {
		return nil, err
	}
	caches := api.Group("/caches")
	{
		caches.GET("", cacheHandler.List)
		caches.GET("/:name/stats", cacheHandler.Stats)
		caches.POST("/:name/sweep", cacheHandler.Sweep)
		caches.GET("/:name/entries/:key", cacheHandler.Get)
		caches.PUT("/:name/entries/:key", cacheHandler.Put)
		caches.DELETE("/:name/entries/:key", cacheHandler.Delete)
	}

	registerMonitoringRoutes(api, handlers.NewMonitoringHandler(deps.Monitoring, cfg))

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}

func registerMetricsRoute(r *gin.Engine, cfg *app.Config, mon *monitoring.Module) {
	if !cfg.Monitoring.Prometheus.Enabled || mon == nil {
		return
	}
	endpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
	if endpoint == "" {
		endpoint = "/metrics"
	}
	r.GET(endpoint, gin.WrapH(mon.Handler()))
}
