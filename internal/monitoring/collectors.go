package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type collectors struct {
	cacheGets           *prometheus.CounterVec
	cachePuts           *prometheus.CounterVec
	cacheRowsWritten    *prometheus.CounterVec
	cacheSweeps         *prometheus.CounterVec
	cacheSweepDuration  *prometheus.HistogramVec
	cacheRowsSwept      *prometheus.CounterVec
	backgroundRemovals  *prometheus.CounterVec
	lookupFetches       *prometheus.CounterVec
	lookupFetchDuration *prometheus.HistogramVec
	maintenanceRuns     *prometheus.CounterVec
	maintenanceLastRun  *prometheus.GaugeVec
	apiLatency          *prometheus.HistogramVec
}

func newCollectors(namespace string) *collectors {
	buckets := prometheus.DefBuckets

	return &collectors{
		cacheGets: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_gets_total",
				Help:      "Cache reads by outcome",
			},
			[]string{"cache", "result"},
		),
		cachePuts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_puts_total",
				Help:      "Cache writes by outcome",
			},
			[]string{"cache", "result"},
		),
		cacheRowsWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_rows_written_total",
				Help:      "Rows persisted by successful cache writes",
			},
			[]string{"cache"},
		),
		cacheSweeps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_sweeps_total",
				Help:      "Expired-row sweeps by outcome",
			},
			[]string{"cache", "result"},
		),
		cacheSweepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cache_sweep_duration_seconds",
				Help:      "Duration of expired-row sweeps",
				Buckets:   buckets,
			},
			[]string{"cache"},
		),
		cacheRowsSwept: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_rows_swept_total",
				Help:      "Expired rows removed by sweeps",
			},
			[]string{"cache"},
		),
		backgroundRemovals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_background_removals_total",
				Help:      "Lazy removals of expired entries by outcome",
			},
			[]string{"cache", "result"},
		),
		lookupFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lookup_fetches_total",
				Help:      "Remote lookups performed after a cache miss",
			},
			[]string{"source", "result"},
		),
		lookupFetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "lookup_fetch_duration_seconds",
				Help:      "Latency of remote lookups",
				Buckets:   buckets,
			},
			[]string{"source"},
		),
		maintenanceRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "maintenance_runs_total",
				Help:      "Scheduled maintenance executions",
			},
			[]string{"job", "result"},
		),
		maintenanceLastRun: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "maintenance_last_success_timestamp",
				Help:      "Unix timestamp of the last successful maintenance run",
			},
			[]string{"job"},
		),
		apiLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_latency_seconds",
				Help:      "API endpoint latency",
				Buckets:   buckets,
			},
			[]string{"method", "path", "status"},
		),
	}
}

func (c *collectors) all() []prometheus.Collector {
	return []prometheus.Collector{
		c.cacheGets,
		c.cachePuts,
		c.cacheRowsWritten,
		c.cacheSweeps,
		c.cacheSweepDuration,
		c.cacheRowsSwept,
		c.backgroundRemovals,
		c.lookupFetches,
		c.lookupFetchDuration,
		c.maintenanceRuns,
		c.maintenanceLastRun,
		c.apiLatency,
	}
}

func observeDuration(observer prometheus.Observer, duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	observer.Observe(duration.Seconds())
}
