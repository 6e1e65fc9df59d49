package monitoring

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options control monitoring module configuration.
type Options struct {
	// Namespace configures the Prometheus namespace. Defaults to "lookupcache".
	Namespace string
	// DisableGoCollector skips registration of the Go runtime collector when true.
	DisableGoCollector bool
	// DisableProcessCollector skips registration of the process collector when true.
	DisableProcessCollector bool
}

// Module owns the Prometheus registry, the in-process statistics behind the summary
// endpoint and the health probes. It satisfies the cache package's Recorder interface.
type Module struct {
	registry *prometheus.Registry
	metrics  *collectors
	stats    *statStore
	health   *HealthManager
}

// NewModule constructs a monitoring module with its own Prometheus registry.
func NewModule(opts Options) (*Module, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "lookupcache"
	}

	registry := prometheus.NewRegistry()
	if !opts.DisableGoCollector {
		if err := registry.Register(prometheus.NewGoCollector()); err != nil {
			return nil, err
		}
	}
	if !opts.DisableProcessCollector {
		if err := registry.Register(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{})); err != nil {
			return nil, err
		}
	}

	metrics := newCollectors(namespace)
	for _, collector := range metrics.all() {
		if err := registry.Register(collector); err != nil {
			return nil, err
		}
	}

	return &Module{
		registry: registry,
		metrics:  metrics,
		stats:    newStatStore(),
		health:   NewHealthManager(),
	}, nil
}

// Registry exposes the underlying Prometheus registry.
func (m *Module) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an http.Handler serving Prometheus metrics for this module.
func (m *Module) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Health exposes the health manager responsible for liveness and readiness probes.
func (m *Module) Health() *HealthManager {
	if m == nil {
		return nil
	}
	return m.health
}

// Summary returns a point-in-time view of cache and sweeper activity.
func (m *Module) Summary() Summary {
	if m == nil || m.stats == nil {
		return Summary{GeneratedAt: time.Now()}
	}
	return m.stats.summary()
}

// ObserveGet counts a cache read by outcome (hit, miss, expired, error).
func (m *Module) ObserveGet(cache, result string) {
	if m == nil {
		return
	}
	name, label := normalizeLabel(cache), normalizeLabel(result)
	m.metrics.cacheGets.WithLabelValues(name, label).Inc()
	m.stats.cacheEntry(name).recordGet(label)
}

// ObservePut counts a cache write and the rows it stored.
func (m *Module) ObservePut(cache string, rows int, err error) {
	if m == nil {
		return
	}
	name := normalizeLabel(cache)
	result := resultLabel(err)
	m.metrics.cachePuts.WithLabelValues(name, result).Inc()
	if err == nil && rows > 0 {
		m.metrics.cacheRowsWritten.WithLabelValues(name).Add(float64(rows))
	}
	m.stats.cacheEntry(name).recordPut(err == nil)
}

// ObserveSweep records one sweep of a cache.
func (m *Module) ObserveSweep(cache string, removed int64, duration time.Duration, err error) {
	if m == nil {
		return
	}
	name := normalizeLabel(cache)
	result := resultLabel(err)
	m.metrics.cacheSweeps.WithLabelValues(name, result).Inc()
	observeDuration(m.metrics.cacheSweepDuration.WithLabelValues(name), duration)
	if err == nil && removed > 0 {
		m.metrics.cacheRowsSwept.WithLabelValues(name).Add(float64(removed))
	}
	m.stats.cacheEntry(name).recordSweep(removed, err)
}

// ObserveBackgroundRemoval counts lazy removals by outcome (success, error, skipped).
func (m *Module) ObserveBackgroundRemoval(cache, result string) {
	if m == nil {
		return
	}
	name, label := normalizeLabel(cache), normalizeLabel(result)
	m.metrics.backgroundRemovals.WithLabelValues(name, label).Inc()
	m.stats.cacheEntry(name).recordRemoval(label)
}

var globalModule atomic.Pointer[Module]

// SetModule configures the process-wide monitoring module used by instrumentation helpers.
func SetModule(module *Module) {
	if module == nil {
		return
	}
	globalModule.Store(module)
}

// CurrentModule returns the process-wide monitoring module, or nil when unset.
func CurrentModule() *Module {
	return globalModule.Load()
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
