package monitoring

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type statStore struct {
	caches      sync.Map // string -> *cacheStats
	lookups     sync.Map // string -> *lookupStats
	maintenance sync.Map // string -> *maintenanceStats
}

func newStatStore() *statStore {
	return &statStore{}
}

func (s *statStore) summary() Summary {
	return Summary{
		GeneratedAt: time.Now(),
		Caches:      collect(&s.caches, (*cacheStats).snapshot),
		Lookups:     collect(&s.lookups, (*lookupStats).snapshot),
		Maintenance: MaintenanceSummary{
			Jobs: collect(&s.maintenance, (*maintenanceStats).snapshot),
		},
	}
}

// collect snapshots every entry of m, ordered by name.
func collect[S any, V any](m *sync.Map, snapshot func(*S, string) V) []V {
	names := []string{}
	entries := map[string]*S{}
	m.Range(func(key, value any) bool {
		name := key.(string)
		names = append(names, name)
		entries[name] = value.(*S)
		return true
	})
	sort.Strings(names)

	out := make([]V, 0, len(names))
	for _, name := range names {
		out = append(out, snapshot(entries[name], name))
	}
	return out
}

func loadOrCreate[S any](m *sync.Map, name string) *S {
	if value, ok := m.Load(name); ok {
		return value.(*S)
	}
	actual, _ := m.LoadOrStore(name, new(S))
	return actual.(*S)
}

func (s *statStore) cacheEntry(name string) *cacheStats {
	return loadOrCreate[cacheStats](&s.caches, name)
}

func (s *statStore) lookupEntry(source string) *lookupStats {
	return loadOrCreate[lookupStats](&s.lookups, source)
}

func (s *statStore) maintenanceEntry(job string) *maintenanceStats {
	return loadOrCreate[maintenanceStats](&s.maintenance, job)
}

type cacheStats struct {
	hits      atomic.Uint64
	misses    atomic.Uint64
	expired   atomic.Uint64
	getErrors atomic.Uint64

	puts      atomic.Uint64
	putErrors atomic.Uint64

	sweeps       atomic.Uint64
	sweepErrors  atomic.Uint64
	rowsSwept    atomic.Uint64
	lastSweepAt  atomic.Int64 // unix nano
	lastSweepErr atomic.Value // string

	removals        atomic.Uint64
	removalFailures atomic.Uint64
	removalsSkipped atomic.Uint64
}

func (c *cacheStats) recordGet(result string) {
	switch result {
	case "hit":
		c.hits.Add(1)
	case "miss":
		c.misses.Add(1)
	case "expired":
		c.expired.Add(1)
	default:
		c.getErrors.Add(1)
	}
}

func (c *cacheStats) recordPut(ok bool) {
	if ok {
		c.puts.Add(1)
		return
	}
	c.putErrors.Add(1)
}

func (c *cacheStats) recordSweep(removed int64, err error) {
	c.lastSweepAt.Store(time.Now().UnixNano())
	if err != nil {
		c.sweepErrors.Add(1)
		c.lastSweepErr.Store(err.Error())
		return
	}
	c.sweeps.Add(1)
	c.lastSweepErr.Store("")
	if removed > 0 {
		c.rowsSwept.Add(uint64(removed))
	}
}

func (c *cacheStats) recordRemoval(result string) {
	switch result {
	case "success":
		c.removals.Add(1)
	case "skipped":
		c.removalsSkipped.Add(1)
	default:
		c.removalFailures.Add(1)
	}
}

func (c *cacheStats) snapshot(name string) CacheSummary {
	lastErr, _ := c.lastSweepErr.Load().(string)
	var lastSweep time.Time
	if ns := c.lastSweepAt.Load(); ns > 0 {
		lastSweep = time.Unix(0, ns)
	}

	hits, misses, expired := c.hits.Load(), c.misses.Load(), c.expired.Load()
	var ratio float64
	if total := hits + misses + expired; total > 0 {
		ratio = float64(hits) / float64(total)
	}

	return CacheSummary{
		Cache:           name,
		Hits:            hits,
		Misses:          misses,
		Expired:         expired,
		GetErrors:       c.getErrors.Load(),
		HitRatio:        ratio,
		Puts:            c.puts.Load(),
		PutErrors:       c.putErrors.Load(),
		Sweeps:          c.sweeps.Load(),
		SweepErrors:     c.sweepErrors.Load(),
		RowsSwept:       c.rowsSwept.Load(),
		LastSweepAt:     lastSweep,
		LastSweepError:  lastErr,
		Removals:        c.removals.Load(),
		RemovalFailures: c.removalFailures.Load(),
		RemovalsSkipped: c.removalsSkipped.Load(),
	}
}

type lookupStats struct {
	success       atomic.Uint64
	failure       atomic.Uint64
	totalDuration atomic.Int64 // nanoseconds
	lastError     atomic.Value // string
}

func (l *lookupStats) record(err error, duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	l.totalDuration.Add(int64(duration))
	if err != nil {
		l.failure.Add(1)
		l.lastError.Store(err.Error())
		return
	}
	l.success.Add(1)
}

func (l *lookupStats) snapshot(source string) LookupSummary {
	lastErr, _ := l.lastError.Load().(string)
	success, failure := l.success.Load(), l.failure.Load()
	var avg float64
	if total := success + failure; total > 0 {
		avg = float64(l.totalDuration.Load()) / float64(total) / float64(time.Second)
	}
	return LookupSummary{
		Source:                source,
		Success:               success,
		Failure:               failure,
		AverageLatencySeconds: avg,
		LastError:             lastErr,
	}
}

type maintenanceStats struct {
	lastStatus           atomic.Value // string
	lastError            atomic.Value // string
	lastRun              atomic.Int64 // unix nano
	lastDuration         atomic.Int64 // nanoseconds
	lastSuccessfulRun    atomic.Int64 // unix nano
	consecutiveFailures  atomic.Uint64
	consecutiveSuccesses atomic.Uint64
	totalRuns            atomic.Uint64
}

func (m *maintenanceStats) record(result, message string, duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	now := time.Now()
	m.lastStatus.Store(result)
	m.lastError.Store(message)
	m.lastRun.Store(now.UnixNano())
	m.lastDuration.Store(int64(duration))
	m.totalRuns.Add(1)

	if result == "success" {
		m.consecutiveFailures.Store(0)
		m.consecutiveSuccesses.Add(1)
		m.lastSuccessfulRun.Store(now.UnixNano())
		return
	}
	m.consecutiveFailures.Add(1)
	m.consecutiveSuccesses.Store(0)
}

func (m *maintenanceStats) snapshot(job string) MaintenanceJobSummary {
	status, _ := m.lastStatus.Load().(string)
	errMsg, _ := m.lastError.Load().(string)

	return MaintenanceJobSummary{
		Job:                 job,
		LastStatus:          status,
		LastRunAt:           time.Unix(0, m.lastRun.Load()),
		LastDuration:        time.Duration(m.lastDuration.Load()),
		LastError:           errMsg,
		ConsecutiveFailures: m.consecutiveFailures.Load(),
		ConsecutiveSuccess:  m.consecutiveSuccesses.Load(),
		LastSuccessAt:       time.Unix(0, m.lastSuccessfulRun.Load()),
		TotalRuns:           m.totalRuns.Load(),
	}
}
