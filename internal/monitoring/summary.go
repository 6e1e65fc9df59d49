package monitoring

import "time"

// Summary surfaces aggregated cache activity for the admin endpoints.
type Summary struct {
	GeneratedAt time.Time          `json:"generated_at"`
	Caches      []CacheSummary     `json:"caches"`
	Lookups     []LookupSummary    `json:"lookups"`
	Maintenance MaintenanceSummary `json:"maintenance"`
}

// CacheSummary reports per-cache counters since process start.
type CacheSummary struct {
	Cache           string    `json:"cache"`
	Hits            uint64    `json:"hits"`
	Misses          uint64    `json:"misses"`
	Expired         uint64    `json:"expired"`
	GetErrors       uint64    `json:"get_errors"`
	HitRatio        float64   `json:"hit_ratio"`
	Puts            uint64    `json:"puts"`
	PutErrors       uint64    `json:"put_errors"`
	Sweeps          uint64    `json:"sweeps"`
	SweepErrors     uint64    `json:"sweep_errors"`
	RowsSwept       uint64    `json:"rows_swept"`
	LastSweepAt     time.Time `json:"last_sweep_at"`
	LastSweepError  string    `json:"last_sweep_error,omitempty"`
	Removals        uint64    `json:"background_removals"`
	RemovalFailures uint64    `json:"background_removal_failures"`
	RemovalsSkipped uint64    `json:"background_removals_skipped"`
}

type LookupSummary struct {
	Source                string  `json:"source"`
	Success               uint64  `json:"success"`
	Failure               uint64  `json:"failure"`
	AverageLatencySeconds float64 `json:"average_latency_seconds"`
	LastError             string  `json:"last_error,omitempty"`
}

type MaintenanceSummary struct {
	Jobs []MaintenanceJobSummary `json:"jobs"`
}

type MaintenanceJobSummary struct {
	Job                 string        `json:"job"`
	LastStatus          string        `json:"last_status"`
	LastRunAt           time.Time     `json:"last_run_at"`
	LastDuration        time.Duration `json:"last_duration"`
	LastError           string        `json:"last_error,omitempty"`
	ConsecutiveFailures uint64        `json:"consecutive_failures"`
	ConsecutiveSuccess  uint64        `json:"consecutive_success"`
	LastSuccessAt       time.Time     `json:"last_success_at"`
	TotalRuns           uint64        `json:"total_runs"`
}

// Snapshot returns a point-in-time summary from the current module when configured.
func Snapshot() Summary {
	return CurrentModule().Summary()
}
