package checks

import (
	"context"
	"strings"
	"time"

	"github.com/charlesng35/lookupcache/internal/monitoring"
)

const defaultMaintenanceMaxAge = 24 * time.Hour

// Maintenance verifies that scheduled jobs, such as the per-cache sweeps, keep succeeding
// within maxAge. A zero maxAge selects a 24h window, twice the default sweep interval.
func Maintenance(maxAge time.Duration) monitoring.Check {
	if maxAge <= 0 {
		maxAge = defaultMaintenanceMaxAge
	}

	return monitoring.NewCheck("maintenance", func(ctx context.Context) monitoring.ProbeResult {
		summary := monitoring.Snapshot()
		if len(summary.Maintenance.Jobs) == 0 {
			return monitoring.ProbeResult{
				Status:  monitoring.StatusUp,
				Details: "no maintenance jobs recorded",
			}
		}

		now := time.Now()
		status := monitoring.StatusUp
		var notes []string

		for _, job := range summary.Maintenance.Jobs {
			if job.ConsecutiveFailures > 0 {
				status = worstStatus(status, monitoring.StatusDown)
				notes = append(notes, job.Job+": consecutive failures")
				continue
			}
			if job.TotalRuns > 0 && now.Sub(job.LastRunAt) > maxAge {
				status = worstStatus(status, monitoring.StatusDegraded)
				notes = append(notes, job.Job+": stale run "+job.LastRunAt.UTC().Format(time.RFC3339))
			}
		}

		return monitoring.ProbeResult{
			Status:  status,
			Details: strings.Join(notes, "; "),
		}
	})
}

func worstStatus(current, candidate monitoring.ProbeStatus) monitoring.ProbeStatus {
	if current == monitoring.StatusDown || candidate == monitoring.StatusDown {
		return monitoring.StatusDown
	}
	if current == monitoring.StatusDegraded || candidate == monitoring.StatusDegraded {
		return monitoring.StatusDegraded
	}
	return monitoring.StatusUp
}
