package cache

import "time"

// Outcome labels reported to a Recorder.
const (
	ResultHit     = "hit"
	ResultMiss    = "miss"
	ResultExpired = "expired"
	ResultError   = "error"
	ResultSuccess = "success"
	ResultSkipped = "skipped"
)

// Recorder receives cache activity for metrics. Implementations must be safe for
// concurrent use.
type Recorder interface {
	ObserveGet(cache, result string)
	ObservePut(cache string, rows int, err error)
	ObserveSweep(cache string, removed int64, duration time.Duration, err error)
	ObserveBackgroundRemoval(cache, result string)
}

type noopRecorder struct{}

func (noopRecorder) ObserveGet(string, string)                        {}
func (noopRecorder) ObservePut(string, int, error)                    {}
func (noopRecorder) ObserveSweep(string, int64, time.Duration, error) {}
func (noopRecorder) ObserveBackgroundRemoval(string, string)          {}
