package maintenance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/lookupcache/internal/monitoring"
	"github.com/charlesng35/lookupcache/pkg/logger"
)

const (
	// DefaultSweepInterval runs each cache sweep twice a day.
	DefaultSweepInterval = 12 * time.Hour
	defaultSweepTimeout  = 5 * time.Minute
	sweepTriggerPrefix   = "cache-sweep:"
)

// Sweepable is a cache whose expired rows can be removed in bulk.
type Sweepable interface {
	Name() string
	Sweep(ctx context.Context) (int64, error)
}

// Sweeper arms one periodic sweep per cache on a shared Scheduler.
type Sweeper struct {
	scheduler *Scheduler
	interval  time.Duration
	timeout   time.Duration
	log       *zap.Logger

	mu      sync.Mutex
	targets []Sweepable
}

// SweeperOption customises the Sweeper.
type SweeperOption func(*Sweeper)

// WithInterval overrides how often each cache is swept.
func WithInterval(interval time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithSweepTimeout bounds the duration of a single scheduled sweep.
func WithSweepTimeout(timeout time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// NewSweeper constructs a Sweeper bound to scheduler.
func NewSweeper(scheduler *Scheduler, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		scheduler: scheduler,
		interval:  DefaultSweepInterval,
		timeout:   defaultSweepTimeout,
		log:       logger.WithModule("maintenance"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TriggerID returns the scheduler id used for the named cache's sweep.
func TriggerID(name string) string {
	return sweepTriggerPrefix + name
}

// Interval reports the configured sweep interval.
func (s *Sweeper) Interval() time.Duration {
	return s.interval
}

// Activate ensures target is swept periodically. Activating the same cache again leaves
// the existing trigger in place.
func (s *Sweeper) Activate(target Sweepable) error {
	if target == nil {
		return errors.New("maintenance: sweep target is required")
	}
	if s.scheduler == nil {
		return errors.New("maintenance: scheduler is required")
	}

	id := TriggerID(target.Name())

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scheduler.IsArmed(id) {
		return nil
	}

	if err := s.scheduler.Arm(id, s.interval, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		_, _ = s.sweep(ctx, target)
	}); err != nil {
		return fmt.Errorf("maintenance: arm %s: %w", id, err)
	}

	s.targets = append(s.targets, target)
	return nil
}

// RunOnce sweeps every activated cache sequentially and aggregates failures.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	targets := append([]Sweepable(nil), s.targets...)
	s.mu.Unlock()

	var errs error
	for _, target := range targets {
		if _, err := s.sweep(ctx, target); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("sweep %s: %w", target.Name(), err))
		}
	}
	return errs
}

func (s *Sweeper) sweep(ctx context.Context, target Sweepable) (int64, error) {
	job := TriggerID(target.Name())
	start := time.Now()

	removed, err := target.Sweep(ctx)
	duration := time.Since(start)

	if err != nil {
		monitoring.RecordMaintenanceRun(job, "error", err.Error(), duration)
		s.log.Warn("cache sweep failed", zap.String("cache", target.Name()), zap.Error(err))
		return removed, err
	}

	monitoring.RecordMaintenanceRun(job, "success", "", duration)
	s.log.Debug("cache sweep completed",
		zap.String("cache", target.Name()),
		zap.Int64("removed", removed),
		zap.Duration("duration", duration),
	)
	return removed, nil
}
