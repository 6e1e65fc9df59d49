package maintenance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/charlesng35/lookupcache/pkg/logger"
)

// ErrInvalidTrigger is returned by Arm when the trigger id, interval or function is unusable.
var ErrInvalidTrigger = errors.New("maintenance: invalid trigger")

// Scheduler arms named periodic triggers on a cron runner. It is process-wide state:
// construct one at startup, Start it, and Stop it during shutdown. Arming an id that is
// already armed is a no-op, so callers may activate the same trigger repeatedly.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	log     *zap.Logger
	entries map[string]trigger
	started bool
}

type trigger struct {
	entry    cron.EntryID
	interval time.Duration
	fn       func()
}

// Option customises the Scheduler.
type Option func(*Scheduler)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.cron = c
		}
	}
}

// WithLogger overrides the scheduler logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Scheduler) {
		if log != nil {
			s.log = log
		}
	}
}

// NewScheduler constructs a Scheduler. Jobs recover from panics and skip a tick while the
// previous run of the same trigger is still in progress.
func NewScheduler(opts ...Option) *Scheduler {
	s := &Scheduler{
		log:     logger.WithModule("maintenance"),
		entries: make(map[string]trigger),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.cron == nil {
		cronLog := cronLogger{log: s.log}
		s.cron = cron.New(
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		)
	}
	return s
}

// IsArmed reports whether a trigger with the given id is registered.
func (s *Scheduler) IsArmed(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.entries[strings.TrimSpace(id)]
	return ok
}

// Arm registers fn to run every interval under id. When id is already armed the call does
// nothing and the existing trigger keeps its original interval.
func (s *Scheduler) Arm(id string, interval time.Duration, fn func()) error {
	id = strings.TrimSpace(id)
	if id == "" || interval <= 0 || fn == nil {
		return fmt.Errorf("%w: id=%q interval=%s", ErrInvalidTrigger, id, interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; ok {
		return nil
	}

	entry := s.cron.Schedule(cron.Every(interval), cron.FuncJob(fn))
	s.entries[id] = trigger{entry: entry, interval: interval, fn: fn}
	s.log.Info("trigger armed", zap.String("trigger", id), zap.Duration("interval", interval))
	return nil
}

// Disarm removes the trigger registered under id. Unknown ids are ignored.
func (s *Scheduler) Disarm(id string) {
	id = strings.TrimSpace(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.entries[id]
	if !ok {
		return
	}
	s.cron.Remove(t.entry)
	delete(s.entries, id)
	s.log.Info("trigger disarmed", zap.String("trigger", id))
}

// Fire runs the trigger registered under id synchronously, outside the cron schedule.
// It reports false when no such trigger is armed.
func (s *Scheduler) Fire(id string) bool {
	s.mu.Lock()
	t, ok := s.entries[strings.TrimSpace(id)]
	s.mu.Unlock()
	if !ok {
		return false
	}
	t.fn()
	return true
}

// Armed lists the ids of every armed trigger in lexical order.
func (s *Scheduler) Armed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Next returns the next scheduled run for id, or the zero time when it is not armed or
// the scheduler has not been started.
func (s *Scheduler) Next(id string) time.Time {
	s.mu.Lock()
	t, ok := s.entries[strings.TrimSpace(id)]
	s.mu.Unlock()
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(t.entry).Next
}

// Start launches the cron runner. Calling Start more than once has no effect.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
}

// Stop halts the runner. The returned context is done once running jobs complete.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.started = false
	return s.cron.Stop()
}

// cronLogger adapts zap to the cron.Logger interface.
type cronLogger struct {
	log *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
