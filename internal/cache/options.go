package cache

import (
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/charlesng35/lookupcache/pkg/logger"
)

const (
	// DefaultTTL applies when PutDefault is used and no WithDefaultTTL option was given.
	DefaultTTL = 10 * time.Second

	defaultRemovalWorkers = 4
	defaultRemovalTimeout = 5 * time.Second
)

// Option customises a TimeoutCache.
type Option func(*options)

type options struct {
	name           string
	clock          clockwork.Clock
	defaultTTL     time.Duration
	log            *zap.Logger
	recorder       Recorder
	removalWorkers int64
	removalTimeout time.Duration
}

func defaultOptions() options {
	return options{
		name:           "default",
		clock:          clockwork.NewRealClock(),
		defaultTTL:     DefaultTTL,
		recorder:       noopRecorder{},
		removalWorkers: defaultRemovalWorkers,
		removalTimeout: defaultRemovalTimeout,
	}
}

// WithName labels the cache in logs and metrics.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithClock overrides the clock used for stamping and comparing expirations.
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithDefaultTTL sets the TTL used by PutDefault.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.defaultTTL = ttl
		}
	}
}

// WithLogger overrides the logger. The cache name is attached automatically.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithRecorder reports cache activity to a metrics sink.
func WithRecorder(recorder Recorder) Option {
	return func(o *options) {
		if recorder != nil {
			o.recorder = recorder
		}
	}
}

// WithRemovalWorkers bounds how many lazy removals may run at once.
func WithRemovalWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.removalWorkers = int64(n)
		}
	}
}

// WithRemovalTimeout bounds a single lazy removal.
func WithRemovalTimeout(timeout time.Duration) Option {
	return func(o *options) {
		if timeout > 0 {
			o.removalTimeout = timeout
		}
	}
}

func (o *options) logger() *zap.Logger {
	base := o.log
	if base == nil {
		base = logger.WithModule("cache")
	}
	return base.With(zap.String("cache", o.name))
}
