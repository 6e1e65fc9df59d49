package lookup

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/charlesng35/lookupcache/internal/cache"
	"github.com/charlesng35/lookupcache/internal/monitoring"
	apperrors "github.com/charlesng35/lookupcache/pkg/errors"
	"github.com/charlesng35/lookupcache/pkg/logger"
)

const defaultServiceFetchTimeout = 30 * time.Second

// Result carries the records for a lookup and whether they came from the cache.
type Result[R any] struct {
	Key     string `json:"key"`
	Records []R    `json:"records"`
	Cached  bool   `json:"cached"`
}

// Service answers lookups from a TimeoutCache and populates it from a Fetcher on a miss.
// Concurrent misses for the same key share one fetch.
type Service[R any] struct {
	name      string
	cache     *cache.TimeoutCache[R]
	fetcher   Fetcher[R]
	normalize func(string) string
	timeout   time.Duration
	group     singleflight.Group
	log       *zap.Logger
}

// ServiceOption customises a Service.
type ServiceOption[R any] func(*Service[R])

// WithKeyNormalizer canonicalises keys before they reach the cache or the fetcher.
func WithKeyNormalizer[R any](fn func(string) string) ServiceOption[R] {
	return func(s *Service[R]) {
		if fn != nil {
			s.normalize = fn
		}
	}
}

// WithFetchTimeout bounds a shared fetch, which outlives the caller that started it.
func WithFetchTimeout[R any](timeout time.Duration) ServiceOption[R] {
	return func(s *Service[R]) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// NewService constructs a fetch-or-populate service over c.
func NewService[R any](c *cache.TimeoutCache[R], fetcher Fetcher[R], opts ...ServiceOption[R]) (*Service[R], error) {
	if c == nil {
		return nil, errors.New("lookup: cache is required")
	}
	if fetcher == nil {
		return nil, errors.New("lookup: fetcher is required")
	}

	s := &Service[R]{
		name:      c.Name(),
		cache:     c,
		fetcher:   fetcher,
		normalize: strings.TrimSpace,
		timeout:   defaultServiceFetchTimeout,
		log:       logger.WithModule("lookup").With(zap.String("source", c.Name())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewAcronymService wires a Service for acronym expansions.
func NewAcronymService(c *cache.TimeoutCache[Acronym], fetcher Fetcher[Acronym]) (*Service[Acronym], error) {
	return NewService(c, fetcher, WithKeyNormalizer[Acronym](AcronymKey))
}

// NewWeatherService wires a Service for weather conditions.
func NewWeatherService(c *cache.TimeoutCache[Condition], fetcher Fetcher[Condition]) (*Service[Condition], error) {
	return NewService(c, fetcher, WithKeyNormalizer[Condition](LocationKey))
}

// Name reports the cache the service reads through.
func (s *Service[R]) Name() string {
	return s.name
}

// Lookup returns the cached records for key, fetching and caching them on a miss. A source
// with no records for key yields ErrNotFound and leaves the cache untouched. Callers sharing
// a fetch each stop waiting when their own ctx is done; the fetch itself keeps running.
func (s *Service[R]) Lookup(ctx context.Context, key string) (Result[R], error) {
	key = s.normalize(key)
	if key == "" || len(key) > cache.MaxKeyLength {
		return Result[R]{}, apperrors.ErrInvalidKey
	}

	records, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		return Result[R]{}, err
	}
	if ok {
		return Result[R]{Key: key, Records: records, Cached: true}, nil
	}

	ch := s.group.DoChan(key, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.populate(fetchCtx, key)
	})

	select {
	case <-ctx.Done():
		return Result[R]{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Result[R]{}, res.Err
		}
		return Result[R]{Key: key, Records: res.Val.([]R)}, nil
	}
}

// Invalidate drops the cached records for key.
func (s *Service[R]) Invalidate(ctx context.Context, key string) error {
	return s.cache.Remove(ctx, s.normalize(key))
}

func (s *Service[R]) populate(ctx context.Context, key string) ([]R, error) {
	start := time.Now()
	records, err := s.fetcher.Fetch(ctx, key)
	monitoring.RecordLookupFetch(s.name, err, time.Since(start))
	if err != nil {
		s.log.Warn("remote lookup failed", zap.String("key", key), zap.Error(err))
		return nil, apperrors.ErrUpstreamFailed.WithInternal(err)
	}
	if len(records) == 0 {
		return nil, apperrors.ErrNotFound
	}

	if _, err := s.cache.PutDefault(ctx, key, records); err != nil {
		s.log.Warn("cache populate failed", zap.String("key", key), zap.Error(err))
	}
	return records, nil
}
