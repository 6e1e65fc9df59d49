package cache

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	apperrors "github.com/charlesng35/lookupcache/pkg/errors"
)

const (
	// PutFailed is the row count Put reports when nothing was written.
	PutFailed = -1
	// MaxKeyLength is the longest key, in bytes, the database store can hold.
	MaxKeyLength = 256
)

// TimeoutCache is a persisted multi-value map whose entries expire. Each key holds a set of
// records that share one expiration instant. Expired entries read as missing; they are
// removed in the background when a Get notices them and in bulk by Sweep.
type TimeoutCache[R any] struct {
	name       string
	store      Store
	clock      clockwork.Clock
	defaultTTL time.Duration
	log        *zap.Logger
	recorder   Recorder
	remover    *remover
	closed     atomic.Bool
}

// New wraps store in a TimeoutCache for records of type R. Records are stored as JSON.
func New[R any](store Store, opts ...Option) *TimeoutCache[R] {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	c := &TimeoutCache[R]{
		name:       o.name,
		store:      store,
		clock:      o.clock,
		defaultTTL: o.defaultTTL,
		log:        o.logger(),
		recorder:   o.recorder,
	}
	c.remover = newRemover(o.name, o.removalWorkers, o.removalTimeout, c.log, o.recorder, c.removeKey)
	return c
}

// Name returns the cache label.
func (c *TimeoutCache[R]) Name() string {
	return c.name
}

// DefaultTTL returns the TTL PutDefault stamps entries with.
func (c *TimeoutCache[R]) DefaultTTL() time.Duration {
	return c.defaultTTL
}

// Get returns every record stored under key. An expired entry reads exactly like a missing
// one; its removal is handed to a background worker and Get returns without waiting.
func (c *TimeoutCache[R]) Get(ctx context.Context, key string) ([]R, bool, error) {
	if err := c.ensureOpen(); err != nil {
		return nil, false, err
	}
	if strings.TrimSpace(key) == "" || len(key) > MaxKeyLength {
		c.recorder.ObserveGet(c.name, ResultMiss)
		return nil, false, nil
	}

	rows, err := c.store.QueryByKey(ctx, key)
	if err != nil {
		c.recorder.ObserveGet(c.name, ResultError)
		return nil, false, storeFailure("query", key, err)
	}
	if len(rows) == 0 {
		c.recorder.ObserveGet(c.name, ResultMiss)
		return nil, false, nil
	}

	if expiresAt := earliestExpiry(rows); !expiresAt.After(c.clock.Now()) {
		c.recorder.ObserveGet(c.name, ResultExpired)
		c.remover.schedule(key)
		return nil, false, nil
	}

	records := make([]R, 0, len(rows))
	for _, row := range rows {
		var record R
		if err := json.Unmarshal(row.Payload, &record); err != nil {
			c.recorder.ObserveGet(c.name, ResultError)
			return nil, false, apperrors.ErrCorruptRecord.WithInternal(fmt.Errorf("cache %s: decode %q: %w", c.name, key, err))
		}
		records = append(records, record)
	}

	c.recorder.ObserveGet(c.name, ResultHit)
	return records, true, nil
}

// Put replaces whatever is stored under key with records, all expiring at now+ttl. A
// negative ttl is treated as zero, which stores an entry that is already expired. Put with
// no records writes nothing and returns PutFailed with ErrEmptyPut.
func (c *TimeoutCache[R]) Put(ctx context.Context, key string, records []R, ttl time.Duration) (int, error) {
	if err := c.ensureOpen(); err != nil {
		return PutFailed, err
	}
	if len(records) == 0 {
		c.recorder.ObservePut(c.name, 0, apperrors.ErrEmptyPut)
		return PutFailed, apperrors.ErrEmptyPut
	}
	if strings.TrimSpace(key) == "" || len(key) > MaxKeyLength {
		c.recorder.ObservePut(c.name, 0, apperrors.ErrInvalidKey)
		return PutFailed, apperrors.ErrInvalidKey
	}
	if ttl < 0 {
		ttl = 0
	}

	expiresAt := c.clock.Now().Add(ttl).Truncate(time.Millisecond)
	rows := make([]Row, 0, len(records))
	for _, record := range records {
		payload, err := json.Marshal(record)
		if err != nil {
			return PutFailed, apperrors.Wrap(err, fmt.Sprintf("cache %s: encode record", c.name))
		}
		rows = append(rows, Row{Key: key, Payload: payload, ExpiresAt: expiresAt})
	}

	written, err := c.store.ReplaceKey(ctx, key, rows)
	c.recorder.ObservePut(c.name, written, err)
	if err != nil {
		return PutFailed, storeFailure("put", key, err)
	}

	c.log.Debug("cache entry stored",
		zap.String("key", key),
		zap.Int("rows", written),
		zap.Time("expires_at", expiresAt),
	)
	return written, nil
}

// PutDefault is Put with the cache's default TTL.
func (c *TimeoutCache[R]) PutDefault(ctx context.Context, key string, records []R) (int, error) {
	return c.Put(ctx, key, records, c.defaultTTL)
}

// Remove deletes every record for key. Removing an absent key is not an error.
func (c *TimeoutCache[R]) Remove(ctx context.Context, key string) error {
	if err := c.ensureOpen(); err != nil {
		return err
	}
	return c.removeKey(ctx, key)
}

// Size returns the number of stored rows across all keys, expired rows included.
func (c *TimeoutCache[R]) Size(ctx context.Context) (int64, error) {
	if err := c.ensureOpen(); err != nil {
		return 0, err
	}

	count, err := c.store.CountAll(ctx)
	if err != nil {
		return 0, storeFailure("count", "", err)
	}
	return count, nil
}

// Sweep deletes every row that has expired, regardless of key, and returns how many rows
// were removed.
func (c *TimeoutCache[R]) Sweep(ctx context.Context) (int64, error) {
	if err := c.ensureOpen(); err != nil {
		return 0, err
	}

	start := time.Now()
	removed, err := c.store.DeleteExpired(ctx, c.clock.Now())
	c.recorder.ObserveSweep(c.name, removed, time.Since(start), err)
	if err != nil {
		return 0, storeFailure("sweep", "", err)
	}

	if removed > 0 {
		c.log.Info("expired cache rows swept", zap.Int64("removed", removed))
	}
	return removed, nil
}

// Close stops accepting lazy removals and waits for those already running. Foreground
// operations fail with ErrCacheClosed afterwards. Close does not close the store.
func (c *TimeoutCache[R]) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.remover.close()
	return nil
}

func (c *TimeoutCache[R]) removeKey(ctx context.Context, key string) error {
	if _, err := c.store.DeleteByKey(ctx, key); err != nil {
		return storeFailure("remove", key, err)
	}
	return nil
}

func (c *TimeoutCache[R]) ensureOpen() error {
	if c.closed.Load() {
		return apperrors.ErrCacheClosed
	}
	return nil
}

// earliestExpiry returns the expiry of the entry. An entry expires as soon as any of its
// rows does.
func earliestExpiry(rows []Row) time.Time {
	earliest := rows[0].ExpiresAt
	for _, row := range rows[1:] {
		if row.ExpiresAt.Before(earliest) {
			earliest = row.ExpiresAt
		}
	}
	return earliest
}

func storeFailure(op, key string, err error) error {
	if key == "" {
		return apperrors.ErrStoreUnavailable.WithInternal(fmt.Errorf("%s: %w", op, err))
	}
	return apperrors.ErrStoreUnavailable.WithInternal(fmt.Errorf("%s %q: %w", op, key, err))
}
