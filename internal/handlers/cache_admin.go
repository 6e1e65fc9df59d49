package handlers

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"github.com/charlesng35/lookupcache/internal/cache"
	appErrors "github.com/charlesng35/lookupcache/pkg/errors"
)

// CacheAdmin is the type-erased view of a TimeoutCache used by the admin endpoints.
type CacheAdmin interface {
	Name() string
	DefaultTTL() time.Duration
	Entries(ctx context.Context, key string) (records any, count int, found bool, err error)
	Store(ctx context.Context, key string, records []json.RawMessage, ttl time.Duration) (int, error)
	Remove(ctx context.Context, key string) error
	Size(ctx context.Context) (int64, error)
	Sweep(ctx context.Context) (int64, error)
}

// AdminFor exposes c through the CacheAdmin interface. Incoming records are decoded into R.
func AdminFor[R any](c *cache.TimeoutCache[R]) CacheAdmin {
	return &cacheAdmin[R]{TimeoutCache: c}
}

type cacheAdmin[R any] struct {
	*cache.TimeoutCache[R]
}

func (a *cacheAdmin[R]) Entries(ctx context.Context, key string) (any, int, bool, error) {
	records, ok, err := a.Get(ctx, key)
	if err != nil || !ok {
		return nil, 0, ok, err
	}
	return records, len(records), true, nil
}

func (a *cacheAdmin[R]) Store(ctx context.Context, key string, raw []json.RawMessage, ttl time.Duration) (int, error) {
	records := make([]R, 0, len(raw))
	for i, item := range raw {
		var record R
		if err := json.Unmarshal(item, &record); err != nil {
			return cache.PutFailed, appErrors.NewBadRequest(fmt.Sprintf("record %d is not a valid %s record", i, a.Name()))
		}
		records = append(records, record)
	}
	return a.Put(ctx, key, records, ttl)
}
