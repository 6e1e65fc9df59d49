package cache

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	testutil "github.com/charlesng35/lookupcache/internal/database/testutil"
	apperrors "github.com/charlesng35/lookupcache/pkg/errors"
)

var epoch = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

func newTestCache(t *testing.T, store Store, clock clockwork.Clock, opts ...Option) *TimeoutCache[expansion] {
	t.Helper()

	all := append([]Option{WithName("acronyms"), WithClock(clock), WithLogger(zap.NewNop())}, opts...)
	c := New[expansion](store, all...)
	t.Cleanup(func() {
		_ = c.Close()
	})
	return c
}

func TestPutThenGetRoundTrip(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := newTestCache(t, factory(t), clockwork.NewFakeClockAt(epoch))

			r1 := expansion{Term: "NASA", Meaning: "National Aeronautics and Space Administration"}
			r2 := expansion{Term: "NASA", Meaning: "North American Saxophone Alliance"}

			written, err := c.Put(ctx, "NASA", []expansion{r1, r2}, 60*time.Second)
			require.NoError(t, err)
			require.Equal(t, 2, written)

			got, found, err := c.Get(ctx, "NASA")
			require.NoError(t, err)
			require.True(t, found)
			require.ElementsMatch(t, []expansion{r1, r2}, got)
		})
	}
}

func TestGetMissingKey(t *testing.T) {
	recorder := newCountingRecorder()
	c := newTestCache(t, NewMemoryStore(), clockwork.NewFakeClockAt(epoch), WithRecorder(recorder))

	got, found, err := c.Get(context.Background(), "absent")
	require.NoError(t, err)
	require.False(t, found)
	require.Nil(t, got)

	_, found, err = c.Get(context.Background(), "   ")
	require.NoError(t, err)
	require.False(t, found)
	require.Equal(t, 2, recorder.get(ResultMiss))
}

func TestExpiredEntryReadsAsMissingAndIsRemovedInBackground(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory(t)
			c := newTestCache(t, store, clockwork.NewFakeClockAt(epoch))

			_, err := c.Put(ctx, "k", []expansion{{Term: "k", Meaning: "gone"}}, 0)
			require.NoError(t, err)

			_, found, err := c.Get(ctx, "k")
			require.NoError(t, err)
			require.False(t, found)

			require.Eventually(t, func() bool {
				rows, err := store.QueryByKey(ctx, "k")
				return err == nil && len(rows) == 0
			}, 2*time.Second, 10*time.Millisecond)
		})
	}
}

func TestExpiryBoundaryIsInclusive(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(epoch)
	c := newTestCache(t, NewMemoryStore(), clock)

	_, err := c.Put(ctx, "k", []expansion{{Term: "k"}}, 30*time.Second)
	require.NoError(t, err)

	clock.Advance(29 * time.Second)
	_, found, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)

	clock.Advance(time.Second)
	_, found, err = c.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, found)
}

func TestGetDoesNotWaitForLazyRemoval(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	gate := make(chan struct{})
	store.set(func(s *flakyStore) { s.deleteGate = gate })

	recorder := newCountingRecorder()
	c := newTestCache(t, store, clockwork.NewFakeClockAt(epoch), WithRecorder(recorder))

	_, err := c.Put(ctx, "k", []expansion{{Term: "k"}}, 0)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, found, err := c.Get(ctx, "k")
		assert.NoError(t, err)
		assert.False(t, found)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Get blocked on background removal")
	}

	// A second stale read while the first removal is still pending does not queue another.
	_, _, err = c.Get(ctx, "k")
	require.NoError(t, err)

	close(gate)
	require.NoError(t, c.Close())
	require.EqualValues(t, 1, store.deleteCalls.Load())
	require.Equal(t, 1, recorder.removal(ResultSuccess))
	require.Equal(t, 2, recorder.get(ResultExpired))
}

func TestBackgroundRemovalFailureIsLoggedNotSurfaced(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	store.set(func(s *flakyStore) { s.deleteErr = errBoom })

	core, recorded := observer.New(zap.WarnLevel)
	recorder := newCountingRecorder()
	c := newTestCache(t, store, clockwork.NewFakeClockAt(epoch),
		WithLogger(zap.New(core)), WithRecorder(recorder))

	_, err := c.Put(ctx, "k", []expansion{{Term: "k"}}, 0)
	require.NoError(t, err)

	_, found, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, found)

	require.Eventually(t, func() bool {
		return recorded.FilterMessage("lazy removal failed").Len() == 1
	}, 2*time.Second, 10*time.Millisecond)

	entry := recorded.FilterMessage("lazy removal failed").All()[0]
	require.Equal(t, "k", entry.ContextMap()["key"])
	require.Equal(t, "acronyms", entry.ContextMap()["cache"])
	require.Equal(t, 1, recorder.removal(ResultError))

	// The stale row stays behind for the sweeper.
	count, err := store.MemoryStore.CountAll(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	removed, err := c.Sweep(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)
}

func TestSweepRemovesOnlyExpiredKeys(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := clockwork.NewFakeClockAt(epoch)
			c := newTestCache(t, factory(t), clock)

			_, err := c.Put(ctx, "a", []expansion{{Term: "a", Meaning: "1"}, {Term: "a", Meaning: "2"}}, time.Second)
			require.NoError(t, err)
			_, err = c.Put(ctx, "b", []expansion{{Term: "b"}}, time.Hour)
			require.NoError(t, err)

			clock.Advance(time.Minute)

			removed, err := c.Sweep(ctx)
			require.NoError(t, err)
			require.EqualValues(t, 2, removed)

			size, err := c.Size(ctx)
			require.NoError(t, err)
			require.EqualValues(t, 1, size)

			got, found, err := c.Get(ctx, "b")
			require.NoError(t, err)
			require.True(t, found)
			require.Equal(t, []expansion{{Term: "b"}}, got)

			removed, err = c.Sweep(ctx)
			require.NoError(t, err)
			require.Zero(t, removed)
		})
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory(t)
			c := newTestCache(t, store, clockwork.NewFakeClockAt(epoch))

			_, err := c.Put(ctx, "k", []expansion{{Term: "k"}, {Term: "k", Meaning: "x"}}, time.Hour)
			require.NoError(t, err)

			require.NoError(t, c.Remove(ctx, "k"))
			require.NoError(t, c.Remove(ctx, "k"))

			_, err = c.Put(ctx, "k", []expansion{{Term: "k"}}, time.Hour)
			require.NoError(t, err)

			var wg sync.WaitGroup
			errs := make(chan error, 8)
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					errs <- c.Remove(ctx, "k")
				}()
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				require.NoError(t, err)
			}

			rows, err := store.QueryByKey(ctx, "k")
			require.NoError(t, err)
			require.Empty(t, rows)
		})
	}
}

func TestEmptyPutIsRejected(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	c := newTestCache(t, store, clockwork.NewFakeClockAt(epoch))

	written, err := c.Put(ctx, "k", []expansion{}, 60*time.Second)
	require.Equal(t, PutFailed, written)
	require.ErrorIs(t, err, apperrors.ErrEmptyPut)

	written, err = c.Put(ctx, "k", nil, 60*time.Second)
	require.Equal(t, PutFailed, written)
	require.ErrorIs(t, err, apperrors.ErrEmptyPut)

	size, err := c.Size(ctx)
	require.NoError(t, err)
	require.Zero(t, size)
}

func TestPutRejectsBlankKey(t *testing.T) {
	c := newTestCache(t, NewMemoryStore(), clockwork.NewFakeClockAt(epoch))

	written, err := c.Put(context.Background(), " ", []expansion{{Term: "x"}}, time.Minute)
	require.Equal(t, PutFailed, written)
	require.ErrorIs(t, err, apperrors.ErrInvalidKey)

	long := strings.Repeat("k", MaxKeyLength+1)
	written, err = c.Put(context.Background(), long, []expansion{{Term: "x"}}, time.Minute)
	require.Equal(t, PutFailed, written)
	require.ErrorIs(t, err, apperrors.ErrInvalidKey)

	_, ok, err := c.Get(context.Background(), long)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPutKeepsSingleExpirationPerKey(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory(t)
			clock := clockwork.NewFakeClockAt(epoch)
			c := newTestCache(t, store, clock)

			_, err := c.Put(ctx, "k", []expansion{{Meaning: "1"}, {Meaning: "2"}, {Meaning: "3"}}, time.Minute)
			require.NoError(t, err)
			assertSharedExpiry(t, store, "k", 3)

			clock.Advance(10 * time.Second)
			_, err = c.Put(ctx, "k", []expansion{{Meaning: "4"}, {Meaning: "5"}}, time.Minute)
			require.NoError(t, err)
			rows := assertSharedExpiry(t, store, "k", 2)
			require.True(t, rows[0].ExpiresAt.Equal(epoch.Add(70*time.Second)))

			got, found, err := c.Get(ctx, "k")
			require.NoError(t, err)
			require.True(t, found)
			require.ElementsMatch(t, []expansion{{Meaning: "4"}, {Meaning: "5"}}, got)
		})
	}
}

func TestSizeCountsRowsNotKeys(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := newTestCache(t, factory(t), clockwork.NewFakeClockAt(epoch))

			_, err := c.Put(ctx, "x", []expansion{{Meaning: "1"}, {Meaning: "2"}, {Meaning: "3"}}, time.Minute)
			require.NoError(t, err)
			_, err = c.Put(ctx, "y", []expansion{{Meaning: "1"}, {Meaning: "2"}}, time.Minute)
			require.NoError(t, err)

			size, err := c.Size(ctx)
			require.NoError(t, err)
			require.EqualValues(t, 5, size)
		})
	}
}

func TestNegativeTTLStoresExpiredEntry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	c := newTestCache(t, store, clockwork.NewFakeClockAt(epoch))

	written, err := c.Put(ctx, "k", []expansion{{Term: "k"}}, -time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, written)

	rows, err := store.QueryByKey(ctx, "k")
	require.NoError(t, err)
	require.True(t, rows[0].ExpiresAt.Equal(epoch))
}

func TestPutDefaultUsesConfiguredTTL(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(epoch)
	c := newTestCache(t, NewMemoryStore(), clock, WithDefaultTTL(5*time.Second))
	require.Equal(t, 5*time.Second, c.DefaultTTL())

	_, err := c.PutDefault(ctx, "k", []expansion{{Term: "k"}})
	require.NoError(t, err)

	clock.Advance(4 * time.Second)
	_, found, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)

	clock.Advance(time.Second)
	_, found, err = c.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, found)
}

func TestDefaultTTLFallsBackToTenSeconds(t *testing.T) {
	c := newTestCache(t, NewMemoryStore(), clockwork.NewFakeClockAt(epoch))
	require.Equal(t, 10*time.Second, c.DefaultTTL())
	require.Equal(t, "acronyms", c.Name())
}

func TestStoreFailuresSurfaceAsStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	c := newTestCache(t, store, clockwork.NewFakeClockAt(epoch))

	store.set(func(s *flakyStore) {
		s.queryErr = errBoom
		s.replaceErr = errBoom
		s.deleteErr = errBoom
		s.expireErr = errBoom
		s.countErr = errBoom
	})

	_, _, err := c.Get(ctx, "k")
	require.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
	require.ErrorIs(t, err, errBoom)

	written, err := c.Put(ctx, "k", []expansion{{Term: "k"}}, time.Minute)
	require.Equal(t, PutFailed, written)
	require.ErrorIs(t, err, apperrors.ErrStoreUnavailable)

	require.ErrorIs(t, c.Remove(ctx, "k"), apperrors.ErrStoreUnavailable)

	_, err = c.Sweep(ctx)
	require.ErrorIs(t, err, apperrors.ErrStoreUnavailable)

	_, err = c.Size(ctx)
	require.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
}

func TestNilDatabaseStoreIsStoreUnavailable(t *testing.T) {
	c := newTestCache(t, NewDatabaseStore(nil, "acronyms"), clockwork.NewFakeClockAt(epoch))

	_, _, err := c.Get(context.Background(), "k")
	require.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
}

func TestCorruptPayloadIsReported(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	c := newTestCache(t, store, clockwork.NewFakeClockAt(epoch))

	_, err := store.InsertMany(ctx, "k", []Row{{Payload: []byte("not-json"), ExpiresAt: epoch.Add(time.Hour)}})
	require.NoError(t, err)

	_, found, err := c.Get(ctx, "k")
	require.False(t, found)
	require.ErrorIs(t, err, apperrors.ErrCorruptRecord)
}

func TestLegacyRowsExpireWithEarliestRow(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	clock := clockwork.NewFakeClockAt(epoch)
	c := newTestCache(t, store, clock)

	_, err := store.InsertMany(ctx, "k", []Row{{Payload: []byte(`{"term":"old"}`), ExpiresAt: epoch.Add(time.Second)}})
	require.NoError(t, err)
	_, err = store.InsertMany(ctx, "k", []Row{{Payload: []byte(`{"term":"new"}`), ExpiresAt: epoch.Add(time.Hour)}})
	require.NoError(t, err)

	clock.Advance(2 * time.Second)
	_, found, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, found)
}

func TestClosedCacheRejectsOperations(t *testing.T) {
	ctx := context.Background()
	c := New[expansion](NewMemoryStore(), WithLogger(zap.NewNop()))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, _, err := c.Get(ctx, "k")
	require.ErrorIs(t, err, apperrors.ErrCacheClosed)

	written, err := c.Put(ctx, "k", []expansion{{Term: "k"}}, time.Minute)
	require.Equal(t, PutFailed, written)
	require.ErrorIs(t, err, apperrors.ErrCacheClosed)

	require.ErrorIs(t, c.Remove(ctx, "k"), apperrors.ErrCacheClosed)

	_, err = c.Sweep(ctx)
	require.ErrorIs(t, err, apperrors.ErrCacheClosed)
}

func TestConcurrentOperationsOnSharedKeys(t *testing.T) {
	ctx := context.Background()
	db := storeFactories()["database"](t)
	c := newTestCache(t, db, clockwork.NewRealClock(), WithRemovalWorkers(2))

	keys := []string{"a", "b", "c"}
	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := keys[i%len(keys)]
			switch i % 5 {
			case 0:
				_, err := c.Put(ctx, key, []expansion{{Term: key}, {Term: key, Meaning: "alt"}}, 0)
				assert.NoError(t, err)
			case 1:
				_, err := c.Put(ctx, key, []expansion{{Term: key}}, time.Hour)
				assert.NoError(t, err)
			case 2:
				_, _, err := c.Get(ctx, key)
				assert.NoError(t, err)
			case 3:
				assert.NoError(t, c.Remove(ctx, key))
			default:
				_, err := c.Sweep(ctx)
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()
	require.NoError(t, c.Close())

	for _, key := range keys {
		rows, err := db.QueryByKey(ctx, key)
		require.NoError(t, err)
		if len(rows) > 0 {
			assertSharedExpiry(t, db, key, len(rows))
		}
	}
}

func assertSharedExpiry(t *testing.T, store Store, key string, wantRows int) []Row {
	t.Helper()

	rows, err := store.QueryByKey(context.Background(), key)
	require.NoError(t, err)
	require.Len(t, rows, wantRows)
	for _, row := range rows[1:] {
		require.True(t, row.ExpiresAt.Equal(rows[0].ExpiresAt), "rows under %q carry different expirations", key)
	}
	return rows
}

func TestNumericRecordsRoundTripThroughDatabase(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	c := New[int](NewDatabaseStore(db, "numbers"), WithClock(clockwork.NewFakeClockAt(epoch)), WithLogger(zap.NewNop()))
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	written, err := c.Put(ctx, "k", []int{1, 2}, time.Minute)
	require.NoError(t, err)
	require.Equal(t, 2, written)

	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []int{1, 2}, got)
}
