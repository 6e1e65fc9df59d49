package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	testutil "github.com/charlesng35/lookupcache/internal/database/testutil"
)

func storeFactories() map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store {
			return NewMemoryStore()
		},
		"database": func(t *testing.T) Store {
			db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
			return NewDatabaseStore(db, "acronyms")
		},
	}
}

func TestStoreContract(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("insert and query", func(t *testing.T) {
				store := factory(t)
				rows := []Row{
					{Payload: []byte(`"one"`), ExpiresAt: base},
					{Payload: []byte(`"two"`), ExpiresAt: base},
				}

				written, err := store.InsertMany(ctx, "k", rows)
				require.NoError(t, err)
				require.Equal(t, 2, written)

				got, err := store.QueryByKey(ctx, "k")
				require.NoError(t, err)
				require.Len(t, got, 2)
				require.Equal(t, []string{`"one"`, `"two"`}, payloads(got))
				for _, row := range got {
					require.Equal(t, "k", row.Key)
					require.True(t, row.ExpiresAt.Equal(base))
				}

				missing, err := store.QueryByKey(ctx, "absent")
				require.NoError(t, err)
				require.Empty(t, missing)
			})

			t.Run("insert many appends", func(t *testing.T) {
				store := factory(t)
				_, err := store.InsertMany(ctx, "k", []Row{{Payload: []byte(`1`), ExpiresAt: base}})
				require.NoError(t, err)
				_, err = store.InsertMany(ctx, "k", []Row{{Payload: []byte(`2`), ExpiresAt: base.Add(time.Minute)}})
				require.NoError(t, err)

				count, err := store.CountAll(ctx)
				require.NoError(t, err)
				require.EqualValues(t, 2, count)
			})

			t.Run("replace key swaps rows", func(t *testing.T) {
				store := factory(t)
				_, err := store.InsertMany(ctx, "k", []Row{
					{Payload: []byte(`"old-1"`), ExpiresAt: base},
					{Payload: []byte(`"old-2"`), ExpiresAt: base},
				})
				require.NoError(t, err)

				later := base.Add(time.Hour)
				written, err := store.ReplaceKey(ctx, "k", []Row{{Payload: []byte(`"new"`), ExpiresAt: later}})
				require.NoError(t, err)
				require.Equal(t, 1, written)

				got, err := store.QueryByKey(ctx, "k")
				require.NoError(t, err)
				require.Equal(t, []string{`"new"`}, payloads(got))
				require.True(t, got[0].ExpiresAt.Equal(later))
			})

			t.Run("delete by key is idempotent", func(t *testing.T) {
				store := factory(t)
				_, err := store.InsertMany(ctx, "k", []Row{{Payload: []byte(`1`), ExpiresAt: base}, {Payload: []byte(`2`), ExpiresAt: base}})
				require.NoError(t, err)

				removed, err := store.DeleteByKey(ctx, "k")
				require.NoError(t, err)
				require.EqualValues(t, 2, removed)

				removed, err = store.DeleteByKey(ctx, "k")
				require.NoError(t, err)
				require.EqualValues(t, 0, removed)
			})

			t.Run("scalar payloads round trip", func(t *testing.T) {
				store := factory(t)
				want := []string{`3`, `-1.5`, `true`, `null`, `"7"`, `[1,2]`}
				rows := make([]Row, 0, len(want))
				for _, p := range want {
					rows = append(rows, Row{Payload: []byte(p), ExpiresAt: base})
				}

				_, err := store.ReplaceKey(ctx, "scalars", rows)
				require.NoError(t, err)

				got, err := store.QueryByKey(ctx, "scalars")
				require.NoError(t, err)
				require.Equal(t, want, payloads(got))
			})

			t.Run("delete expired is selective and inclusive", func(t *testing.T) {
				store := factory(t)
				_, err := store.InsertMany(ctx, "stale", []Row{{Payload: []byte(`1`), ExpiresAt: base}, {Payload: []byte(`2`), ExpiresAt: base}})
				require.NoError(t, err)
				_, err = store.InsertMany(ctx, "fresh", []Row{{Payload: []byte(`3`), ExpiresAt: base.Add(time.Second)}})
				require.NoError(t, err)

				removed, err := store.DeleteExpired(ctx, base)
				require.NoError(t, err)
				require.EqualValues(t, 2, removed)

				removed, err = store.DeleteExpired(ctx, base)
				require.NoError(t, err)
				require.EqualValues(t, 0, removed)

				fresh, err := store.QueryByKey(ctx, "fresh")
				require.NoError(t, err)
				require.Len(t, fresh, 1)
			})
		})
	}
}

func TestDatabaseStoreNamespacesAreIsolated(t *testing.T) {
	ctx := context.Background()
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	acronyms := NewDatabaseStore(db, "acronyms")
	weather := NewDatabaseStore(db, "weather")
	expiry := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := acronyms.InsertMany(ctx, "shared", []Row{{Payload: []byte(`"a"`), ExpiresAt: expiry}})
	require.NoError(t, err)
	_, err = weather.InsertMany(ctx, "shared", []Row{{Payload: []byte(`"w"`), ExpiresAt: expiry}})
	require.NoError(t, err)

	removed, err := acronyms.DeleteExpired(ctx, expiry)
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	count, err := weather.CountAll(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
	require.Equal(t, "weather", weather.Namespace())
}

func TestNilDatabaseStoreReportsError(t *testing.T) {
	var store *DatabaseStore
	ctx := context.Background()

	_, err := store.QueryByKey(ctx, "k")
	require.ErrorIs(t, err, errDatabaseStoreNil)
	_, err = store.DeleteExpired(ctx, time.Now())
	require.ErrorIs(t, err, errDatabaseStoreNil)
	require.Nil(t, NewDatabaseStore(nil, "x"))
}

func payloads(rows []Row) []string {
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, string(row.Payload))
	}
	return out
}
