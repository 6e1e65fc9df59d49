package checks_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	testutil "github.com/charlesng35/lookupcache/internal/database/testutil"
	"github.com/charlesng35/lookupcache/internal/monitoring"
	"github.com/charlesng35/lookupcache/internal/monitoring/checks"
)

func TestDatabaseCheckUp(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	result := checks.Database(db, time.Second).Run(context.Background())
	require.Equal(t, monitoring.StatusUp, result.Status)
	require.Equal(t, "database", result.Component)
}

func TestDatabaseCheckMissingSchemaIsDegraded(t *testing.T) {
	db := testutil.MustOpenTestDB(t)

	result := checks.Database(db, time.Second).Run(context.Background())
	require.Equal(t, monitoring.StatusDegraded, result.Status)
	require.Equal(t, "cache table missing", result.Details)
}

func TestDatabaseCheckNilHandle(t *testing.T) {
	result := checks.Database(nil, 0).Run(context.Background())
	require.Equal(t, monitoring.StatusDown, result.Status)
	require.Equal(t, "database not configured", result.Details)
}

func TestDatabaseCheckClosedHandle(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	result := checks.Database(db, 0).Run(context.Background())
	require.NotEqual(t, monitoring.StatusUp, result.Status)
	require.NotEmpty(t, result.Details)
}
