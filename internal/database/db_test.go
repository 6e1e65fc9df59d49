package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/lookupcache/internal/models"
)

func TestOpenSQLiteMemory(t *testing.T) {
	db := openTestDB(t, Config{Driver: "sqlite"})

	require.NoError(t, db.Exec("SELECT 1").Error)
	require.NoError(t, Ping(db))
}

func TestOpenSQLiteFileCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cache.sqlite")
	db := openTestDB(t, Config{Driver: "SQLite", Path: path})

	require.NoError(t, AutoMigrate(db))
	require.FileExists(t, path)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	require.Error(t, err)
}

func TestAutoMigrateCreatesCacheTable(t *testing.T) {
	db := openTestDB(t, Config{Driver: "sqlite"})

	require.NoError(t, AutoMigrate(db))
	require.True(t, db.Migrator().HasTable(&models.CacheRecord{}))
	require.True(t, db.Migrator().HasIndex(&models.CacheRecord{}, "idx_cache_records_lookup"))

	record := models.CacheRecord{
		Namespace: "acronyms",
		Key:       "NASA",
		Payload:   []byte(`{"expansion":"National Aeronautics and Space Administration"}`),
		ExpiresAt: 1,
	}
	require.NoError(t, db.Create(&record).Error)
	require.NotEmpty(t, record.ID)
}

func TestAutoMigrateRejectsNilHandle(t *testing.T) {
	require.Error(t, AutoMigrate(nil))
}

func openTestDB(t *testing.T, cfg Config) *gorm.DB {
	t.Helper()

	db, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = Close(db)
	})

	return db
}
