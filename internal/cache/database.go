package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/lookupcache/internal/models"
)

var errDatabaseStoreNil = errors.New("cache: database store not initialised")

// DatabaseStore implements Store on the primary SQL database. Several caches share the
// cache_records table; each store only sees rows in its own namespace.
type DatabaseStore struct {
	db        *gorm.DB
	namespace string
}

// NewDatabaseStore constructs a database-backed Store scoped to namespace.
func NewDatabaseStore(db *gorm.DB, namespace string) *DatabaseStore {
	if db == nil {
		return nil
	}
	return &DatabaseStore{db: db, namespace: strings.TrimSpace(namespace)}
}

// Namespace returns the namespace rows are written under.
func (s *DatabaseStore) Namespace() string {
	if s == nil {
		return ""
	}
	return s.namespace
}

// InsertMany appends rows for key without touching existing ones.
func (s *DatabaseStore) InsertMany(ctx context.Context, key string, rows []Row) (int, error) {
	if s == nil {
		return 0, errDatabaseStoreNil
	}
	if len(rows) == 0 {
		return 0, nil
	}

	records := s.toRecords(key, rows)
	if err := s.session(ctx).Create(&records).Error; err != nil {
		return 0, err
	}
	return len(records), nil
}

// ReplaceKey deletes the existing rows for key and inserts rows inside one transaction so
// readers never observe two expirations under the same key.
func (s *DatabaseStore) ReplaceKey(ctx context.Context, key string, rows []Row) (int, error) {
	if s == nil {
		return 0, errDatabaseStoreNil
	}

	records := s.toRecords(key, rows)
	err := s.session(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where(s.keyFilter(key)).Delete(&models.CacheRecord{}).Error; err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		return tx.Create(&records).Error
	})
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// QueryByKey returns the rows for key ordered by expiry then position.
func (s *DatabaseStore) QueryByKey(ctx context.Context, key string) ([]Row, error) {
	if s == nil {
		return nil, errDatabaseStoreNil
	}

	var records []models.CacheRecord
	err := s.session(ctx).
		Where(s.keyFilter(key)).
		Order("expires_at ASC").
		Order("position ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	rows := make([]Row, 0, len(records))
	for _, record := range records {
		rows = append(rows, Row{
			Key:       record.Key,
			Payload:   record.Payload,
			ExpiresAt: fromMillis(record.ExpiresAt),
		})
	}
	return rows, nil
}

// DeleteByKey removes every row for key.
func (s *DatabaseStore) DeleteByKey(ctx context.Context, key string) (int64, error) {
	if s == nil {
		return 0, errDatabaseStoreNil
	}

	result := s.session(ctx).Where(s.keyFilter(key)).Delete(&models.CacheRecord{})
	return result.RowsAffected, result.Error
}

// DeleteExpired removes every row in the namespace that expired at or before at.
func (s *DatabaseStore) DeleteExpired(ctx context.Context, at time.Time) (int64, error) {
	if s == nil {
		return 0, errDatabaseStoreNil
	}

	result := s.session(ctx).
		Where("namespace = ? AND expires_at <= ?", s.namespace, toMillis(at)).
		Delete(&models.CacheRecord{})
	return result.RowsAffected, result.Error
}

// CountAll returns the number of rows in the namespace.
func (s *DatabaseStore) CountAll(ctx context.Context) (int64, error) {
	if s == nil {
		return 0, errDatabaseStoreNil
	}

	var count int64
	err := s.session(ctx).
		Model(&models.CacheRecord{}).
		Where("namespace = ?", s.namespace).
		Count(&count).Error
	return count, err
}

func (s *DatabaseStore) session(ctx context.Context) *gorm.DB {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.db.WithContext(ctx)
}

// keyFilter uses map conditions so gorm quotes "key", which is reserved in MySQL.
func (s *DatabaseStore) keyFilter(key string) map[string]interface{} {
	return map[string]interface{}{
		"namespace": s.namespace,
		"key":       key,
	}
}

func (s *DatabaseStore) toRecords(key string, rows []Row) []models.CacheRecord {
	records := make([]models.CacheRecord, 0, len(rows))
	for i, row := range rows {
		records = append(records, models.CacheRecord{
			Namespace: s.namespace,
			Key:       key,
			Position:  i,
			Payload:   row.Payload,
			ExpiresAt: toMillis(row.ExpiresAt),
		})
	}
	return records
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
