package cache

import (
	"context"
	"time"
)

// Row is the persisted form of one cached record. Rows written by the same put share Key
// and ExpiresAt.
type Row struct {
	Key       string
	Payload   []byte
	ExpiresAt time.Time
}

// Store persists rows for a single cache. Every delete is delete-if-present: running it
// zero, one or many times has the same effect and never fails because the rows are gone.
type Store interface {
	// InsertMany appends rows for key and returns how many were written.
	InsertMany(ctx context.Context, key string, rows []Row) (int, error)
	// ReplaceKey removes every row for key and inserts rows in one transaction.
	ReplaceKey(ctx context.Context, key string, rows []Row) (int, error)
	// QueryByKey returns all rows for key in insertion order.
	QueryByKey(ctx context.Context, key string) ([]Row, error)
	// DeleteByKey removes every row for key.
	DeleteByKey(ctx context.Context, key string) (int64, error)
	// DeleteExpired removes every row whose expiry is at or before at.
	DeleteExpired(ctx context.Context, at time.Time) (int64, error)
	// CountAll returns the number of rows across all keys.
	CountAll(ctx context.Context) (int64, error)
}
