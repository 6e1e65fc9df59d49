package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. It does not survive restarts and is mainly used in
// tests and for caches that only need the expiry contract.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string][]Row
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string][]Row)}
}

func (s *MemoryStore) InsertMany(_ context.Context, key string, rows []Row) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.rows[key] = append(s.rows[key], cloneRows(key, rows)...)
	return len(rows), nil
}

func (s *MemoryStore) ReplaceKey(_ context.Context, key string, rows []Row) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(rows) == 0 {
		delete(s.rows, key)
		return 0, nil
	}
	s.rows[key] = cloneRows(key, rows)
	return len(rows), nil
}

func (s *MemoryStore) QueryByKey(_ context.Context, key string) ([]Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return cloneRows(key, s.rows[key]), nil
}

func (s *MemoryStore) DeleteByKey(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := int64(len(s.rows[key]))
	delete(s.rows, key)
	return removed, nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for key, rows := range s.rows {
		kept := rows[:0]
		for _, row := range rows {
			if row.ExpiresAt.After(at) {
				kept = append(kept, row)
				continue
			}
			removed++
		}
		if len(kept) == 0 {
			delete(s.rows, key)
			continue
		}
		s.rows[key] = kept
	}
	return removed, nil
}

func (s *MemoryStore) CountAll(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, rows := range s.rows {
		total += int64(len(rows))
	}
	return total, nil
}

func cloneRows(key string, rows []Row) []Row {
	if len(rows) == 0 {
		return nil
	}
	out := make([]Row, len(rows))
	for i, row := range rows {
		payload := make([]byte, len(row.Payload))
		copy(payload, row.Payload)
		out[i] = Row{Key: key, Payload: payload, ExpiresAt: row.ExpiresAt}
	}
	return out
}
