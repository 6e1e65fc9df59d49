package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

type expansion struct {
	Term    string `json:"term"`
	Meaning string `json:"meaning"`
}

var errBoom = errors.New("store offline")

// flakyStore wraps MemoryStore with injectable failures and an optional gate that holds
// DeleteByKey until released.
type flakyStore struct {
	*MemoryStore

	mu         sync.Mutex
	queryErr   error
	replaceErr error
	deleteErr  error
	expireErr  error
	countErr   error
	deleteGate chan struct{}

	deleteCalls atomic.Int32
}

func newFlakyStore() *flakyStore {
	return &flakyStore{MemoryStore: NewMemoryStore()}
}

func (s *flakyStore) set(fn func(s *flakyStore)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

func (s *flakyStore) QueryByKey(ctx context.Context, key string) ([]Row, error) {
	s.mu.Lock()
	err := s.queryErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.MemoryStore.QueryByKey(ctx, key)
}

func (s *flakyStore) ReplaceKey(ctx context.Context, key string, rows []Row) (int, error) {
	s.mu.Lock()
	err := s.replaceErr
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return s.MemoryStore.ReplaceKey(ctx, key, rows)
}

func (s *flakyStore) DeleteByKey(ctx context.Context, key string) (int64, error) {
	s.deleteCalls.Add(1)

	s.mu.Lock()
	err, gate := s.deleteErr, s.deleteGate
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if err != nil {
		return 0, err
	}
	return s.MemoryStore.DeleteByKey(ctx, key)
}

func (s *flakyStore) DeleteExpired(ctx context.Context, at time.Time) (int64, error) {
	s.mu.Lock()
	err := s.expireErr
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return s.MemoryStore.DeleteExpired(ctx, at)
}

func (s *flakyStore) CountAll(ctx context.Context) (int64, error) {
	s.mu.Lock()
	err := s.countErr
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return s.MemoryStore.CountAll(ctx)
}

type countingRecorder struct {
	mu       sync.Mutex
	gets     map[string]int
	removals map[string]int
	puts     int
	sweeps   int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{gets: map[string]int{}, removals: map[string]int{}}
}

func (r *countingRecorder) ObserveGet(_ string, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets[result]++
}

func (r *countingRecorder) ObservePut(string, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.puts++
}

func (r *countingRecorder) ObserveSweep(string, int64, time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweeps++
}

func (r *countingRecorder) ObserveBackgroundRemoval(_ string, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removals[result]++
}

func (r *countingRecorder) get(result string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gets[result]
}

func (r *countingRecorder) removal(result string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removals[result]
}
