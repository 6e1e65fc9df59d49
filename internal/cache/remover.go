package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// remover runs lazy removals detached from the Get that discovered the stale key. It never
// blocks the caller: when every worker is busy, or the key already has a removal in flight,
// the request is dropped and the row is left for the next sweep. Failures are logged and
// counted, never retried.
type remover struct {
	name     string
	remove   func(ctx context.Context, key string) error
	sem      *semaphore.Weighted
	timeout  time.Duration
	log      *zap.Logger
	recorder Recorder

	pending sync.Map

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func newRemover(name string, workers int64, timeout time.Duration, log *zap.Logger, recorder Recorder, remove func(context.Context, string) error) *remover {
	return &remover{
		name:     name,
		remove:   remove,
		sem:      semaphore.NewWeighted(workers),
		timeout:  timeout,
		log:      log,
		recorder: recorder,
	}
}

// schedule submits a removal for key and reports whether it was accepted.
func (r *remover) schedule(key string) bool {
	if _, loaded := r.pending.LoadOrStore(key, struct{}{}); loaded {
		return false
	}

	if !r.sem.TryAcquire(1) {
		r.pending.Delete(key)
		r.recorder.ObserveBackgroundRemoval(r.name, ResultSkipped)
		r.log.Debug("lazy removal skipped; workers busy", zap.String("key", key))
		return false
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.sem.Release(1)
		r.pending.Delete(key)
		return false
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go r.run(key)
	return true
}

func (r *remover) run(key string) {
	defer r.wg.Done()
	defer r.sem.Release(1)
	defer r.pending.Delete(key)

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.safeRemove(ctx, key); err != nil {
		r.recorder.ObserveBackgroundRemoval(r.name, ResultError)
		r.log.Warn("lazy removal failed", zap.String("key", key), zap.Error(err))
		return
	}
	r.recorder.ObserveBackgroundRemoval(r.name, ResultSuccess)
}

func (r *remover) safeRemove(ctx context.Context, key string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic during removal: %v", p)
		}
	}()
	return r.remove(ctx, key)
}

// close rejects new removals and waits for in-flight ones.
func (r *remover) close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.wg.Wait()
}
