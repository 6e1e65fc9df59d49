package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"

	apperrors "github.com/charlesng35/lookupcache/pkg/errors"
	"github.com/charlesng35/lookupcache/pkg/response"
)

var errRateLimited = apperrors.New("RATE_LIMITED", "Too many requests", http.StatusTooManyRequests)

// RateStore counts requests for a key within fixed windows.
type RateStore interface {
	Increment(key string, window time.Duration) (count int, resetIn time.Duration)
}

// MemoryRateStore is a process-local RateStore. Expired windows are pruned on write.
type MemoryRateStore struct {
	mu        sync.Mutex
	clock     clockwork.Clock
	data      map[string]*rateWindow
	lastPrune time.Time
}

type rateWindow struct {
	count int
	end   time.Time
}

// NewMemoryRateStore constructs an in-memory rate store. A nil clock uses the real clock.
func NewMemoryRateStore(clock clockwork.Clock) *MemoryRateStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryRateStore{clock: clock, data: make(map[string]*rateWindow)}
}

// Increment records one request for key and returns the count in the current window.
func (s *MemoryRateStore) Increment(key string, window time.Duration) (int, time.Duration) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastPrune) >= window {
		for k, w := range s.data {
			if !now.Before(w.end) {
				delete(s.data, k)
			}
		}
		s.lastPrune = now
	}

	w, ok := s.data[key]
	if !ok || !now.Before(w.end) {
		w = &rateWindow{end: now.Add(window)}
		s.data[key] = w
	}
	w.count++
	return w.count, w.end.Sub(now)
}

// Len reports the number of tracked windows.
func (s *MemoryRateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// RateLimit limits requests per (client IP, route) within a fixed window. Non-positive
// limits disable the middleware.
func RateLimit(store RateStore, maxRequests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil || maxRequests <= 0 || window <= 0 {
			c.Next()
			return
		}

		count, resetIn := store.Increment(c.ClientIP()+"|"+c.FullPath(), window)
		remaining := maxRequests - count
		if remaining < 0 {
			remaining = 0
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.Itoa(int(resetIn.Seconds())))

		if count > maxRequests {
			response.Error(c, errRateLimited)
			c.Abort()
			return
		}
		c.Next()
	}
}
