package handlers

import (
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"

	appErrors "github.com/charlesng35/lookupcache/pkg/errors"
	"github.com/charlesng35/lookupcache/pkg/response"
	appValidator "github.com/charlesng35/lookupcache/pkg/validator"
)

// CacheHandler exposes raw entry access and maintenance for named caches.
type CacheHandler struct {
	caches map[string]CacheAdmin
}

// NewCacheHandler registers the supplied caches by name.
func NewCacheHandler(caches ...CacheAdmin) (*CacheHandler, error) {
	registry := make(map[string]CacheAdmin, len(caches))
	for _, c := range caches {
		if c == nil {
			continue
		}
		if _, dup := registry[c.Name()]; dup {
			return nil, errors.New("cache handler: duplicate cache " + c.Name())
		}
		registry[c.Name()] = c
	}
	return &CacheHandler{caches: registry}, nil
}

type putEntryRequest struct {
	Key     string            `json:"key" validate:"cachekey"`
	Records []json.RawMessage `json:"records"`
	TTL     string            `json:"ttl" validate:"duration"`
}

type cacheStats struct {
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	DefaultTTL string `json:"default_ttl"`
}

// List returns every registered cache with its current row count.
func (h *CacheHandler) List(c *gin.Context) {
	names := make([]string, 0, len(h.caches))
	for name := range h.caches {
		names = append(names, name)
	}
	sort.Strings(names)

	stats := make([]cacheStats, 0, len(names))
	for _, name := range names {
		entry, err := h.stats(c, h.caches[name])
		if err != nil {
			response.Error(c, err)
			return
		}
		stats = append(stats, entry)
	}
	response.Success(c, http.StatusOK, stats)
}

// Get returns the live records stored under a key.
func (h *CacheHandler) Get(c *gin.Context) {
	target, ok := h.resolve(c)
	if !ok {
		return
	}

	key := c.Param("key")
	records, count, found, err := target.Entries(c.Request.Context(), key)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !found {
		response.Error(c, appErrors.ErrNotFound)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, records, &response.Meta{
		Cache:  target.Name(),
		Key:    key,
		Cached: true,
		Count:  count,
	})
}

// Put replaces the records stored under a key. An omitted ttl uses the cache default.
func (h *CacheHandler) Put(c *gin.Context) {
	target, ok := h.resolve(c)
	if !ok {
		return
	}

	var req putEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.NewBadRequest("invalid JSON payload"))
		return
	}
	req.Key = c.Param("key")
	if err := appValidator.ValidateStruct(&req); err != nil {
		response.Error(c, appErrors.NewBadRequest(formatValidationError(err)))
		return
	}

	ttl := target.DefaultTTL()
	if req.TTL != "" {
		ttl, _ = time.ParseDuration(req.TTL)
	}

	rows, err := target.Store(c.Request.Context(), req.Key, req.Records, ttl)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"rows": rows,
		"ttl":  ttl.String(),
	})
}

// Delete removes every record stored under a key. Missing keys succeed.
func (h *CacheHandler) Delete(c *gin.Context) {
	target, ok := h.resolve(c)
	if !ok {
		return
	}

	if err := target.Remove(c.Request.Context(), c.Param("key")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"removed": true})
}

// Stats reports the row count of a cache.
func (h *CacheHandler) Stats(c *gin.Context) {
	target, ok := h.resolve(c)
	if !ok {
		return
	}

	stats, err := h.stats(c, target)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, stats)
}

// Sweep removes every expired row of a cache immediately.
func (h *CacheHandler) Sweep(c *gin.Context) {
	target, ok := h.resolve(c)
	if !ok {
		return
	}

	removed, err := target.Sweep(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"removed": removed})
}

func (h *CacheHandler) resolve(c *gin.Context) (CacheAdmin, bool) {
	target, ok := h.caches[c.Param("name")]
	if !ok {
		response.Error(c, appErrors.New(appErrors.ErrNotFound.Code, "Cache not found", http.StatusNotFound))
		return nil, false
	}
	return target, true
}

func (h *CacheHandler) stats(c *gin.Context, target CacheAdmin) (cacheStats, error) {
	size, err := target.Size(c.Request.Context())
	if err != nil {
		return cacheStats{}, err
	}
	return cacheStats{
		Name:       target.Name(),
		Size:       size,
		DefaultTTL: target.DefaultTTL().String(),
	}, nil
}
