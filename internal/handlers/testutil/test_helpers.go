package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/lookupcache/internal/api"
	"github.com/charlesng35/lookupcache/internal/app"
	"github.com/charlesng35/lookupcache/internal/cache"
	sharedtestutil "github.com/charlesng35/lookupcache/internal/database/testutil"
	"github.com/charlesng35/lookupcache/internal/handlers"
	"github.com/charlesng35/lookupcache/internal/lookup"
	"github.com/charlesng35/lookupcache/internal/middleware"
	"github.com/charlesng35/lookupcache/internal/monitoring"
	"github.com/charlesng35/lookupcache/pkg/response"
)

// Env encapsulates a fully-wired API instance backed by an in-memory database and stub
// lookup sources for handler tests.
type Env struct {
	T          *testing.T
	DB         *gorm.DB
	Clock      clockwork.FakeClock
	Router     *gin.Engine
	Monitoring *monitoring.Module
	Acronyms   *cache.TimeoutCache[lookup.Acronym]
	Weather    *cache.TimeoutCache[lookup.Condition]

	// AcronymFetches counts calls made to the stub acronym source.
	AcronymFetches atomic.Int32
	// AcronymSource answers acronym fetches; tests may replace it before issuing requests.
	AcronymSource func(key string) ([]lookup.Acronym, error)
}

// NewEnv provisions a fresh handler test environment. The rate limit applies to the lookup
// routes when limit is positive.
func NewEnv(t *testing.T, limit int) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())
	clock := clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))

	mod, err := monitoring.NewModule(monitoring.Options{DisableGoCollector: true, DisableProcessCollector: true})
	require.NoError(t, err)

	cfg := &app.Config{
		Server: app.ServerConfig{
			RateLimit: app.RateLimitConfig{Requests: limit, Window: time.Minute},
		},
		Cache: app.CacheConfig{
			DefaultTTL:    10 * time.Second,
			SweepInterval: 12 * time.Hour,
			Acronyms:      app.NamedCacheSettings{TTL: time.Hour},
		},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
	}

	env := &Env{T: t, DB: db, Clock: clock, Monitoring: mod}
	env.AcronymSource = func(key string) ([]lookup.Acronym, error) {
		return nil, nil
	}

	extra := []cache.Option{cache.WithClock(clock), cache.WithLogger(zap.NewNop()), cache.WithRecorder(mod)}
	env.Acronyms = cache.New[lookup.Acronym](cache.NewDatabaseStore(db, "acronyms"), cfg.Cache.CacheOptions("acronyms", extra...)...)
	env.Weather = cache.New[lookup.Condition](cache.NewDatabaseStore(db, "weather"), cfg.Cache.CacheOptions("weather", extra...)...)
	t.Cleanup(func() {
		_ = env.Acronyms.Close()
		_ = env.Weather.Close()
	})

	acronymSvc, err := lookup.NewAcronymService(env.Acronyms, lookup.FetcherFunc[lookup.Acronym](
		func(ctx context.Context, key string) ([]lookup.Acronym, error) {
			env.AcronymFetches.Add(1)
			return env.AcronymSource(key)
		},
	))
	require.NoError(t, err)

	router, err := api.NewRouter(api.Dependencies{
		Config:     cfg,
		Monitoring: mod,
		Caches:     []handlers.CacheAdmin{handlers.AdminFor(env.Acronyms), handlers.AdminFor(env.Weather)},
		Acronyms:   acronymSvc,
		RateStore:  middleware.NewMemoryRateStore(clock),
	})
	require.NoError(t, err)
	env.Router = router

	return env
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, JSON-encoding body when set.
func (e *Env) Request(method, path string, body any) *httptest.ResponseRecorder {
	e.T.Helper()

	buf := bytes.NewBuffer(nil)
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
