package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shoply/gateway/internal/config"
	"github.com/shoply/gateway/internal/observability"
	"github.com/shoply/gateway/internal/util"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequestID_GeneratesWhenAbsent(t *testing.T) {
	var captured string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = observability.RequestIDFromContext(r.Context())
	})

	rec := httptest.NewRecorder()
	RequestID()(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotEmpty(t, captured)
	_, err := uuid.Parse(captured)
	assert.NoError(t, err)
	assert.Equal(t, captured, rec.Header().Get(HeaderRequestID))
}

func TestRequestID_HonorsInbound(t *testing.T) {
	var captured string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = observability.RequestIDFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	rec := httptest.NewRecorder()
	RequestID()(next).ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", captured)
	assert.Equal(t, "abc-123", rec.Header().Get(HeaderRequestID))
}

func TestRecovery_ConvertsPanic(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	Recovery(observability.NopLogger())(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Internal server error.")
}

func TestRecovery_PassesThrough(t *testing.T) {
	rec := httptest.NewRecorder()
	Recovery(observability.NopLogger())(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogging_CapturesStatus(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		util.SetRoute(r.Context(), "users")
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	Logging(observability.NopLogger())(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/user-service/users", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestLogging_InstallsRouteSlot(t *testing.T) {
	var route string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		util.SetRoute(r.Context(), "products")
		route = util.RouteFromContext(r.Context())
	})

	Logging(observability.NopLogger())(inner).
		ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "products", route)
}

func TestRateLimiter_RejectsOverBudget(t *testing.T) {
	rl := NewRateLimiter(config.RateLimitConfig{
		Enabled:           true,
		RequestsPerSecond: 1,
		Burst:             2,
	}, nil)
	handler := rl.Middleware()(okHandler())

	newReq := func() *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:50000"
		return req
	}

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, newReq())
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newReq())
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "Too Many Requests"))
}

func TestRateLimiter_PerClient(t *testing.T) {
	rl := NewRateLimiter(config.RateLimitConfig{
		Enabled:           true,
		RequestsPerSecond: 1,
		Burst:             1,
	}, nil)
	handler := rl.Middleware()(okHandler())

	first := httptest.NewRequest(http.MethodGet, "/", nil)
	first.RemoteAddr = "10.0.0.1:50000"
	second := httptest.NewRequest(http.MethodGet, "/", nil)
	second.RemoteAddr = "10.0.0.2:50000"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, first)
	require.Equal(t, http.StatusOK, rec.Code)

	// A different client has its own bucket.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, second)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiter_EvictIdle(t *testing.T) {
	rl := NewRateLimiter(config.RateLimitConfig{
		Enabled:           true,
		RequestsPerSecond: 1,
		Burst:             1,
	}, nil)

	rl.allow("10.0.0.1")
	rl.allow("10.0.0.2")
	require.Len(t, rl.clients, 2)

	time.Sleep(10 * time.Millisecond)
	rl.EvictIdle(time.Millisecond)
	assert.Empty(t, rl.clients)
}

func TestMetrics_RecordsByRoute(t *testing.T) {
	m := observability.NewMetrics("gateway")
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		util.SetRoute(r.Context(), "users")
		w.WriteHeader(http.StatusCreated)
	})

	chain := Logging(observability.NopLogger())(Metrics(m)(next))
	chain.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/user-service/users", nil))

	// Second request misses every route.
	chain.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))
}
