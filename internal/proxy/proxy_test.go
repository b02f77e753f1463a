package proxy

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shoply/gateway/internal/backend"
	"github.com/shoply/gateway/internal/config"
	"github.com/shoply/gateway/internal/router"
	"github.com/shoply/gateway/internal/util"
)

func newRule(t *testing.T, cfg config.RouteConfig) *router.Rule {
	t.Helper()
	table, err := router.NewTable([]config.RouteConfig{cfg})
	require.NoError(t, err)
	return table.Rules()[0]
}

func newForwarder(t *testing.T, backendURL string, timeout time.Duration) *Forwarder {
	t.Helper()
	registry, err := backend.NewRegistry([]config.BackendConfig{
		{Name: "user-service", URL: backendURL, Timeout: config.Duration(timeout)},
	})
	require.NoError(t, err)
	return NewForwarder(registry)
}

func TestForwarder_RewritesAndForwards(t *testing.T) {
	var received *http.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received = r.Clone(r.Context())
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer server.Close()

	rule := newRule(t, config.RouteConfig{
		ID:      "users",
		Path:    `/user-service/(?P<remaining>.*)`,
		Backend: "user-service",
		Rewrite: `/api/v1/${remaining}`,
		Headers: map[string]string{"X-Channel": "web"},
	})

	handler, err := newForwarder(t, server.URL, 5*time.Second).Handler(rule)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/user-service/users/12", nil)
	req.Header.Set("X-User-Id", "42")
	req.Header.Set("X-User-Role", "CLIENT")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, received)
	assert.Equal(t, "/api/v1/users/12", received.URL.Path)
	assert.Equal(t, "Gateway", received.Header.Get("X-Request-Origin"))
	assert.Equal(t, "web", received.Header.Get("X-Channel"))

	// Identity headers set by the auth middleware travel to the backend.
	assert.Equal(t, "42", received.Header.Get("X-User-Id"))
	assert.Equal(t, "CLIENT", received.Header.Get("X-User-Role"))
}

func TestForwarder_OverridesInboundOrigin(t *testing.T) {
	var origin string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin = r.Header.Get("X-Request-Origin")
	}))
	defer server.Close()

	rule := newRule(t, config.RouteConfig{
		ID:      "users",
		Path:    `/user-service/(?P<remaining>.*)`,
		Backend: "user-service",
		Rewrite: `/api/v1/${remaining}`,
	})

	handler, err := newForwarder(t, server.URL, 5*time.Second).Handler(rule)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/user-service/users", nil)
	req.Header.Set("X-Request-Origin", "Spoofed")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "Gateway", origin)
}

func TestForwarder_BackendDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	rule := newRule(t, config.RouteConfig{
		ID:      "users",
		Path:    `/user-service/(?P<remaining>.*)`,
		Backend: "user-service",
		Rewrite: `/api/v1/${remaining}`,
	})

	handler, err := newForwarder(t, server.URL, time.Second).Handler(rule)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/user-service/users", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body util.ErrorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "Service Unavailable", body.Error)
}

func TestForwarder_TimeoutCancelsCall(t *testing.T) {
	done := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
		close(done)
	}))
	defer server.Close()

	rule := newRule(t, config.RouteConfig{
		ID:      "users",
		Path:    `/user-service/(?P<remaining>.*)`,
		Backend: "user-service",
		Rewrite: `/api/v1/${remaining}`,
	})

	handler, err := newForwarder(t, server.URL, 50*time.Millisecond).Handler(rule)
	require.NoError(t, err)

	start := time.Now()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/user-service/users", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Less(t, time.Since(start), 2*time.Second)
	<-done
}

func TestForwarder_RejectsLocalRule(t *testing.T) {
	rule := newRule(t, config.RouteConfig{
		ID:      "auth",
		Path:    `/auth/(?P<remaining>.*)`,
		Backend: router.LocalBackend,
	})

	_, err := newForwarder(t, "http://localhost:1", time.Second).Handler(rule)
	assert.Error(t, err)
}

func TestForwarder_UnknownBackend(t *testing.T) {
	rule := newRule(t, config.RouteConfig{
		ID:      "orders",
		Path:    `/order-service/(?P<remaining>.*)`,
		Backend: "order-service",
	})

	_, err := newForwarder(t, "http://localhost:1", time.Second).Handler(rule)
	assert.Error(t, err)
}
