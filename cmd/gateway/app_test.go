package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shoply/gateway/internal/config"
	"github.com/shoply/gateway/internal/observability"
)

const testAppConfig = `
server:
  port: 18080
metrics:
  enabled: true
  port: 19090
jwt:
  secret: 0123456789abcdef0123456789abcdef
  issuer: gateway-test
  ttl: 1h
rateLimit:
  enabled: true
  requestsPerSecond: 50
backends:
  - name: user-service
    url: http://localhost:18081
  - name: product-service
    url: http://localhost:18082
routes:
  - id: auth
    path: /auth/(?P<remaining>.*)
    backend: local
  - id: products
    path: /product-service/(?P<remaining>.*)
    methods: [GET]
    backend: product-service
    rewrite: /api/v1/products/${remaining}
`

func loadTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromReader(strings.NewReader(testAppConfig))
	require.NoError(t, err)
	return cfg
}

func TestInitApplication(t *testing.T) {
	app := initApplication(loadTestConfig(t), observability.NopLogger())
	require.NotNil(t, app)

	assert.Equal(t, ":18080", app.server.Addr)
	require.NotNil(t, app.metricsServer)
	assert.Equal(t, ":19090", app.metricsServer.Addr)
	assert.NotNil(t, app.sweeper)
	assert.Nil(t, app.redisClient)

	assert.Equal(t, 30*time.Second, app.server.ReadTimeout)
}

func TestInitApplication_HealthEndpoints(t *testing.T) {
	app := initApplication(loadTestConfig(t), observability.NopLogger())
	require.NotNil(t, app)

	rec := httptest.NewRecorder()
	app.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	// Not ready until the listener is up.
	rec = httptest.NewRecorder()
	app.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestInitApplication_UnmatchedRouteGets404(t *testing.T) {
	app := initApplication(loadTestConfig(t), observability.NopLogger())
	require.NotNil(t, app)

	rec := httptest.NewRecorder()
	app.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payment-service/x", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "No route matches")
}

func TestInitApplication_RateLimiterWired(t *testing.T) {
	app := initApplication(loadTestConfig(t), observability.NopLogger())
	require.NotNil(t, app)
	assert.NotNil(t, app.rateLimiter)
}

func TestGetEnvOrDefault(t *testing.T) {
	t.Setenv("GATEWAY_APP_TEST_VAR", "set")
	assert.Equal(t, "set", getEnvOrDefault("GATEWAY_APP_TEST_VAR", "fallback"))
	assert.Equal(t, "fallback", getEnvOrDefault("GATEWAY_APP_TEST_UNSET", "fallback"))
}
