package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/shoply/gateway/internal/auth"
	"github.com/shoply/gateway/internal/auth/jwt"
	"github.com/shoply/gateway/internal/auth/revocation"
	"github.com/shoply/gateway/internal/backend"
	"github.com/shoply/gateway/internal/circuitbreaker"
	"github.com/shoply/gateway/internal/config"
	"github.com/shoply/gateway/internal/middleware"
	"github.com/shoply/gateway/internal/observability"
	"github.com/shoply/gateway/internal/proxy"
	"github.com/shoply/gateway/internal/router"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// echoBackend records the last request a fake backend received.
type echoBackend struct {
	mu    sync.Mutex
	last  *http.Request
	calls int
}

func (e *echoBackend) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.mu.Lock()
		e.last = r.Clone(r.Context())
		e.calls++
		e.mu.Unlock()
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
}

func (e *echoBackend) lastRequest() *http.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

func (e *echoBackend) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// userBackend is a minimal user service with one client and one admin
// account.
type userBackend struct {
	mu   sync.Mutex
	down bool
	hits int
}

func (u *userBackend) handler(t *testing.T) http.Handler {
	t.Helper()

	clientHash, err := bcrypt.GenerateFromPassword([]byte("client-pass"), bcrypt.MinCost)
	require.NoError(t, err)
	adminHash, err := bcrypt.GenerateFromPassword([]byte("admin-pass"), bcrypt.MinCost)
	require.NoError(t, err)

	users := map[string]*backend.User{
		"client@example.com": {ID: 1, FirstName: "Cleo", LastName: "Client", Email: "client@example.com", Password: string(clientHash), Role: "CLIENT"},
		"admin@example.com":  {ID: 2, FirstName: "Ada", LastName: "Admin", Email: "admin@example.com", Password: string(adminHash), Role: "ADMIN"},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/users", func(w http.ResponseWriter, r *http.Request) {
		list := make([]*backend.User, 0, len(users))
		for _, user := range users {
			list = append(list, user)
		}
		_ = json.NewEncoder(w).Encode(list)
	})
	mux.HandleFunc("GET /api/v1/users/email/{email}", func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.hits++
		down := u.down
		u.mu.Unlock()
		if down {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		user, ok := users[r.PathValue("email")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(user)
	})
	mux.HandleFunc("GET /api/v1/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		for _, user := range users {
			if r.PathValue("id") == "1" && user.ID == 1 || r.PathValue("id") == "2" && user.ID == 2 {
				_ = json.NewEncoder(w).Encode(user)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	})
	return mux
}

func (u *userBackend) setDown(down bool) {
	u.mu.Lock()
	u.down = down
	u.mu.Unlock()
}

func (u *userBackend) hitCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.hits
}

type testEnv struct {
	handler  http.Handler
	products *echoBackend
	users    *userBackend
	codec    *jwt.Codec
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	products := &echoBackend{}
	productServer := httptest.NewServer(products.handler())
	t.Cleanup(productServer.Close)

	usersBackend := &userBackend{}
	userServer := httptest.NewServer(usersBackend.handler(t))
	t.Cleanup(userServer.Close)

	codec, err := jwt.NewCodec(jwt.Config{Secret: testSecret, Issuer: "gateway-test", TTL: time.Hour})
	require.NoError(t, err)

	store := revocation.NewMemoryStore()
	authenticator := auth.NewAuthenticator(codec, store)

	breakerConfig := circuitbreaker.DefaultConfig()
	breakerConfig.MaxFailures = 3
	breakerConfig.IsSuccessful = auth.BreakerClassifier
	breakers := circuitbreaker.NewRegistry(breakerConfig, nil)

	service := auth.NewService(
		backend.NewUserClient(userServer.URL, 5*time.Second),
		codec, store, breakers,
	)

	localMux := http.NewServeMux()
	auth.NewHandlers(service, authenticator, nil).Register(localMux)

	backends, err := backend.NewRegistry([]config.BackendConfig{
		{Name: "product-service", URL: productServer.URL, Timeout: config.Duration(5 * time.Second)},
		{Name: "user-service", URL: userServer.URL, Timeout: config.Duration(5 * time.Second)},
	})
	require.NoError(t, err)

	table, err := router.NewTable([]config.RouteConfig{
		{
			ID:      "auth",
			Path:    `/auth/(?P<remaining>.*)`,
			Backend: router.LocalBackend,
		},
		{
			ID:      "products-public",
			Path:    `/product-service/(?P<remaining>.*)`,
			Methods: []string{"GET"},
			Backend: "product-service",
			Rewrite: `/api/v1/products/${remaining}`,
		},
		{
			ID:          "products-protected",
			Path:        `/product-service/(?P<remaining>.*)`,
			Methods:     []string{"POST", "PUT", "DELETE"},
			Middlewares: []string{"auth"},
			Backend:     "product-service",
			Rewrite:     `/api/v1/products/${remaining}`,
		},
		{
			ID:          "users-admin-list",
			Path:        `/user-service/users`,
			Methods:     []string{"GET"},
			Middlewares: []string{"auth", "admin"},
			Backend:     "user-service",
			Rewrite:     `/api/v1/users`,
		},
		{
			ID:          "users-admin-modify",
			Path:        `/user-service/users/(?P<remaining>.*)`,
			Methods:     []string{"PUT", "DELETE"},
			Middlewares: []string{"auth", "admin"},
			Backend:     "user-service",
			Rewrite:     `/api/v1/users/${remaining}`,
		},
		{
			ID:          "users-protected",
			Path:        `/user-service/users/(?P<remaining>.*)`,
			Middlewares: []string{"auth"},
			Backend:     "user-service",
			Rewrite:     `/api/v1/users/${remaining}`,
		},
		{
			ID:          "users-email-lookup",
			Path:        `/user-service/users/email/(?P<remaining>.*)`,
			Methods:     []string{"GET"},
			Middlewares: []string{"auth"},
			Backend:     "user-service",
			Rewrite:     `/api/v1/users/email/${remaining}`,
		},
	})
	require.NoError(t, err)

	gw, err := New(table, proxy.NewForwarder(backends), authenticator, localMux)
	require.NoError(t, err)

	logger := observability.NopLogger()
	chain := middleware.Recovery(logger)(
		middleware.RequestID()(
			middleware.Logging(logger)(gw)))

	return &testEnv{handler: chain, products: products, users: usersBackend, codec: codec}
}

func (env *testEnv) do(method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) login(t *testing.T, email, password string) string {
	t.Helper()
	rec := env.do(http.MethodPost, "/auth/login",
		`{"email":"`+email+`","password":"`+password+`"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var result auth.LoginResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	return result.Token
}

func TestGateway_PublicRouteProxiedUnauthenticated(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/product-service/42", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	received := env.products.lastRequest()
	require.NotNil(t, received)
	assert.Equal(t, "/api/v1/products/42", received.URL.Path)
	assert.Equal(t, "Gateway", received.Header.Get("X-Request-Origin"))
	assert.Empty(t, received.Header.Get("X-User-Id"))
}

func TestGateway_ProtectedRouteRejectsWithoutToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPut, "/product-service/42", `{"price":10}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, env.products.callCount())
}

func TestGateway_ProtectedRouteForwardsIdentity(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "client@example.com", "client-pass")

	rec := env.do(http.MethodPut, "/product-service/42", `{"price":10}`, token)
	require.Equal(t, http.StatusOK, rec.Code)

	received := env.products.lastRequest()
	require.NotNil(t, received)
	assert.Equal(t, "1", received.Header.Get("X-User-Id"))
	assert.Equal(t, "client@example.com", received.Header.Get("X-User-Email"))
	assert.Equal(t, "CLIENT", received.Header.Get("X-User-Role"))
}

func TestGateway_SpoofedIdentityHeadersStripped(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/product-service/42", nil)
	req.Header.Set("X-User-Id", "999")
	req.Header.Set("X-User-Role", "ADMIN")
	req.Header.Set("X-Request-Origin", "Gateway")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	received := env.products.lastRequest()
	require.NotNil(t, received)
	assert.Empty(t, received.Header.Get("X-User-Id"))
	assert.Empty(t, received.Header.Get("X-User-Role"))

	// The origin header is still present, set by the gateway itself.
	assert.Equal(t, "Gateway", received.Header.Get("X-Request-Origin"))
}

func TestGateway_AdminRoute(t *testing.T) {
	env := newTestEnv(t)

	clientToken := env.login(t, "client@example.com", "client-pass")
	rec := env.do(http.MethodGet, "/user-service/users", "", clientToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "ADMIN role required")

	adminToken := env.login(t, "admin@example.com", "admin-pass")
	rec = env.do(http.MethodGet, "/user-service/users", "", adminToken)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGateway_EmailLookupRequiresToken(t *testing.T) {
	env := newTestEnv(t)

	// The backend's email endpoint returns the stored password hash, so
	// it must never be reachable without a verified token.
	rec := env.do(http.MethodGet, "/user-service/users/email/client@example.com", "", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotContains(t, rec.Body.String(), "$2a$")
	assert.Zero(t, env.users.hitCount())

	token := env.login(t, "client@example.com", "client-pass")
	rec = env.do(http.MethodGet, "/user-service/users/email/client@example.com", "", token)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGateway_RouteOrderDisambiguates(t *testing.T) {
	env := newTestEnv(t)

	// Same path, different methods: GET is public, PUT needs a token.
	rec := env.do(http.MethodGet, "/product-service/42", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodPut, "/product-service/42", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGateway_NoRouteMatches(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/payment-service/invoices", "", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "No route matches")
}

func TestGateway_LoginLogoutFlow(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "client@example.com", "client-pass")

	rec := env.do(http.MethodGet, "/auth/me", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "client@example.com")

	rec = env.do(http.MethodPost, "/auth/logout", "", token)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/auth/me", "", token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// The revoked token no longer opens proxied protected routes either.
	rec = env.do(http.MethodPut, "/product-service/42", "", token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGateway_LoginWrongPassword(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/auth/login",
		`{"email":"client@example.com","password":"wrong"}`, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid email or password")
}

func TestGateway_OpenBreakerShortCircuitsLogin(t *testing.T) {
	env := newTestEnv(t)
	env.users.setDown(true)

	for i := 0; i < 3; i++ {
		rec := env.do(http.MethodPost, "/auth/login",
			`{"email":"client@example.com","password":"client-pass"}`, "")
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	}
	hits := env.users.hitCount()

	rec := env.do(http.MethodPost, "/auth/login",
		`{"email":"client@example.com","password":"client-pass"}`, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "try again later")

	// The open circuit answered without touching the backend.
	assert.Equal(t, hits, env.users.hitCount())
}

func TestGateway_RequestIDOnResponse(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/product-service/42", "", "")
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}
