// Package gateway composes the route table, per-route filter chains
// and the forwarding engine into the gateway's main handler.
package gateway

import (
	"fmt"
	"net/http"

	"github.com/shoply/gateway/internal/auth"
	"github.com/shoply/gateway/internal/observability"
	"github.com/shoply/gateway/internal/proxy"
	"github.com/shoply/gateway/internal/router"
	"github.com/shoply/gateway/internal/util"
)

// Gateway dispatches requests through the route table. Filter chains
// are compiled once per rule at construction, so the hot path is one
// table scan plus the precompiled chain.
type Gateway struct {
	table   *router.Table
	chains  map[string]http.Handler
	logger  observability.Logger
	metrics *observability.Metrics
}

// Option is a functional option for the gateway.
type Option func(*Gateway)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *observability.Metrics) Option {
	return func(g *Gateway) {
		g.metrics = m
	}
}

// New builds the gateway handler. Local rules dispatch to the given
// local handler (the gateway's own auth endpoints); every other rule
// gets a forwarding handler from the proxy.
func New(table *router.Table, forwarder *proxy.Forwarder, authenticator *auth.Authenticator, local http.Handler, opts ...Option) (*Gateway, error) {
	g := &Gateway{
		table:  table,
		chains: make(map[string]http.Handler),
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}

	for _, rule := range table.Rules() {
		var handler http.Handler
		if rule.Backend == router.LocalBackend {
			handler = local
		} else {
			var err error
			handler, err = forwarder.Handler(rule)
			if err != nil {
				return nil, err
			}
		}

		chain, err := g.compileChain(rule, authenticator, handler)
		if err != nil {
			return nil, err
		}
		g.chains[rule.ID] = chain
	}

	return g, nil
}

// compileChain wraps the handler in the rule's filters, preserving
// declaration order.
func (g *Gateway) compileChain(rule *router.Rule, authenticator *auth.Authenticator, handler http.Handler) (http.Handler, error) {
	for i := len(rule.Middlewares) - 1; i >= 0; i-- {
		switch rule.Middlewares[i] {
		case router.MiddlewareAuth:
			handler = authenticator.Required()(handler)
		case router.MiddlewareAuthOptional:
			handler = authenticator.Optional()(handler)
		case router.MiddlewareAdmin:
			handler = auth.RequireRole(auth.RoleAdmin, g.metrics)(handler)
		default:
			return nil, fmt.Errorf("route %q: unknown middleware %q", rule.ID, rule.Middlewares[i])
		}
	}
	return handler, nil
}

// ServeHTTP implements http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	stripUntrustedHeaders(r)

	rule, ok := g.table.Match(r.Method, r.URL.Path)
	if !ok {
		g.logger.Debug("no route matched",
			observability.String("method", r.Method),
			observability.String("path", r.URL.Path),
		)
		util.WriteError(w, http.StatusNotFound, "No route matches the requested path.")
		return
	}

	util.SetRoute(r.Context(), rule.ID)
	g.chains[rule.ID].ServeHTTP(w, r)
}

// stripUntrustedHeaders removes identity headers from inbound requests.
// Only the gateway itself may set them.
func stripUntrustedHeaders(r *http.Request) {
	r.Header.Del(auth.HeaderUserID)
	r.Header.Del(auth.HeaderUserEmail)
	r.Header.Del(auth.HeaderUserRole)
	r.Header.Del(auth.HeaderRequestOrigin)
}
