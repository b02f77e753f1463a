// Package proxy forwards matched requests to their backend targets,
// applying the route's path rewrite and trusted headers.
package proxy

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"time"

	"github.com/shoply/gateway/internal/auth"
	"github.com/shoply/gateway/internal/backend"
	"github.com/shoply/gateway/internal/observability"
	"github.com/shoply/gateway/internal/router"
	"github.com/shoply/gateway/internal/util"
)

// Forwarder builds per-route reverse proxy handlers. All handlers share
// one transport so connection pooling works across routes.
type Forwarder struct {
	backends  *backend.Registry
	logger    observability.Logger
	transport http.RoundTripper
}

// Option is a functional option for the forwarder.
type Option func(*Forwarder)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(f *Forwarder) {
		f.logger = logger
	}
}

// WithTransport sets the outbound transport.
func WithTransport(transport http.RoundTripper) Option {
	return func(f *Forwarder) {
		f.transport = transport
	}
}

// NewForwarder creates a forwarder over the backend registry.
func NewForwarder(backends *backend.Registry, opts ...Option) *Forwarder {
	f := &Forwarder{
		backends: backends,
		logger:   observability.NopLogger(),
		transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConnsPerHost:   32,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: time.Second,
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Handler builds the forwarding handler for a proxied rule. Local rules
// are rejected; those are served by the gateway itself.
func (f *Forwarder) Handler(rule *router.Rule) (http.Handler, error) {
	if rule.Backend == router.LocalBackend {
		return nil, fmt.Errorf("route %q is local, not proxied", rule.ID)
	}
	target, ok := f.backends.Get(rule.Backend)
	if !ok {
		return nil, fmt.Errorf("route %q references unknown backend %q", rule.ID, rule.Backend)
	}

	rp := &httputil.ReverseProxy{
		Transport: f.transport,
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Scheme = target.URL.Scheme
			pr.Out.URL.Host = target.URL.Host
			pr.Out.Host = target.URL.Host
			pr.Out.URL.Path = rule.RewritePath(pr.In.URL.Path)
			pr.Out.URL.RawPath = ""

			for name, value := range rule.Headers {
				pr.Out.Header.Set(name, value)
			}
			pr.Out.Header.Set(auth.HeaderRequestOrigin, auth.OriginGateway)
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			f.logger.Error("backend request failed",
				observability.String("backend", target.Name),
				observability.String("path", r.URL.Path),
				observability.Error(err),
			)
			util.WriteError(w, http.StatusServiceUnavailable,
				"Backend service is currently unavailable, please try again later.")
		},
	}

	timeout := target.Timeout
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if timeout > 0 {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			r = r.WithContext(ctx)
		}
		rp.ServeHTTP(w, r)
	}), nil
}
