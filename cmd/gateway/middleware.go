package main

import (
	"net/http"

	"github.com/shoply/gateway/internal/middleware"
	"github.com/shoply/gateway/internal/observability"
)

// buildMiddlewareChain builds the global middleware chain.
// The execution order (outermost executes first):
// Recovery -> RequestID -> Logging -> Metrics -> RateLimit -> [dispatch]
func buildMiddlewareChain(app *application, handler http.Handler, logger observability.Logger) http.Handler {
	h := handler

	if app.config.RateLimit.Enabled {
		app.rateLimiter = middleware.NewRateLimiter(app.config.RateLimit, app.metrics)
		h = app.rateLimiter.Middleware()(h)
	}

	h = middleware.Metrics(app.metrics)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.RequestID()(h)
	h = middleware.Recovery(logger)(h)

	return h
}
