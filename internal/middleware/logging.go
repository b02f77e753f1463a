// Package middleware holds the global request chain: recovery, request
// IDs, request logging, metrics and rate limiting. Route-specific
// filters (authentication, authorization) live in internal/auth.
package middleware

import (
	"net/http"
	"time"

	"github.com/shoply/gateway/internal/observability"
	"github.com/shoply/gateway/internal/util"
)

// Logging logs one line per request with method, path, status and
// duration. It runs inside Recovery and RequestID but ahead of every
// auth filter, so rejected requests are logged too.
func Logging(logger observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			cw := util.NewStatusCapturingResponseWriter(w)

			ctx := util.ContextWithStartTime(r.Context(), start)
			ctx = util.ContextWithRouteSlot(ctx)
			r = r.WithContext(ctx)
			next.ServeHTTP(cw, r)

			fields := []observability.Field{
				observability.String("method", r.Method),
				observability.String("path", r.URL.RequestURI()),
				observability.Int("status", cw.StatusCode),
				observability.Duration("duration", time.Since(start)),
			}
			if id := observability.RequestIDFromContext(r.Context()); id != "" {
				fields = append(fields, observability.String("request_id", id))
			}
			if route := util.RouteFromContext(r.Context()); route != "" {
				fields = append(fields, observability.String("route", route))
			}

			logger.Info("request completed", fields...)
		})
	}
}
