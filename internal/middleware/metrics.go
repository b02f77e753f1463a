package middleware

import (
	"net/http"
	"time"

	"github.com/shoply/gateway/internal/observability"
	"github.com/shoply/gateway/internal/util"
)

// Metrics records the request counter and latency histogram, labeled by
// matched route. Unmatched requests are labeled "unmatched".
func Metrics(m *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			cw, ok := w.(*util.StatusCapturingResponseWriter)
			if !ok {
				cw = util.NewStatusCapturingResponseWriter(w)
			}

			next.ServeHTTP(cw, r)

			route := util.RouteFromContext(r.Context())
			if route == "" {
				route = "unmatched"
			}
			m.RecordRequest(route, r.Method, cw.StatusCode, time.Since(start).Seconds())
		})
	}
}
