package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/shoply/gateway/internal/observability"
)

// HeaderRequestID carries the request correlation ID.
const HeaderRequestID = "X-Request-Id"

// RequestID assigns each request a correlation ID, honoring an inbound
// X-Request-Id when present. The ID is placed in the context, echoed on
// the response and forwarded to backends.
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(HeaderRequestID)
			if id == "" {
				id = uuid.NewString()
				r.Header.Set(HeaderRequestID, id)
			}
			w.Header().Set(HeaderRequestID, id)

			r = r.WithContext(observability.ContextWithRequestID(r.Context(), id))
			next.ServeHTTP(w, r)
		})
	}
}
