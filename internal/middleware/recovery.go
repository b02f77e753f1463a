package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/shoply/gateway/internal/observability"
	"github.com/shoply/gateway/internal/util"
)

// Recovery converts downstream panics into 500 responses. It sits
// outermost in the chain.
func Recovery(logger observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						observability.Any("panic", rec),
						observability.String("path", r.URL.Path),
						observability.String("stack", string(debug.Stack())),
					)
					util.WriteError(w, http.StatusInternalServerError, "Internal server error.")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
