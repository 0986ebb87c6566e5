package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/habitflow/habitflow/internal/platform/logger"
	"github.com/habitflow/habitflow/internal/platform/response"
)

// Recovery turns a handler panic into a 500 response instead of tearing
// down the connection, and logs the stack.
func Recovery(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Error("panic recovered",
						"error", err,
						"method", r.Method,
						"path", r.URL.Path,
						"stack", string(debug.Stack()),
					)
					response.Error(w, response.ErrInternal)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
