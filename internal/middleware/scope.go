package middleware

import (
	"fmt"
	"net/http"

	"github.com/dooropener/dooropener/internal/auth"
)

// RequireScope returns middleware that enforces device key scopes.
// Must be applied after DeviceAuth middleware.
// If multiple scopes are provided, having ANY of them is sufficient.
func RequireScope(required ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			device := auth.DeviceFromContext(r.Context())
			if device == nil {
				writeScopeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
				return
			}

			// HasScope treats admin as granting every scope
			for _, req := range required {
				if device.HasScope(req) {
					next.ServeHTTP(w, r)
					return
				}
			}

			writeScopeError(w, http.StatusForbidden, "FORBIDDEN",
				fmt.Sprintf("Insufficient permissions. Required scope: %s", required[0]))
		})
	}
}

// writeScopeError writes a JSON error response.
func writeScopeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, `{"error":{"code":"%s","message":"%s"}}`, code, message)
}
