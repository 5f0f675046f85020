package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dooropener/dooropener/internal/auth"
	"github.com/dooropener/dooropener/internal/model"
)

// SessionResolver maps a session token to its principal.
type SessionResolver interface {
	CurrentSession(ctx context.Context, token string) (*model.Principal, error)
}

// SessionConfig holds configuration for the session middleware.
type SessionConfig struct {
	Logger     *slog.Logger
	Identity   SessionResolver
	CookieName string
}

// Session attaches the principal of the session cookie, if any, to the
// request context. It never rejects a request on its own.
func Session(cfg SessionConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(cfg.CookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			principal, err := cfg.Identity.CurrentSession(r.Context(), cookie.Value)
			if err != nil {
				cfg.Logger.Error("session lookup failed",
					slog.String("error", err.Error()),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"error":{"code":"UNAVAILABLE","message":"Service temporarily unavailable"}}`))
				return
			}
			if principal == nil {
				next.ServeHTTP(w, r)
				return
			}

			AddLogAttrs(r.Context(), slog.Int64("principal_id", principal.ID))
			next.ServeHTTP(w, r.WithContext(auth.ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

// RequirePrincipal rejects requests without a session principal with 401.
// Must be applied after Session middleware.
func RequirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.PrincipalFromContext(r.Context()) == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"code":"UNAUTHORIZED","message":"Authentication required"}}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
