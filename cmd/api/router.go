package main

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/dooropener/dooropener/internal/blob"
	"github.com/dooropener/dooropener/internal/cache"
	"github.com/dooropener/dooropener/internal/config"
	"github.com/dooropener/dooropener/internal/handler"
	"github.com/dooropener/dooropener/internal/middleware"
	"github.com/dooropener/dooropener/internal/model"
)

// uploadBodySlack covers multipart framing and the email field on top of the image.
const uploadBodySlack = 1 << 20

// routerDeps holds everything setupRouter wires together.
type routerDeps struct {
	cfg    *config.Config
	logger *slog.Logger

	handler    *handler.Handler
	health     *handler.HealthHandler
	metrics    *handler.MetricsHandler
	accounts   *handler.AccountHandler
	profiles   *handler.ProfileHandler
	feed       *handler.FeedHandler
	deviceKeys *handler.DeviceKeyHandler

	sessions  middleware.SessionResolver
	keyLookup middleware.DeviceKeyLookup
	authCache middleware.DeviceAuthCache
	limiter   middleware.RateLimiter

	// localStore is served under MediaURLPrefix when non-nil.
	localStore *blob.LocalStore
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(d routerDeps) *chi.Mux {
	cfg := d.cfg
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(d.logger))
	r.Use(middleware.Recoverer(d.logger))
	r.Use(middleware.Security(middleware.SecurityConfig{IsDevelopment: cfg.IsDevelopment()}))
	if origins := cfg.GetCORSAllowedOrigins(); len(origins) > 0 {
		corsCfg := middleware.DefaultCORSConfig()
		corsCfg.AllowedOrigins = origins
		corsCfg.AllowCredentials = true
		r.Use(middleware.CORS(corsCfg))
	}

	// Health and metrics endpoints (no auth required)
	r.Get("/healthz", d.health.Healthz)
	r.Get("/readyz", d.health.Readyz)
	r.Get("/metrics", d.metrics.Metrics)

	// Root info endpoint
	r.Get("/", d.handler.Hello)

	loginLimit := middleware.RateLimitConfig{
		Logger:    d.logger,
		Limiter:   d.limiter,
		IPEnabled: cfg.RateLimitLoginEnabled,
		IPRPS:     cfg.RateLimitLoginRPS,
		IPBurst:   cfg.RateLimitLoginBurst,
	}
	feedLimit := middleware.RateLimitConfig{
		Logger:        d.logger,
		Limiter:       d.limiter,
		DeviceEnabled: cfg.RateLimitDeviceKeyEnabled,
		IPEnabled:     cfg.RateLimitFeedEnabled,
		IPRPS:         cfg.RateLimitFeedRPS,
		IPBurst:       cfg.RateLimitFeedBurst,
	}

	// Browser routes carry the session principal when a cookie is present.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Session(middleware.SessionConfig{
			Logger:     d.logger,
			Identity:   d.sessions,
			CookieName: cfg.SessionCookieName,
		}))

		r.Group(func(r chi.Router) {
			r.Use(middleware.MaxBodySize(cfg.MaxRequestBodySize))

			r.Post("/register/", d.accounts.Register)
			r.Get("/login/", d.accounts.LoginPage)
			r.With(middleware.RateLimitIP(loginLimit, cache.ScopeLogin)).Post("/login/", d.accounts.Login)
			r.Post("/logout/", d.accounts.Logout)

			r.Get("/profile/{id}/", d.profiles.View)

			r.Route("/api/v1/device-keys", func(r chi.Router) {
				r.Use(middleware.RequirePrincipal)
				r.Get("/", d.deviceKeys.List)
				r.Post("/", d.deviceKeys.Create)
				r.Delete("/{key_id}", d.deviceKeys.Revoke)
				r.Post("/{key_id}/rotate", d.deviceKeys.Rotate)
			})
		})

		r.With(middleware.MaxBodySize(cfg.MaxUploadSize+uploadBodySlack)).
			Post("/profile/{id}/", d.profiles.Upload)
	})

	// Device feed
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitIP(feedLimit, cache.ScopeFeed))
		if cfg.DeviceKeysRequired() {
			r.Use(middleware.DeviceAuth(middleware.DeviceAuthConfig{
				Logger: d.logger,
				Keys:   d.keyLookup,
				Cache:  d.authCache,
			}))
			r.Use(middleware.RequireScope(model.ScopeFeedRead))
			r.Use(middleware.RateLimitDevice(feedLimit))
		}
		r.Get("/api/v1/images", d.feed.List)
	})

	// Uploaded files for the local blob backend
	if d.localStore != nil {
		prefix := "/" + strings.Trim(cfg.MediaURLPrefix, "/") + "/"
		r.With(middleware.Security(middleware.SecurityConfig{
			IsDevelopment:         cfg.IsDevelopment(),
			ContentSecurityPolicy: middleware.MediaCSP,
			CacheControl:          "public, max-age=86400",
		})).Get(prefix+"*", mediaFileServer(d.localStore.Root(), prefix))
	}

	// 404 and 405 handlers
	r.NotFound(d.handler.NotFound)
	r.MethodNotAllowed(d.handler.MethodNotAllowed)

	return r
}

// mediaFileServer serves files under root without directory listings.
func mediaFileServer(root, prefix string) http.HandlerFunc {
	fs := http.StripPrefix(prefix, http.FileServer(http.Dir(root)))
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		fs.ServeHTTP(w, r)
	}
}
