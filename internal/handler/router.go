package handler

import (
	"time"

	"visitor-counter/internal/container"
	"visitor-counter/internal/middleware"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// APIPrefix is where the counter API is mounted
const APIPrefix = "/api/visitor-counter"

// NewRouter configures and returns the HTTP router
func NewRouter(c *container.Container) *chi.Mux {
	cfg := c.GetConfig()
	log := c.GetLogger()
	services := c.GetServices()

	r := chi.NewRouter()

	// Setup middlewares
	r.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.AllowedOrigins), log))
	r.Use(middleware.RequestID)
	if cfg.TrustProxyHeaders {
		r.Use(chiMiddleware.RealIP)
	}
	r.Use(middleware.RequestLogger(log))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Compress(5))
	r.Use(chiMiddleware.Timeout(30 * time.Second))

	// Set before mounting so subrouters inherit them.
	static := NewStaticHandler(cfg.StaticDir, log)
	r.NotFound(static.ServeHTTP)
	r.MethodNotAllowed(MethodNotAllowed(log))

	var cache Pinger
	if c.HasRedis() {
		cache = c.GetRedisClient()
	}
	healthHandler := NewHealthHandler(c, cache, log)
	visitorHandler := NewVisitorHandler(services, SessionCookie{
		Name:   cfg.SessionCookieName,
		Secure: cfg.SessionCookieSecure,
		MaxAge: cfg.SessionCookieMaxAge,
	}, cfg.TrustProxyHeaders, log)
	adminHandler := NewAdminHandler(services, log)

	r.Get("/health", healthHandler.Check)

	r.Route(APIPrefix, func(r chi.Router) {
		visitorHandler.RegisterRoutes(r)
		adminHandler.RegisterRoutes(r)
	})

	log.Info("Router configured successfully")
	return r
}
