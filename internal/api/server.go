// Package api wires the HTTP surface: router, middleware, and swagger UI.
package api

import (
	_ "embed"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	corslib "github.com/rs/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/Wesquire/pruuf/internal/api/handler"
	"github.com/Wesquire/pruuf/internal/breaks"
	"github.com/Wesquire/pruuf/internal/cache"
	"github.com/Wesquire/pruuf/internal/config"
	"github.com/Wesquire/pruuf/internal/lifecycle"
	"github.com/Wesquire/pruuf/internal/streak"
)

//go:embed openapi.json
var openAPIDoc []byte

// Deps carries the engines and stores the handlers need.
type Deps struct {
	Engine  *lifecycle.Engine
	Breaks  *breaks.Manager
	Streaks *streak.Calculator
	Reads   handler.Reads
	DB      handler.HealthChecker
	Cache   *cache.Cache
	Now     func() time.Time
}

// NewRouter creates and configures the Chi router with all middleware and
// routes.
func NewRouter(deps Deps, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	// --- Middleware stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(TimingMiddleware)
	r.Use(middleware.Compress(5)) // gzip

	// CORS
	c := corslib.New(corslib.Options{
		AllowedOrigins:   cfg.CORSAllowOrigins,
		AllowedMethods:   []string{"GET", "HEAD", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Encoding", "Content-Type", "If-None-Match", "Cache-Control"},
		ExposedHeaders:   []string{"X-Process-Time", "X-Cache", "ETag"},
		AllowCredentials: false,
	})
	r.Use(c.Handler)

	// Rate limiting
	if cfg.RateLimitEnabled {
		r.Use(RateLimitMiddleware(cfg.RateLimitRequests, cfg.RateLimitWindow))
	}

	// --- Handler dependencies ---
	h := handler.New(deps.Engine, deps.Breaks, deps.Streaks, deps.Reads, deps.DB, deps.Cache, cfg, deps.Now)

	// --- Routes ---

	// Root
	r.Get("/", h.Root)

	// Health checks
	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.HealthCheck)
		r.Get("/db", h.HealthCheckDB)
		r.Get("/cache", h.HealthCheckCache)
	})

	// Swagger UI over the embedded OpenAPI document.
	r.Get("/docs/doc.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(openAPIDoc)
	})
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/docs/doc.json"),
	))

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Pings
		r.Get("/pings/today", h.TodayPings)
		r.Post("/pings/complete-all", h.CompleteAll)
		r.Post("/pings/{pingID}/complete", h.CompletePing)

		// Breaks
		r.Get("/breaks", h.ListBreaks)
		r.Post("/breaks", h.ScheduleBreak)
		r.Post("/breaks/{breakID}/cancel", h.CancelBreak)
		r.Post("/breaks/{breakID}/end-early", h.EndBreakEarly)

		// Streaks
		r.Get("/streaks/{senderID}", h.GetStreak)
	})

	return r
}
