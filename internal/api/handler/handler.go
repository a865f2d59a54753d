// Package handler provides HTTP handlers for all API endpoints. Handlers
// translate requests into engine calls and map domain errors to statuses;
// the state machine itself lives in the lifecycle and breaks packages.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/Wesquire/pruuf/internal/api/respond"
	"github.com/Wesquire/pruuf/internal/breaks"
	"github.com/Wesquire/pruuf/internal/cache"
	"github.com/Wesquire/pruuf/internal/config"
	"github.com/Wesquire/pruuf/internal/lifecycle"
	"github.com/Wesquire/pruuf/internal/pruuf"
	"github.com/Wesquire/pruuf/internal/streak"
)

// Reads is the query surface the read endpoints use directly.
type Reads interface {
	PingsOnDay(ctx context.Context, senderID string, day pruuf.Date) ([]pruuf.Ping, error)
	BreaksBySender(ctx context.Context, senderID string, limit int) ([]pruuf.Break, error)
	CurrentTimezone(ctx context.Context, senderID string) (string, error)
}

// HealthChecker verifies database connectivity.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	engine  *lifecycle.Engine
	breaks  *breaks.Manager
	streaks *streak.Calculator
	reads   Reads
	db      HealthChecker
	cache   *cache.Cache
	cfg     *config.Config
	now     func() time.Time
}

// New creates a Handler with shared dependencies.
func New(engine *lifecycle.Engine, mgr *breaks.Manager, streaks *streak.Calculator,
	reads Reads, db HealthChecker, c *cache.Cache, cfg *config.Config, now func() time.Time) *Handler {
	if now == nil {
		now = time.Now
	}
	return &Handler{
		engine:  engine,
		breaks:  mgr,
		streaks: streaks,
		reads:   reads,
		db:      db,
		cache:   c,
		cfg:     cfg,
		now:     now,
	}
}

// Root serves API info at /.
// @Summary API root info
// @Description Returns API name, version, and status.
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"name":    "Pruuf Check-In API",
		"version": "1.0.0",
		"status":  "running",
		"docs":    "/docs",
	})
}

// HealthCheck returns basic health status.
// @Summary Health check
// @Description Returns basic health status and timestamp.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckDB verifies database connectivity.
// @Summary Database health check
// @Description Verifies Postgres connectivity.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/db [get]
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	if err := h.db.HealthCheck(r.Context()); err != nil {
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unhealthy",
			"database":  "disconnected",
			"error":     "Database connection check failed",
			"timestamp": h.now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckCache returns cache statistics.
// @Summary Cache health check
// @Description Returns in-memory cache statistics.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health/cache [get]
func (h *Handler) HealthCheckCache(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"cache":     h.cache.Stats(),
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}
