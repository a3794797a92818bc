// Package health exposes a gin handler with the standard three-route shape
// (basic, readiness, liveness). Readiness actively probes the Persistent
// Store and Market Cache rather than returning a static "ready".
package health

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/obcore/internal/cache"
	"github.com/abdoElHodaky/obcore/internal/store"
)

// Handler serves the process's health, readiness, and liveness routes.
type Handler struct {
	store     *store.Store
	cache     *cache.MarketCache
	logger    *zap.Logger
	startTime time.Time
}

// NewHandler creates a Handler wired to the store and cache it probes.
func NewHandler(st *store.Store, mc *cache.MarketCache, logger *zap.Logger) *Handler {
	return &Handler{store: st, cache: mc, logger: logger, startTime: time.Now()}
}

// RegisterRoutes registers /health, /health/ready, and /health/live.
func (h *Handler) RegisterRoutes(router gin.IRouter) {
	router.GET("/health", h.healthCheck)
	router.GET("/health/ready", h.readinessCheck)
	router.GET("/health/live", h.livenessCheck)
}

func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "obcore",
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
	})
}

func (h *Handler) readinessCheck(c *gin.Context) {
	ctx := c.Request.Context()
	checks := gin.H{}
	ready := true

	if err := h.store.Ping(ctx); err != nil {
		checks["store"] = err.Error()
		ready = false
	} else {
		checks["store"] = "ok"
	}

	if err := h.cache.Ping(ctx); err != nil {
		checks["cache"] = err.Error()
		ready = false
	} else {
		checks["cache"] = "ok"
	}

	status := http.StatusOK
	statusText := "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		statusText = "not_ready"
	}
	c.JSON(status, gin.H{"status": statusText, "checks": checks, "timestamp": time.Now().UTC()})
}

func (h *Handler) livenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive", "timestamp": time.Now().UTC()})
}
