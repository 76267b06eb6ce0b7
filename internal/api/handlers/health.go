package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/courtsight/projection-service/internal/services"
	"github.com/courtsight/projection-service/pkg/database"
)

// HealthHandler reports liveness and readiness for the projection service.
type HealthHandler struct {
	db     *database.DB
	cache  *services.CacheService
	claude *services.ClaudeClient
	logger *logrus.Logger
}

func NewHealthHandler(db *database.DB, cache *services.CacheService, claude *services.ClaudeClient, logger *logrus.Logger) *HealthHandler {
	return &HealthHandler{db: db, cache: cache, claude: claude, logger: logger}
}

// GetHealth reports component-level health. The service stays "degraded"
// rather than unhealthy when only the LLM circuit is open, since the
// fallback path still serves valid payloads.
func (h *HealthHandler) GetHealth(c *gin.Context) {
	dbHealthy := h.db.HealthCheck() == nil
	cacheHealthy := h.cache.IsHealthy(c.Request.Context())
	claudeHealthy := h.claude.IsHealthy()

	status := "healthy"
	code := http.StatusOK
	switch {
	case !dbHealthy || !cacheHealthy:
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	case !claudeHealthy:
		status = "degraded"
	}

	c.JSON(code, gin.H{
		"status": status,
		"components": gin.H{
			"database":       boolStatus(dbHealthy),
			"cache":          boolStatus(cacheHealthy),
			"claude_api":     boolStatus(claudeHealthy),
			"claude_breaker": h.claude.CircuitState().String(),
		},
	})
}

// GetReady reports readiness: the stores the engine cannot run without.
func (h *HealthHandler) GetReady(c *gin.Context) {
	if err := h.db.HealthCheck(); err != nil {
		h.logger.WithError(err).Warn("Readiness check failed: database")
		c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false, "reason": "database unavailable"})
		return
	}
	if !h.cache.IsHealthy(c.Request.Context()) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false, "reason": "cache unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ready": true})
}

func boolStatus(healthy bool) string {
	if healthy {
		return "up"
	}
	return "down"
}
