package handlers

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/courtsight/projection-service/internal/api/httputil"
	"github.com/courtsight/projection-service/internal/services"
)

// ProjectionHandler exposes the projection engine over HTTP.
type ProjectionHandler struct {
	engine              *services.ProjectionEngine
	defaultModelVersion string
	logger              *logrus.Logger
}

func NewProjectionHandler(engine *services.ProjectionEngine, defaultModelVersion string, logger *logrus.Logger) *ProjectionHandler {
	return &ProjectionHandler{
		engine:              engine,
		defaultModelVersion: defaultModelVersion,
		logger:              logger,
	}
}

type projectionRequestBody struct {
	GameID       int64  `json:"game_id" binding:"required"`
	ModelVersion string `json:"model_version"`
	Notes        string `json:"notes"`
}

// GetAIProjections serves the default route: AI-adjusted projections that
// degrade to the deterministic fallback when interpretation fails.
func (h *ProjectionHandler) GetAIProjections(c *gin.Context) {
	h.serve(c, services.PolicyFallback, false)
}

// GetAIProjectionsStrict serves the strict route: interpretation failure
// after the single retry fails the request instead of degrading.
func (h *ProjectionHandler) GetAIProjectionsStrict(c *gin.Context) {
	h.serve(c, services.PolicyStrict, false)
}

func (h *ProjectionHandler) serve(c *gin.Context, policy services.Policy, baselineOnly bool) {
	var body projectionRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.logger.WithError(err).Warn("Invalid projection request")
		httputil.SendBadRequest(c, "invalid request format: "+err.Error())
		return
	}

	modelVersion := body.ModelVersion
	if modelVersion == "" {
		modelVersion = h.defaultModelVersion
	}

	h.logger.WithFields(logrus.Fields{
		"game_id":       body.GameID,
		"model_version": modelVersion,
		"policy":        string(policy),
	}).Info("Processing projection request")

	result, err := h.engine.GenerateProjections(c.Request.Context(), services.ProjectionRequest{
		GameID:       body.GameID,
		ModelVersion: modelVersion,
		Notes:        body.Notes,
		Policy:       policy,
		BaselineOnly: baselineOnly,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	httputil.SendSuccessWithMeta(c, result.Payload, gin.H{
		"request_id":         result.RequestID,
		"cache_hit":          result.CacheHit,
		"fallback_used":      result.FallbackUsed,
		"processing_time_ms": result.ProcessingTimeMs,
	})
}

// GetBaselineProjections serves baseline-only projections: the same payload
// shape with zero deltas and no external call.
func (h *ProjectionHandler) GetBaselineProjections(c *gin.Context) {
	gameID, err := strconv.ParseInt(c.Param("gameId"), 10, 64)
	if err != nil || gameID <= 0 {
		httputil.SendBadRequest(c, "valid game id is required")
		return
	}

	modelVersion := c.Query("model_version")
	if modelVersion == "" {
		modelVersion = h.defaultModelVersion
	}

	result, err := h.engine.GenerateProjections(c.Request.Context(), services.ProjectionRequest{
		GameID:       gameID,
		ModelVersion: modelVersion,
		BaselineOnly: true,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	httputil.SendSuccessWithMeta(c, result.Payload, gin.H{
		"request_id":         result.RequestID,
		"cache_hit":          result.CacheHit,
		"processing_time_ms": result.ProcessingTimeMs,
	})
}

func (h *ProjectionHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidRequest):
		httputil.SendBadRequest(c, err.Error())
	case errors.Is(err, services.ErrUnknownModelVersion):
		httputil.SendNotFound(c, err.Error())
	case errors.Is(err, services.ErrUpstreamData):
		h.logger.WithError(err).Error("Upstream data error")
		httputil.SendBadGateway(c, err.Error())
	case errors.Is(err, services.ErrInterpreter):
		h.logger.WithError(err).Error("Interpreter failed under strict policy")
		httputil.SendBadGateway(c, err.Error())
	default:
		h.logger.WithError(err).Error("Projection request failed")
		httputil.SendInternalError(c, "failed to generate projections")
	}
}
