package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/courtsight/projection-service/internal/models"
	"github.com/courtsight/projection-service/internal/store"
)

// Sentinel errors for the handler layer's status mapping.
var (
	ErrInvalidRequest      = errors.New("invalid projection request")
	ErrUnknownModelVersion = errors.New("unknown model version")
	ErrUpstreamData        = errors.New("upstream data unavailable")
	ErrInterpreter         = errors.New("context interpretation failed")
)

// ProjectionRequest is one engine invocation.
type ProjectionRequest struct {
	GameID       int64
	ModelVersion string
	Notes        string

	// Policy decides interpreter-failure behavior; empty means
	// PolicyFallback.
	Policy Policy

	// BaselineOnly skips the external call entirely and serves the
	// deterministic zero-delta path.
	BaselineOnly bool
}

// ProjectionResult wraps the payload with per-run metadata.
type ProjectionResult struct {
	Payload          *models.ProjectionResponse
	RequestID        string
	CacheHit         bool
	FallbackUsed     bool
	ProcessingTimeMs int64
}

// Broadcaster pushes freshly composed payloads to streaming subscribers.
type Broadcaster interface {
	BroadcastProjections(gameID int64, payload *models.ProjectionResponse)
}

// ProjectionEngine orchestrates the full pipeline: normalize → blend →
// assemble → interpret → compose → cache. Stateless per request; all
// collaborators are injected.
type ProjectionEngine struct {
	features    store.FeatureStore
	mlStore     store.ModelStore
	cache       ResultCache
	interpreter *ContextInterpreter
	assembler   *BaselineAssembler
	fallback    *FallbackBuilder
	composer    *Composer
	auditLog    store.ProjectionLog
	broadcaster Broadcaster
	logger      *logrus.Logger
}

func NewProjectionEngine(
	features store.FeatureStore,
	mlStore store.ModelStore,
	cache ResultCache,
	interpreter *ContextInterpreter,
	logger *logrus.Logger,
) *ProjectionEngine {
	return &ProjectionEngine{
		features:    features,
		mlStore:     mlStore,
		cache:       cache,
		interpreter: interpreter,
		assembler:   NewBaselineAssembler(logger),
		fallback:    NewFallbackBuilder(logger),
		composer:    NewComposer(logger),
		logger:      logger,
	}
}

// SetAuditLog attaches the best-effort projection audit log.
func (e *ProjectionEngine) SetAuditLog(auditLog store.ProjectionLog) {
	e.auditLog = auditLog
}

// SetBroadcaster attaches the streaming hub.
func (e *ProjectionEngine) SetBroadcaster(b Broadcaster) {
	e.broadcaster = b
}

// GenerateProjections runs the pipeline for one game.
func (e *ProjectionEngine) GenerateProjections(ctx context.Context, req ProjectionRequest) (*ProjectionResult, error) {
	startTime := time.Now()
	requestID := uuid.NewString()

	if req.GameID <= 0 {
		return nil, fmt.Errorf("%w: game id must be positive", ErrInvalidRequest)
	}
	if req.ModelVersion == "" {
		return nil, fmt.Errorf("%w: model version is required", ErrInvalidRequest)
	}
	if req.Policy == "" {
		req.Policy = PolicyFallback
	}

	notesHash := NotesHash(req.Notes)
	variant := cacheVariant(req)
	log := e.logger.WithFields(logrus.Fields{
		"request_id":    requestID,
		"game_id":       req.GameID,
		"model_version": req.ModelVersion,
		"policy":        string(req.Policy),
	})
	log.Info("Starting projection run")

	// Read-before-compute. A cache read failure is treated as a miss; the
	// engine can always recompute.
	if cached, hit, err := e.cache.GetProjections(ctx, req.GameID, req.ModelVersion, variant, notesHash); err != nil {
		log.WithError(err).Warn("Projection cache read failed, recomputing")
	} else if hit {
		log.Info("Returning cached projection payload")
		return &ProjectionResult{
			Payload:          cached,
			RequestID:        requestID,
			CacheHit:         true,
			ProcessingTimeMs: time.Since(startTime).Milliseconds(),
		}, nil
	}

	exists, err := e.mlStore.ModelVersionExists(ctx, req.ModelVersion)
	if err != nil {
		return nil, fmt.Errorf("%w: model registry check: %v", ErrUpstreamData, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModelVersion, req.ModelVersion)
	}

	// Roster gates every subsequent per-player query.
	roster, err := e.features.ActiveRoster(ctx, req.GameID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamData, err)
	}
	if len(roster) == 0 {
		return nil, fmt.Errorf("%w: no active roster for game %d", ErrUpstreamData, req.GameID)
	}

	playerIDs := make([]int64, len(roster))
	for i, player := range roster {
		playerIDs[i] = player.PlayerID
	}

	// Feature rows and ML estimates have no ordering dependency between
	// them; fetch both concurrently.
	var (
		wg          sync.WaitGroup
		features    map[int64]models.PlayerGameFeature
		featuresErr error
		estimates   map[int64]map[models.StatType]models.MLEstimate
		mlErr       error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		features, featuresErr = e.features.GameFeatures(ctx, req.GameID, playerIDs)
	}()
	go func() {
		defer wg.Done()
		estimates, mlErr = e.mlStore.Estimates(ctx, req.GameID, req.ModelVersion, playerIDs)
	}()
	wg.Wait()

	if featuresErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamData, featuresErr)
	}
	if mlErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamData, mlErr)
	}

	notesRestricted := HasRestrictionKeyword(req.Notes)

	baselines := make(map[int64]models.BaselinePacket, len(roster))
	for _, player := range roster {
		var featureRow *models.PlayerGameFeature
		if row, ok := features[player.PlayerID]; ok {
			featureRow = &row
		}
		baselines[player.PlayerID] = e.assembler.Assemble(player, featureRow, estimates[player.PlayerID], notesRestricted)
	}

	adjustments, fallbackUsed, err := e.resolveAdjustments(ctx, req, roster, features, baselines)
	if err != nil {
		return nil, err
	}

	byPlayer := make(map[int64]models.AdjustmentDelta, len(adjustments))
	for _, adj := range adjustments {
		byPlayer[adj.PlayerID] = adj
	}

	payload := &models.ProjectionResponse{
		GameID:       req.GameID,
		ModelVersion: req.ModelVersion,
		GeneratedAt:  time.Now().UTC(),
		Players:      make([]models.PlayerProjection, 0, len(roster)),
	}
	for _, player := range roster {
		payload.Players = append(payload.Players,
			e.composer.Compose(player, baselines[player.PlayerID], byPlayer[player.PlayerID], req.Notes))
	}

	// Write-after-compute: a crash mid-computation leaves no stale entry.
	// Degraded payloads are never cached, so a later request consults the
	// interpreter again instead of being pinned to fallback output for the
	// TTL. Baseline-only payloads are deterministic and cache normally.
	if fallbackUsed && !req.BaselineOnly {
		log.Debug("Skipping cache write for degraded payload")
	} else if err := e.cache.PutProjections(ctx, req.GameID, req.ModelVersion, variant, notesHash, payload); err != nil {
		log.WithError(err).Warn("Projection cache write failed")
	}

	result := &ProjectionResult{
		Payload:          payload,
		RequestID:        requestID,
		FallbackUsed:     fallbackUsed,
		ProcessingTimeMs: time.Since(startTime).Milliseconds(),
	}

	e.recordAudit(ctx, req, notesHash, result)

	if e.broadcaster != nil {
		e.broadcaster.BroadcastProjections(req.GameID, payload)
	}

	log.WithFields(logrus.Fields{
		"players":            len(payload.Players),
		"fallback_used":      fallbackUsed,
		"processing_time_ms": result.ProcessingTimeMs,
	}).Info("Projection run completed")

	return result, nil
}

// cacheVariant names the route variant for the cache key. The three variants
// accept different payloads (strict never serves baseline_only data), so they
// must never read each other's entries.
func cacheVariant(req ProjectionRequest) string {
	if req.BaselineOnly {
		return "baseline"
	}
	return string(req.Policy)
}

// resolveAdjustments picks the adjustment source: the deterministic fallback
// for baseline-only requests, otherwise the interpreter with the policy
// deciding what a post-retry failure means.
func (e *ProjectionEngine) resolveAdjustments(
	ctx context.Context,
	req ProjectionRequest,
	roster []models.RosterEntry,
	features map[int64]models.PlayerGameFeature,
	baselines map[int64]models.BaselinePacket,
) ([]models.AdjustmentDelta, bool, error) {
	if req.BaselineOnly {
		return e.fallback.Build(roster, baselines), true, nil
	}

	adjustments, err := e.interpreter.Interpret(ctx, InterpretRequest{
		GameID:             req.GameID,
		ModelVersion:       req.ModelVersion,
		Notes:              req.Notes,
		Roster:             roster,
		Features:           features,
		Baselines:          baselines,
		RequireProjections: req.Policy == PolicyStrict,
	})
	if err == nil {
		return adjustments, false, nil
	}

	if req.Policy == PolicyStrict {
		return nil, false, fmt.Errorf("%w: %v", ErrInterpreter, err)
	}

	e.logger.WithError(err).WithField("game_id", req.GameID).
		Warn("Interpreter failed after retry, degrading to deterministic fallback")
	return e.fallback.Build(roster, baselines), true, nil
}

func (e *ProjectionEngine) recordAudit(ctx context.Context, req ProjectionRequest, notesHash string, result *ProjectionResult) {
	if e.auditLog == nil {
		return
	}

	raw, err := json.Marshal(result.Payload)
	if err != nil {
		e.logger.WithError(err).Warn("Failed to marshal payload for audit log")
		raw = json.RawMessage("{}")
	}

	// Best effort; Record logs its own failures.
	_ = e.auditLog.Record(ctx, &models.AIProjectionLog{
		GameID:         req.GameID,
		ModelVersion:   req.ModelVersion,
		NotesHash:      notesHash,
		RequestID:      result.RequestID,
		FallbackUsed:   result.FallbackUsed,
		Payload:        raw,
		ResponseTimeMs: result.ProcessingTimeMs,
		CreatedAt:      time.Now().UTC(),
	})
}
