package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/courtsight/projection-service/internal/models"
)

// ResultCache stores composed projection payloads keyed by
// (game, model version, route variant, notes hash). The variant keeps the
// strict, fallback and baseline-only routes from reading each other's
// payloads. Read-before-compute, write-after-compute.
type ResultCache interface {
	GetProjections(ctx context.Context, gameID int64, modelVersion, variant, notesHash string) (*models.ProjectionResponse, bool, error)
	PutProjections(ctx context.Context, gameID int64, modelVersion, variant, notesHash string, payload *models.ProjectionResponse) error
}

// Entries are never invalidated by the engine; staleness is the caller's
// responsibility via model_version. The TTL only bounds unbounded key growth
// from one-off note rewordings.
const projectionTTL = 7 * 24 * time.Hour

// CacheService provides redis-backed caching for projection payloads.
type CacheService struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewCacheService(redisClient *redis.Client, logger *logrus.Logger) *CacheService {
	return &CacheService{client: redisClient, logger: logger}
}

func (c *CacheService) buildCacheKey(elements ...string) string {
	return fmt.Sprintf("projections:%s", strings.Join(elements, ":"))
}

func (c *CacheService) projectionKey(gameID int64, modelVersion, variant, notesHash string) string {
	return c.buildCacheKey("ai", fmt.Sprintf("%d", gameID), modelVersion, variant, notesHash)
}

// GetProjections returns the cached payload verbatim on a hit; no
// recomputation, no external call.
func (c *CacheService) GetProjections(ctx context.Context, gameID int64, modelVersion, variant, notesHash string) (*models.ProjectionResponse, bool, error) {
	key := c.projectionKey(gameID, modelVersion, variant, notesHash)

	data, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		c.logger.WithError(err).WithField("key", key).Error("Failed to read projection cache")
		return nil, false, err
	}

	var payload models.ProjectionResponse
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		c.logger.WithError(err).WithField("key", key).Error("Failed to unmarshal cached projection")
		return nil, false, err
	}

	c.logger.WithField("key", key).Debug("Projection cache hit")
	return &payload, true, nil
}

// PutProjections upserts the composed payload. Last write wins; identical
// inputs produce deterministic payloads so the race is benign.
func (c *CacheService) PutProjections(ctx context.Context, gameID int64, modelVersion, variant, notesHash string, payload *models.ProjectionResponse) error {
	key := c.projectionKey(gameID, modelVersion, variant, notesHash)

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal projection payload: %w", err)
	}

	if err := c.client.Set(ctx, key, data, projectionTTL).Err(); err != nil {
		c.logger.WithError(err).WithField("key", key).Error("Failed to write projection cache")
		return err
	}

	c.logger.WithFields(logrus.Fields{
		"key": key,
		"ttl": projectionTTL.String(),
	}).Debug("Cached projection payload")

	return nil
}

// KeyCount returns how many projection keys are currently cached.
func (c *CacheService) KeyCount(ctx context.Context) (int, error) {
	keys, err := c.client.Keys(ctx, c.buildCacheKey("*")).Result()
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// Stats returns cache statistics for the maintenance job and health surface.
func (c *CacheService) Stats(ctx context.Context) (map[string]interface{}, error) {
	info, err := c.client.Info(ctx, "memory", "stats").Result()
	if err != nil {
		return nil, err
	}

	stats := make(map[string]interface{})
	if count, err := c.KeyCount(ctx); err == nil {
		stats["projection_keys"] = count
	}
	stats["redis_info"] = info

	return stats, nil
}

// IsHealthy pings redis.
func (c *CacheService) IsHealthy(ctx context.Context) bool {
	return c.client.Ping(ctx).Err() == nil
}
