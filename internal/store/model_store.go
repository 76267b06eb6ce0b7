package store

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/courtsight/projection-service/internal/models"
)

// GormModelStore reads the ML prediction table and model registry.
type GormModelStore struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewGormModelStore(db *gorm.DB, logger *logrus.Logger) *GormModelStore {
	return &GormModelStore{db: db, logger: logger}
}

func (s *GormModelStore) ModelVersionExists(ctx context.Context, modelVersion string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.ModelRegistryEntry{}).
		Where("model_version = ?", modelVersion).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check model registry for %q: %w", modelVersion, err)
	}
	return count > 0, nil
}

func (s *GormModelStore) Estimates(ctx context.Context, gameID int64, modelVersion string, playerIDs []int64) (map[int64]map[models.StatType]models.MLEstimate, error) {
	if len(playerIDs) == 0 {
		return map[int64]map[models.StatType]models.MLEstimate{}, nil
	}

	var rows []models.MLPrediction
	err := s.db.WithContext(ctx).
		Where("game_id = ? AND model_version = ? AND player_id IN ?", gameID, modelVersion, playerIDs).
		Find(&rows).Error
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"game_id":       gameID,
			"model_version": modelVersion,
		}).Error("Failed to load ML predictions")
		return nil, fmt.Errorf("failed to load ml predictions for game %d: %w", gameID, err)
	}

	estimates := make(map[int64]map[models.StatType]models.MLEstimate)
	for _, row := range rows {
		// Rows without a mean carry no signal for the blend.
		if row.ProjectedMean == nil {
			continue
		}
		byStat, ok := estimates[row.PlayerID]
		if !ok {
			byStat = make(map[models.StatType]models.MLEstimate)
			estimates[row.PlayerID] = byStat
		}
		est := models.MLEstimate{Mean: *row.ProjectedMean}
		if row.ProjectedStd != nil {
			est.Std = *row.ProjectedStd
		}
		byStat[row.StatType] = est
	}

	s.logger.WithFields(logrus.Fields{
		"game_id":       gameID,
		"model_version": modelVersion,
		"rows":          len(rows),
		"players":       len(estimates),
	}).Debug("Loaded ML predictions")

	return estimates, nil
}
