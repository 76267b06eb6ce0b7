package store

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/courtsight/projection-service/internal/models"
)

// GormFeatureStore reads roster and feature rows from Postgres.
type GormFeatureStore struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewGormFeatureStore(db *gorm.DB, logger *logrus.Logger) *GormFeatureStore {
	return &GormFeatureStore{db: db, logger: logger}
}

func (s *GormFeatureStore) ActiveRoster(ctx context.Context, gameID int64) ([]models.RosterEntry, error) {
	var roster []models.RosterEntry
	err := s.db.WithContext(ctx).
		Where("game_id = ? AND active = ?", gameID, true).
		Order("player_id").
		Find(&roster).Error
	if err != nil {
		s.logger.WithError(err).WithField("game_id", gameID).Error("Failed to load active roster")
		return nil, fmt.Errorf("failed to load roster for game %d: %w", gameID, err)
	}

	s.logger.WithFields(logrus.Fields{
		"game_id": gameID,
		"players": len(roster),
	}).Debug("Loaded active roster")

	return roster, nil
}

func (s *GormFeatureStore) GameFeatures(ctx context.Context, gameID int64, playerIDs []int64) (map[int64]models.PlayerGameFeature, error) {
	if len(playerIDs) == 0 {
		return map[int64]models.PlayerGameFeature{}, nil
	}

	var rows []models.PlayerGameFeature
	err := s.db.WithContext(ctx).
		Where("game_id = ? AND player_id IN ?", gameID, playerIDs).
		Find(&rows).Error
	if err != nil {
		s.logger.WithError(err).WithField("game_id", gameID).Error("Failed to load feature rows")
		return nil, fmt.Errorf("failed to load features for game %d: %w", gameID, err)
	}

	features := make(map[int64]models.PlayerGameFeature, len(rows))
	for _, row := range rows {
		features[row.PlayerID] = row
	}

	s.logger.WithFields(logrus.Fields{
		"game_id":   gameID,
		"requested": len(playerIDs),
		"found":     len(features),
	}).Debug("Loaded feature rows")

	return features, nil
}
