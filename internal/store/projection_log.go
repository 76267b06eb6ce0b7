package store

import (
	"context"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/courtsight/projection-service/internal/models"
)

// GormProjectionLog appends audit rows to ai_projection_log. Failures are
// logged but never fail the request; the audit trail is best-effort.
type GormProjectionLog struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewGormProjectionLog(db *gorm.DB, logger *logrus.Logger) *GormProjectionLog {
	return &GormProjectionLog{db: db, logger: logger}
}

func (l *GormProjectionLog) Record(ctx context.Context, entry *models.AIProjectionLog) error {
	if err := l.db.WithContext(ctx).Create(entry).Error; err != nil {
		l.logger.WithError(err).WithFields(logrus.Fields{
			"game_id":       entry.GameID,
			"model_version": entry.ModelVersion,
			"request_id":    entry.RequestID,
		}).Error("Failed to record projection log entry")
		return err
	}
	return nil
}
