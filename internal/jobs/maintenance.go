package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/courtsight/projection-service/internal/services"
)

// CacheMaintenance periodically logs projection cache statistics. Redis
// owns TTL expiry; this job only gives operators visibility into key growth
// from note rewordings.
type CacheMaintenance struct {
	cache  *services.CacheService
	cron   *cron.Cron
	logger *logrus.Logger
}

func NewCacheMaintenance(cache *services.CacheService, logger *logrus.Logger) *CacheMaintenance {
	return &CacheMaintenance{
		cache:  cache,
		cron:   cron.New(),
		logger: logger,
	}
}

// Start schedules the hourly stats sweep.
func (m *CacheMaintenance) Start() error {
	_, err := m.cron.AddFunc("@hourly", m.sweep)
	if err != nil {
		return err
	}
	m.cron.Start()
	m.logger.Info("Cache maintenance job scheduled")
	return nil
}

// Stop halts the scheduler, waiting for a running sweep to finish.
func (m *CacheMaintenance) Stop() {
	ctx := m.cron.Stop()
	<-ctx.Done()
}

func (m *CacheMaintenance) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	count, err := m.cache.KeyCount(ctx)
	if err != nil {
		m.logger.WithError(err).Warn("Cache maintenance sweep failed")
		return
	}

	m.logger.WithFields(logrus.Fields{
		"projection_keys": count,
	}).Info("Projection cache sweep completed")
}
