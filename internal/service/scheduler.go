package service

import (
	"context"
	"time"

	"chatbridge/internal/cache"
	"chatbridge/internal/constants"
	"chatbridge/internal/history"
	"chatbridge/internal/models"
	"chatbridge/pkg/media"

	"github.com/sirupsen/logrus"
)

// Scheduler periodically reclaims aged state: media temp files past
// their maximum age, history rows past retention, and processed-message
// cache entries when cache pruning is enabled.
type Scheduler struct {
	mediaStore media.Store
	history    *history.Store
	cache      *cache.Store
	retention  models.RetentionConfig
	interval   time.Duration
	logger     *logrus.Logger
	stopCh     chan struct{}
}

// NewScheduler builds the cleanup scheduler. The history and cache
// stores may be nil; their sweeps are skipped.
func NewScheduler(mediaStore media.Store, historyStore *history.Store, cacheStore *cache.Store, retention models.RetentionConfig, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		mediaStore: mediaStore,
		history:    historyStore,
		cache:      cacheStore,
		retention:  retention,
		interval:   time.Duration(constants.DefaultCleanupIntervalSec) * time.Second,
		logger:     logger,
		stopCh:     make(chan struct{}),
	}
}

// Start blocks, sweeping immediately and then on every interval, until
// the context is cancelled or Stop is called. Run it on its own
// goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Starting cleanup scheduler")

	s.runCleanup(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler context cancelled, stopping")
			return
		case <-s.stopCh:
			s.logger.Info("Scheduler stop signal received, stopping")
			return
		case <-ticker.C:
			s.runCleanup(ctx)
		}
	}
}

func (s *Scheduler) Stop() {
	close(s.stopCh)
}

func (s *Scheduler) runCleanup(ctx context.Context) {
	s.logger.WithFields(logrus.Fields{
		"media_max_age_sec": s.retention.MediaMaxAgeSec,
		"history_days":      s.retention.HistoryDays,
		"cache_days":        s.retention.CacheDays,
	}).Info("Running scheduled cleanup")

	if s.mediaStore != nil && s.retention.MediaMaxAgeSec > 0 {
		if removed, err := s.mediaStore.CleanupOldFiles(int64(s.retention.MediaMaxAgeSec)); err != nil {
			s.logger.WithError(err).Error("Failed to clean up media files")
		} else if removed > 0 {
			s.logger.WithField("count", removed).Info("Removed stale media files")
		}
	}

	if s.history != nil && s.retention.HistoryDays > 0 {
		if err := s.history.CleanupOldExchanges(ctx, s.retention.HistoryDays); err != nil {
			s.logger.WithError(err).Error("Failed to clean up old exchanges")
		}
	}

	if s.cache != nil && s.retention.CacheDays > 0 {
		if removed, err := s.cache.PruneOlderThan(s.retention.CacheDays); err != nil {
			s.logger.WithError(err).Error("Failed to prune processed-message cache")
		} else if removed > 0 {
			s.logger.WithField("count", removed).Info("Pruned processed-message cache entries")
		}
	}
}
