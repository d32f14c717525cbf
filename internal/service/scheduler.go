package service

import (
	"context"
	"time"

	"wagate/internal/constants"
	"wagate/internal/metrics"

	"github.com/sirupsen/logrus"
)

// ContactCleaner removes stale contact cache entries.
type ContactCleaner interface {
	CleanupOldContacts(retentionDays int) error
}

type Scheduler struct {
	cleaner       ContactCleaner
	retentionDays int
	intervalHours int
	logger        *logrus.Logger
	stopCh        chan struct{}
}

func NewScheduler(cleaner ContactCleaner, retentionDays, intervalHours int, logger *logrus.Logger) *Scheduler {
	if intervalHours <= 0 {
		intervalHours = constants.DefaultCleanupIntervalHrs
	}
	if retentionDays <= 0 {
		retentionDays = constants.DefaultRetentionDays
	}
	return &Scheduler{
		cleaner:       cleaner,
		retentionDays: retentionDays,
		intervalHours: intervalHours,
		logger:        logger,
		stopCh:        make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(s.intervalHours) * time.Hour)
	defer ticker.Stop()

	s.logger.Info("Starting cleanup scheduler")

	s.runCleanup()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler context cancelled, stopping")
			return
		case <-s.stopCh:
			s.logger.Info("Scheduler stop signal received, stopping")
			return
		case <-ticker.C:
			s.runCleanup()
		}
	}
}

func (s *Scheduler) Stop() {
	close(s.stopCh)
}

func (s *Scheduler) runCleanup() {
	s.logger.WithField("retentionDays", s.retentionDays).Info("Running scheduled contact cleanup")

	if err := s.cleaner.CleanupOldContacts(s.retentionDays); err != nil {
		s.logger.WithError(err).Error("Failed to cleanup old contacts")
		return
	}
	metrics.IncrementCounter("cleanup_runs", nil, "Completed cleanup runs")
	s.logger.Info("Successfully completed cleanup")
}
