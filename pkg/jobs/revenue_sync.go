package jobs

import (
	"context"
	"time"

	"github.com/blush-marketing/core/pkg/logger"
	"github.com/blush-marketing/core/pkg/services"
)

type RevenueSyncJob struct {
	revenueService *services.RevenueService
}

// NewRevenueSyncJob creates a new revenue sync job
func NewRevenueSyncJob(revenueService *services.RevenueService) Job {
	return &RevenueSyncJob{
		revenueService: revenueService,
	}
}

func (j *RevenueSyncJob) Execute(ctx context.Context) error {
	log := logger.WithContext(ctx, "revenue-sync")
	start := time.Now()

	log.Info().
		Str("action", "sync_start").
		Msg("Starting revenue sync job")

	synced, err := j.revenueService.SyncDaily(ctx)
	duration := time.Since(start)

	if err != nil {
		log.Error().
			Err(err).
			Str("action", "sync_failed").
			Int("synced", synced).
			Dur("duration", duration).
			Msg("Revenue sync failed")
		return err
	}

	log.Info().
		Str("action", "sync_complete").
		Int("synced", synced).
		Dur("duration", duration).
		Msg("Revenue sync completed")
	return nil
}

func (j *RevenueSyncJob) Name() string {
	return "revenue_sync"
}

func (j *RevenueSyncJob) Schedule() string {
	// Hourly at :05 - upstream finalizes the previous hour shortly after the top
	return "5 * * * *"
}
