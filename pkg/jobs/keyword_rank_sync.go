package jobs

import (
	"context"
	"time"

	"github.com/blush-marketing/core/pkg/logger"
	"github.com/blush-marketing/core/pkg/services"
)

type KeywordRankSyncJob struct {
	keywordService *services.KeywordService
}

// NewKeywordRankSyncJob creates a new keyword rank sync job
func NewKeywordRankSyncJob(keywordService *services.KeywordService) Job {
	return &KeywordRankSyncJob{
		keywordService: keywordService,
	}
}

func (j *KeywordRankSyncJob) Execute(ctx context.Context) error {
	log := logger.WithContext(ctx, "keyword-rank-sync")
	start := time.Now()

	log.Info().
		Str("action", "sync_start").
		Msg("Starting keyword rank sync job")

	synced, err := j.keywordService.SyncRanks(ctx)
	duration := time.Since(start)

	if err != nil {
		log.Error().
			Err(err).
			Str("action", "sync_failed").
			Int("synced", synced).
			Dur("duration", duration).
			Msg("Keyword rank sync failed")
		return err
	}

	log.Info().
		Str("action", "sync_complete").
		Int("synced", synced).
		Dur("duration", duration).
		Msg("Keyword rank sync completed")
	return nil
}

func (j *KeywordRankSyncJob) Name() string {
	return "keyword_rank_sync"
}

func (j *KeywordRankSyncJob) Schedule() string {
	// Daily at 06:30 - rank trackers refresh overnight
	return "30 6 * * *"
}
