package jobs

import (
	"context"
	"time"

	"github.com/blush-marketing/core/pkg/logger"
	"github.com/blush-marketing/core/pkg/services"
)

type ContentGenerationJob struct {
	contentService *services.ContentService
}

// NewContentGenerationJob creates a new content generation job
func NewContentGenerationJob(contentService *services.ContentService) Job {
	return &ContentGenerationJob{
		contentService: contentService,
	}
}

func (j *ContentGenerationJob) Execute(ctx context.Context) error {
	log := logger.WithContext(ctx, "content-generation")
	start := time.Now()

	created, err := j.contentService.GenerateDrafts(ctx)
	duration := time.Since(start)

	if err != nil {
		log.Error().
			Err(err).
			Str("action", "generation_failed").
			Int("created", created).
			Dur("duration", duration).
			Msg("Content generation failed")
		return err
	}

	log.Info().
		Str("action", "generation_complete").
		Int("created", created).
		Dur("duration", duration).
		Msg("Content drafts generated")
	return nil
}

func (j *ContentGenerationJob) Name() string {
	return "content_generation"
}

func (j *ContentGenerationJob) Schedule() string {
	// Weekday mornings at 09:00 so editors find fresh drafts
	return "0 9 * * 1-5"
}
