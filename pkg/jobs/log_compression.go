package jobs

import (
	"context"
	"time"

	"github.com/blush-marketing/core/pkg/logger"
	"github.com/blush-marketing/core/pkg/scheduler"
)

// defaultRunRetention is how long run-journal rows are kept.
const defaultRunRetention = 30 * 24 * time.Hour

// LogCompressionJob prunes old run-journal entries so the job history
// tables stay bounded.
type LogCompressionJob struct {
	store     scheduler.JobStore
	retention time.Duration
}

// NewLogCompressionJob creates a new log compression job
func NewLogCompressionJob(store scheduler.JobStore, retention time.Duration) Job {
	if retention <= 0 {
		retention = defaultRunRetention
	}
	return &LogCompressionJob{
		store:     store,
		retention: retention,
	}
}

func (j *LogCompressionJob) Execute(ctx context.Context) error {
	log := logger.WithContext(ctx, "log-compression")
	start := time.Now()
	cutoff := time.Now().Add(-j.retention)

	pruned, err := j.store.PruneRuns(ctx, cutoff)
	duration := time.Since(start)

	if err != nil {
		log.Error().
			Err(err).
			Str("action", "prune_failed").
			Time("cutoff", cutoff).
			Dur("duration", duration).
			Msg("Run journal prune failed")
		return err
	}

	log.Info().
		Str("action", "prune_complete").
		Int64("pruned", pruned).
		Time("cutoff", cutoff).
		Dur("duration", duration).
		Msg("Run journal pruned")
	return nil
}

func (j *LogCompressionJob) Name() string {
	return "log_compression"
}

func (j *LogCompressionJob) Schedule() string {
	// Nightly at 03:15, off-peak
	return "15 3 * * *"
}
