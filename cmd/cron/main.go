package main

import (
	"context"
	"flag"
	"time"

	"github.com/blush-marketing/core/internal/config"
	"github.com/blush-marketing/core/pkg/database/pool"
	"github.com/blush-marketing/core/pkg/jobs"
	"github.com/blush-marketing/core/pkg/logger"
	"github.com/blush-marketing/core/pkg/scheduler"
	"github.com/blush-marketing/core/pkg/services"
	"github.com/blush-marketing/core/pkg/shutdown"
)

func main() {
	// Parse command line flags
	var (
		jobName = flag.String("job", "", "Run specific job once (revenue_sync, keyword_rank_sync, content_generation, log_compression)")
		once    = flag.Bool("once", false, "Run job once and exit")
	)
	flag.Parse()

	logger.SetupLogger()
	log := logger.New("cron-service")

	cfg := config.Load()
	ctx := context.Background()

	// Connect to the document store
	dbPool, err := pool.New(ctx, cfg.DatabaseURL(), nil)
	if err != nil {
		log.Fatal().
			Err(err).
			Str("action", "db_connect_failed").
			Msg("Failed to connect to database")
	}

	// Initialize services
	revenueClient := services.NewAPIClient("revenue-api", cfg.External.RevenueBaseURL, cfg)
	keywordClient := services.NewAPIClient("keyword-api", cfg.External.KeywordBaseURL, cfg)
	revenueService := services.NewRevenueService(revenueClient, dbPool)
	keywordService := services.NewKeywordService(keywordClient, dbPool, cfg.External.RateLimit)
	contentService := services.NewContentService(dbPool)

	store := scheduler.NewPostgresStore(dbPool)
	sched := scheduler.NewService(log,
		scheduler.WithStore(store),
		scheduler.WithDefaultTimezone(cfg.Scheduler.Timezone),
	)

	register := func(job jobs.Job, opts scheduler.Options) {
		if err := jobs.Register(ctx, sched, job, opts); err != nil {
			log.Fatal().
				Err(err).
				Str("action", "register_failed").
				Str("job_name", job.Name()).
				Msg("Failed to register job")
		}
	}
	register(jobs.NewRevenueSyncJob(revenueService), scheduler.Options{Immediate: true, Persist: true})
	register(jobs.NewKeywordRankSyncJob(keywordService), scheduler.Options{Persist: true})
	register(jobs.NewContentGenerationJob(contentService), scheduler.Options{Persist: true})
	register(jobs.NewLogCompressionJob(store, 0), scheduler.Options{})

	if err := sched.ReattachPersisted(ctx); err != nil {
		log.Error().
			Err(err).
			Str("action", "reattach_failed").
			Msg("Failed to load persisted schedules")
	}

	// Handle single job execution
	if *once && *jobName != "" {
		sched.Start()

		runCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
		defer cancel()

		record, err := sched.Dispatch(runCtx, *jobName, scheduler.TriggerManual)
		sched.Stop()
		dbPool.Close()

		if err != nil {
			log.Fatal().
				Err(err).
				Str("action", "once_failed").
				Str("job_name", *jobName).
				Msg("Job failed")
		}
		if record == nil {
			log.Warn().
				Str("action", "once_skipped").
				Str("job_name", *jobName).
				Msg("Job dispatch was dropped")
			return
		}
		log.Info().
			Str("action", "once_complete").
			Str("job_name", *jobName).
			Dur("duration", record.Duration).
			Msg("Job completed")
		return
	}

	coordinator := shutdown.New(log, sched,
		shutdown.WithTimeout(cfg.Scheduler.ShutdownTimeout),
		shutdown.WithGracePeriod(cfg.Scheduler.GracePeriod),
	)
	coordinator.OnShutdown("database", func(context.Context) error {
		dbPool.Close()
		return nil
	})

	sched.Start()
	log.Info().
		Str("action", "cron_started").
		Int("job_count", len(sched.Status())).
		Msg("Cron job service started")

	// Wait for a termination signal, then drain and exit
	coordinator.Listen()
}
