package main

import (
	"context"

	"github.com/blush-marketing/core/internal/config"
	"github.com/blush-marketing/core/pkg/database/pool"
	"github.com/blush-marketing/core/pkg/jobs"
	"github.com/blush-marketing/core/pkg/logger"
	"github.com/blush-marketing/core/pkg/scheduler"
	"github.com/blush-marketing/core/pkg/server"
	"github.com/blush-marketing/core/pkg/services"
	"github.com/blush-marketing/core/pkg/shutdown"
)

func main() {
	// Setup structured logging
	logger.SetupLogger()
	log := logger.New("api-service")

	// Load configuration
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

	// One scheduler instance, passed by reference to everything that
	// needs it. No package-level singleton.
	store := scheduler.NewPostgresStore(dbPool)
	sched := scheduler.NewService(log,
		scheduler.WithStore(store),
		scheduler.WithDefaultTimezone(cfg.Scheduler.Timezone),
	)

	coordinator := shutdown.New(log, sched,
		shutdown.WithTimeout(cfg.Scheduler.ShutdownTimeout),
		shutdown.WithGracePeriod(cfg.Scheduler.GracePeriod),
	)

	// External API clients and services
	revenueClient := services.NewAPIClient("revenue-api", cfg.External.RevenueBaseURL, cfg)
	keywordClient := services.NewAPIClient("keyword-api", cfg.External.KeywordBaseURL, cfg)
	revenueService := services.NewRevenueService(revenueClient, dbPool)
	keywordService := services.NewKeywordService(keywordClient, dbPool, cfg.External.RateLimit)
	contentService := services.NewContentService(dbPool)

	// Jobs register themselves with the scheduler; the scheduler never
	// imports a job module.
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

	// Persisted schedules (edited from the dashboard) override the
	// compiled-in defaults.
	if err := sched.ReattachPersisted(ctx); err != nil {
		log.Error().
			Err(err).
			Str("action", "reattach_failed").
			Msg("Failed to load persisted schedules")
	}

	// Create and configure server
	srv, err := server.New(cfg, log, dbPool, sched, coordinator)
	if err != nil {
		log.Fatal().
			Err(err).
			Str("action", "server_creation_failed").
			Msg("Failed to create server")
	}

	// Fixed shutdown order: stop the listener, wait out the grace
	// period, close storage, then drain jobs and clean up.
	coordinator.OnShutdown("http_listener", srv.Shutdown)
	coordinator.OnShutdown("database", func(context.Context) error {
		srv.Close()
		return nil
	})

	sched.Start()

	go func() {
		defer coordinator.HandlePanic()
		if err := srv.Start(); err != nil {
			log.Error().
				Err(err).
				Str("action", "server_failed").
				Msg("Server stopped with error")
			coordinator.Shutdown()
		}
	}()

	// Blocks until a termination signal, then drives the single
	// shutdown sequence and exits.
	coordinator.Listen()
}
