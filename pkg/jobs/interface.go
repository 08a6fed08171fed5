package jobs

import (
	"context"

	"github.com/blush-marketing/core/pkg/scheduler"
)

// Job represents a schedulable unit of business work. The scheduler core
// never interprets what a job does, only whether it started, is running,
// succeeded, or failed.
type Job interface {
	// Execute runs the job with the given context. The context is the
	// cooperative cancellation hook; jobs may ignore it today.
	Execute(ctx context.Context) error

	// Name returns the unique registry key for this job
	Name() string

	// Schedule returns the 5-field cron expression for this job
	// Format: "minute hour day month weekday"
	Schedule() string
}

// Register wires a job into the scheduler service. Jobs register
// themselves at boot; the scheduler package never imports a job module.
func Register(ctx context.Context, svc *scheduler.Service, job Job, opts scheduler.Options) error {
	return svc.Schedule(ctx, job.Name(), job.Schedule(), job.Execute, opts)
}
