package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/blush-marketing/core/pkg/logger"
)

// executionGuard enforces at-most-one-concurrent-execution for a single
// job and owns that job's run statistics. The state machine is
// Idle -> Running -> Idle; there is no Failed state, so a job stays
// schedulable after an error.
type executionGuard struct {
	jobName string
	log     *logger.Logger

	// onFinish receives the finalized record of every admitted run.
	// Best-effort; must not block.
	onFinish func(JobRunRecord)

	mu      sync.Mutex
	running bool
	stats   JobStats
	now     func() time.Time
}

func newExecutionGuard(jobName string, log *logger.Logger, onFinish func(JobRunRecord)) *executionGuard {
	return &executionGuard{
		jobName:  jobName,
		log:      log.WithJob(jobName),
		onFinish: onFinish,
		now:      time.Now,
	}
}

// isRunning reports whether a run is currently admitted.
func (g *executionGuard) isRunning() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

func (g *executionGuard) snapshot() JobStats {
	g.mu.Lock()
	defer g.mu.Unlock()
	stats := g.stats
	stats.RecentErrors = append([]JobError(nil), g.stats.RecentErrors...)
	return stats
}

// execute admits at most one concurrent run. An attempt while Running is
// dropped, not queued: no record is created, the skip counter increments,
// and nil is returned regardless of trigger. On admission the callback
// runs to completion; failures (including panics) are recorded in the
// stats and the bounded error history. Cron-triggered failures are
// swallowed after recording; manual failures are returned wrapped in a
// JobExecutionError.
func (g *executionGuard) execute(ctx context.Context, cb Callback, trigger Trigger) (*JobRunRecord, error) {
	g.mu.Lock()
	if g.running {
		g.stats.Skipped++
		g.mu.Unlock()
		g.log.LogJobSkipped(g.jobName, string(trigger))
		return nil, nil
	}
	g.running = true
	record := JobRunRecord{
		RunID:       uuid.New().String(),
		JobName:     g.jobName,
		StartedAt:   g.now(),
		TriggeredBy: trigger,
	}
	g.mu.Unlock()

	runLog := g.log.WithRun(record.RunID)
	runLog.LogJobStart(g.jobName, string(trigger))

	err := g.invoke(ctx, cb, runLog)
	finished := g.now()

	g.mu.Lock()
	g.running = false
	record.FinishedAt = &finished
	record.Duration = finished.Sub(record.StartedAt)
	g.stats.TotalRuns++
	g.stats.LastRun = record.StartedAt
	g.stats.LastDuration = record.Duration
	if err != nil {
		record.Outcome = OutcomeError
		record.ErrorMessage = err.Error()
		g.stats.TotalErrors++
		g.stats.RecentErrors = append(g.stats.RecentErrors, JobError{
			At:      finished,
			RunID:   record.RunID,
			Message: err.Error(),
		})
		if len(g.stats.RecentErrors) > maxRecentErrors {
			g.stats.RecentErrors = g.stats.RecentErrors[len(g.stats.RecentErrors)-maxRecentErrors:]
		}
	} else {
		record.Outcome = OutcomeSuccess
	}
	g.mu.Unlock()

	runLog.LogJobComplete(g.jobName, record.Duration, err)

	if g.onFinish != nil {
		g.onFinish(record)
	}

	if err != nil && trigger == TriggerManual {
		return &record, &JobExecutionError{JobName: g.jobName, RunID: record.RunID, Err: err}
	}
	return &record, nil
}

// invoke runs the callback, converting panics into errors so a broken
// job can never take down the tick loop or the process.
func (g *executionGuard) invoke(ctx context.Context, cb Callback, runLog *logger.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			runLog.Error().
				Str("action", "job_panic").
				Str("job_name", g.jobName).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Job callback panicked")
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return cb(ctx)
}
