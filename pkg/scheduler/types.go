package scheduler

import (
	"context"
	"time"
)

// Callback is the opaque operation a job executes. The scheduler never
// inspects its result beyond success or failure. The context is the
// cooperative cancellation hook; current jobs may ignore it.
type Callback func(ctx context.Context) error

// Trigger identifies what caused a dispatch.
type Trigger string

const (
	TriggerCron   Trigger = "cron"
	TriggerManual Trigger = "manual"
)

// Mode is the registry's global switch state.
type Mode string

const (
	ModeRunning Mode = "running"
	ModeStopped Mode = "stopped"
)

// JobDefinition describes a registered job.
type JobDefinition struct {
	Name     string
	CronExpr string
	Timezone string
	Callback Callback
	Enabled  bool
	Persist  bool
}

// Options controls registration behavior.
type Options struct {
	// Timezone is the IANA zone the cron expression is evaluated in.
	// Empty means the service default.
	Timezone string
	// Immediate issues one out-of-band dispatch at registration time in
	// addition to the normal cron schedule.
	Immediate bool
	// Persist stores the schedule (never the callback) in durable storage
	// so it survives a restart.
	Persist bool
	// Disabled registers the job without admitting cron fires.
	Disabled bool
}

// Outcome is the terminal result of a single run.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeError   Outcome = "error"
)

// JobRunRecord captures one admitted execution. FinishedAt is nil while
// the run is in flight and set exactly once on completion.
type JobRunRecord struct {
	RunID        string     `json:"run_id"`
	JobName      string     `json:"job_name"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Duration     time.Duration `json:"duration"`
	Outcome      Outcome    `json:"outcome"`
	ErrorMessage string     `json:"error_message,omitempty"`
	TriggeredBy  Trigger    `json:"triggered_by"`
}

// JobError is one entry in a job's bounded error history.
type JobError struct {
	At      time.Time `json:"at"`
	RunID   string    `json:"run_id"`
	Message string    `json:"message"`
}

// maxRecentErrors bounds the per-job error ring buffer.
const maxRecentErrors = 10

// JobStats are per-job aggregate counters, mutated only by that job's
// own execution guard.
type JobStats struct {
	TotalRuns    int64         `json:"total_runs"`
	TotalErrors  int64         `json:"total_errors"`
	Skipped      int64         `json:"skipped"`
	LastRun      time.Time     `json:"last_run"`
	LastDuration time.Duration `json:"last_duration"`
	RecentErrors []JobError    `json:"recent_errors,omitempty"`
}

// JobStatus is the read-only introspection view of one job.
type JobStatus struct {
	Name     string    `json:"name"`
	CronExpr string    `json:"cron_expr"`
	Timezone string    `json:"timezone"`
	Enabled  bool      `json:"enabled"`
	Running  bool      `json:"running"`
	NextRun  time.Time `json:"next_run"`
	Stats    JobStats  `json:"stats"`
}

// PersistedSchedule is the durable form of a job definition. The callback
// cannot be serialized; it must be re-supplied in code after a restart.
type PersistedSchedule struct {
	Name      string    `json:"name"`
	CronExpr  string    `json:"cron_expr"`
	Timezone  string    `json:"timezone"`
	Enabled   bool      `json:"enabled"`
	UpdatedAt time.Time `json:"updated_at"`
}
