package scheduler

import (
	"errors"
	"fmt"
)

// ErrSchedulerStopped is returned for manual dispatches while the registry
// switch is stopped or the process is draining.
var ErrSchedulerStopped = errors.New("scheduler is not running")

// ErrJobNotFound is returned for manual dispatches naming an unknown job.
var ErrJobNotFound = errors.New("job not found")

// ScheduleValidationError reports a malformed cron expression or an
// unrecognized timezone. It is raised synchronously at registration time;
// a job is never partially registered.
type ScheduleValidationError struct {
	Name     string
	Expr     string
	Timezone string
	Reason   string
	Err      error
}

func (e *ScheduleValidationError) Error() string {
	return fmt.Sprintf("invalid schedule for job %q (expr=%q tz=%q): %s", e.Name, e.Expr, e.Timezone, e.Reason)
}

func (e *ScheduleValidationError) Unwrap() error {
	return e.Err
}

// JobExecutionError wraps a failure raised by a job callback. It is
// returned to the caller only for manually triggered dispatches;
// cron-triggered failures are recorded and swallowed.
type JobExecutionError struct {
	JobName string
	RunID   string
	Err     error
}

func (e *JobExecutionError) Error() string {
	return fmt.Sprintf("job %q failed (run %s): %v", e.JobName, e.RunID, e.Err)
}

func (e *JobExecutionError) Unwrap() error {
	return e.Err
}
