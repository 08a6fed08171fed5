package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/blush-marketing/core/pkg/logger"
)

// defaultTickInterval is the trigger engine's scan resolution.
const defaultTickInterval = time.Second

// journalTimeout bounds best-effort writes to the run journal.
const journalTimeout = 5 * time.Second

// jobEntry pairs a definition with its compiled schedule, its pending
// next-fire time, and its execution guard. The guard survives a replace
// so an in-flight run of the old definition still blocks overlap.
type jobEntry struct {
	def   JobDefinition
	sched *Schedule
	guard *executionGuard
	next  time.Time

	// immediate marks a registration whose out-of-band first dispatch
	// is still pending because the scheduler was not yet started.
	immediate bool
}

// Service is the scheduler registry plus the cron trigger engine: it
// holds the named job definitions, scans them once per tick, and routes
// every dispatch through the job's execution guard.
//
// One Service instance is constructed at startup and passed by reference
// to every module that needs it; there is no package-level singleton.
type Service struct {
	log       *logger.Logger
	store     JobStore
	defaultTZ string

	// tickInterval and now are fixed at construction; tests shorten the
	// tick and pin the clock.
	tickInterval time.Duration
	now          func() time.Time

	mu      sync.Mutex
	jobs    map[string]*jobEntry
	running bool
	stopCh  chan struct{}
}

// ServiceOption customizes a Service at construction time.
type ServiceOption func(*Service)

// WithStore attaches durable storage for persisted schedules and the
// run journal.
func WithStore(store JobStore) ServiceOption {
	return func(s *Service) { s.store = store }
}

// WithDefaultTimezone sets the zone used when a registration does not
// name its own.
func WithDefaultTimezone(tz string) ServiceOption {
	return func(s *Service) { s.defaultTZ = tz }
}

// WithTickInterval overrides the 1-second scan resolution.
func WithTickInterval(d time.Duration) ServiceOption {
	return func(s *Service) { s.tickInterval = d }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService creates a scheduler service. It starts stopped; call Start
// to begin firing schedules.
func NewService(log *logger.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		log:          log,
		defaultTZ:    "UTC",
		tickInterval: defaultTickInterval,
		now:          time.Now,
		jobs:         make(map[string]*jobEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule registers or replaces the named job. Validation happens here,
// synchronously; on any error nothing is registered. Replacing discards
// the previous definition's pending fire before the new one becomes
// visible, so the engine can never fire a stale schedule. The execution
// guard and its stats are retained across a replace.
func (s *Service) Schedule(ctx context.Context, name, cronExpr string, cb Callback, opts Options) error {
	if name == "" {
		return &ScheduleValidationError{Expr: cronExpr, Reason: "job name must not be empty"}
	}
	if cb == nil {
		return &ScheduleValidationError{Name: name, Expr: cronExpr, Reason: "callback must not be nil"}
	}

	tz := opts.Timezone
	if tz == "" {
		tz = s.defaultTZ
	}
	sched, err := ParseSchedule(cronExpr, tz)
	if err != nil {
		if verr, ok := err.(*ScheduleValidationError); ok {
			verr.Name = name
		}
		return err
	}

	def := JobDefinition{
		Name:     name,
		CronExpr: sched.Expr,
		Timezone: sched.Timezone,
		Callback: cb,
		Enabled:  !opts.Disabled,
		Persist:  opts.Persist,
	}

	s.mu.Lock()
	entry, replaced := s.jobs[name]
	if replaced {
		// Cancel the stale pending fire before swapping the definition.
		entry.next = time.Time{}
		entry.def = def
		entry.sched = sched
	} else {
		entry = &jobEntry{
			def:   def,
			sched: sched,
			guard: newExecutionGuard(name, s.log, s.journalRun),
		}
		s.jobs[name] = entry
	}
	running := s.running
	if running && def.Enabled {
		entry.next = sched.Next(s.now())
	}
	if opts.Immediate && !running {
		entry.immediate = true
	}
	s.mu.Unlock()

	s.log.Info().
		Str("action", "register_job").
		Str("job_name", name).
		Str("schedule", sched.Expr).
		Str("timezone", sched.Timezone).
		Bool("replaced", replaced).
		Bool("persist", def.Persist).
		Msg("Registered job")

	if def.Persist && s.store != nil {
		record := PersistedSchedule{
			Name:      name,
			CronExpr:  sched.Expr,
			Timezone:  sched.Timezone,
			Enabled:   def.Enabled,
			UpdatedAt: s.now(),
		}
		if err := s.store.SaveSchedule(ctx, record); err != nil {
			// The in-memory registration stays authoritative.
			s.log.Warn().
				Err(err).
				Str("action", "persist_failed").
				Str("job_name", name).
				Msg("Failed to persist schedule")
		}
	}

	if opts.Immediate && running {
		go func() {
			_, _ = s.dispatch(context.Background(), name, TriggerCron)
		}()
	}

	return nil
}

// Unschedule removes the named job and cancels its pending fire. Unknown
// names log at warn and return; shutdown paths call this unconditionally
// for jobs that may never have started.
func (s *Service) Unschedule(ctx context.Context, name string) {
	s.mu.Lock()
	entry, ok := s.jobs[name]
	if ok {
		delete(s.jobs, name)
	}
	s.mu.Unlock()

	if !ok {
		s.log.Warn().
			Str("action", "unschedule_unknown").
			Str("job_name", name).
			Msg("Unschedule requested for unknown job")
		return
	}

	s.log.Info().
		Str("action", "unschedule").
		Str("job_name", name).
		Msg("Unregistered job")

	if entry.def.Persist && s.store != nil {
		if err := s.store.DeleteSchedule(ctx, name); err != nil {
			s.log.Warn().
				Err(err).
				Str("action", "unpersist_failed").
				Str("job_name", name).
				Msg("Failed to delete persisted schedule")
		}
	}
}

// UnscheduleAll removes every registered job. Used by the shutdown
// sequence; in-flight callbacks are not interrupted.
func (s *Service) UnscheduleAll(ctx context.Context) {
	s.mu.Lock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	s.mu.Unlock()

	for _, name := range names {
		s.Unschedule(ctx, name)
	}
}

// Dispatch invokes the named job through its execution guard. Manual
// dispatches while the scheduler is stopped or draining are rejected
// with ErrSchedulerStopped; a failure in the callback is returned as a
// JobExecutionError. A nil record with nil error means the dispatch was
// dropped (overlap skip or suppressed cron fire).
func (s *Service) Dispatch(ctx context.Context, name string, trigger Trigger) (*JobRunRecord, error) {
	return s.dispatch(ctx, name, trigger)
}

func (s *Service) dispatch(ctx context.Context, name string, trigger Trigger) (*JobRunRecord, error) {
	s.mu.Lock()
	running := s.running
	entry, ok := s.jobs[name]
	s.mu.Unlock()

	if !running {
		if trigger == TriggerManual {
			return nil, ErrSchedulerStopped
		}
		s.log.Debug().
			Str("action", "dispatch_suppressed").
			Str("job_name", name).
			Msg("Scheduler stopped, cron dispatch dropped")
		return nil, nil
	}
	if !ok {
		if trigger == TriggerManual {
			return nil, ErrJobNotFound
		}
		s.log.Warn().
			Str("action", "dispatch_unknown").
			Str("job_name", name).
			Msg("Dispatch requested for unknown job")
		return nil, nil
	}

	return entry.guard.execute(ctx, entry.def.Callback, trigger)
}

// Start flips the global switch on and starts the trigger engine's tick
// loop. Idempotent.
func (s *Service) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stop := s.stopCh

	now := s.now()
	jobCount := len(s.jobs)
	var immediate []string
	for name, entry := range s.jobs {
		if entry.def.Enabled {
			entry.next = entry.sched.Next(now)
		}
		if entry.immediate {
			entry.immediate = false
			immediate = append(immediate, name)
		}
	}
	s.mu.Unlock()

	s.log.Info().
		Str("action", "scheduler_start").
		Int("job_count", jobCount).
		Msg("Scheduler started")

	// Registration-time immediate dispatches that were deferred until
	// the switch flipped on.
	for _, name := range immediate {
		name := name
		go func() {
			_, _ = s.dispatch(context.Background(), name, TriggerCron)
		}()
	}

	go s.loop(stop)
}

// Stop flips the global switch off. Future dispatches are no longer
// admitted; an already-admitted execution runs to natural completion.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.stopCh = nil
	for _, entry := range s.jobs {
		entry.next = time.Time{}
	}
	s.mu.Unlock()

	s.log.Info().
		Str("action", "scheduler_stop").
		Msg("Scheduler stopped, in-flight jobs will finish")
}

// Mode reports the global switch state.
func (s *Service) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ModeRunning
	}
	return ModeStopped
}

// loop is the trigger engine: one scan per tick, never blocking on a
// job's execution.
func (s *Service) loop(stop <-chan struct{}) {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick reports every job whose next-fire time has passed and recomputes
// its next fire. Dispatch is fire-and-forget from the engine's view.
func (s *Service) tick() {
	now := s.now()

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	var due []string
	for name, entry := range s.jobs {
		if !entry.def.Enabled || entry.next.IsZero() {
			continue
		}
		if !entry.next.After(now) {
			due = append(due, name)
			entry.next = entry.sched.Next(now)
		}
	}
	s.mu.Unlock()

	for _, name := range due {
		name := name
		go func() {
			_, _ = s.dispatch(context.Background(), name, TriggerCron)
		}()
	}
}

// ActiveJobs returns the names of jobs currently running, sorted order
// not guaranteed.
func (s *Service) ActiveJobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var active []string
	for name, entry := range s.jobs {
		if entry.guard.isRunning() {
			active = append(active, name)
		}
	}
	return active
}

// Status returns the read-only introspection view of every job.
func (s *Service) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobStatus, 0, len(s.jobs))
	for name, entry := range s.jobs {
		out = append(out, JobStatus{
			Name:     name,
			CronExpr: entry.def.CronExpr,
			Timezone: entry.def.Timezone,
			Enabled:  entry.def.Enabled,
			Running:  entry.guard.isRunning(),
			NextRun:  entry.next,
			Stats:    entry.guard.snapshot(),
		})
	}
	return out
}

// ReattachPersisted loads persisted schedules and re-attaches them to
// jobs already registered in code. A persisted row overrides the
// registered cron expression and timezone; rows without a registered
// callback are skipped with a warning, since callbacks cannot be
// restored from storage.
func (s *Service) ReattachPersisted(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	persisted, err := s.store.ListSchedules(ctx)
	if err != nil {
		return err
	}

	for _, row := range persisted {
		s.mu.Lock()
		entry, ok := s.jobs[row.Name]
		var cb Callback
		if ok {
			cb = entry.def.Callback
		}
		s.mu.Unlock()

		if !ok {
			s.log.Warn().
				Str("action", "reattach_orphan").
				Str("job_name", row.Name).
				Msg("Persisted schedule has no registered callback, skipping")
			continue
		}

		err := s.Schedule(ctx, row.Name, row.CronExpr, cb, Options{
			Timezone: row.Timezone,
			Disabled: !row.Enabled,
			Persist:  true,
		})
		if err != nil {
			s.log.Error().
				Err(err).
				Str("action", "reattach_failed").
				Str("job_name", row.Name).
				Msg("Failed to reattach persisted schedule")
		}
	}
	return nil
}

// journalRun records a finalized run in durable storage. Best-effort.
func (s *Service) journalRun(record JobRunRecord) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()
	if err := s.store.RecordRun(ctx, record); err != nil {
		s.log.Warn().
			Err(err).
			Str("action", "journal_failed").
			Str("job_name", record.JobName).
			Str("run_id", record.RunID).
			Msg("Failed to journal job run")
	}
}
