package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"syscall"
	"time"

	"github.com/blush-marketing/core/pkg/logger"
)

// DefaultTimeout is the hard deadline for the whole shutdown sequence.
const DefaultTimeout = 60 * time.Second

// Mode is the coordinator's lifecycle state.
type Mode string

const (
	ModeRunning  Mode = "running"
	ModeDraining Mode = "draining"
	ModeStopped  Mode = "stopped"
)

// ShutdownTimeoutError reports that the hard deadline elapsed before the
// sequence completed, identifying the step that was in progress.
type ShutdownTimeoutError struct {
	Step    string
	Timeout time.Duration
}

func (e *ShutdownTimeoutError) Error() string {
	return fmt.Sprintf("shutdown timed out after %s during step %q", e.Timeout, e.Step)
}

// Registry is the scheduler surface the coordinator drives: it stops
// admission, observes in-flight work, and removes every job during the
// shutdown sequence.
type Registry interface {
	Stop()
	ActiveJobs() []string
	UnscheduleAll(ctx context.Context)
}

// Step is one named stage of the shutdown sequence. Failures are logged
// and never abort later steps.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// RestartCheck reports whether it is safe to proceed immediately or
// whether in-flight jobs should be allowed to finish first.
type RestartCheck struct {
	CanRestart bool     `json:"can_restart"`
	Reason     string   `json:"reason"`
	ActiveJobs int      `json:"active_jobs"`
	JobList    []string `json:"job_list"`
}

// Coordinator observes active-job state across the scheduler, enters a
// drain mode that blocks new dispatches, and drives a fixed shutdown
// sequence with a hard timeout. Termination signals and recovered
// panics route into the same single exit path.
type Coordinator struct {
	log      *logger.Logger
	registry Registry
	timeout  time.Duration
	grace    time.Duration

	// exit is swapped out in tests.
	exit func(code int)

	mu       sync.Mutex
	mode     Mode
	drainAt  time.Time
	steps    []Step
	cleanups []func()
	once     sync.Once
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithTimeout overrides the hard shutdown deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.timeout = d }
}

// WithGracePeriod sets how long in-flight request handlers get before
// streaming and storage are torn down.
func WithGracePeriod(d time.Duration) Option {
	return func(c *Coordinator) { c.grace = d }
}

// WithExitFunc overrides process exit. Tests use this to observe the
// exit code without killing the test binary.
func WithExitFunc(exit func(code int)) Option {
	return func(c *Coordinator) { c.exit = exit }
}

// New creates a coordinator in Running mode.
func New(log *logger.Logger, registry Registry, opts ...Option) *Coordinator {
	c := &Coordinator{
		log:      log,
		registry: registry,
		timeout:  DefaultTimeout,
		grace:    5 * time.Second,
		exit:     os.Exit,
		mode:     ModeRunning,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnShutdown appends a named step to the fixed sequence. Steps run in
// registration order, after drain and the grace period, before job
// unscheduling and cleanup callbacks. Typical steps: stop the HTTP
// listener, stop streaming services, close the database pool.
func (c *Coordinator) OnShutdown(name string, run func(ctx context.Context) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps = append(c.steps, Step{Name: name, Run: run})
}

// OnCleanup appends a best-effort cleanup callback, run last.
func (c *Coordinator) OnCleanup(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanups = append(c.cleanups, fn)
}

// Mode reports the current lifecycle state.
func (c *Coordinator) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// EnterDrainMode blocks all new dispatches while in-flight work is
// allowed to finish. Idempotent; has no effect once stopped.
func (c *Coordinator) EnterDrainMode() {
	c.mu.Lock()
	if c.mode != ModeRunning {
		c.mu.Unlock()
		return
	}
	c.mode = ModeDraining
	c.drainAt = time.Now()
	c.mu.Unlock()

	c.registry.Stop()
	c.log.Info().
		Str("action", "drain_mode").
		Msg("Entered drain mode, no new dispatches admitted")
}

// CanRestart reports whether it is safe to restart right now: true only
// when no job is mid-execution.
func (c *Coordinator) CanRestart() RestartCheck {
	active := c.registry.ActiveJobs()
	if len(active) == 0 {
		return RestartCheck{
			CanRestart: true,
			Reason:     "no jobs running",
			JobList:    []string{},
		}
	}
	return RestartCheck{
		CanRestart: false,
		Reason:     fmt.Sprintf("%d job(s) still running", len(active)),
		ActiveJobs: len(active),
		JobList:    active,
	}
}

// Listen installs the signal and panic routes into the single shutdown
// sequence. It blocks until a termination signal arrives, then runs the
// sequence and exits the process.
func (c *Coordinator) Listen() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	c.log.Info().
		Str("action", "signal_received").
		Str("signal", sig.String()).
		Msg("Termination signal received")

	c.Shutdown()
}

// HandlePanic routes a recovered top-level panic into the shutdown
// sequence, so there is exactly one exit path. Intended as
// `defer coordinator.HandlePanic()` at goroutine roots.
func (c *Coordinator) HandlePanic() {
	if r := recover(); r != nil {
		c.log.Error().
			Str("action", "uncaught_panic").
			Interface("panic", r).
			Str("stack", string(debug.Stack())).
			Msg("Uncaught panic, shutting down")
		c.Shutdown()
	}
}

// Shutdown drives the fixed sequence exactly once, racing it against the
// hard deadline. Natural completion exits 0; the deadline elapsing first
// exits non-zero, so the process is never unkillable.
func (c *Coordinator) Shutdown() {
	c.once.Do(c.run)
}

func (c *Coordinator) run() {
	currentStep := make(chan string, 1)
	done := make(chan struct{})

	go func() {
		c.sequence(currentStep)
		close(done)
	}()

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	var lastStep string
	for {
		select {
		case step := <-currentStep:
			lastStep = step
		case <-done:
			c.setStopped()
			c.log.Info().
				Str("action", "shutdown_complete").
				Msg("Shutdown sequence complete")
			c.exit(0)
			return
		case <-timer.C:
			c.setStopped()
			err := &ShutdownTimeoutError{Step: lastStep, Timeout: c.timeout}
			c.log.Error().
				Err(err).
				Str("action", "shutdown_timeout").
				Str("incomplete_step", lastStep).
				Msg("Shutdown deadline elapsed, force exiting")
			c.exit(1)
			return
		}
	}
}

func (c *Coordinator) setStopped() {
	c.mu.Lock()
	c.mode = ModeStopped
	c.mu.Unlock()
}

// sequence runs the fixed shutdown order. Each step is logged
// independently and a failure in one never aborts the rest.
func (c *Coordinator) sequence(currentStep chan<- string) {
	report := func(name string) {
		select {
		case currentStep <- name:
		default:
		}
	}

	ctx := context.Background()

	report("drain")
	c.EnterDrainMode()

	report("grace_period")
	c.log.Info().
		Str("action", "shutdown_grace").
		Dur("grace_period", c.grace).
		Msg("Waiting for in-flight handlers")
	time.Sleep(c.grace)

	c.mu.Lock()
	steps := append([]Step(nil), c.steps...)
	cleanups := append(([]func())(nil), c.cleanups...)
	c.mu.Unlock()

	for _, step := range steps {
		report(step.Name)
		c.log.Info().
			Str("action", "shutdown_step").
			Str("step", step.Name).
			Msg("Running shutdown step")
		if err := step.Run(ctx); err != nil {
			c.log.Error().
				Err(err).
				Str("action", "shutdown_step_failed").
				Str("step", step.Name).
				Msg("Shutdown step failed, continuing")
		}
	}

	// In-flight callbacks are never killed; wait for them to finish
	// naturally. The hard deadline covers a hung job.
	report("wait_active_jobs")
	for {
		active := c.registry.ActiveJobs()
		if len(active) == 0 {
			break
		}
		c.log.Info().
			Str("action", "shutdown_wait_jobs").
			Strs("active_jobs", active).
			Msg("Waiting for in-flight jobs to finish")
		time.Sleep(250 * time.Millisecond)
	}

	report("unschedule_jobs")
	c.log.Info().
		Str("action", "shutdown_jobs").
		Msg("Unscheduling all jobs")
	c.registry.UnscheduleAll(ctx)

	report("cleanup")
	for _, fn := range cleanups {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.log.Error().
						Str("action", "cleanup_panic").
						Interface("panic", r).
						Msg("Cleanup callback panicked, continuing")
				}
			}()
			fn()
		}()
	}
}
