package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blush-marketing/core/pkg/logger"
)

// testClock is a movable wall clock shared with the trigger engine.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(start time.Time) *testClock {
	return &testClock{now: start}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestService(t *testing.T, clock *testClock, opts ...ServiceOption) *Service {
	t.Helper()
	base := []ServiceOption{
		WithTickInterval(5 * time.Millisecond),
	}
	if clock != nil {
		base = append(base, WithClock(clock.Now))
	}
	svc := NewService(logger.New("scheduler-test"), append(base, opts...)...)
	t.Cleanup(svc.Stop)
	return svc
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func noop(ctx context.Context) error { return nil }

func TestScheduleValidation(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		job  string
		expr string
		cb   Callback
		opts Options
	}{
		{name: "four fields", job: "D", expr: "* * *", cb: noop},
		{name: "bad timezone", job: "E", expr: "* * * * *", cb: noop, opts: Options{Timezone: "Nope/Nowhere"}},
		{name: "empty name", job: "", expr: "* * * * *", cb: noop},
		{name: "nil callback", job: "F", expr: "* * * * *", cb: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.Schedule(ctx, tt.job, tt.expr, tt.cb, tt.opts)
			require.Error(t, err)
			var verr *ScheduleValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}

	// Nothing was partially registered.
	assert.Empty(t, svc.Status())
}

func TestUnscheduleUnknownDoesNotFail(t *testing.T) {
	svc := newTestService(t, nil)

	// Must not panic or error; shutdown paths call this unconditionally.
	svc.Unschedule(context.Background(), "never-registered")
}

func TestDispatchWhileStopped(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	var calls int32
	require.NoError(t, svc.Schedule(ctx, "A", "* * * * *", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, Options{}))

	// Cron dispatch while stopped: silent no-op.
	record, err := svc.Dispatch(ctx, "A", TriggerCron)
	require.NoError(t, err)
	assert.Nil(t, record)

	// Manual dispatch while stopped: blocked.
	_, err = svc.Dispatch(ctx, "A", TriggerManual)
	assert.ErrorIs(t, err, ErrSchedulerStopped)

	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestManualDispatch(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	var calls int32
	require.NoError(t, svc.Schedule(ctx, "A", "0 0 1 1 *", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, Options{}))
	svc.Start()

	record, err := svc.Dispatch(ctx, "A", TriggerManual)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, TriggerManual, record.TriggeredBy)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	_, err = svc.Dispatch(ctx, "missing", TriggerManual)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestCronFiresWhenDue(t *testing.T) {
	clock := newTestClock(time.Date(2025, 6, 2, 10, 0, 30, 0, time.UTC))
	svc := newTestService(t, clock)
	ctx := context.Background()

	var calls int32
	require.NoError(t, svc.Schedule(ctx, "A", "* * * * *", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, Options{}))
	svc.Start()

	// Not yet due.
	time.Sleep(25 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))

	clock.Advance(31 * time.Second) // past 10:01:00
	waitFor(t, time.Second, func() bool {
		return atomic.LoadInt32(&calls) == 1
	}, "job did not fire after its schedule came due")

	// Next fire recomputed; advancing another minute fires again.
	clock.Advance(time.Minute)
	waitFor(t, time.Second, func() bool {
		return atomic.LoadInt32(&calls) == 2
	}, "job did not fire a second time")
}

func TestOverlappingFireDropped(t *testing.T) {
	clock := newTestClock(time.Date(2025, 6, 2, 10, 0, 30, 0, time.UTC))
	svc := newTestService(t, clock)
	store := NewMemoryStore()
	svc.store = store
	ctx := context.Background()

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	require.NoError(t, svc.Schedule(ctx, "A", "* * * * *", func(ctx context.Context) error {
		started <- struct{}{}
		<-release
		return nil
	}, Options{}))
	svc.Start()

	// First fire admits and blocks, simulating a 90-second callback.
	clock.Advance(31 * time.Second)
	<-started

	// Two more fire times pass while A is still running.
	clock.Advance(time.Minute)
	time.Sleep(30 * time.Millisecond)
	clock.Advance(time.Minute)
	time.Sleep(30 * time.Millisecond)

	close(release)

	waitFor(t, time.Second, func() bool {
		for _, js := range svc.Status() {
			if js.Name == "A" {
				return js.Stats.TotalRuns == 1 && !js.Running
			}
		}
		return false
	}, "expected exactly one completed run")

	assert.Len(t, store.Runs(), 1, "exactly one run record for A")
	for _, js := range svc.Status() {
		if js.Name == "A" {
			assert.GreaterOrEqual(t, js.Stats.Skipped, int64(1), "overlapping fires must be dropped")
		}
	}
}

func TestReplaceDiscardsStaleSchedule(t *testing.T) {
	clock := newTestClock(time.Date(2025, 6, 2, 10, 0, 30, 0, time.UTC))
	svc := newTestService(t, clock)
	ctx := context.Background()

	var first, second int32
	require.NoError(t, svc.Schedule(ctx, "A", "* * * * *", func(ctx context.Context) error {
		atomic.AddInt32(&first, 1)
		return nil
	}, Options{}))
	svc.Start()

	// Replace with a schedule that fires only on Jan 1st.
	require.NoError(t, svc.Schedule(ctx, "A", "0 0 1 1 *", func(ctx context.Context) error {
		atomic.AddInt32(&second, 1)
		return nil
	}, Options{}))

	status := svc.Status()
	require.Len(t, status, 1, "replace must not duplicate the definition")
	assert.Equal(t, "0 0 1 1 *", status[0].CronExpr)

	// The old every-minute schedule would fire here; the replacement
	// must not.
	clock.Advance(2 * time.Minute)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, int32(0), atomic.LoadInt32(&first), "stale schedule fired after replace")
	assert.Equal(t, int32(0), atomic.LoadInt32(&second))
}

func TestReplaceKeepsGuardAcrossSwap(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, svc.Schedule(ctx, "A", "0 0 1 1 *", func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}, Options{}))
	svc.Start()

	go func() { _, _ = svc.Dispatch(ctx, "A", TriggerManual) }()
	<-started

	// Replace while the old callback is mid-flight.
	require.NoError(t, svc.Schedule(ctx, "A", "0 0 1 1 *", noop, Options{}))

	// The new definition is still guarded by the in-flight run.
	record, err := svc.Dispatch(ctx, "A", TriggerManual)
	require.NoError(t, err)
	assert.Nil(t, record, "dispatch during in-flight run of replaced job must be dropped")

	close(release)
}

func TestUnscheduleBeforeFirstFire(t *testing.T) {
	clock := newTestClock(time.Date(2025, 6, 2, 10, 0, 30, 0, time.UTC))
	svc := newTestService(t, clock)
	store := NewMemoryStore()
	svc.store = store
	ctx := context.Background()

	var calls int32
	require.NoError(t, svc.Schedule(ctx, "B", "* * * * *", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, Options{}))
	svc.Start()
	svc.Unschedule(ctx, "B")

	clock.Advance(3 * time.Minute)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
	assert.Empty(t, store.Runs(), "zero run records for an unscheduled job")
}

func TestImmediateDispatchOnStart(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	var calls int32
	require.NoError(t, svc.Schedule(ctx, "A", "0 0 1 1 *", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, Options{Immediate: true}))

	// Nothing fires until the switch flips on.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))

	svc.Start()
	waitFor(t, time.Second, func() bool {
		return atomic.LoadInt32(&calls) == 1
	}, "immediate registration did not dispatch on start")
}

func TestStopPreventsFutureFires(t *testing.T) {
	clock := newTestClock(time.Date(2025, 6, 2, 10, 0, 30, 0, time.UTC))
	svc := newTestService(t, clock)
	ctx := context.Background()

	var calls int32
	require.NoError(t, svc.Schedule(ctx, "A", "* * * * *", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, Options{}))
	svc.Start()
	assert.Equal(t, ModeRunning, svc.Mode())

	svc.Stop()
	assert.Equal(t, ModeStopped, svc.Mode())

	clock.Advance(5 * time.Minute)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestPersistAndReattach(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	svc := newTestService(t, nil, WithStore(store))
	require.NoError(t, svc.Schedule(ctx, "A", "0 6 * * *", noop, Options{Persist: true}))

	persisted, err := store.ListSchedules(ctx)
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.Equal(t, "0 6 * * *", persisted[0].CronExpr)

	// Simulate the dashboard editing the persisted schedule, then a
	// process restart where code registers the compiled-in default.
	require.NoError(t, store.SaveSchedule(ctx, PersistedSchedule{
		Name: "A", CronExpr: "30 7 * * *", Timezone: "UTC", Enabled: true, UpdatedAt: time.Now(),
	}))

	restarted := newTestService(t, nil, WithStore(store))
	require.NoError(t, restarted.Schedule(ctx, "A", "0 6 * * *", noop, Options{Persist: true}))
	require.NoError(t, restarted.ReattachPersisted(ctx))

	status := restarted.Status()
	require.Len(t, status, 1)
	assert.Equal(t, "30 7 * * *", status[0].CronExpr, "persisted schedule must override the compiled-in default")

	// Unschedule removes the persisted row too.
	restarted.Unschedule(ctx, "A")
	persisted, err = store.ListSchedules(ctx)
	require.NoError(t, err)
	assert.Empty(t, persisted)
}

func TestActiveJobs(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, svc.Schedule(ctx, "C", "0 0 1 1 *", func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}, Options{}))
	svc.Start()

	assert.Empty(t, svc.ActiveJobs())

	go func() { _, _ = svc.Dispatch(ctx, "C", TriggerManual) }()
	<-started

	assert.Equal(t, []string{"C"}, svc.ActiveJobs())

	close(release)
	waitFor(t, time.Second, func() bool {
		return len(svc.ActiveJobs()) == 0
	}, "job did not leave the active set after completion")
}

func TestStatusFields(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	require.NoError(t, svc.Schedule(ctx, "A", "15 3 * * *", noop, Options{Timezone: "Europe/Istanbul"}))
	svc.Start()

	status := svc.Status()
	require.Len(t, status, 1)
	js := status[0]
	assert.Equal(t, "A", js.Name)
	assert.Equal(t, "15 3 * * *", js.CronExpr)
	assert.Equal(t, "Europe/Istanbul", js.Timezone)
	assert.True(t, js.Enabled)
	assert.False(t, js.Running)
	assert.False(t, js.NextRun.IsZero(), "a started scheduler exposes the pending next-fire time")
}
