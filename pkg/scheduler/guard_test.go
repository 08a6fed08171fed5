package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blush-marketing/core/pkg/logger"
)

func newTestGuard(t *testing.T, onFinish func(JobRunRecord)) *executionGuard {
	t.Helper()
	return newExecutionGuard("test-job", logger.New("test"), onFinish)
}

func TestGuardSuccessfulRun(t *testing.T) {
	var finished []JobRunRecord
	g := newTestGuard(t, func(r JobRunRecord) { finished = append(finished, r) })

	record, err := g.execute(context.Background(), func(ctx context.Context) error {
		return nil
	}, TriggerCron)

	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, OutcomeSuccess, record.Outcome)
	assert.Equal(t, TriggerCron, record.TriggeredBy)
	assert.NotEmpty(t, record.RunID)
	require.NotNil(t, record.FinishedAt)
	assert.False(t, record.FinishedAt.Before(record.StartedAt), "finishedAt must not precede startedAt")

	stats := g.snapshot()
	assert.Equal(t, int64(1), stats.TotalRuns)
	assert.Equal(t, int64(0), stats.TotalErrors)
	require.Len(t, finished, 1)
	assert.Equal(t, record.RunID, finished[0].RunID)
}

func TestGuardCronErrorSwallowed(t *testing.T) {
	g := newTestGuard(t, nil)

	record, err := g.execute(context.Background(), func(ctx context.Context) error {
		return errors.New("upstream exploded")
	}, TriggerCron)

	require.NoError(t, err, "cron-triggered failures must be contained")
	require.NotNil(t, record)
	assert.Equal(t, OutcomeError, record.Outcome)
	assert.Equal(t, "upstream exploded", record.ErrorMessage)

	stats := g.snapshot()
	assert.Equal(t, int64(1), stats.TotalRuns)
	assert.Equal(t, int64(1), stats.TotalErrors)
	require.Len(t, stats.RecentErrors, 1)
	assert.Equal(t, "upstream exploded", stats.RecentErrors[0].Message)
}

func TestGuardManualErrorPropagates(t *testing.T) {
	g := newTestGuard(t, nil)

	boom := errors.New("boom")
	_, err := g.execute(context.Background(), func(ctx context.Context) error {
		return boom
	}, TriggerManual)

	require.Error(t, err)
	var execErr *JobExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "test-job", execErr.JobName)
	assert.ErrorIs(t, err, boom)
}

func TestGuardPanicContained(t *testing.T) {
	g := newTestGuard(t, nil)

	record, err := g.execute(context.Background(), func(ctx context.Context) error {
		panic("nil map write somewhere deep")
	}, TriggerCron)

	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, OutcomeError, record.Outcome)
	assert.Contains(t, record.ErrorMessage, "panic")
	assert.Equal(t, int64(1), g.snapshot().TotalErrors)
}

func TestGuardOverlapDropped(t *testing.T) {
	g := newTestGuard(t, nil)

	started := make(chan struct{})
	release := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = g.execute(context.Background(), func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		}, TriggerCron)
	}()

	<-started

	// Second admission attempt while Running: dropped, no record.
	record, err := g.execute(context.Background(), func(ctx context.Context) error {
		t.Error("overlapping callback must not run")
		return nil
	}, TriggerManual)
	require.NoError(t, err, "a skip is never surfaced as an error")
	assert.Nil(t, record)

	close(release)
	wg.Wait()

	stats := g.snapshot()
	assert.Equal(t, int64(1), stats.TotalRuns, "exactly one run record")
	assert.Equal(t, int64(1), stats.Skipped)
}

func TestGuardRapidDispatchesSingleRun(t *testing.T) {
	g := newTestGuard(t, nil)

	release := make(chan struct{})
	const attempts = 10

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = g.execute(context.Background(), func(ctx context.Context) error {
				<-release
				return nil
			}, TriggerCron)
		}()
	}

	// Let the raced admissions settle, then release the winner.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	stats := g.snapshot()
	assert.Equal(t, int64(1), stats.TotalRuns)
	assert.Equal(t, int64(attempts-1), stats.Skipped)
}

func TestGuardErrorRingBufferBounded(t *testing.T) {
	g := newTestGuard(t, nil)

	for i := 0; i < maxRecentErrors+5; i++ {
		i := i
		_, _ = g.execute(context.Background(), func(ctx context.Context) error {
			return fmt.Errorf("failure %d", i)
		}, TriggerCron)
	}

	stats := g.snapshot()
	assert.Equal(t, int64(maxRecentErrors+5), stats.TotalErrors)
	require.Len(t, stats.RecentErrors, maxRecentErrors)
	// Oldest entries evicted, newest kept.
	assert.Equal(t, fmt.Sprintf("failure %d", maxRecentErrors+4), stats.RecentErrors[maxRecentErrors-1].Message)
	assert.Equal(t, "failure 5", stats.RecentErrors[0].Message)
}

func TestGuardReturnsToIdleAfterFailure(t *testing.T) {
	g := newTestGuard(t, nil)

	_, _ = g.execute(context.Background(), func(ctx context.Context) error {
		return errors.New("first run fails")
	}, TriggerCron)
	assert.False(t, g.isRunning())

	// Still schedulable: the next run is admitted normally.
	record, err := g.execute(context.Background(), func(ctx context.Context) error {
		return nil
	}, TriggerCron)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, OutcomeSuccess, record.Outcome)
	assert.Equal(t, int64(2), g.snapshot().TotalRuns)
}
