package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"
)

// JobStore persists schedules and the run journal. Only the cron
// expression, timezone, and metadata are ever stored; the callback cannot
// be serialized and must be re-supplied in code after a restart.
type JobStore interface {
	SaveSchedule(ctx context.Context, sched PersistedSchedule) error
	DeleteSchedule(ctx context.Context, name string) error
	ListSchedules(ctx context.Context) ([]PersistedSchedule, error)

	// RecordRun appends one finalized run to the journal. Best-effort;
	// the execution guard never blocks on journal failures.
	RecordRun(ctx context.Context, record JobRunRecord) error

	// PruneRuns removes journal entries started before the cutoff and
	// returns how many were removed.
	PruneRuns(ctx context.Context, before time.Time) (int64, error)
}

// MemoryStore is an in-process JobStore used in tests and in deployments
// that run without a database.
type MemoryStore struct {
	mu        sync.Mutex
	schedules map[string]PersistedSchedule
	runs      []JobRunRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		schedules: make(map[string]PersistedSchedule),
	}
}

func (m *MemoryStore) SaveSchedule(_ context.Context, sched PersistedSchedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[sched.Name] = sched
	return nil
}

func (m *MemoryStore) DeleteSchedule(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.schedules, name)
	return nil
}

func (m *MemoryStore) ListSchedules(_ context.Context) ([]PersistedSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PersistedSchedule, 0, len(m.schedules))
	for _, sched := range m.schedules {
		out = append(out, sched)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) RecordRun(_ context.Context, record JobRunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, record)
	return nil
}

func (m *MemoryStore) PruneRuns(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.runs[:0]
	var pruned int64
	for _, r := range m.runs {
		if r.StartedAt.Before(before) {
			pruned++
			continue
		}
		kept = append(kept, r)
	}
	m.runs = kept
	return pruned, nil
}

// Runs returns a copy of the journal, newest last.
func (m *MemoryStore) Runs() []JobRunRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]JobRunRecord(nil), m.runs...)
}
