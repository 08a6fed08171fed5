package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/blush-marketing/core/pkg/logger"
)

// DBTX is the subset of pgx a PostgresStore needs. *pgxpool.Pool and
// pgx.Tx both satisfy it.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements JobStore on top of PostgreSQL.
//
// Expected schema:
//
//	CREATE TABLE job_schedules (
//	    name       text PRIMARY KEY,
//	    cron_expr  text NOT NULL,
//	    timezone   text NOT NULL,
//	    enabled    boolean NOT NULL DEFAULT true,
//	    updated_at timestamptz NOT NULL
//	);
//
//	CREATE TABLE job_runs (
//	    run_id        uuid PRIMARY KEY,
//	    job_name      text NOT NULL,
//	    started_at    timestamptz NOT NULL,
//	    finished_at   timestamptz,
//	    duration_ms   bigint NOT NULL,
//	    outcome       text NOT NULL,
//	    error_message text,
//	    triggered_by  text NOT NULL
//	);
type PostgresStore struct {
	db     DBTX
	logger *logger.Logger
}

// NewPostgresStore creates a PostgreSQL-backed job store.
func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: logger.New("job-store"),
	}
}

func (p *PostgresStore) SaveSchedule(ctx context.Context, sched PersistedSchedule) error {
	query := `
		INSERT INTO job_schedules (name, cron_expr, timezone, enabled, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO UPDATE SET
			cron_expr = EXCLUDED.cron_expr,
			timezone = EXCLUDED.timezone,
			enabled = EXCLUDED.enabled,
			updated_at = EXCLUDED.updated_at`

	start := time.Now()
	tag, err := p.db.Exec(ctx, query, sched.Name, sched.CronExpr, sched.Timezone, sched.Enabled, sched.UpdatedAt)
	p.logger.LogDatabaseOperation("upsert", "job_schedules", int(tag.RowsAffected()), time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to save schedule %s: %w", sched.Name, err)
	}
	return nil
}

func (p *PostgresStore) DeleteSchedule(ctx context.Context, name string) error {
	start := time.Now()
	tag, err := p.db.Exec(ctx, `DELETE FROM job_schedules WHERE name = $1`, name)
	p.logger.LogDatabaseOperation("delete", "job_schedules", int(tag.RowsAffected()), time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to delete schedule %s: %w", name, err)
	}
	return nil
}

func (p *PostgresStore) ListSchedules(ctx context.Context) ([]PersistedSchedule, error) {
	rows, err := p.db.Query(ctx, `
		SELECT name, cron_expr, timezone, enabled, updated_at
		FROM job_schedules
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	defer rows.Close()

	var out []PersistedSchedule
	for rows.Next() {
		var sched PersistedSchedule
		if err := rows.Scan(&sched.Name, &sched.CronExpr, &sched.Timezone, &sched.Enabled, &sched.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan schedule row: %w", err)
		}
		out = append(out, sched)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read schedule rows: %w", err)
	}
	return out, nil
}

func (p *PostgresStore) RecordRun(ctx context.Context, record JobRunRecord) error {
	query := `
		INSERT INTO job_runs (run_id, job_name, started_at, finished_at, duration_ms, outcome, error_message, triggered_by)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)`

	start := time.Now()
	tag, err := p.db.Exec(ctx, query,
		record.RunID,
		record.JobName,
		record.StartedAt,
		record.FinishedAt,
		record.Duration.Milliseconds(),
		string(record.Outcome),
		record.ErrorMessage,
		string(record.TriggeredBy),
	)
	p.logger.LogDatabaseOperation("insert", "job_runs", int(tag.RowsAffected()), time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", record.RunID, err)
	}
	return nil
}

func (p *PostgresStore) PruneRuns(ctx context.Context, before time.Time) (int64, error) {
	start := time.Now()
	tag, err := p.db.Exec(ctx, `DELETE FROM job_runs WHERE started_at < $1`, before)
	p.logger.LogDatabaseOperation("delete", "job_runs", int(tag.RowsAffected()), time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	return tag.RowsAffected(), nil
}
