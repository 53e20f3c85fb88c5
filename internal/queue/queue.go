// Package queue owns the durable sync_jobs table: enqueue, atomic
// claim, and state transitions. Jobs move queued -> running ->
// completed|failed; a failed or completed run is re-queued by the
// worker runtime, never mutated back.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/craftsight/syncengine/internal/syncerr"
)

// Job statuses.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Priorities used by the onboarding schedulers. Recurring runs carry 0,
// or 1 for pro-plan tenants.
const (
	PriorityInitialSync = 10
	PriorityBackfill    = 5
)

const errorMessageLimit = 500

// Job is one sync_jobs row.
type Job struct {
	ID          string
	TenantID    string
	JobType     string
	Status      string
	Priority    int
	ScheduledAt time.Time
	Metadata    map[string]any
}

// Queue wraps the sync_jobs table.
type Queue struct {
	db *pgxpool.Pool
}

// New creates a Queue over the pool.
func New(db *pgxpool.Pool) *Queue {
	return &Queue{db: db}
}

// Enqueue inserts a queued job. scheduledAt zero means ready now.
func (q *Queue) Enqueue(ctx context.Context, tenantID, jobType string, priority int, scheduledAt time.Time, metadata map[string]any) error {
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode job metadata: %w", err)
	}
	if scheduledAt.IsZero() {
		scheduledAt = time.Now().UTC()
	}

	_, err = q.db.Exec(ctx, `
		INSERT INTO sync_jobs (user_id, job_type, status, priority, scheduled_at, metadata)
		VALUES ($1, $2, 'queued', $3, $4, $5)
	`, tenantID, jobType, priority, scheduledAt, metaJSON)
	if err != nil {
		return fmt.Errorf("enqueue %s for %s: %w", jobType, tenantID, err)
	}
	return nil
}

// EnqueueUnique inserts a queued job unless a queued row for the same
// (tenant, job_type) already exists. The guard runs inside the insert
// statement so concurrent callers cannot both pass it. Returns whether
// a row was inserted.
func (q *Queue) EnqueueUnique(ctx context.Context, tenantID, jobType string, priority int, scheduledAt time.Time) (bool, error) {
	if scheduledAt.IsZero() {
		scheduledAt = time.Now().UTC()
	}

	tag, err := q.db.Exec(ctx, `
		INSERT INTO sync_jobs (user_id, job_type, status, priority, scheduled_at, metadata)
		SELECT $1, $2, 'queued', $3, $4, '{}'::jsonb
		WHERE NOT EXISTS (
			SELECT 1 FROM sync_jobs
			WHERE user_id = $1 AND job_type = $2 AND status = 'queued'
		)
	`, tenantID, jobType, priority, scheduledAt)
	if err != nil {
		return false, fmt.Errorf("enqueue unique %s for %s: %w", jobType, tenantID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// HasQueued reports whether a queued (tenant, job_type) row exists.
func (q *Queue) HasQueued(ctx context.Context, tenantID, jobType string) (bool, error) {
	var one int
	err := q.db.QueryRow(ctx, `
		SELECT 1 FROM sync_jobs
		WHERE user_id = $1 AND job_type = $2 AND status = 'queued'
		LIMIT 1
	`, tenantID, jobType).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// ClaimBatch atomically moves up to size ready queued jobs to running
// and returns them, ordered by priority then age. SKIP LOCKED keeps
// concurrent dispatchers from claiming the same rows.
func (q *Queue) ClaimBatch(ctx context.Context, size int) ([]Job, error) {
	rows, err := q.db.Query(ctx, `
		UPDATE sync_jobs SET
			status     = 'running',
			started_at = now()
		WHERE id IN (
			SELECT id FROM sync_jobs
			WHERE status = 'queued' AND scheduled_at <= now()
			ORDER BY priority DESC, scheduled_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, user_id, job_type, status, priority, scheduled_at, metadata
	`, size)
	if err != nil {
		return nil, fmt.Errorf("claim batch: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		var metaJSON []byte
		if err := rows.Scan(&j.ID, &j.TenantID, &j.JobType, &j.Status, &j.Priority, &j.ScheduledAt, &metaJSON); err != nil {
			return nil, fmt.Errorf("scan claimed job: %w", err)
		}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &j.Metadata); err != nil {
				return nil, fmt.Errorf("decode job metadata: %w", err)
			}
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// MarkRunning re-stamps started_at when execution actually begins.
func (q *Queue) MarkRunning(ctx context.Context, jobID string) error {
	_, err := q.db.Exec(ctx, `
		UPDATE sync_jobs SET status = 'running', started_at = now() WHERE id = $1
	`, jobID)
	return err
}

// MarkCompleted finishes a job with its record count.
func (q *Queue) MarkCompleted(ctx context.Context, jobID string, records int) error {
	_, err := q.db.Exec(ctx, `
		UPDATE sync_jobs SET
			status            = 'completed',
			completed_at      = now(),
			records_processed = $2
		WHERE id = $1
	`, jobID, records)
	return err
}

// MarkFailed finishes a job with a truncated error message.
func (q *Queue) MarkFailed(ctx context.Context, jobID, errMsg string) error {
	_, err := q.db.Exec(ctx, `
		UPDATE sync_jobs SET
			status        = 'failed',
			completed_at  = now(),
			error_message = $2
		WHERE id = $1
	`, jobID, Truncate(errMsg))
	return err
}

// Defer pushes a claimed job back to queued, delayed by d.
func (q *Queue) Defer(ctx context.Context, jobID string, d time.Duration) error {
	_, err := q.db.Exec(ctx, `
		UPDATE sync_jobs SET
			status       = 'queued',
			started_at   = NULL,
			scheduled_at = now() + $2
		WHERE id = $1
	`, jobID, d)
	return err
}

// ReapStale fails running jobs whose started_at is older than
// staleMinutes. Handles workers that crashed without reporting back.
// Returns the number of jobs reaped.
func (q *Queue) ReapStale(ctx context.Context, staleMinutes int) (int, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE sync_jobs SET
			status        = 'failed',
			completed_at  = now(),
			error_message = $2
		WHERE status = 'running' AND started_at < now() - make_interval(mins => $1)
	`, staleMinutes, fmt.Sprintf("Stale: still running after %d min", staleMinutes))
	if err != nil {
		return 0, fmt.Errorf("reap stale jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Truncate caps an error message for the error_message column on a
// rune boundary.
func Truncate(msg string) string {
	return syncerr.Clip(msg, errorMessageLimit)
}

// PlatformJobTypes maps a platform to its per-stream job types.
var PlatformJobTypes = map[string][]string{
	"etsy":     {"etsy_orders", "etsy_listings", "etsy_payments"},
	"shopify":  {"shopify_orders", "shopify_products", "shopify_customers"},
	"printify": {"printify_orders", "printify_products"},
}

// ScheduleInitialJobs enqueues the first sync run for each stream of
// the connected platforms, at initial-sync priority. Called from
// onboarding once connections are established.
func (q *Queue) ScheduleInitialJobs(ctx context.Context, tenantID string, platforms []string) error {
	for _, platform := range platforms {
		for _, jobType := range PlatformJobTypes[platform] {
			if _, err := q.EnqueueUnique(ctx, tenantID, jobType, PriorityInitialSync, time.Time{}); err != nil {
				return err
			}
		}
	}
	return nil
}

// ScheduleBackfill enqueues one full-history backfill job per
// connected platform.
func (q *Queue) ScheduleBackfill(ctx context.Context, tenantID string, platforms []string) error {
	for _, platform := range platforms {
		if err := q.Enqueue(ctx, tenantID, "backfill_"+platform, PriorityBackfill, time.Time{}, map[string]any{"is_backfill": true}); err != nil {
			return err
		}
	}
	return nil
}
