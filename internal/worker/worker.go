// Package worker executes claimed sync jobs: it maps job types to
// runner functions, records the outcome, and schedules the next
// recurring run.
package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/craftsight/syncengine/internal/notify"
	"github.com/craftsight/syncengine/internal/queue"
	"github.com/craftsight/syncengine/internal/scheduler"
	"github.com/craftsight/syncengine/internal/store"
)

// Runner executes one sync stream for a tenant and returns the number
// of records processed.
type Runner func(ctx context.Context, tenantID string) (int, error)

// JobQueue is the queue surface the runtime needs.
type JobQueue interface {
	MarkRunning(ctx context.Context, jobID string) error
	MarkCompleted(ctx context.Context, jobID string, records int) error
	MarkFailed(ctx context.Context, jobID, errMsg string) error
	EnqueueUnique(ctx context.Context, tenantID, jobType string, priority int, scheduledAt time.Time) (bool, error)
}

// RuntimeStore resolves tenant state around a run.
type RuntimeStore interface {
	GetProfile(ctx context.Context, tenantID string) (*store.Profile, error)
	TouchLastSync(ctx context.Context, tenantID, platform string) error
}

// Alerter sends the failure email. *notify.Mailer satisfies it.
type Alerter interface {
	SyncFailure(ctx context.Context, toEmail, jobType, errMsg string)
}

// Runtime runs jobs handed over by the scheduler.
type Runtime struct {
	queue    JobQueue
	store    RuntimeStore
	registry map[string]Runner
	alert    Alerter

	now func() time.Time
}

// New wires a Runtime. alert may be nil to disable failure emails.
func New(q JobQueue, st RuntimeStore, registry map[string]Runner, alert Alerter) *Runtime {
	return &Runtime{queue: q, store: st, registry: registry, alert: alert, now: time.Now}
}

// Execute runs one claimed job end to end. The next recurring run is
// scheduled regardless of the outcome.
func (r *Runtime) Execute(ctx context.Context, job queue.Job) {
	if err := r.queue.MarkRunning(ctx, job.ID); err != nil {
		log.Error().Err(err).Str("job", job.ID).Msg("failed to mark job running")
	}

	records, runErr := r.run(ctx, job)

	if runErr != nil {
		log.Error().Err(runErr).Str("job", job.ID).Str("tenant", job.TenantID).
			Str("job_type", job.JobType).Msg("sync job failed")
		if err := r.queue.MarkFailed(ctx, job.ID, runErr.Error()); err != nil {
			log.Error().Err(err).Str("job", job.ID).Msg("failed to record job failure")
		}
		r.alertFailure(ctx, job, runErr)
	} else {
		if err := r.queue.MarkCompleted(ctx, job.ID, records); err != nil {
			log.Error().Err(err).Str("job", job.ID).Msg("failed to record job completion")
		}
		if err := r.store.TouchLastSync(ctx, job.TenantID, scheduler.Platform(job.JobType)); err != nil {
			log.Warn().Err(err).Str("tenant", job.TenantID).Msg("failed to update last_sync_at")
		}
		log.Info().Str("job", job.ID).Str("tenant", job.TenantID).
			Str("job_type", job.JobType).Int("records", records).Msg("sync job completed")
	}

	r.scheduleNext(ctx, job.TenantID, job.JobType)
}

func (r *Runtime) run(ctx context.Context, job queue.Job) (int, error) {
	runner, ok := r.registry[job.JobType]
	if !ok {
		return 0, &UnknownJobTypeError{JobType: job.JobType}
	}
	return runner(ctx, job.TenantID)
}

// UnknownJobTypeError marks a job type with no registered runner.
type UnknownJobTypeError struct {
	JobType string
}

func (e *UnknownJobTypeError) Error() string {
	return "unknown job type: " + e.JobType
}

// alertFailure emails the tenant, best-effort.
func (r *Runtime) alertFailure(ctx context.Context, job queue.Job, runErr error) {
	if r.alert == nil {
		return
	}
	profile, err := r.store.GetProfile(ctx, job.TenantID)
	if err != nil {
		log.Warn().Err(err).Str("tenant", job.TenantID).Msg("profile lookup for alert failed")
		return
	}
	if profile == nil || profile.Email == nil || *profile.Email == "" {
		return
	}
	r.alert.SyncFailure(ctx, *profile.Email, job.JobType, runErr.Error())
}

// scheduleNext enqueues the next recurring run per the tenant's plan
// cadence. The queue's uniqueness guard keeps at most one queued row
// per (tenant, job_type).
func (r *Runtime) scheduleNext(ctx context.Context, tenantID, jobType string) {
	plan := "free"
	if profile, err := r.store.GetProfile(ctx, tenantID); err != nil {
		log.Warn().Err(err).Str("tenant", tenantID).Msg("plan lookup for scheduling failed, assuming free")
	} else if profile != nil {
		plan = profile.Plan
	}

	nextRun := r.now().UTC().Add(scheduler.NextInterval(jobType, plan))
	inserted, err := r.queue.EnqueueUnique(ctx, tenantID, jobType, scheduler.RecurringPriority(plan), nextRun)
	if err != nil {
		log.Error().Err(err).Str("tenant", tenantID).Str("job_type", jobType).
			Msg("failed to schedule next run")
		return
	}
	if !inserted {
		log.Debug().Str("tenant", tenantID).Str("job_type", jobType).
			Msg("queued run already exists, not duplicating")
	}
}

var _ JobQueue = (*queue.Queue)(nil)

var _ RuntimeStore = (*store.Store)(nil)

var _ Alerter = (*notify.Mailer)(nil)
