// Package scheduler runs the per-minute dispatch tick and the nightly
// and weekly batch fan-outs.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/craftsight/syncengine/internal/budget"
	"github.com/craftsight/syncengine/internal/queue"
	"github.com/craftsight/syncengine/internal/store"
)

const (
	// StaleMinutes is how long a running job may go without finishing
	// before the reaper fails it.
	StaleMinutes = 15

	// BatchSize is the claim limit per tick.
	BatchSize = 10

	// DeferDelay is how far a rate-gated job is pushed back.
	DeferDelay = 5 * time.Minute
)

// JobQueue is the queue surface the tick needs.
type JobQueue interface {
	ReapStale(ctx context.Context, staleMinutes int) (int, error)
	ClaimBatch(ctx context.Context, size int) ([]queue.Job, error)
	MarkFailed(ctx context.Context, jobID, errMsg string) error
	Defer(ctx context.Context, jobID string, d time.Duration) error
}

// ProfileStore resolves tenant plan state.
type ProfileStore interface {
	GetProfile(ctx context.Context, tenantID string) (*store.Profile, error)
}

// Gatekeeper is the budgeter surface used by the rate gate.
type Gatekeeper interface {
	CanRequest(tenantID, platform string) bool
	Remaining(tenantID, platform string) int
	Snapshot(platform string) budget.Snapshot
}

// Dispatcher launches a claimed job without blocking the tick.
type Dispatcher func(job queue.Job)

// Scheduler gates and dispatches claimed jobs once per tick.
type Scheduler struct {
	queue    JobQueue
	profiles ProfileStore
	gate     Gatekeeper
	dispatch Dispatcher
}

// New wires a Scheduler.
func New(q JobQueue, profiles ProfileStore, gate Gatekeeper, dispatch Dispatcher) *Scheduler {
	return &Scheduler{queue: q, profiles: profiles, gate: gate, dispatch: dispatch}
}

// Tick runs one scheduling pass: reap stale runners, claim ready jobs,
// apply the plan and rate gates, and hand survivors to the dispatcher.
func (s *Scheduler) Tick(ctx context.Context) error {
	reaped, err := s.queue.ReapStale(ctx, StaleMinutes)
	if err != nil {
		log.Error().Err(err).Msg("stale job reap failed")
	} else if reaped > 0 {
		log.Warn().Int("reaped", reaped).Msg("failed stale running jobs")
	}

	jobs, err := s.queue.ClaimBatch(ctx, BatchSize)
	if err != nil {
		return err
	}

	for _, job := range jobs {
		platform := Platform(job.JobType)

		ok, err := s.planActive(ctx, job.TenantID)
		if err != nil {
			log.Error().Err(err).Str("tenant", job.TenantID).Str("job", job.ID).
				Msg("plan lookup failed, deferring job")
			s.deferJob(ctx, job.ID)
			continue
		}
		if !ok {
			if err := s.queue.MarkFailed(ctx, job.ID, "User plan inactive or past_due"); err != nil {
				log.Error().Err(err).Str("job", job.ID).Msg("failed to mark skipped job")
			}
			continue
		}

		if !s.gate.CanRequest(job.TenantID, platform) {
			snap := s.gate.Snapshot(platform)
			log.Warn().
				Str("tenant", job.TenantID).
				Str("platform", platform).
				Int("remaining", s.gate.Remaining(job.TenantID, platform)).
				Int("global_used", snap.Used).
				Int("global_budget", snap.Budget).
				Str("job", job.ID).
				Msg("rate limit hit, re-queuing job in 5m")
			s.deferJob(ctx, job.ID)
			continue
		}

		s.dispatch(job)
	}
	return nil
}

func (s *Scheduler) planActive(ctx context.Context, tenantID string) (bool, error) {
	profile, err := s.profiles.GetProfile(ctx, tenantID)
	if err != nil {
		return false, err
	}
	return profile != nil && profile.PlanStatus == "active", nil
}

func (s *Scheduler) deferJob(ctx context.Context, jobID string) {
	if err := s.queue.Defer(ctx, jobID, DeferDelay); err != nil {
		log.Error().Err(err).Str("job", jobID).Msg("failed to defer job")
	}
}

var _ JobQueue = (*queue.Queue)(nil)

var _ ProfileStore = (*store.Store)(nil)

var _ Gatekeeper = (*budget.Budgeter)(nil)
