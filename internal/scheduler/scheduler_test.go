package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/craftsight/syncengine/internal/budget"
	"github.com/craftsight/syncengine/internal/queue"
	"github.com/craftsight/syncengine/internal/store"
)

type fakeQueue struct {
	jobs       []queue.Job
	reapedWith int
	failed     map[string]string
	deferred   map[string]time.Duration
	claimErr   error
}

func newFakeQueue(jobs ...queue.Job) *fakeQueue {
	return &fakeQueue{
		jobs:     jobs,
		failed:   map[string]string{},
		deferred: map[string]time.Duration{},
	}
}

func (f *fakeQueue) ReapStale(_ context.Context, staleMinutes int) (int, error) {
	f.reapedWith = staleMinutes
	return 0, nil
}

func (f *fakeQueue) ClaimBatch(context.Context, int) ([]queue.Job, error) {
	return f.jobs, f.claimErr
}

func (f *fakeQueue) MarkFailed(_ context.Context, jobID, errMsg string) error {
	f.failed[jobID] = errMsg
	return nil
}

func (f *fakeQueue) Defer(_ context.Context, jobID string, d time.Duration) error {
	f.deferred[jobID] = d
	return nil
}

type fakeProfiles struct {
	profiles map[string]*store.Profile
	err      error
}

func (f *fakeProfiles) GetProfile(_ context.Context, tenantID string) (*store.Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.profiles[tenantID], nil
}

type fakeGate struct {
	denied map[string]bool // tenant|platform
}

func (f *fakeGate) CanRequest(tenantID, platform string) bool {
	return !f.denied[tenantID+"|"+platform]
}

func (f *fakeGate) Remaining(string, string) int { return 0 }

func (f *fakeGate) Snapshot(string) budget.Snapshot { return budget.Snapshot{} }

func activeProfiles(tenants ...string) *fakeProfiles {
	m := map[string]*store.Profile{}
	for _, id := range tenants {
		m[id] = &store.Profile{TenantID: id, Plan: "growth", PlanStatus: "active"}
	}
	return &fakeProfiles{profiles: m}
}

func TestTickDispatchesEligibleJobs(t *testing.T) {
	q := newFakeQueue(
		queue.Job{ID: "j1", TenantID: "t1", JobType: "etsy_orders"},
		queue.Job{ID: "j2", TenantID: "t1", JobType: "shopify_orders"},
	)
	var dispatched []string
	s := New(q, activeProfiles("t1"), &fakeGate{}, func(job queue.Job) {
		dispatched = append(dispatched, job.ID)
	})

	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if q.reapedWith != StaleMinutes {
		t.Errorf("reaped with %d minutes, want %d", q.reapedWith, StaleMinutes)
	}
	if len(dispatched) != 2 {
		t.Errorf("dispatched %v, want j1 and j2", dispatched)
	}
}

func TestTickFailsJobsForInactivePlans(t *testing.T) {
	q := newFakeQueue(queue.Job{ID: "j1", TenantID: "t-lapsed", JobType: "etsy_orders"})
	profiles := &fakeProfiles{profiles: map[string]*store.Profile{
		"t-lapsed": {TenantID: "t-lapsed", Plan: "pro", PlanStatus: "past_due"},
	}}

	dispatched := 0
	s := New(q, profiles, &fakeGate{}, func(queue.Job) { dispatched++ })

	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if dispatched != 0 {
		t.Error("job for inactive plan was dispatched")
	}
	if msg := q.failed["j1"]; msg != "User plan inactive or past_due" {
		t.Errorf("failure message = %q", msg)
	}
}

func TestTickFailsJobsWithNoProfile(t *testing.T) {
	q := newFakeQueue(queue.Job{ID: "j1", TenantID: "t-gone", JobType: "etsy_orders"})
	s := New(q, activeProfiles(), &fakeGate{}, func(queue.Job) {
		t.Error("job for missing profile was dispatched")
	})

	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if _, ok := q.failed["j1"]; !ok {
		t.Error("job with no profile was not failed")
	}
}

func TestTickDefersOnProfileLookupError(t *testing.T) {
	q := newFakeQueue(queue.Job{ID: "j1", TenantID: "t1", JobType: "etsy_orders"})
	profiles := &fakeProfiles{err: errors.New("db down")}
	s := New(q, profiles, &fakeGate{}, func(queue.Job) {
		t.Error("job dispatched despite lookup error")
	})

	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if d := q.deferred["j1"]; d != DeferDelay {
		t.Errorf("deferred by %v, want %v", d, DeferDelay)
	}
	if len(q.failed) != 0 {
		t.Error("transient lookup error should defer, not fail")
	}
}

func TestTickDefersRateGatedJobs(t *testing.T) {
	q := newFakeQueue(
		queue.Job{ID: "j-etsy", TenantID: "t1", JobType: "etsy_orders"},
		queue.Job{ID: "j-shopify", TenantID: "t1", JobType: "shopify_orders"},
	)
	gate := &fakeGate{denied: map[string]bool{"t1|etsy": true}}

	var dispatched []string
	s := New(q, activeProfiles("t1"), gate, func(job queue.Job) {
		dispatched = append(dispatched, job.ID)
	})

	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if d := q.deferred["j-etsy"]; d != DeferDelay {
		t.Errorf("etsy job deferred by %v, want %v", d, DeferDelay)
	}
	if len(dispatched) != 1 || dispatched[0] != "j-shopify" {
		t.Errorf("dispatched %v, want only j-shopify", dispatched)
	}
}

func TestTickPropagatesClaimError(t *testing.T) {
	q := newFakeQueue()
	q.claimErr = errors.New("claim failed")
	s := New(q, activeProfiles(), &fakeGate{}, func(queue.Job) {})

	if err := s.Tick(context.Background()); err == nil {
		t.Error("expected claim error to propagate")
	}
}
