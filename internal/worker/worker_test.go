package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/craftsight/syncengine/internal/queue"
	"github.com/craftsight/syncengine/internal/scheduler"
	"github.com/craftsight/syncengine/internal/store"
)

type enqueued struct {
	tenantID    string
	jobType     string
	priority    int
	scheduledAt time.Time
}

type fakeQueue struct {
	running    []string
	completed  map[string]int
	failed     map[string]string
	enqueued   []enqueued
	duplicate  bool
	enqueueErr error
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{completed: map[string]int{}, failed: map[string]string{}}
}

func (f *fakeQueue) MarkRunning(_ context.Context, jobID string) error {
	f.running = append(f.running, jobID)
	return nil
}

func (f *fakeQueue) MarkCompleted(_ context.Context, jobID string, records int) error {
	f.completed[jobID] = records
	return nil
}

func (f *fakeQueue) MarkFailed(_ context.Context, jobID, errMsg string) error {
	f.failed[jobID] = errMsg
	return nil
}

func (f *fakeQueue) EnqueueUnique(_ context.Context, tenantID, jobType string, priority int, scheduledAt time.Time) (bool, error) {
	if f.enqueueErr != nil {
		return false, f.enqueueErr
	}
	f.enqueued = append(f.enqueued, enqueued{tenantID, jobType, priority, scheduledAt})
	return !f.duplicate, nil
}

type fakeRuntimeStore struct {
	profile    *store.Profile
	profileErr error
	touched    []string // "tenant|platform"
}

func (f *fakeRuntimeStore) GetProfile(context.Context, string) (*store.Profile, error) {
	return f.profile, f.profileErr
}

func (f *fakeRuntimeStore) TouchLastSync(_ context.Context, tenantID, platform string) error {
	f.touched = append(f.touched, tenantID+"|"+platform)
	return nil
}

type alertCall struct {
	toEmail string
	jobType string
	errMsg  string
}

type fakeAlerter struct {
	calls []alertCall
}

func (f *fakeAlerter) SyncFailure(_ context.Context, toEmail, jobType, errMsg string) {
	f.calls = append(f.calls, alertCall{toEmail, jobType, errMsg})
}

func proProfile(email string) *store.Profile {
	return &store.Profile{TenantID: "t1", Email: &email, Plan: "pro", PlanStatus: "active"}
}

func TestExecuteSuccess(t *testing.T) {
	q := newFakeQueue()
	st := &fakeRuntimeStore{profile: proProfile("owner@example.com")}
	alert := &fakeAlerter{}

	registry := map[string]Runner{
		"etsy_orders": func(context.Context, string) (int, error) { return 7, nil },
	}

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := New(q, st, registry, alert)
	r.now = func() time.Time { return base }

	r.Execute(context.Background(), queue.Job{ID: "j1", TenantID: "t1", JobType: "etsy_orders"})

	if len(q.running) != 1 || q.running[0] != "j1" {
		t.Errorf("running marks = %v", q.running)
	}
	if q.completed["j1"] != 7 {
		t.Errorf("completed records = %d, want 7", q.completed["j1"])
	}
	if len(st.touched) != 1 || st.touched[0] != "t1|etsy" {
		t.Errorf("last sync touches = %v", st.touched)
	}
	if len(alert.calls) != 0 {
		t.Error("success should not alert")
	}

	if len(q.enqueued) != 1 {
		t.Fatalf("enqueued %d next runs, want 1", len(q.enqueued))
	}
	next := q.enqueued[0]
	if next.jobType != "etsy_orders" || next.priority != 1 {
		t.Errorf("next run = %+v", next)
	}
	if want := base.Add(scheduler.NextInterval("etsy_orders", "pro")); !next.scheduledAt.Equal(want) {
		t.Errorf("next run at %v, want %v", next.scheduledAt, want)
	}
}

func TestExecuteFailureAlertsAndReschedules(t *testing.T) {
	q := newFakeQueue()
	st := &fakeRuntimeStore{profile: proProfile("owner@example.com")}
	alert := &fakeAlerter{}

	registry := map[string]Runner{
		"etsy_orders": func(context.Context, string) (int, error) {
			return 0, errors.New("upstream exploded")
		},
	}

	r := New(q, st, registry, alert)
	r.Execute(context.Background(), queue.Job{ID: "j1", TenantID: "t1", JobType: "etsy_orders"})

	if msg := q.failed["j1"]; msg != "upstream exploded" {
		t.Errorf("failure message = %q", msg)
	}
	if len(st.touched) != 0 {
		t.Error("failed run should not touch last_sync_at")
	}
	if len(alert.calls) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alert.calls))
	}
	if alert.calls[0].toEmail != "owner@example.com" || alert.calls[0].jobType != "etsy_orders" {
		t.Errorf("alert = %+v", alert.calls[0])
	}
	if len(q.enqueued) != 1 {
		t.Error("failed run should still schedule the next one")
	}
}

func TestExecuteUnknownJobType(t *testing.T) {
	q := newFakeQueue()
	st := &fakeRuntimeStore{profile: proProfile("owner@example.com")}

	r := New(q, st, map[string]Runner{}, nil)
	r.Execute(context.Background(), queue.Job{ID: "j1", TenantID: "t1", JobType: "mystery_stream"})

	if msg := q.failed["j1"]; msg != "unknown job type: mystery_stream" {
		t.Errorf("failure message = %q", msg)
	}
}

func TestExecuteNoAlertWithoutEmail(t *testing.T) {
	q := newFakeQueue()
	st := &fakeRuntimeStore{profile: &store.Profile{TenantID: "t1", Plan: "free", PlanStatus: "active"}}
	alert := &fakeAlerter{}

	registry := map[string]Runner{
		"etsy_orders": func(context.Context, string) (int, error) { return 0, errors.New("boom") },
	}

	r := New(q, st, registry, alert)
	r.Execute(context.Background(), queue.Job{ID: "j1", TenantID: "t1", JobType: "etsy_orders"})

	if len(alert.calls) != 0 {
		t.Error("alert sent despite missing email")
	}
}

func TestScheduleNextAssumesFreeOnLookupFailure(t *testing.T) {
	q := newFakeQueue()
	st := &fakeRuntimeStore{profileErr: errors.New("db down")}

	registry := map[string]Runner{
		"etsy_orders": func(context.Context, string) (int, error) { return 1, nil },
	}

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := New(q, st, registry, nil)
	r.now = func() time.Time { return base }

	r.Execute(context.Background(), queue.Job{ID: "j1", TenantID: "t1", JobType: "etsy_orders"})

	if len(q.enqueued) != 1 {
		t.Fatalf("enqueued %d next runs, want 1", len(q.enqueued))
	}
	next := q.enqueued[0]
	if next.priority != 0 {
		t.Errorf("priority = %d, want 0 for the free fallback", next.priority)
	}
	if want := base.Add(scheduler.NextInterval("etsy_orders", "free")); !next.scheduledAt.Equal(want) {
		t.Errorf("next run at %v, want %v", next.scheduledAt, want)
	}
}

func TestScheduleNextToleratesExistingRun(t *testing.T) {
	q := newFakeQueue()
	q.duplicate = true
	st := &fakeRuntimeStore{profile: proProfile("owner@example.com")}

	registry := map[string]Runner{
		"etsy_orders": func(context.Context, string) (int, error) { return 1, nil },
	}

	r := New(q, st, registry, nil)
	r.Execute(context.Background(), queue.Job{ID: "j1", TenantID: "t1", JobType: "etsy_orders"})

	if len(q.enqueued) != 1 {
		t.Errorf("enqueue attempts = %d, want 1", len(q.enqueued))
	}
}
