package budget

import (
	"testing"
	"time"
)

// newTestBudgeter returns a Budgeter with no store, a fixed clock, and
// a 100-request quota platform with two active tenants.
func newTestBudgeter(t *testing.T) (*Budgeter, *time.Time) {
	t.Helper()

	PlatformBudgets["testplat"] = 100
	t.Cleanup(func() { delete(PlatformBudgets, "testplat") })

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := New(nil)
	b.now = func() time.Time { return now }
	b.activeTenants["testplat"] = 2
	return b, &now
}

func TestAdmissionUnderSharedQuota(t *testing.T) {
	b, _ := newTestBudgeter(t)

	// quota 100, 2 tenants, safety 0.8 -> per-tenant share 40
	if got := b.Remaining("tenant-a", "testplat"); got != 40 {
		t.Fatalf("Remaining = %d, want 40", got)
	}

	b.Record("tenant-a", "testplat", 40)

	if b.CanRequest("tenant-a", "testplat") {
		t.Error("tenant-a should be denied after spending its share")
	}
	if !b.CanRequest("tenant-b", "testplat") {
		t.Error("tenant-b should still be admitted")
	}

	// Push global usage to the ceiling; everyone is denied
	b.Record("tenant-b", "testplat", 60)

	if b.CanRequest("tenant-a", "testplat") || b.CanRequest("tenant-b", "testplat") {
		t.Error("no tenant should be admitted at the global ceiling")
	}

	snap := b.Snapshot("testplat")
	if snap.Used != 100 || snap.Remaining != 0 {
		t.Errorf("snapshot used=%d remaining=%d, want 100/0", snap.Used, snap.Remaining)
	}
}

func TestPerTenantShareNeverExceedsQuota(t *testing.T) {
	b, _ := newTestBudgeter(t)

	tests := []struct {
		tenants int
		want    int
	}{
		{0, 80}, // no known tenants counts as one
		{1, 80},
		{2, 40},
		{3, 26},
		{10, 8},
	}

	for _, tt := range tests {
		b.activeTenants["testplat"] = tt.tenants
		if got := b.perTenantBudget("testplat"); got != tt.want {
			t.Errorf("perTenantBudget with %d tenants = %d, want %d", tt.tenants, got, tt.want)
		}
	}
}

func TestDayRolloverResetsCounters(t *testing.T) {
	b, now := newTestBudgeter(t)

	b.Record("tenant-a", "testplat", 40)
	if b.CanRequest("tenant-a", "testplat") {
		t.Fatal("tenant-a should be denied before rollover")
	}

	*now = now.Add(24 * time.Hour)

	if !b.CanRequest("tenant-a", "testplat") {
		t.Error("tenant-a should be admitted after the UTC day rolls over")
	}
	if got := b.Remaining("tenant-a", "testplat"); got != 40 {
		t.Errorf("Remaining after rollover = %d, want 40", got)
	}

	snap := b.Snapshot("testplat")
	if snap.Used != 0 {
		t.Errorf("global used after rollover = %d, want 0", snap.Used)
	}
}

func TestUnknownPlatformGetsDefaultBudget(t *testing.T) {
	b := New(nil)
	if got := platformBudget("nonexistent"); got != defaultBudget {
		t.Errorf("platformBudget = %d, want %d", got, defaultBudget)
	}
	if !b.CanRequest("tenant-a", "nonexistent") {
		t.Error("fresh tenant should be admitted on an unknown platform")
	}
}

func TestRecordAccumulates(t *testing.T) {
	b, _ := newTestBudgeter(t)

	b.Record("tenant-a", "testplat", 10)
	b.Record("tenant-a", "testplat", 5)

	if got := b.Remaining("tenant-a", "testplat"); got != 25 {
		t.Errorf("Remaining = %d, want 25", got)
	}
	if snap := b.Snapshot("testplat"); snap.Used != 15 {
		t.Errorf("global used = %d, want 15", snap.Used)
	}
}
