package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/craftsight/syncengine/internal/store"
)

type fakeBackfillStore struct {
	platforms []string
	logs      []*store.SyncLogEntry
}

func (f *fakeBackfillStore) ConnectedPlatforms(context.Context, string) ([]string, error) {
	return f.platforms, nil
}

func (f *fakeBackfillStore) InsertSyncLog(_ context.Context, e *store.SyncLogEntry) error {
	f.logs = append(f.logs, e)
	return nil
}

func countingRunner(n int, ran *[]string, name string) Runner {
	return func(context.Context, string) (int, error) {
		*ran = append(*ran, name)
		return n, nil
	}
}

func TestBackfillRunsAllConnectedPlatforms(t *testing.T) {
	st := &fakeBackfillStore{platforms: []string{"etsy", "shopify"}}

	var ran []string
	runners := map[string]Runner{
		"etsy_orders":       countingRunner(10, &ran, "etsy_orders"),
		"etsy_listings":     countingRunner(5, &ran, "etsy_listings"),
		"etsy_payments":     countingRunner(3, &ran, "etsy_payments"),
		"shopify_orders":    countingRunner(20, &ran, "shopify_orders"),
		"shopify_products":  countingRunner(4, &ran, "shopify_products"),
		"shopify_customers": countingRunner(8, &ran, "shopify_customers"),
	}

	b := NewBackfill(st, runners)
	total, err := b.Run(context.Background(), "t1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if total != 50 {
		t.Errorf("total = %d, want 50", total)
	}

	// Orders run first within each platform.
	if len(ran) == 0 || ran[0] != "etsy_orders" {
		t.Errorf("run order = %v, want etsy_orders first", ran)
	}

	if len(st.logs) != 1 {
		t.Fatalf("sync log entries = %d, want 1", len(st.logs))
	}
	final := st.logs[0]
	if final.Platform != "all" || final.Status != "completed" || final.RecordsSynced != 50 {
		t.Errorf("completion log = %+v", final)
	}
}

func TestBackfillContinuesPastPlatformFailure(t *testing.T) {
	st := &fakeBackfillStore{platforms: []string{"etsy", "shopify"}}

	var ran []string
	runners := map[string]Runner{
		"etsy_orders": func(context.Context, string) (int, error) {
			return 2, errors.New("etsy down")
		},
		"shopify_orders": countingRunner(20, &ran, "shopify_orders"),
	}

	b := NewBackfill(st, runners)
	total, err := b.Run(context.Background(), "t1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if total != 22 {
		t.Errorf("total = %d, want 22", total)
	}

	if len(st.logs) != 2 {
		t.Fatalf("sync log entries = %d, want failure plus completion", len(st.logs))
	}
	failure := st.logs[0]
	if failure.Platform != "etsy" || failure.Status != "failed" || failure.ErrorMessage != "etsy down" {
		t.Errorf("failure log = %+v", failure)
	}
	if st.logs[1].Status != "completed" || st.logs[1].RecordsSynced != 22 {
		t.Errorf("completion log = %+v", st.logs[1])
	}
}
