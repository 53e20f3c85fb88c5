package etsy

import (
	"context"
	"testing"
)

type fakeLedger struct {
	entries    []LedgerEntry
	minCreated int64
}

func (f *fakeLedger) LedgerEntries(_ context.Context, minCreated int64) ([]LedgerEntry, error) {
	f.minCreated = minCreated
	return f.entries, nil
}

func TestSyncPaymentsLinksFeesToOrders(t *testing.T) {
	st := newFakeStore()
	st.orderIDs = map[string]string{"receipt-77": "order-uuid-77"}
	src := &fakeLedger{entries: []LedgerEntry{
		{
			PaymentID:   901,
			EntryType:   "payment",
			Amount:      Money{Amount: -325, Divisor: 100, CurrencyCode: "USD"},
			Description: "Transaction fee",
			ReferenceID: "receipt-77",
			CreateDate:  1700000100,
		},
		{
			LedgerEntryID: 902,
			Amount:        Money{Amount: -40, Divisor: 100},
			Description:   "Listing fee",
			CreateDate:    1700000200,
		},
	}}

	synced, err := SyncPayments(context.Background(), st, src, "tenant-1")
	if err != nil {
		t.Fatalf("SyncPayments: %v", err)
	}
	if synced != 2 {
		t.Errorf("synced = %d, want 2", synced)
	}
	if len(st.fees) != 2 {
		t.Fatalf("stored %d fees, want 2", len(st.fees))
	}

	linked := st.fees[0]
	if linked.PlatformLedgerID != "901" {
		t.Errorf("ledger id = %q, want payment id 901", linked.PlatformLedgerID)
	}
	if linked.OrderID == nil || *linked.OrderID != "order-uuid-77" {
		t.Errorf("fee not linked to order: %+v", linked.OrderID)
	}
	if linked.AmountCents != -325 {
		t.Errorf("amount = %d, want -325", linked.AmountCents)
	}

	unlinked := st.fees[1]
	if unlinked.PlatformLedgerID != "902" {
		t.Errorf("ledger id = %q, want entry id 902", unlinked.PlatformLedgerID)
	}
	if unlinked.OrderID != nil {
		t.Errorf("fee without reference should be unlinked, got %v", *unlinked.OrderID)
	}
	if unlinked.FeeType != "unknown" {
		t.Errorf("missing entry type = %q, want unknown", unlinked.FeeType)
	}

	if got := st.cursors["payments_last_ts"]; got != "1700000200" {
		t.Errorf("cursor = %q, want newest create_date", got)
	}
}

func TestSyncPaymentsPassesCursorToSource(t *testing.T) {
	st := newFakeStore()
	st.cursors["payments_last_ts"] = "1700000000"
	src := &fakeLedger{}

	if _, err := SyncPayments(context.Background(), st, src, "tenant-1"); err != nil {
		t.Fatalf("SyncPayments: %v", err)
	}
	if src.minCreated != 1700000000 {
		t.Errorf("minCreated = %d, want 1700000000", src.minCreated)
	}
	// No entries, cursor stays put.
	if got := st.cursors["payments_last_ts"]; got != "1700000000" {
		t.Errorf("cursor = %q, want unchanged", got)
	}
}

func TestSyncPaymentsSkipsEntriesWithoutIdentity(t *testing.T) {
	st := newFakeStore()
	src := &fakeLedger{entries: []LedgerEntry{
		{Description: "mystery row", CreateDate: 1700000300},
		{PaymentID: 903, EntryType: "fee", Amount: Money{Amount: -10, Divisor: 100}, CreateDate: 1700000400},
	}}

	synced, err := SyncPayments(context.Background(), st, src, "tenant-1")
	if err != nil {
		t.Fatalf("SyncPayments: %v", err)
	}
	if synced != 1 {
		t.Errorf("synced = %d, want 1", synced)
	}
	if len(st.fees) != 1 || st.fees[0].PlatformLedgerID != "903" {
		t.Errorf("fees = %+v", st.fees)
	}
}
