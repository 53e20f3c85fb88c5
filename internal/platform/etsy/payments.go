package etsy

import (
	"context"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/craftsight/syncengine/internal/store"
	"github.com/craftsight/syncengine/internal/syncerr"
)

// LedgerSource lists payment ledger entries; implemented by *Client.
type LedgerSource interface {
	LedgerEntries(ctx context.Context, minCreated int64) ([]LedgerEntry, error)
}

// SyncPayments maps payment-account ledger entries to fee rows keyed
// on the platform ledger id, linking each to its order when the entry
// references a receipt.
func SyncPayments(ctx context.Context, st Store, src LedgerSource, tenantID string) (int, error) {
	cursorStr, err := st.GetSyncCursor(ctx, tenantID, "etsy", "payments_last_ts")
	if err != nil {
		return 0, err
	}
	minCreated, _ := strconv.ParseInt(cursorStr, 10, 64)

	entries, err := src.LedgerEntries(ctx, minCreated)
	if err != nil {
		return 0, err
	}

	synced, failed := 0, 0
	latestTS := minCreated

	for _, entry := range entries {
		ledgerID := ledgerEntryID(entry)
		if ledgerID == "" {
			continue
		}

		feeType := entry.EntryType
		if feeType == "" {
			feeType = "unknown"
		}

		fee := &store.Fee{
			TenantID:         tenantID,
			PlatformLedgerID: ledgerID,
			FeeType:          feeType,
			AmountCents:      entry.Amount.Cents(),
			Currency:         entry.Amount.Currency(),
			Description:      entry.Description,
		}

		if entry.ReferenceID != "" {
			orderID, err := st.FindOrderID(ctx, tenantID, "etsy", entry.ReferenceID)
			if err != nil {
				log.Warn().Err(err).Str("tenant", tenantID).Str("reference", entry.ReferenceID).
					Msg("fee order lookup failed, storing unlinked")
			} else if orderID != "" {
				fee.OrderID = &orderID
			}
		}

		if entry.CreateDate > latestTS {
			latestTS = entry.CreateDate
		}

		if err := st.UpsertFee(ctx, fee); err != nil {
			serr := &syncerr.StoreError{Table: "platform_fees", Err: err}
			log.Warn().Err(serr).Str("tenant", tenantID).Str("ledger", ledgerID).
				Msg("fee write failed, skipping record")
			failed++
			continue
		}
		synced++
	}

	if latestTS > minCreated {
		if err := st.SetSyncCursor(ctx, tenantID, "etsy", "payments_last_ts", strconv.FormatInt(latestTS, 10)); err != nil {
			return synced, err
		}
	}
	if failed > 0 {
		log.Warn().Str("tenant", tenantID).Int("failed", failed).Int("synced", synced).
			Msg("etsy payments run finished with record-level store failures")
	}
	return synced, nil
}

// ledgerEntryID prefers the payment id, falling back to the ledger
// entry id.
func ledgerEntryID(e LedgerEntry) string {
	if e.PaymentID != 0 {
		return strconv.FormatInt(e.PaymentID, 10)
	}
	if e.LedgerEntryID != 0 {
		return strconv.FormatInt(e.LedgerEntryID, 10)
	}
	return ""
}
