package store

import (
	"context"
	"fmt"
)

// Fee is one platform ledger entry (listing fee, transaction fee,
// payment processing, ...), optionally linked to the order it charges.
type Fee struct {
	TenantID         string
	PlatformLedgerID string
	OrderID          *string
	FeeType          string
	AmountCents      int64
	Currency         string
	Description      string
}

// UpsertFee writes a fee on (tenant, platform_ledger_entry_id).
func (s *Store) UpsertFee(ctx context.Context, f *Fee) error {
	if f.PlatformLedgerID == "" {
		return fmt.Errorf("fee missing platform ledger id")
	}
	_, err := s.DB.Exec(ctx, `
		INSERT INTO platform_fees (user_id, platform_ledger_entry_id, order_id,
		                           fee_type, amount_cents, currency, description)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (user_id, platform_ledger_entry_id) DO UPDATE SET
			order_id     = COALESCE(EXCLUDED.order_id, platform_fees.order_id),
			fee_type     = EXCLUDED.fee_type,
			amount_cents = EXCLUDED.amount_cents,
			currency     = EXCLUDED.currency,
			description  = EXCLUDED.description
	`, f.TenantID, f.PlatformLedgerID, f.OrderID, f.FeeType, f.AmountCents, f.Currency, f.Description)
	if err != nil {
		return fmt.Errorf("upsert fee %s: %w", f.PlatformLedgerID, err)
	}
	return nil
}
