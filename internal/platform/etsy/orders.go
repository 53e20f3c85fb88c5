package etsy

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/craftsight/syncengine/internal/store"
	"github.com/craftsight/syncengine/internal/syncerr"
)

// Store is the slice of the row store the etsy workers need. The
// concrete *store.Store satisfies it; tests use fakes.
type Store interface {
	GetSyncCursor(ctx context.Context, tenantID, platform, key string) (string, error)
	SetSyncCursor(ctx context.Context, tenantID, platform, key, value string) error
	UpsertOrder(ctx context.Context, o *store.Order) (string, error)
	UpsertLineItem(ctx context.Context, li *store.LineItem) error
	UpsertEtsyListing(ctx context.Context, p *store.Product) error
	UpsertFee(ctx context.Context, f *store.Fee) error
	FindOrderID(ctx context.Context, tenantID, platform, platformOrderID string) (string, error)
	IncrementOrderCount(ctx context.Context, tenantID string) error
}

// ReceiptSource lists receipts; implemented by *Client.
type ReceiptSource interface {
	AllReceipts(ctx context.Context, minCreated int64) ([]Receipt, error)
}

// SyncOrders pulls receipts newer than the stored cursor and upserts
// orders plus line items. Returns the number of receipts fully written.
//
// The cursor (orders_last_ts, unix seconds) is advanced to the max
// create_timestamp observed. A write failure on one record is logged
// and skipped, not retried; the run keeps going and reports the
// aggregate failure count at the end.
func SyncOrders(ctx context.Context, st Store, src ReceiptSource, tenantID string) (int, error) {
	cursorStr, err := st.GetSyncCursor(ctx, tenantID, "etsy", "orders_last_ts")
	if err != nil {
		return 0, err
	}
	minCreated, _ := strconv.ParseInt(cursorStr, 10, 64)

	receipts, err := src.AllReceipts(ctx, minCreated)
	if err != nil {
		return 0, err
	}

	synced, failed := 0, 0
	latestTS := minCreated

	for _, receipt := range receipts {
		order := mapReceiptToOrder(tenantID, receipt)
		if receipt.CreateTimestamp > latestTS {
			latestTS = receipt.CreateTimestamp
		}

		orderID, err := st.UpsertOrder(ctx, order)
		if err != nil {
			serr := &syncerr.StoreError{Table: "orders", Err: err}
			log.Warn().Err(serr).Str("tenant", tenantID).Str("receipt", order.PlatformOrderID).
				Msg("order write failed, skipping record")
			failed++
			continue
		}

		for _, txn := range receipt.Transactions {
			li := mapTransactionToLineItem(tenantID, orderID, txn)
			if err := st.UpsertLineItem(ctx, li); err != nil {
				serr := &syncerr.StoreError{Table: "order_line_items", Err: err}
				log.Warn().Err(serr).Str("tenant", tenantID).Str("line_item", li.PlatformLineItemID).
					Msg("line item write failed, skipping record")
				failed++
			}
		}
		synced++
	}

	if latestTS > minCreated {
		if err := st.SetSyncCursor(ctx, tenantID, "etsy", "orders_last_ts", strconv.FormatInt(latestTS, 10)); err != nil {
			log.Error().Err(err).Str("tenant", tenantID).Msg("failed to persist etsy orders cursor")
		}
	}
	if failed > 0 {
		log.Warn().Str("tenant", tenantID).Int("failed", failed).Int("synced", synced).
			Msg("etsy orders run finished with record-level store failures")
	}

	if synced > 0 {
		if err := st.IncrementOrderCount(ctx, tenantID); err != nil {
			log.Warn().Err(err).Str("tenant", tenantID).Msg("billing order counter increment failed")
		}
	}
	return synced, nil
}

func mapReceiptToOrder(tenantID string, r Receipt) *store.Order {
	financial := "pending"
	if r.WasPaid {
		financial = "paid"
	}
	fulfillment := "unfulfilled"
	if r.WasShipped {
		fulfillment = "shipped"
	}
	status := r.Status
	if status == "" {
		status = "unknown"
	}

	return &store.Order{
		TenantID:            tenantID,
		Platform:            "etsy",
		PlatformOrderID:     strconv.FormatInt(r.ReceiptID, 10),
		PlatformOrderNumber: strconv.FormatInt(r.ReceiptID, 10),
		Status:              status,
		FinancialStatus:     financial,
		FulfillmentStatus:   fulfillment,
		SubtotalCents:       r.Subtotal.Cents(),
		ShippingCents:       r.TotalShipping.Cents(),
		TaxCents:            r.TotalTax.Cents(),
		DiscountCents:       r.Discount.Cents(),
		TotalCents:          r.GrandTotal.Cents(),
		Currency:            r.Subtotal.Currency(),
		OrderedAt:           time.Unix(r.CreateTimestamp, 0).UTC().Format(time.RFC3339),
		RawData:             r.rawPayload(),
	}
}

func mapTransactionToLineItem(tenantID, orderID string, t Transaction) *store.LineItem {
	qty := t.Quantity
	if qty == 0 {
		qty = 1
	}
	unit := t.Price.Cents()
	return &store.LineItem{
		TenantID:           tenantID,
		OrderID:            orderID,
		PlatformLineItemID: strconv.FormatInt(t.TransactionID, 10),
		Title:              t.Title,
		Quantity:           qty,
		UnitPriceCents:     unit,
		TotalCents:         unit * int64(qty),
		SKU:                t.SKU,
	}
}

// rawPayload returns the upstream JSON when available, falling back to
// the decoded struct for receipts built in tests.
func (r Receipt) rawPayload() any {
	if len(r.raw) > 0 {
		return r.raw
	}
	return r
}

var _ Store = (*store.Store)(nil)
