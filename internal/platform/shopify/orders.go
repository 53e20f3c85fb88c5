package shopify

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/craftsight/syncengine/internal/store"
	"github.com/craftsight/syncengine/internal/syncerr"
)

// Store is the slice of the row store the shopify workers need. The
// concrete *store.Store satisfies it; tests use fakes.
type Store interface {
	GetSyncCursor(ctx context.Context, tenantID, platform, key string) (string, error)
	SetSyncCursor(ctx context.Context, tenantID, platform, key, value string) error
	UpsertOrder(ctx context.Context, o *store.Order) (string, error)
	UpsertLineItem(ctx context.Context, li *store.LineItem) error
	UpsertShopifyProduct(ctx context.Context, p *store.Product) error
	UpsertShopifyCustomer(ctx context.Context, c *store.Customer) error
	IncrementOrderCount(ctx context.Context, tenantID string) error
}

// OrderSource lists orders from a resume cursor; implemented by *Client.
type OrderSource interface {
	Orders(ctx context.Context, after string) ([]Order, string, error)
}

// SyncOrders pulls orders created after the stored page cursor and
// upserts them with line items. The cursor (orders_cursor) is an opaque
// resume token from the API, persisted as-is. A write failure on one
// record is logged and skipped; the run keeps going and reports the
// aggregate failure count at the end.
func SyncOrders(ctx context.Context, st Store, src OrderSource, tenantID string) (int, error) {
	after, err := st.GetSyncCursor(ctx, tenantID, "shopify", "orders_cursor")
	if err != nil {
		return 0, err
	}

	orders, cursor, err := src.Orders(ctx, after)
	if err != nil {
		return 0, err
	}

	synced, failed := 0, 0
	for _, o := range orders {
		orderID, err := st.UpsertOrder(ctx, mapOrder(tenantID, o))
		if err != nil {
			serr := &syncerr.StoreError{Table: "orders", Err: err}
			log.Warn().Err(serr).Str("tenant", tenantID).Str("order", NumericID(o.ID)).
				Msg("order write failed, skipping record")
			failed++
			continue
		}

		for _, edge := range o.LineItems.Edges {
			if err := st.UpsertLineItem(ctx, mapLineItem(tenantID, orderID, edge.Node)); err != nil {
				serr := &syncerr.StoreError{Table: "order_line_items", Err: err}
				log.Warn().Err(serr).Str("tenant", tenantID).Str("line_item", edge.Node.ID).
					Msg("line item write failed, skipping record")
				failed++
			}
		}
		synced++
	}

	if cursor != "" && cursor != after {
		if err := st.SetSyncCursor(ctx, tenantID, "shopify", "orders_cursor", cursor); err != nil {
			log.Error().Err(err).Str("tenant", tenantID).Msg("failed to persist shopify orders cursor")
		}
	}
	if failed > 0 {
		log.Warn().Str("tenant", tenantID).Int("failed", failed).Int("synced", synced).
			Msg("shopify orders run finished with record-level store failures")
	}

	if synced > 0 {
		if err := st.IncrementOrderCount(ctx, tenantID); err != nil {
			log.Warn().Err(err).Str("tenant", tenantID).Msg("billing order counter increment failed")
		}
	}
	return synced, nil
}

func mapOrder(tenantID string, o Order) *store.Order {
	fulfillment := strings.ToLower(o.DisplayFulfillmentStatus)
	if fulfillment == "" {
		fulfillment = "unfulfilled"
	}

	return &store.Order{
		TenantID:            tenantID,
		Platform:            "shopify",
		PlatformOrderID:     NumericID(o.ID),
		PlatformOrderNumber: o.Name,
		Status:              "open",
		FinancialStatus:     strings.ToLower(o.DisplayFinancialStatus),
		FulfillmentStatus:   fulfillment,
		SubtotalCents:       o.SubtotalPriceSet.Cents(),
		ShippingCents:       o.TotalShippingPriceSet.Cents(),
		TaxCents:            o.TotalTaxSet.Cents(),
		DiscountCents:       o.TotalDiscountsSet.Cents(),
		TotalCents:          o.TotalPriceSet.Cents(),
		Currency:            o.TotalPriceSet.Currency(),
		OrderedAt:           o.CreatedAt,
		RawData:             o.rawPayload(),
	}
}

func mapLineItem(tenantID, orderID string, li LineItem) *store.LineItem {
	qty := li.Quantity
	if qty == 0 {
		qty = 1
	}
	unit := li.OriginalUnitPriceSet.Cents()
	variantTitle := ""
	if li.Variant != nil {
		variantTitle = li.Variant.Title
	}
	return &store.LineItem{
		TenantID:           tenantID,
		OrderID:            orderID,
		PlatformLineItemID: li.ID,
		Title:              li.Title,
		Quantity:           qty,
		UnitPriceCents:     unit,
		TotalCents:         unit * int64(qty),
		SKU:                li.SKU,
		VariantTitle:       variantTitle,
	}
}

func (o Order) rawPayload() any {
	if len(o.raw) > 0 {
		return o.raw
	}
	return o
}

var _ Store = (*store.Store)(nil)
