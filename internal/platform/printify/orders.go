package printify

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/craftsight/syncengine/internal/store"
	"github.com/craftsight/syncengine/internal/syncerr"
)

// Store is the slice of the row store the printify workers need.
type Store interface {
	GetSyncCursor(ctx context.Context, tenantID, platform, key string) (string, error)
	SetSyncCursor(ctx context.Context, tenantID, platform, key, value string) error
	FindOrderIDByExternal(ctx context.Context, tenantID, externalID string) (string, error)
	AttachFulfillmentCosts(ctx context.Context, orderID string, c store.FulfillmentCosts) error
	UpsertOrder(ctx context.Context, o *store.Order) (string, error)
	PrintifyProductExists(ctx context.Context, tenantID, printifyProductID string) (bool, error)
	UpsertPrintifyProduct(ctx context.Context, p *store.Product) error
}

// OrderSource lists fulfillment orders; implemented by *Client.
type OrderSource interface {
	AllOrders(ctx context.Context) ([]Order, error)
}

// checkpointEvery is how many processed orders pass between cursor
// writes on long runs.
const checkpointEvery = 200

// SyncOrders attaches production and shipping costs to the matching
// storefront order when the fulfillment order references one, and
// records a standalone printify order otherwise.
//
// Printify has no server-side since filter, so orders at or before the
// stored created_at cursor are skipped client-side. The cursor is
// checkpointed every 200 processed orders and again at the end. A
// write failure on one record is logged and skipped; the run keeps
// going and reports the aggregate failure count at the end.
func SyncOrders(ctx context.Context, st Store, src OrderSource, tenantID string) (int, error) {
	loaded, err := st.GetSyncCursor(ctx, tenantID, "printify", "orders_last_created")
	if err != nil {
		return 0, err
	}

	orders, err := src.AllOrders(ctx)
	if err != nil {
		return 0, err
	}

	synced := 0
	latest := loaded

	persistCursor := func() {
		if latest == loaded || latest == "" {
			return
		}
		if err := st.SetSyncCursor(ctx, tenantID, "printify", "orders_last_created", latest); err != nil {
			log.Error().Err(err).Str("tenant", tenantID).Msg("failed to persist printify orders cursor")
		}
	}

	failed := 0
	for _, o := range orders {
		if loaded != "" && o.CreatedAt != "" && o.CreatedAt <= loaded {
			continue
		}
		if o.CreatedAt > latest {
			latest = o.CreatedAt
		}

		if err := syncOne(ctx, st, tenantID, o); err != nil {
			serr := &syncerr.StoreError{Table: "orders", Err: err}
			log.Warn().Err(serr).Str("tenant", tenantID).Str("order", o.ID).
				Msg("fulfillment order write failed, skipping record")
			failed++
			continue
		}
		synced++

		if synced%checkpointEvery == 0 {
			persistCursor()
		}
	}

	persistCursor()
	if failed > 0 {
		log.Warn().Str("tenant", tenantID).Int("failed", failed).Int("synced", synced).
			Msg("printify orders run finished with record-level store failures")
	}
	return synced, nil
}

func syncOne(ctx context.Context, st Store, tenantID string, o Order) error {
	costs := store.FulfillmentCosts{
		PrintifyOrderID:     o.ID,
		ProductionCostCents: productionCost(o),
		ShippingCostCents:   o.TotalShipping,
		FulfillmentStatus:   MapStatus(o.Status),
	}

	if o.External.ID != "" {
		orderID, err := st.FindOrderIDByExternal(ctx, tenantID, o.External.ID)
		if err != nil {
			return err
		}
		if orderID != "" {
			return st.AttachFulfillmentCosts(ctx, orderID, costs)
		}
		log.Debug().Str("tenant", tenantID).Str("external", o.External.ID).
			Msg("no storefront order for fulfillment reference, storing standalone")
	}

	orderID, err := st.UpsertOrder(ctx, mapStandaloneOrder(tenantID, o))
	if err != nil {
		return err
	}
	return st.AttachFulfillmentCosts(ctx, orderID, costs)
}

func mapStandaloneOrder(tenantID string, o Order) *store.Order {
	status := o.Status
	if status == "" {
		status = "unknown"
	}
	orderedAt := o.CreatedAt
	if orderedAt == "" {
		orderedAt = time.Now().UTC().Format(time.RFC3339)
	}

	return &store.Order{
		TenantID:          tenantID,
		Platform:          "printify",
		PlatformOrderID:   o.ID,
		Status:            status,
		FulfillmentStatus: MapStatus(o.Status),
		TotalCents:        o.TotalPrice,
		OrderedAt:         orderedAt,
		RawData:           o.rawPayload(),
	}
}

func productionCost(o Order) int64 {
	var total int64
	for _, li := range o.LineItems {
		total += li.Cost
	}
	return total
}

// MapStatus normalizes a Printify order status to the shared
// fulfillment vocabulary. Unknown statuses map to unfulfilled.
func MapStatus(status string) string {
	switch status {
	case "pending", "on-hold":
		return "unfulfilled"
	case "sending-to-production", "in-production":
		return "in_production"
	case "shipping":
		return "shipped"
	case "fulfilled":
		return "delivered"
	case "canceled":
		return "cancelled"
	default:
		return "unfulfilled"
	}
}

func (o Order) rawPayload() any {
	if len(o.raw) > 0 {
		return o.raw
	}
	return o
}

var _ Store = (*store.Store)(nil)
