package worker

import (
	"context"

	"github.com/craftsight/syncengine/internal/budget"
	"github.com/craftsight/syncengine/internal/platform/etsy"
	"github.com/craftsight/syncengine/internal/platform/printify"
	"github.com/craftsight/syncengine/internal/platform/shopify"
	"github.com/craftsight/syncengine/internal/store"
	"github.com/craftsight/syncengine/internal/vault"
)

// NewRegistry builds the static job_type -> runner table. Every
// runnable job type in the system is listed here; the queue never
// carries a type this table does not know.
func NewRegistry(st *store.Store, v *vault.Vault, b *budget.Budgeter, etsyAPIKey string) map[string]Runner {
	etsyOrders := func(ctx context.Context, tenantID string) (int, error) {
		client, err := etsy.NewClient(ctx, tenantID, st, v, b, etsyAPIKey)
		if err != nil {
			return 0, err
		}
		return etsy.SyncOrders(ctx, st, client, tenantID)
	}
	etsyListings := func(ctx context.Context, tenantID string) (int, error) {
		client, err := etsy.NewClient(ctx, tenantID, st, v, b, etsyAPIKey)
		if err != nil {
			return 0, err
		}
		return etsy.SyncListings(ctx, st, client, tenantID)
	}
	etsyPayments := func(ctx context.Context, tenantID string) (int, error) {
		client, err := etsy.NewClient(ctx, tenantID, st, v, b, etsyAPIKey)
		if err != nil {
			return 0, err
		}
		return etsy.SyncPayments(ctx, st, client, tenantID)
	}

	shopifyOrders := func(ctx context.Context, tenantID string) (int, error) {
		client, err := shopify.NewClient(ctx, tenantID, st, v, b)
		if err != nil {
			return 0, err
		}
		return shopify.SyncOrders(ctx, st, client, tenantID)
	}
	shopifyProducts := func(ctx context.Context, tenantID string) (int, error) {
		client, err := shopify.NewClient(ctx, tenantID, st, v, b)
		if err != nil {
			return 0, err
		}
		return shopify.SyncProducts(ctx, st, client, tenantID)
	}
	shopifyCustomers := func(ctx context.Context, tenantID string) (int, error) {
		client, err := shopify.NewClient(ctx, tenantID, st, v, b)
		if err != nil {
			return 0, err
		}
		return shopify.SyncCustomers(ctx, st, client, tenantID)
	}

	printifyOrders := func(ctx context.Context, tenantID string) (int, error) {
		client, err := printify.NewClient(ctx, tenantID, st, v, b)
		if err != nil {
			return 0, err
		}
		return printify.SyncOrders(ctx, st, client, tenantID)
	}
	printifyProducts := func(ctx context.Context, tenantID string) (int, error) {
		client, err := printify.NewClient(ctx, tenantID, st, v, b)
		if err != nil {
			return 0, err
		}
		return printify.SyncProducts(ctx, st, client, tenantID)
	}

	registry := map[string]Runner{
		"etsy_orders":       etsyOrders,
		"etsy_listings":     etsyListings,
		"etsy_payments":     etsyPayments,
		"shopify_orders":    shopifyOrders,
		"shopify_products":  shopifyProducts,
		"shopify_customers": shopifyCustomers,
		"printify_orders":   printifyOrders,
		"printify_products": printifyProducts,
	}

	backfill := NewBackfill(st, registry)
	registry["backfill_etsy"] = backfill.Run
	registry["backfill_shopify"] = backfill.Run
	registry["backfill_printify"] = backfill.Run

	return registry
}
