package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Order is a normalized cross-platform order row. Money fields are
// integer cents. RawData carries the upstream payload untouched.
type Order struct {
	TenantID            string
	Platform            string
	PlatformOrderID     string
	PlatformOrderNumber string
	Status              string
	FinancialStatus     string
	FulfillmentStatus   string
	SubtotalCents       int64
	ShippingCents       int64
	TaxCents            int64
	DiscountCents       int64
	TotalCents          int64
	Currency            string
	OrderedAt           string // RFC3339; required before write
	RawData             any
}

// LineItem is one line of an order, keyed on the platform's line id.
type LineItem struct {
	TenantID           string
	OrderID            string // internal order UUID, required
	PlatformLineItemID string
	Title              string // required
	Quantity           int
	UnitPriceCents     int64
	TotalCents         int64
	SKU                string
	VariantTitle       string
}

// UpsertOrder writes an order on its natural key (tenant, platform,
// platform_order_id) and returns the internal order UUID for line-item
// linking. Required fields are validated before the write.
func (s *Store) UpsertOrder(ctx context.Context, o *Order) (string, error) {
	if o.TenantID == "" || o.Platform == "" || o.PlatformOrderID == "" || o.OrderedAt == "" {
		return "", fmt.Errorf("order missing required fields (tenant=%q platform=%q id=%q ordered_at=%q)",
			o.TenantID, o.Platform, o.PlatformOrderID, o.OrderedAt)
	}

	rawJSON, err := json.Marshal(o.RawData)
	if err != nil {
		return "", fmt.Errorf("encode raw_data: %w", err)
	}

	var id string
	err = s.DB.QueryRow(ctx, `
		INSERT INTO orders (user_id, platform, platform_order_id, platform_order_number,
		                    status, financial_status, fulfillment_status,
		                    subtotal_cents, shipping_cents, tax_cents, discount_cents, total_cents,
		                    currency, ordered_at, raw_data, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15, now())
		ON CONFLICT (user_id, platform, platform_order_id) DO UPDATE SET
			platform_order_number = EXCLUDED.platform_order_number,
			status                = EXCLUDED.status,
			financial_status      = EXCLUDED.financial_status,
			fulfillment_status    = EXCLUDED.fulfillment_status,
			subtotal_cents        = EXCLUDED.subtotal_cents,
			shipping_cents        = EXCLUDED.shipping_cents,
			tax_cents             = EXCLUDED.tax_cents,
			discount_cents        = EXCLUDED.discount_cents,
			total_cents           = EXCLUDED.total_cents,
			currency              = EXCLUDED.currency,
			ordered_at            = EXCLUDED.ordered_at,
			raw_data              = EXCLUDED.raw_data,
			updated_at            = now()
		RETURNING id
	`, o.TenantID, o.Platform, o.PlatformOrderID, o.PlatformOrderNumber,
		o.Status, o.FinancialStatus, o.FulfillmentStatus,
		o.SubtotalCents, o.ShippingCents, o.TaxCents, o.DiscountCents, o.TotalCents,
		o.Currency, o.OrderedAt, rawJSON).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert order %s/%s: %w", o.Platform, o.PlatformOrderID, err)
	}
	return id, nil
}

// FindOrderID looks up the internal UUID for a platform order id.
// Returns "" when no row matches.
func (s *Store) FindOrderID(ctx context.Context, tenantID, platform, platformOrderID string) (string, error) {
	var id string
	err := s.DB.QueryRow(ctx, `
		SELECT id FROM orders
		WHERE user_id = $1 AND platform = $2 AND platform_order_id = $3
	`, tenantID, platform, platformOrderID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return id, err
}

// FindOrderIDByExternal matches an order row by platform_order_id only,
// across platforms. Printify references its source order this way.
func (s *Store) FindOrderIDByExternal(ctx context.Context, tenantID, externalID string) (string, error) {
	var id string
	err := s.DB.QueryRow(ctx, `
		SELECT id FROM orders
		WHERE user_id = $1 AND platform_order_id = $2
		ORDER BY ordered_at DESC
		LIMIT 1
	`, tenantID, externalID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return id, err
}

// UpsertLineItem writes a line item on (tenant, order, platform_line_item_id).
func (s *Store) UpsertLineItem(ctx context.Context, li *LineItem) error {
	if li.TenantID == "" || li.OrderID == "" || li.Title == "" {
		return fmt.Errorf("line item missing required fields (tenant=%q order=%q title=%q)",
			li.TenantID, li.OrderID, li.Title)
	}

	_, err := s.DB.Exec(ctx, `
		INSERT INTO order_line_items (user_id, order_id, platform_line_item_id, title,
		                              quantity, unit_price_cents, total_cents, sku, variant_title)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (user_id, order_id, platform_line_item_id) DO UPDATE SET
			title            = EXCLUDED.title,
			quantity         = EXCLUDED.quantity,
			unit_price_cents = EXCLUDED.unit_price_cents,
			total_cents      = EXCLUDED.total_cents,
			sku              = EXCLUDED.sku,
			variant_title    = EXCLUDED.variant_title
	`, li.TenantID, li.OrderID, li.PlatformLineItemID, li.Title,
		li.Quantity, li.UnitPriceCents, li.TotalCents, li.SKU, li.VariantTitle)
	if err != nil {
		return fmt.Errorf("upsert line item %s: %w", li.PlatformLineItemID, err)
	}
	return nil
}

// FulfillmentCosts carries Printify production data onto an existing
// order row.
type FulfillmentCosts struct {
	PrintifyOrderID     string
	ProductionCostCents int64
	ShippingCostCents   int64
	FulfillmentStatus   string
}

// AttachFulfillmentCosts updates a matched order with production and
// shipping costs plus the normalized fulfillment status.
func (s *Store) AttachFulfillmentCosts(ctx context.Context, orderID string, c FulfillmentCosts) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE orders SET
			printify_order_id             = $2,
			printify_production_cost_cents = $3,
			printify_shipping_cost_cents   = $4,
			fulfillment_status             = $5,
			updated_at                     = now()
		WHERE id = $1
	`, orderID, c.PrintifyOrderID, c.ProductionCostCents, c.ShippingCostCents, c.FulfillmentStatus)
	if err != nil {
		return fmt.Errorf("attach fulfillment costs: %w", err)
	}
	return nil
}

// IncrementOrderCount calls the billing counter stored procedure after
// a run that synced at least one order.
func (s *Store) IncrementOrderCount(ctx context.Context, tenantID string) error {
	_, err := s.DB.Exec(ctx, `SELECT increment_order_count($1)`, tenantID)
	return err
}
