package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Product is a normalized product/listing row. Exactly one of the
// platform id fields is set per upsert; each platform keys on its own
// column so a listing can later be linked across platforms.
type Product struct {
	TenantID    string
	Title       string
	Description string
	Status      string
	PriceCents  int64
	Currency    string
	ImageURL    string
	Tags        []string

	EtsyListingID     string
	EtsyURL           string
	TotalViews        int
	TotalFavorites    int
	ShopifyProductID  string
	ShopifyURL        string
	PrintifyProductID string
	BlueprintID       string
	PrintProviderID   string
	ProductionCents   int64

	RawData any
}

// UpsertEtsyListing writes a product keyed on (tenant, etsy_listing_id).
func (s *Store) UpsertEtsyListing(ctx context.Context, p *Product) error {
	rawJSON, err := json.Marshal(p.RawData)
	if err != nil {
		return fmt.Errorf("encode raw_data: %w", err)
	}
	_, err = s.DB.Exec(ctx, `
		INSERT INTO products (user_id, title, description, etsy_listing_id, etsy_url, status,
		                      price_cents, currency, total_views, total_favorites, tags, image_url, raw_data, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13, now())
		ON CONFLICT (user_id, etsy_listing_id) DO UPDATE SET
			title           = EXCLUDED.title,
			description     = EXCLUDED.description,
			etsy_url        = EXCLUDED.etsy_url,
			status          = EXCLUDED.status,
			price_cents     = EXCLUDED.price_cents,
			currency        = EXCLUDED.currency,
			total_views     = EXCLUDED.total_views,
			total_favorites = EXCLUDED.total_favorites,
			tags            = EXCLUDED.tags,
			image_url       = EXCLUDED.image_url,
			raw_data        = EXCLUDED.raw_data,
			updated_at      = now()
	`, p.TenantID, p.Title, p.Description, p.EtsyListingID, p.EtsyURL, p.Status,
		p.PriceCents, p.Currency, p.TotalViews, p.TotalFavorites, p.Tags, p.ImageURL, rawJSON)
	if err != nil {
		return fmt.Errorf("upsert etsy listing %s: %w", p.EtsyListingID, err)
	}
	return nil
}

// UpsertShopifyProduct writes a product keyed on (tenant, shopify_product_id).
func (s *Store) UpsertShopifyProduct(ctx context.Context, p *Product) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO products (user_id, title, shopify_product_id, shopify_url, status,
		                      price_cents, currency, image_url, tags, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9, now())
		ON CONFLICT (user_id, shopify_product_id) DO UPDATE SET
			title       = EXCLUDED.title,
			shopify_url = EXCLUDED.shopify_url,
			status      = EXCLUDED.status,
			price_cents = EXCLUDED.price_cents,
			currency    = EXCLUDED.currency,
			image_url   = EXCLUDED.image_url,
			tags        = EXCLUDED.tags,
			updated_at  = now()
	`, p.TenantID, p.Title, p.ShopifyProductID, p.ShopifyURL, p.Status,
		p.PriceCents, p.Currency, p.ImageURL, p.Tags)
	if err != nil {
		return fmt.Errorf("upsert shopify product %s: %w", p.ShopifyProductID, err)
	}
	return nil
}

// PrintifyProductExists checks for an existing row on the printify key.
// The printify sync uses an explicit existence check so the update does
// not clobber columns owned by the other platform syncs.
func (s *Store) PrintifyProductExists(ctx context.Context, tenantID, printifyProductID string) (bool, error) {
	var one int
	err := s.DB.QueryRow(ctx, `
		SELECT 1 FROM products WHERE user_id = $1 AND printify_product_id = $2
	`, tenantID, printifyProductID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// UpsertPrintifyProduct inserts or updates a product keyed on
// (tenant, printify_product_id).
func (s *Store) UpsertPrintifyProduct(ctx context.Context, p *Product) error {
	exists, err := s.PrintifyProductExists(ctx, p.TenantID, p.PrintifyProductID)
	if err != nil {
		return err
	}

	if exists {
		_, err = s.DB.Exec(ctx, `
			UPDATE products SET
				title                          = $3,
				printify_blueprint_id          = $4,
				printify_provider_id           = $5,
				printify_production_cost_cents = $6,
				status                         = $7,
				image_url                      = $8,
				tags                           = $9,
				updated_at                     = now()
			WHERE user_id = $1 AND printify_product_id = $2
		`, p.TenantID, p.PrintifyProductID, p.Title, p.BlueprintID, p.PrintProviderID,
			p.ProductionCents, p.Status, p.ImageURL, p.Tags)
	} else {
		_, err = s.DB.Exec(ctx, `
			INSERT INTO products (user_id, printify_product_id, title, printify_blueprint_id,
			                      printify_provider_id, printify_production_cost_cents,
			                      status, image_url, tags, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9, now())
		`, p.TenantID, p.PrintifyProductID, p.Title, p.BlueprintID, p.PrintProviderID,
			p.ProductionCents, p.Status, p.ImageURL, p.Tags)
	}
	if err != nil {
		return fmt.Errorf("upsert printify product %s: %w", p.PrintifyProductID, err)
	}
	return nil
}
