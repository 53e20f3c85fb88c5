package shopify

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/craftsight/syncengine/internal/store"
	"github.com/craftsight/syncengine/internal/syncerr"
)

// ProductSource lists products; implemented by *Client.
type ProductSource interface {
	Products(ctx context.Context) ([]Product, error)
	ShopDomain() string
}

// SyncProducts pulls the full product list and upserts on
// (tenant, shopify_product_id). Products carry no incremental cursor.
func SyncProducts(ctx context.Context, st Store, src ProductSource, tenantID string) (int, error) {
	products, err := src.Products(ctx)
	if err != nil {
		return 0, err
	}

	domain := src.ShopDomain()
	synced, failed := 0, 0
	for _, p := range products {
		if err := st.UpsertShopifyProduct(ctx, mapProduct(tenantID, domain, p)); err != nil {
			serr := &syncerr.StoreError{Table: "products", Err: err}
			log.Warn().Err(serr).Str("tenant", tenantID).Str("product", NumericID(p.ID)).
				Msg("product write failed, skipping record")
			failed++
			continue
		}
		synced++
	}
	if failed > 0 {
		log.Warn().Str("tenant", tenantID).Int("failed", failed).Int("synced", synced).
			Msg("shopify products run finished with record-level store failures")
	}
	return synced, nil
}

func mapProduct(tenantID, shopDomain string, p Product) *store.Product {
	min := p.PriceRangeV2.MinVariantPrice
	cents := int64(0)
	if f, err := strconv.ParseFloat(min.Amount, 64); err == nil {
		cents = int64(math.Round(f * 100))
	}
	currency := min.CurrencyCode
	if currency == "" {
		currency = "USD"
	}
	status := strings.ToLower(p.Status)
	if status == "" {
		status = "active"
	}
	imageURL := ""
	if p.FeaturedImage != nil {
		imageURL = p.FeaturedImage.URL
	}

	return &store.Product{
		TenantID:         tenantID,
		Title:            p.Title,
		ShopifyProductID: NumericID(p.ID),
		ShopifyURL:       fmt.Sprintf("https://%s/products/%s", shopDomain, p.Handle),
		Status:           status,
		PriceCents:       cents,
		Currency:         currency,
		ImageURL:         imageURL,
		Tags:             p.Tags,
	}
}
