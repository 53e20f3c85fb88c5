package etsy

import (
	"context"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/craftsight/syncengine/internal/store"
	"github.com/craftsight/syncengine/internal/syncerr"
)

// ListingSource lists active listings; implemented by *Client.
type ListingSource interface {
	ActiveListings(ctx context.Context) ([]Listing, error)
}

const descriptionLimit = 500

// SyncListings pulls the full active listing list and upserts products
// on (tenant, etsy_listing_id). Listings have no incremental cursor;
// the full list is cheap relative to orders.
func SyncListings(ctx context.Context, st Store, src ListingSource, tenantID string) (int, error) {
	listings, err := src.ActiveListings(ctx)
	if err != nil {
		return 0, err
	}

	synced, failed := 0, 0
	for _, l := range listings {
		if err := st.UpsertEtsyListing(ctx, mapListingToProduct(tenantID, l)); err != nil {
			serr := &syncerr.StoreError{Table: "products", Err: err}
			log.Warn().Err(serr).Str("tenant", tenantID).Int64("listing", l.ListingID).
				Msg("listing write failed, skipping record")
			failed++
			continue
		}
		synced++
	}
	if failed > 0 {
		log.Warn().Str("tenant", tenantID).Int("failed", failed).Int("synced", synced).
			Msg("etsy listings run finished with record-level store failures")
	}
	return synced, nil
}

func mapListingToProduct(tenantID string, l Listing) *store.Product {
	desc := l.Description
	if len(desc) > descriptionLimit {
		desc = desc[:descriptionLimit]
	}
	state := l.State
	if state == "" {
		state = "active"
	}
	imageURL := ""
	if len(l.Images) > 0 {
		imageURL = l.Images[0].URL570
	}

	return &store.Product{
		TenantID:       tenantID,
		Title:          l.Title,
		Description:    desc,
		EtsyListingID:  strconv.FormatInt(l.ListingID, 10),
		EtsyURL:        l.URL,
		Status:         state,
		PriceCents:     l.Price.Cents(),
		Currency:       l.Price.Currency(),
		TotalViews:     l.Views,
		TotalFavorites: l.NumFavorers,
		Tags:           l.Tags,
		ImageURL:       imageURL,
		RawData:        l.rawPayload(),
	}
}

func (l Listing) rawPayload() any {
	if len(l.raw) > 0 {
		return l.raw
	}
	return l
}
