package printify

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/craftsight/syncengine/internal/store"
	"github.com/craftsight/syncengine/internal/syncerr"
)

// ProductSource lists products; implemented by *Client.
type ProductSource interface {
	AllProducts(ctx context.Context) ([]Product, error)
}

// Write pacing for bulk product loads. Catalogs come back in one list,
// so writes are paced in batches to keep a large catalog from
// saturating the row store.
const (
	writeBatchSize  = 20
	writeBatchPause = 500 * time.Millisecond
)

// batchPause sleeps between write batches; stubbed in tests.
var batchPause = func(ctx context.Context) {
	t := time.NewTimer(writeBatchPause)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// SyncProducts pulls the full product list and writes each on
// (tenant, printify_product_id), pausing between write batches. The
// production cost recorded is the cheapest variant. A write failure on
// one record is logged and skipped; the run keeps going.
func SyncProducts(ctx context.Context, st Store, src ProductSource, tenantID string) (int, error) {
	products, err := src.AllProducts(ctx)
	if err != nil {
		return 0, err
	}

	synced, failed, created := 0, 0, 0
	for i, p := range products {
		if i > 0 && i%writeBatchSize == 0 {
			batchPause(ctx)
		}

		known, err := st.PrintifyProductExists(ctx, tenantID, p.ID)
		if err != nil {
			serr := &syncerr.StoreError{Table: "products", Err: err}
			log.Warn().Err(serr).Str("tenant", tenantID).Str("product", p.ID).
				Msg("product existence check failed, skipping record")
			failed++
			continue
		}
		if err := st.UpsertPrintifyProduct(ctx, mapProduct(tenantID, p)); err != nil {
			serr := &syncerr.StoreError{Table: "products", Err: err}
			log.Warn().Err(serr).Str("tenant", tenantID).Str("product", p.ID).
				Msg("product write failed, skipping record")
			failed++
			continue
		}
		if !known {
			created++
		}
		synced++
	}

	if created > 0 {
		log.Info().Str("tenant", tenantID).Int("new", created).Int("total", synced).
			Msg("discovered new printify products")
	}
	if failed > 0 {
		log.Warn().Str("tenant", tenantID).Int("failed", failed).Int("synced", synced).
			Msg("printify products run finished with record-level store failures")
	}
	return synced, nil
}

func mapProduct(tenantID string, p Product) *store.Product {
	minCost := int64(0)
	for i, v := range p.Variants {
		if i == 0 || v.Cost < minCost {
			minCost = v.Cost
		}
	}

	status := "draft"
	if p.Visible {
		status = "active"
	}
	imageURL := ""
	if len(p.Images) > 0 {
		imageURL = p.Images[0].Src
	}

	return &store.Product{
		TenantID:          tenantID,
		Title:             p.Title,
		PrintifyProductID: p.ID,
		BlueprintID:       strconv.FormatInt(p.BlueprintID, 10),
		PrintProviderID:   strconv.FormatInt(p.PrintProviderID, 10),
		ProductionCents:   minCost,
		Status:            status,
		ImageURL:          imageURL,
		Tags:              p.Tags,
	}
}
