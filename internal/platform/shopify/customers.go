package shopify

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/craftsight/syncengine/internal/store"
	"github.com/craftsight/syncengine/internal/syncerr"
)

// CustomerSource lists customers; implemented by *Client.
type CustomerSource interface {
	Customers(ctx context.Context) ([]Customer, error)
}

// SyncCustomers pulls the full customer list and upserts on
// (tenant, shopify_customer_id).
func SyncCustomers(ctx context.Context, st Store, src CustomerSource, tenantID string) (int, error) {
	customers, err := src.Customers(ctx)
	if err != nil {
		return 0, err
	}

	synced, failed := 0, 0
	for _, cu := range customers {
		if err := st.UpsertShopifyCustomer(ctx, mapCustomer(tenantID, cu)); err != nil {
			serr := &syncerr.StoreError{Table: "customers", Err: err}
			log.Warn().Err(serr).Str("tenant", tenantID).Str("customer", NumericID(cu.ID)).
				Msg("customer write failed, skipping record")
			failed++
			continue
		}
		synced++
	}
	if failed > 0 {
		log.Warn().Str("tenant", tenantID).Int("failed", failed).Int("synced", synced).
			Msg("shopify customers run finished with record-level store failures")
	}
	return synced, nil
}

func mapCustomer(tenantID string, cu Customer) *store.Customer {
	spentCents := int64(0)
	if f, err := strconv.ParseFloat(cu.TotalSpent.Amount, 64); err == nil {
		spentCents = int64(math.Round(f * 100))
	}

	full := strings.TrimSpace(deref(cu.FirstName) + " " + deref(cu.LastName))

	out := &store.Customer{
		TenantID:          tenantID,
		Email:             cu.Email,
		FirstName:         cu.FirstName,
		LastName:          cu.LastName,
		FullName:          full,
		Phone:             cu.Phone,
		ShopifyCustomerID: NumericID(cu.ID),
		OrderCount:        cu.OrdersCount,
		TotalSpentCents:   spentCents,
	}
	if addr := cu.DefaultAddress; addr != nil {
		out.City = addr.City
		out.State = addr.ProvinceCode
		out.Country = addr.CountryCode
		out.Zip = addr.Zip
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
