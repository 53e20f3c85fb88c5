package store

import (
	"context"
	"fmt"
)

// Customer is a normalized customer row, upserted by platform
// customer id.
type Customer struct {
	TenantID          string
	Email             *string
	FirstName         *string
	LastName          *string
	FullName          string
	Phone             *string
	City              *string
	State             *string
	Country           *string
	Zip               *string
	ShopifyCustomerID string
	OrderCount        int
	TotalSpentCents   int64
}

// UpsertShopifyCustomer writes a customer on (tenant, shopify_customer_id).
func (s *Store) UpsertShopifyCustomer(ctx context.Context, c *Customer) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO customers (user_id, email, first_name, last_name, full_name, phone,
		                       city, state, country, zip, shopify_customer_id,
		                       order_count, total_spent_cents, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13, now())
		ON CONFLICT (user_id, shopify_customer_id) DO UPDATE SET
			email             = EXCLUDED.email,
			first_name        = EXCLUDED.first_name,
			last_name         = EXCLUDED.last_name,
			full_name         = EXCLUDED.full_name,
			phone             = EXCLUDED.phone,
			city              = EXCLUDED.city,
			state             = EXCLUDED.state,
			country           = EXCLUDED.country,
			zip               = EXCLUDED.zip,
			order_count       = EXCLUDED.order_count,
			total_spent_cents = EXCLUDED.total_spent_cents,
			updated_at        = now()
	`, c.TenantID, c.Email, c.FirstName, c.LastName, c.FullName, c.Phone,
		c.City, c.State, c.Country, c.Zip, c.ShopifyCustomerID,
		c.OrderCount, c.TotalSpentCents)
	if err != nil {
		return fmt.Errorf("upsert customer %s: %w", c.ShopifyCustomerID, err)
	}
	return nil
}
