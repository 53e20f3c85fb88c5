package store

import "context"

// The nightly and weekly batches delegate the analytics math to
// row-store procedures; this file only triggers them per tenant.

// ComputeFinancials rolls up daily and monthly financials.
func (s *Store) ComputeFinancials(ctx context.Context, tenantID string) error {
	_, err := s.DB.Exec(ctx, `SELECT compute_financials($1)`, tenantID)
	return err
}

// MergeCustomers merges cross-platform customer identities.
func (s *Store) MergeCustomers(ctx context.Context, tenantID string) error {
	_, err := s.DB.Exec(ctx, `SELECT compute_customer_merge($1)`, tenantID)
	return err
}

// ComputeBestsellers recomputes bestseller candidates.
func (s *Store) ComputeBestsellers(ctx context.Context, tenantID string) error {
	_, err := s.DB.Exec(ctx, `SELECT compute_bestsellers($1)`, tenantID)
	return err
}

// ComputeRFM recomputes recency/frequency/monetary segments.
func (s *Store) ComputeRFM(ctx context.Context, tenantID string) error {
	_, err := s.DB.Exec(ctx, `SELECT compute_rfm($1)`, tenantID)
	return err
}
