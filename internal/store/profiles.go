package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Profile is the subscription state for one tenant. The profiles table
// is keyed on user_id (the auth provider's subject), which is also the
// tenant id used everywhere else in the engine.
type Profile struct {
	TenantID   string
	Email      *string
	Plan       string // free | starter | growth | pro
	PlanStatus string // active | past_due | cancelled
}

// GetProfile returns a tenant's profile, or (nil, nil) when missing.
func (s *Store) GetProfile(ctx context.Context, tenantID string) (*Profile, error) {
	var p Profile
	err := s.DB.QueryRow(ctx, `
		SELECT user_id, email, plan, plan_status FROM profiles WHERE user_id = $1
	`, tenantID).Scan(&p.TenantID, &p.Email, &p.Plan, &p.PlanStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	return &p, nil
}

// ListTenants returns every tenant id, for batch fan-out.
func (s *Store) ListTenants(ctx context.Context) ([]string, error) {
	rows, err := s.DB.Query(ctx, `SELECT user_id FROM profiles ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		tenants = append(tenants, id)
	}
	return tenants, rows.Err()
}
