package store

import (
	"context"
	"fmt"
)

// RateLedgerRow is one (date, platform, tenant) counter persisted so
// worker restarts do not re-spend quota already used today.
type RateLedgerRow struct {
	Date         string // YYYY-MM-DD, UTC
	Platform     string
	TenantID     string
	RequestCount int
}

// FlushRateLedger upserts in-memory counters into rate_limit_tracking.
func (s *Store) FlushRateLedger(ctx context.Context, rows []RateLedgerRow) error {
	for _, r := range rows {
		_, err := s.DB.Exec(ctx, `
			INSERT INTO rate_limit_tracking (date, platform, user_id, request_count, updated_at)
			VALUES ($1,$2,$3,$4, now())
			ON CONFLICT (date, platform, user_id) DO UPDATE SET
				request_count = EXCLUDED.request_count,
				updated_at    = now()
		`, r.Date, r.Platform, r.TenantID, r.RequestCount)
		if err != nil {
			return fmt.Errorf("flush rate ledger %s/%s: %w", r.Platform, r.TenantID, err)
		}
	}
	return nil
}

// LoadRateLedger returns all counters recorded for the given UTC date.
func (s *Store) LoadRateLedger(ctx context.Context, date string) ([]RateLedgerRow, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT date, platform, user_id, request_count
		FROM rate_limit_tracking
		WHERE date = $1
	`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RateLedgerRow
	for rows.Next() {
		var r RateLedgerRow
		if err := rows.Scan(&r.Date, &r.Platform, &r.TenantID, &r.RequestCount); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
