package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ConnectedAccount is one (tenant, platform) OAuth connection. Token
// columns hold ciphertext; the vault is the only reader of plaintext.
type ConnectedAccount struct {
	TenantID              string
	Platform              string
	AccessTokenEncrypted  string
	RefreshTokenEncrypted *string
	TokenExpiresAt        *time.Time
	PlatformShopID        *string
	SyncCursor            map[string]any
	Status                string
	LastSyncAt            *time.Time
	UpdatedAt             time.Time
}

// GetConnectedAccount returns the account row, or (nil, nil) when the
// tenant has no connection for the platform.
func (s *Store) GetConnectedAccount(ctx context.Context, tenantID, platform string) (*ConnectedAccount, error) {
	var a ConnectedAccount
	var cursorJSON []byte

	err := s.DB.QueryRow(ctx, `
		SELECT user_id, platform, access_token_encrypted, refresh_token_encrypted,
		       token_expires_at, platform_shop_id, sync_cursor, status, last_sync_at, updated_at
		FROM connected_accounts
		WHERE user_id = $1 AND platform = $2
	`, tenantID, platform).Scan(
		&a.TenantID, &a.Platform, &a.AccessTokenEncrypted, &a.RefreshTokenEncrypted,
		&a.TokenExpiresAt, &a.PlatformShopID, &cursorJSON, &a.Status, &a.LastSyncAt, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load connected account: %w", err)
	}

	a.SyncCursor = map[string]any{}
	if len(cursorJSON) > 0 {
		if err := json.Unmarshal(cursorJSON, &a.SyncCursor); err != nil {
			return nil, fmt.Errorf("decode sync_cursor: %w", err)
		}
	}
	return &a, nil
}

// UpsertAccountTokens writes encrypted credentials for (tenant,
// platform), inserting the row on first connect. Refresh token and
// expiry are only overwritten when provided, matching OAuth servers
// that omit them on refresh.
func (s *Store) UpsertAccountTokens(ctx context.Context, tenantID, platform, accessEnc string, refreshEnc *string, expiresAt *time.Time) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO connected_accounts (user_id, platform, access_token_encrypted,
		                                refresh_token_encrypted, token_expires_at, status, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'connected', now())
		ON CONFLICT (user_id, platform) DO UPDATE SET
			access_token_encrypted  = EXCLUDED.access_token_encrypted,
			refresh_token_encrypted = COALESCE(EXCLUDED.refresh_token_encrypted, connected_accounts.refresh_token_encrypted),
			token_expires_at        = COALESCE(EXCLUDED.token_expires_at, connected_accounts.token_expires_at),
			updated_at              = now()
	`, tenantID, platform, accessEnc, refreshEnc, expiresAt)
	if err != nil {
		return fmt.Errorf("upsert account tokens: %w", err)
	}
	return nil
}

// GetSyncCursor returns the string value stored under key in the
// account's sync_cursor, or "" when absent.
func (s *Store) GetSyncCursor(ctx context.Context, tenantID, platform, key string) (string, error) {
	a, err := s.GetConnectedAccount(ctx, tenantID, platform)
	if err != nil || a == nil {
		return "", err
	}
	switch v := a.SyncCursor[key].(type) {
	case string:
		return v, nil
	case float64:
		return fmt.Sprintf("%d", int64(v)), nil
	}
	return "", nil
}

// SetSyncCursor merges key=value into the account's sync_cursor JSON.
// Other stream cursors on the same account are preserved.
func (s *Store) SetSyncCursor(ctx context.Context, tenantID, platform, key, value string) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE connected_accounts
		SET sync_cursor = COALESCE(sync_cursor, '{}'::jsonb) || jsonb_build_object($3::text, $4::text),
		    updated_at = now()
		WHERE user_id = $1 AND platform = $2
	`, tenantID, platform, key, value)
	if err != nil {
		return fmt.Errorf("set sync_cursor %s: %w", key, err)
	}
	return nil
}

// TouchLastSync stamps last_sync_at after a completed run.
func (s *Store) TouchLastSync(ctx context.Context, tenantID, platform string) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE connected_accounts SET last_sync_at = now()
		WHERE user_id = $1 AND platform = $2
	`, tenantID, platform)
	return err
}

// ConnectedPlatforms lists platforms with status='connected' for a tenant.
func (s *Store) ConnectedPlatforms(ctx context.Context, tenantID string) ([]string, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT platform FROM connected_accounts
		WHERE user_id = $1 AND status = 'connected'
		ORDER BY platform
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var platforms []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		platforms = append(platforms, p)
	}
	return platforms, rows.Err()
}

// CountAccountsByPlatform groups connected accounts per platform. The
// budgeter uses this to split shared quotas fairly.
func (s *Store) CountAccountsByPlatform(ctx context.Context) (map[string]int, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT platform, count(*) FROM connected_accounts GROUP BY platform
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var p string
		var n int
		if err := rows.Scan(&p, &n); err != nil {
			return nil, err
		}
		counts[p] = n
	}
	return counts, rows.Err()
}
