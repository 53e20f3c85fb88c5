// Package vault owns OAuth credential confidentiality and refresh.
// Tokens are AES-256-GCM ciphertext at rest; plaintext exists only in
// process memory while a sync run needs it. Refreshes for the same
// (tenant, platform) are collapsed through singleflight so concurrent
// workers hitting a 401 at the same moment issue one upstream call.
package vault

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/craftsight/syncengine/internal/store"
	"github.com/craftsight/syncengine/internal/syncerr"
)

// Tokens is the decrypted credential set for one connected account.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
}

// Refresher performs the platform-specific upstream token refresh.
// Implementations live in refresh.go.
type Refresher interface {
	Refresh(ctx context.Context, v *Vault, tenantID string) (*Tokens, error)
	Platform() string
}

// Store is the slice of the row store the vault needs. The concrete
// *store.Store satisfies it; tests use fakes.
type Store interface {
	GetConnectedAccount(ctx context.Context, tenantID, platform string) (*store.ConnectedAccount, error)
	UpsertAccountTokens(ctx context.Context, tenantID, platform, accessEnc string, refreshEnc *string, expiresAt *time.Time) error
}

var _ Store = (*store.Store)(nil)

// Vault encrypts, persists, loads, and refreshes per-tenant OAuth
// credentials.
type Vault struct {
	store      Store
	box        *cipherBox
	refreshers map[string]Refresher
	group      singleflight.Group
	now        func() time.Time
}

// New creates a Vault over the row store with the given 32-byte key.
func New(s Store, key []byte, refreshers ...Refresher) (*Vault, error) {
	box, err := newCipherBox(key)
	if err != nil {
		return nil, err
	}
	v := &Vault{
		store:      s,
		box:        box,
		refreshers: make(map[string]Refresher, len(refreshers)),
		now:        time.Now,
	}
	for _, r := range refreshers {
		v.refreshers[r.Platform()] = r
	}
	return v, nil
}

// Store encrypts and upserts credentials for (tenant, platform).
// Access and refresh tokens are encrypted independently.
func (v *Vault) Store(ctx context.Context, tenantID, platform, access, refresh string, expiresAt *time.Time) error {
	accessEnc, err := v.box.Encrypt(access)
	if err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}

	var refreshEnc *string
	if refresh != "" {
		enc, err := v.box.Encrypt(refresh)
		if err != nil {
			return fmt.Errorf("encrypt refresh token: %w", err)
		}
		refreshEnc = &enc
	}

	return v.store.UpsertAccountTokens(ctx, tenantID, platform, accessEnc, refreshEnc, expiresAt)
}

// Load returns decrypted credentials, or ErrNoCredentials when the
// account is missing. Decrypt failures are surfaced, never swallowed.
func (v *Vault) Load(ctx context.Context, tenantID, platform string) (*Tokens, error) {
	a, err := v.store.GetConnectedAccount(ctx, tenantID, platform)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("%w: no %s account for tenant %s", syncerr.ErrNoCredentials, platform, tenantID)
	}

	access, err := v.box.Decrypt(a.AccessTokenEncrypted)
	if err != nil {
		return nil, fmt.Errorf("%w: access token for %s/%s unreadable: %v",
			syncerr.ErrNoCredentials, tenantID, platform, err)
	}

	t := &Tokens{AccessToken: access, ExpiresAt: a.TokenExpiresAt}
	if a.RefreshTokenEncrypted != nil && *a.RefreshTokenEncrypted != "" {
		refresh, err := v.box.Decrypt(*a.RefreshTokenEncrypted)
		if err != nil {
			return nil, fmt.Errorf("%w: refresh token for %s/%s unreadable: %v",
				syncerr.ErrNoCredentials, tenantID, platform, err)
		}
		t.RefreshToken = refresh
	}
	return t, nil
}

// IsExpired reports whether the expiry has passed. A missing expiry
// counts as expired; platforms whose tokens genuinely never expire
// handle that in their Refresher instead.
func (v *Vault) IsExpired(expiresAt *time.Time) bool {
	if expiresAt == nil {
		return true
	}
	return !v.now().UTC().Before(expiresAt.UTC())
}

// EnsureValid returns non-expired plaintext tokens for the account,
// refreshing through the platform's Refresher when needed.
func (v *Vault) EnsureValid(ctx context.Context, tenantID, platform string) (*Tokens, error) {
	tokens, err := v.Load(ctx, tenantID, platform)
	if err != nil {
		return nil, err
	}
	if !v.IsExpired(tokens.ExpiresAt) {
		return tokens, nil
	}
	return v.ForceRefresh(ctx, tenantID, platform)
}

// ForceRefresh runs the platform refresh flow regardless of expiry.
// Adapters call this on a 401 from an upstream that lied about expiry.
func (v *Vault) ForceRefresh(ctx context.Context, tenantID, platform string) (*Tokens, error) {
	r, ok := v.refreshers[platform]
	if !ok {
		return nil, fmt.Errorf("%w: no refresh flow for platform %s", syncerr.ErrRefreshFailed, platform)
	}

	key := tenantID + "/" + platform
	result, err, shared := v.group.Do(key, func() (any, error) {
		return r.Refresh(ctx, v, tenantID)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.Debug().Str("tenant", tenantID).Str("platform", platform).
			Msg("token refresh coalesced with concurrent caller")
	}
	return result.(*Tokens), nil
}
