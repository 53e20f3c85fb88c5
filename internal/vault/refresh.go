package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/craftsight/syncengine/internal/syncerr"
)

const etsyTokenURL = "https://api.etsy.com/v3/public/oauth/token"

// EtsyRefresher implements the Etsy v3 OAuth2 refresh flow. Etsy
// rotates the refresh token on every grant.
type EtsyRefresher struct {
	APIKey   string
	TokenURL string // defaults to the production endpoint
	HTTP     *http.Client
}

func (r *EtsyRefresher) Platform() string { return "etsy" }

func (r *EtsyRefresher) Refresh(ctx context.Context, v *Vault, tenantID string) (*Tokens, error) {
	tokens, err := v.Load(ctx, tenantID, "etsy")
	if err != nil {
		return nil, err
	}
	if tokens.RefreshToken == "" {
		return nil, fmt.Errorf("%w: no etsy refresh token for tenant %s", syncerr.ErrNoCredentials, tenantID)
	}

	endpoint := r.TokenURL
	if endpoint == "" {
		endpoint = etsyTokenURL
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {r.APIKey},
		"refresh_token": {tokens.RefreshToken},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", syncerr.ErrRefreshFailed, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: etsy returned %d: %s", syncerr.ErrRefreshFailed, resp.StatusCode, body)
	}

	var grant struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &grant); err != nil {
		return nil, fmt.Errorf("%w: decode etsy grant: %v", syncerr.ErrRefreshFailed, err)
	}
	if grant.ExpiresIn == 0 {
		grant.ExpiresIn = 3600
	}

	expiresAt := v.now().UTC().Add(time.Duration(grant.ExpiresIn) * time.Second)
	if err := v.Store(ctx, tenantID, "etsy", grant.AccessToken, grant.RefreshToken, &expiresAt); err != nil {
		return nil, err
	}

	log.Info().Str("tenant", tenantID).Time("expires_at", expiresAt).Msg("etsy token refreshed")
	return &Tokens{
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		ExpiresAt:    &expiresAt,
	}, nil
}

func (r *EtsyRefresher) client() *http.Client {
	if r.HTTP != nil {
		return r.HTTP
	}
	return &http.Client{Timeout: 30 * time.Second}
}

// ShopifyRefresher handles Shopify tokens. Offline access tokens do
// not expire, so the common path returns the stored token unchanged.
// When a deployment has recorded both an expiry and a refresh token,
// the shop-scoped token endpoint is used.
type ShopifyRefresher struct {
	APIKey    string
	APISecret string
	// BaseURL overrides the shop-domain-derived endpoint in tests.
	BaseURL string
	HTTP    *http.Client
}

func (r *ShopifyRefresher) Platform() string { return "shopify" }

func (r *ShopifyRefresher) Refresh(ctx context.Context, v *Vault, tenantID string) (*Tokens, error) {
	tokens, err := v.Load(ctx, tenantID, "shopify")
	if err != nil {
		return nil, err
	}

	// Non-expiring token, or no refresh material: hand it back as-is.
	// Refreshing only makes sense when a deployment has recorded both
	// an expiry and a refresh token.
	if tokens.RefreshToken == "" || tokens.ExpiresAt == nil || !v.IsExpired(tokens.ExpiresAt) {
		return tokens, nil
	}

	account, err := v.store.GetConnectedAccount(ctx, tenantID, "shopify")
	if err != nil {
		return nil, err
	}
	if account == nil || account.PlatformShopID == nil || *account.PlatformShopID == "" {
		return nil, fmt.Errorf("%w: no shop domain stored for tenant %s", syncerr.ErrRefreshFailed, tenantID)
	}

	endpoint := r.BaseURL
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s", *account.PlatformShopID)
	}
	endpoint += "/admin/oauth/access_token"

	payload, err := json.Marshal(map[string]string{
		"client_id":     r.APIKey,
		"client_secret": r.APISecret,
		"grant_type":    "refresh_token",
		"refresh_token": tokens.RefreshToken,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", syncerr.ErrRefreshFailed, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: shopify returned %d: %s", syncerr.ErrRefreshFailed, resp.StatusCode, body)
	}

	var grant struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresAt    *time.Time `json:"expires_at"`
	}
	if err := json.Unmarshal(body, &grant); err != nil {
		return nil, fmt.Errorf("%w: decode shopify grant: %v", syncerr.ErrRefreshFailed, err)
	}

	// Shopify may omit the refresh token; keep using the original.
	refresh := grant.RefreshToken
	if refresh == "" {
		refresh = tokens.RefreshToken
	}

	if err := v.Store(ctx, tenantID, "shopify", grant.AccessToken, refresh, grant.ExpiresAt); err != nil {
		return nil, err
	}

	log.Info().Str("tenant", tenantID).Msg("shopify token refreshed")
	return &Tokens{
		AccessToken:  grant.AccessToken,
		RefreshToken: refresh,
		ExpiresAt:    grant.ExpiresAt,
	}, nil
}

func (r *ShopifyRefresher) client() *http.Client {
	if r.HTTP != nil {
		return r.HTTP
	}
	return &http.Client{Timeout: 30 * time.Second}
}
