// Package shopify is the Shopify Admin GraphQL adapter: a per-tenant
// client plus the orders, products, and customers sync workers.
package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/craftsight/syncengine/internal/budget"
	"github.com/craftsight/syncengine/internal/httpx"
	"github.com/craftsight/syncengine/internal/store"
	"github.com/craftsight/syncengine/internal/syncerr"
	"github.com/craftsight/syncengine/internal/vault"
)

const apiVersion = "2024-10"

const pageSize = 50

// Client is a per-tenant Shopify GraphQL client.
type Client struct {
	tenantID   string
	shopDomain string
	endpoint   string

	tokens *vault.Tokens
	vault  *vault.Vault
	budget *budget.Budgeter
	http   *httpx.Client
}

// NewClient loads the tenant's token and shop domain.
func NewClient(ctx context.Context, tenantID string, st *store.Store, v *vault.Vault, b *budget.Budgeter) (*Client, error) {
	tokens, err := v.EnsureValid(ctx, tenantID, "shopify")
	if err != nil {
		return nil, err
	}

	account, err := st.GetConnectedAccount(ctx, tenantID, "shopify")
	if err != nil {
		return nil, err
	}
	if account == nil || account.PlatformShopID == nil || *account.PlatformShopID == "" {
		return nil, fmt.Errorf("%w: no shopify shop domain for tenant %s", syncerr.ErrNoCredentials, tenantID)
	}

	domain := *account.PlatformShopID
	return &Client{
		tenantID:   tenantID,
		shopDomain: domain,
		endpoint:   fmt.Sprintf("https://%s/admin/api/%s/graphql.json", domain, apiVersion),
		tokens:     tokens,
		vault:      v,
		budget:     b,
		http:       httpx.New(),
	}, nil
}

// ShopDomain returns the connected store's domain, used for product URLs.
func (c *Client) ShopDomain() string { return c.shopDomain }

// graphqlError is Shopify's in-band error envelope.
type graphqlError struct {
	Message string `json:"message"`
}

// GraphQL executes one query under the shared adapter call contract.
func (c *Client) GraphQL(ctx context.Context, query string, variables map[string]any, out any) error {
	if !c.budget.CanRequest(c.tenantID, "shopify") {
		return fmt.Errorf("%w: shopify budget exhausted for tenant %s", syncerr.ErrRateLimited, c.tenantID)
	}

	payload, err := json.Marshal(map[string]any{"query": query, "variables": variables})
	if err != nil {
		return err
	}

	resp, err := c.http.Request(ctx, http.MethodPost, c.endpoint, c.headers(), payload)
	if err != nil {
		return err
	}
	c.budget.Record(c.tenantID, "shopify", 1)

	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		tokens, err := c.vault.ForceRefresh(ctx, c.tenantID, "shopify")
		if err != nil {
			return err
		}
		c.tokens = tokens

		resp, err = c.http.Request(ctx, http.MethodPost, c.endpoint, c.headers(), payload)
		if err != nil {
			return err
		}
		c.budget.Record(c.tenantID, "shopify", 1)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read shopify response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &syncerr.UpstreamError{Platform: "shopify", Status: resp.StatusCode, Body: string(body)}
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []graphqlError  `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("decode shopify envelope: %w", err)
	}
	if len(envelope.Errors) > 0 {
		return &syncerr.UpstreamError{Platform: "shopify", Status: resp.StatusCode, Body: envelope.Errors[0].Message}
	}
	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decode shopify data: %w", err)
		}
	}
	return nil
}

func (c *Client) headers() http.Header {
	h := http.Header{}
	h.Set("X-Shopify-Access-Token", c.tokens.AccessToken)
	h.Set("Content-Type", "application/json")
	return h
}
