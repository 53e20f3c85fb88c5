// Package printify is the Printify v1 adapter: a per-tenant client plus
// the fulfillment-order and product sync workers.
package printify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/craftsight/syncengine/internal/budget"
	"github.com/craftsight/syncengine/internal/httpx"
	"github.com/craftsight/syncengine/internal/store"
	"github.com/craftsight/syncengine/internal/syncerr"
	"github.com/craftsight/syncengine/internal/vault"
)

const defaultBaseURL = "https://api.printify.com/v1"

const pageLimit = 100

// Order is one fulfillment order. Money fields are already integer
// cents upstream.
type Order struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	External struct {
		ID string `json:"id"`
	} `json:"external"`
	LineItems []struct {
		Cost int64 `json:"cost"`
	} `json:"line_items"`
	TotalPrice    int64  `json:"total_price"`
	TotalShipping int64  `json:"total_shipping"`
	CreatedAt     string `json:"created_at"`

	raw json.RawMessage
}

// Product is one print-on-demand product with its variants.
type Product struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	BlueprintID     int64  `json:"blueprint_id"`
	PrintProviderID int64  `json:"print_provider_id"`
	Visible         bool   `json:"visible"`
	Variants        []struct {
		Cost int64 `json:"cost"`
	} `json:"variants"`
	Images []struct {
		Src string `json:"src"`
	} `json:"images"`
	Tags []string `json:"tags"`
}

// Client is a per-tenant Printify API client. Printify uses long-lived
// personal access tokens; there is no refresh flow, so a 401 is
// terminal for the run.
type Client struct {
	tenantID string
	shopID   string
	baseURL  string

	tokens *vault.Tokens
	budget *budget.Budgeter
	http   *httpx.Client
}

// NewClient loads the tenant's token and shop id. Tokens are loaded
// without an expiry check: PATs carry no expires_at and no refresh
// flow exists to route them through.
func NewClient(ctx context.Context, tenantID string, st *store.Store, v *vault.Vault, b *budget.Budgeter) (*Client, error) {
	tokens, err := v.Load(ctx, tenantID, "printify")
	if err != nil {
		return nil, err
	}

	account, err := st.GetConnectedAccount(ctx, tenantID, "printify")
	if err != nil {
		return nil, err
	}
	if account == nil || account.PlatformShopID == nil || *account.PlatformShopID == "" {
		return nil, fmt.Errorf("%w: no printify shop id for tenant %s", syncerr.ErrNoCredentials, tenantID)
	}

	return &Client{
		tenantID: tenantID,
		shopID:   *account.PlatformShopID,
		baseURL:  defaultBaseURL,
		tokens:   tokens,
		budget:   b,
		http:     httpx.New(),
	}, nil
}

func (c *Client) request(ctx context.Context, path string, query url.Values, out any) error {
	if !c.budget.CanRequest(c.tenantID, "printify") {
		return fmt.Errorf("%w: printify budget exhausted for tenant %s", syncerr.ErrRateLimited, c.tenantID)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+c.tokens.AccessToken)

	resp, err := c.http.Request(ctx, http.MethodGet, u, headers, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	c.budget.Record(c.tenantID, "printify", 1)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read printify response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &syncerr.UpstreamError{Platform: "printify", Status: resp.StatusCode, Body: string(body)}
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode printify response: %w", err)
		}
	}
	return nil
}

type ordersPage struct {
	Data     []json.RawMessage `json:"data"`
	LastPage int               `json:"last_page"`
}

// AllOrders pages through the shop's orders via page/last_page.
func (c *Client) AllOrders(ctx context.Context) ([]Order, error) {
	var all []Order
	page := 1

	for {
		q := url.Values{
			"page":  {fmt.Sprint(page)},
			"limit": {fmt.Sprint(pageLimit)},
		}

		var p ordersPage
		if err := c.request(ctx, fmt.Sprintf("/shops/%s/orders.json", c.shopID), q, &p); err != nil {
			return nil, err
		}

		for _, raw := range p.Data {
			var o Order
			if err := json.Unmarshal(raw, &o); err != nil {
				return nil, fmt.Errorf("decode printify order: %w", err)
			}
			o.raw = raw
			all = append(all, o)
		}

		if p.LastPage == 0 || page >= p.LastPage {
			return all, nil
		}
		page++
	}
}

type productsPage struct {
	Data     []Product `json:"data"`
	LastPage int       `json:"last_page"`
}

// AllProducts pages through the shop's products.
func (c *Client) AllProducts(ctx context.Context) ([]Product, error) {
	var all []Product
	page := 1

	for {
		q := url.Values{
			"page":  {fmt.Sprint(page)},
			"limit": {fmt.Sprint(pageLimit)},
		}

		var p productsPage
		if err := c.request(ctx, fmt.Sprintf("/shops/%s/products.json", c.shopID), q, &p); err != nil {
			return nil, err
		}

		all = append(all, p.Data...)
		if p.LastPage == 0 || page >= p.LastPage {
			return all, nil
		}
		page++
	}
}
