// Package etsy is the Etsy v3 platform adapter: a per-tenant API
// client plus the orders, listings, and payments sync workers.
package etsy

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

const defaultBaseURL = "https://api.etsy.com/v3/application"

const pageLimit = 100

// Receipt is an Etsy order with its transactions embedded.
type Receipt struct {
	ReceiptID       int64   `json:"receipt_id"`
	Status          string  `json:"status"`
	WasPaid         bool    `json:"was_paid"`
	WasShipped      bool    `json:"was_shipped"`
	CreateTimestamp int64   `json:"create_timestamp"`
	UpdateTimestamp int64   `json:"update_timestamp"`
	Subtotal        Money   `json:"subtotal"`
	TotalShipping   Money   `json:"total_shipping_cost"`
	TotalTax        Money   `json:"total_tax_cost"`
	Discount        Money   `json:"discount_amt"`
	GrandTotal      Money   `json:"grandtotal"`
	Transactions    []Transaction `json:"transactions"`

	raw json.RawMessage
}

// Transaction is one line item on a receipt.
type Transaction struct {
	TransactionID int64  `json:"transaction_id"`
	Title         string `json:"title"`
	Quantity      int    `json:"quantity"`
	Price         Money  `json:"price"`
	SKU           string `json:"sku"`
}

// Listing is one shop listing.
type Listing struct {
	ListingID   int64    `json:"listing_id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	State       string   `json:"state"`
	URL         string   `json:"url"`
	Price       Money    `json:"price"`
	Views       int      `json:"views"`
	NumFavorers int      `json:"num_favorers"`
	Tags        []string `json:"tags"`
	Images      []struct {
		URL570 string `json:"url_570xN"`
	} `json:"images"`

	raw json.RawMessage
}

// LedgerEntry is one payment-account ledger row (fees, payments,
// refunds).
type LedgerEntry struct {
	LedgerEntryID int64  `json:"ledger_entry_id"`
	PaymentID     int64  `json:"payment_id"`
	EntryType     string `json:"entry_type"`
	Amount        Money  `json:"amount"`
	Description   string `json:"description"`
	ReferenceID   string `json:"reference_id"`
	CreateDate    int64  `json:"create_date"`
}

// Client is a per-tenant Etsy API client. One instance serves one job
// at a time; tokens are loaded at construction and refreshed in place
// on a 401.
type Client struct {
	tenantID string
	shopID   string
	apiKey   string
	baseURL  string

	tokens *vault.Tokens
	vault  *vault.Vault
	budget *budget.Budgeter
	http   *httpx.Client
}

// NewClient loads the tenant's tokens and shop id and returns a ready
// client.
func NewClient(ctx context.Context, tenantID string, st *store.Store, v *vault.Vault, b *budget.Budgeter, apiKey string) (*Client, error) {
	tokens, err := v.EnsureValid(ctx, tenantID, "etsy")
	if err != nil {
		return nil, err
	}

	account, err := st.GetConnectedAccount(ctx, tenantID, "etsy")
	if err != nil {
		return nil, err
	}
	if account == nil || account.PlatformShopID == nil || *account.PlatformShopID == "" {
		return nil, fmt.Errorf("%w: no etsy shop id for tenant %s", syncerr.ErrNoCredentials, tenantID)
	}

	return &Client{
		tenantID: tenantID,
		shopID:   *account.PlatformShopID,
		apiKey:   apiKey,
		baseURL:  defaultBaseURL,
		tokens:   tokens,
		vault:    v,
		budget:   b,
		http:     httpx.New(),
	}, nil
}

// request runs the shared adapter call contract: budget admission,
// retried issue, usage recording, and a single 401 refresh-and-reissue.
func (c *Client) request(ctx context.Context, method, path string, query url.Values, out any) error {
	if !c.budget.CanRequest(c.tenantID, "etsy") {
		return fmt.Errorf("%w: etsy budget exhausted for tenant %s", syncerr.ErrRateLimited, c.tenantID)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	resp, err := c.http.Request(ctx, method, u, c.headers(), nil)
	if err != nil {
		return err
	}
	c.budget.Record(c.tenantID, "etsy", 1)

	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		// Refresh once and re-issue; never loop.
		tokens, err := c.vault.ForceRefresh(ctx, c.tenantID, "etsy")
		if err != nil {
			return err
		}
		c.tokens = tokens

		resp, err = c.http.Request(ctx, method, u, c.headers(), nil)
		if err != nil {
			return err
		}
		c.budget.Record(c.tenantID, "etsy", 1)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read etsy response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &syncerr.UpstreamError{Platform: "etsy", Status: resp.StatusCode, Body: string(body)}
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode etsy response: %w", err)
		}
	}
	return nil
}

func (c *Client) headers() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+c.tokens.AccessToken)
	h.Set("x-api-key", c.apiKey)
	return h
}

type receiptsPage struct {
	Count   int               `json:"count"`
	Results []json.RawMessage `json:"results"`
}

// AllReceipts pages through shop receipts newer than minCreated
// (unix seconds; 0 means everything).
func (c *Client) AllReceipts(ctx context.Context, minCreated int64) ([]Receipt, error) {
	var all []Receipt
	offset := 0

	for {
		q := url.Values{
			"limit":  {fmt.Sprint(pageLimit)},
			"offset": {fmt.Sprint(offset)},
		}
		if minCreated > 0 {
			q.Set("min_created", fmt.Sprint(minCreated))
		}

		var page receiptsPage
		if err := c.request(ctx, http.MethodGet, fmt.Sprintf("/shops/%s/receipts", c.shopID), q, &page); err != nil {
			return nil, err
		}

		for _, raw := range page.Results {
			var r Receipt
			if err := json.Unmarshal(raw, &r); err != nil {
				return nil, fmt.Errorf("decode receipt: %w", err)
			}
			r.raw = raw
			all = append(all, r)
		}

		if len(page.Results) < pageLimit {
			return all, nil
		}
		offset += pageLimit
	}
}

type listingsPage struct {
	Count   int               `json:"count"`
	Results []json.RawMessage `json:"results"`
}

// ActiveListings pages through all listings in the given state.
func (c *Client) ActiveListings(ctx context.Context) ([]Listing, error) {
	var all []Listing
	offset := 0

	for {
		q := url.Values{
			"state":  {"active"},
			"limit":  {fmt.Sprint(pageLimit)},
			"offset": {fmt.Sprint(offset)},
		}

		var page listingsPage
		if err := c.request(ctx, http.MethodGet, fmt.Sprintf("/shops/%s/listings", c.shopID), q, &page); err != nil {
			return nil, err
		}

		for _, raw := range page.Results {
			var l Listing
			if err := json.Unmarshal(raw, &l); err != nil {
				return nil, fmt.Errorf("decode listing: %w", err)
			}
			l.raw = raw
			all = append(all, l)
		}

		if len(page.Results) < pageLimit {
			return all, nil
		}
		offset += pageLimit
	}
}

type ledgerPage struct {
	Count   int           `json:"count"`
	Results []LedgerEntry `json:"results"`
}

// LedgerEntries pages through payment-account ledger entries newer
// than minCreated.
func (c *Client) LedgerEntries(ctx context.Context, minCreated int64) ([]LedgerEntry, error) {
	var all []LedgerEntry
	offset := 0

	for {
		q := url.Values{
			"limit":  {fmt.Sprint(pageLimit)},
			"offset": {fmt.Sprint(offset)},
		}
		if minCreated > 0 {
			q.Set("min_created", fmt.Sprint(minCreated))
		}

		var page ledgerPage
		if err := c.request(ctx, http.MethodGet, fmt.Sprintf("/shops/%s/payment-account/ledger-entries", c.shopID), q, &page); err != nil {
			return nil, err
		}

		all = append(all, page.Results...)
		if len(page.Results) < pageLimit {
			return all, nil
		}
		offset += pageLimit
	}
}
