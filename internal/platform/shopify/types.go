package shopify

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// MoneyBag is Shopify's shopMoney amount: a decimal string plus a
// currency code.
type MoneyBag struct {
	ShopMoney struct {
		Amount       string `json:"amount"`
		CurrencyCode string `json:"currencyCode"`
	} `json:"shopMoney"`
}

// Cents parses the decimal amount into integer cents. Unparseable
// amounts map to 0.
func (m MoneyBag) Cents() int64 {
	f, err := strconv.ParseFloat(m.ShopMoney.Amount, 64)
	if err != nil {
		return 0
	}
	return int64(math.Round(f * 100))
}

// Currency returns the currency code, defaulting to USD.
func (m MoneyBag) Currency() string {
	if m.ShopMoney.CurrencyCode == "" {
		return "USD"
	}
	return m.ShopMoney.CurrencyCode
}

// NumericID strips the gid://shopify/Type/ prefix, leaving the trailing
// numeric id. Plain ids pass through unchanged.
func NumericID(gid string) string {
	if i := strings.LastIndexByte(gid, '/'); i >= 0 {
		return gid[i+1:]
	}
	return gid
}

// Order is one order node from the orders query.
type Order struct {
	ID                       string   `json:"id"`
	Name                     string   `json:"name"`
	Email                    string   `json:"email"`
	CreatedAt                string   `json:"createdAt"`
	DisplayFinancialStatus   string   `json:"displayFinancialStatus"`
	DisplayFulfillmentStatus string   `json:"displayFulfillmentStatus"`
	TotalPriceSet            MoneyBag `json:"totalPriceSet"`
	SubtotalPriceSet         MoneyBag `json:"subtotalPriceSet"`
	TotalShippingPriceSet    MoneyBag `json:"totalShippingPriceSet"`
	TotalTaxSet              MoneyBag `json:"totalTaxSet"`
	TotalDiscountsSet        MoneyBag `json:"totalDiscountsSet"`
	LineItems                struct {
		Edges []struct {
			Node LineItem `json:"node"`
		} `json:"edges"`
	} `json:"lineItems"`

	raw json.RawMessage
}

// LineItem is one order line node.
type LineItem struct {
	ID                   string   `json:"id"`
	Title                string   `json:"title"`
	Quantity             int      `json:"quantity"`
	OriginalUnitPriceSet MoneyBag `json:"originalUnitPriceSet"`
	SKU                  string   `json:"sku"`
	Variant              *struct {
		Title string `json:"title"`
	} `json:"variant"`
}

// Product is one product node.
type Product struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Handle       string `json:"handle"`
	Status       string `json:"status"`
	PriceRangeV2 struct {
		MinVariantPrice struct {
			Amount       string `json:"amount"`
			CurrencyCode string `json:"currencyCode"`
		} `json:"minVariantPrice"`
	} `json:"priceRangeV2"`
	FeaturedImage *struct {
		URL string `json:"url"`
	} `json:"featuredImage"`
	Tags []string `json:"tags"`
}

// Customer is one customer node.
type Customer struct {
	ID          string  `json:"id"`
	Email       *string `json:"email"`
	FirstName   *string `json:"firstName"`
	LastName    *string `json:"lastName"`
	Phone       *string `json:"phone"`
	OrdersCount int     `json:"ordersCount"`
	TotalSpent  struct {
		Amount string `json:"amount"`
	} `json:"totalSpentV2"`
	DefaultAddress *struct {
		City         *string `json:"city"`
		ProvinceCode *string `json:"provinceCode"`
		CountryCode  *string `json:"countryCode"`
		Zip          *string `json:"zip"`
	} `json:"defaultAddress"`
}
