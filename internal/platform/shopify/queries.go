package shopify

import (
	"context"
	"encoding/json"
	"fmt"
)

const ordersQuery = `
query GetOrders($first: Int!, $after: String) {
  orders(first: $first, after: $after, sortKey: CREATED_AT, reverse: true) {
    edges {
      node {
        id
        name
        email
        createdAt
        displayFinancialStatus
        displayFulfillmentStatus
        totalPriceSet { shopMoney { amount currencyCode } }
        subtotalPriceSet { shopMoney { amount currencyCode } }
        totalShippingPriceSet { shopMoney { amount currencyCode } }
        totalTaxSet { shopMoney { amount currencyCode } }
        totalDiscountsSet { shopMoney { amount currencyCode } }
        lineItems(first: 50) {
          edges {
            node {
              id
              title
              quantity
              originalUnitPriceSet { shopMoney { amount currencyCode } }
              sku
              variant { title }
            }
          }
        }
      }
      cursor
    }
    pageInfo { hasNextPage }
  }
}`

const productsQuery = `
query GetProducts($first: Int!, $after: String) {
  products(first: $first, after: $after, sortKey: UPDATED_AT, reverse: true) {
    edges {
      node {
        id
        title
        handle
        status
        priceRangeV2 { minVariantPrice { amount currencyCode } }
        featuredImage { url altText }
        tags
      }
      cursor
    }
    pageInfo { hasNextPage }
  }
}`

const customersQuery = `
query GetCustomers($first: Int!, $after: String) {
  customers(first: $first, after: $after, sortKey: UPDATED_AT, reverse: true) {
    edges {
      node {
        id
        email
        firstName
        lastName
        phone
        ordersCount
        totalSpentV2 { amount currencyCode }
        defaultAddress { city provinceCode countryCode zip }
      }
      cursor
    }
    pageInfo { hasNextPage }
  }
}`

type connection struct {
	Edges []struct {
		Node   json.RawMessage `json:"node"`
		Cursor string          `json:"cursor"`
	} `json:"edges"`
	PageInfo struct {
		HasNextPage bool `json:"hasNextPage"`
	} `json:"pageInfo"`
}

// page walks one GraphQL connection from after, invoking visit per node
// with its cursor. Returns the last cursor seen.
func (c *Client) page(ctx context.Context, query, field, after string, visit func(node json.RawMessage, cursor string) error) (string, error) {
	cursor := after
	for {
		vars := map[string]any{"first": pageSize}
		if cursor != "" {
			vars["after"] = cursor
		}

		var data map[string]connection
		if err := c.GraphQL(ctx, query, vars, &data); err != nil {
			return cursor, err
		}
		conn := data[field]

		for _, edge := range conn.Edges {
			if err := visit(edge.Node, edge.Cursor); err != nil {
				return cursor, err
			}
			cursor = edge.Cursor
		}

		if !conn.PageInfo.HasNextPage {
			return cursor, nil
		}
	}
}

// Orders fetches all orders after the given cursor. Also returns the
// final page cursor to persist as the resume point.
func (c *Client) Orders(ctx context.Context, after string) ([]Order, string, error) {
	var all []Order
	cursor, err := c.page(ctx, ordersQuery, "orders", after, func(node json.RawMessage, _ string) error {
		var o Order
		if err := json.Unmarshal(node, &o); err != nil {
			return fmt.Errorf("decode order: %w", err)
		}
		o.raw = node
		all = append(all, o)
		return nil
	})
	return all, cursor, err
}

// Products fetches the full product list.
func (c *Client) Products(ctx context.Context) ([]Product, error) {
	var all []Product
	_, err := c.page(ctx, productsQuery, "products", "", func(node json.RawMessage, _ string) error {
		var p Product
		if err := json.Unmarshal(node, &p); err != nil {
			return fmt.Errorf("decode product: %w", err)
		}
		all = append(all, p)
		return nil
	})
	return all, err
}

// Customers fetches the full customer list.
func (c *Client) Customers(ctx context.Context) ([]Customer, error) {
	var all []Customer
	_, err := c.page(ctx, customersQuery, "customers", "", func(node json.RawMessage, _ string) error {
		var cu Customer
		if err := json.Unmarshal(node, &cu); err != nil {
			return fmt.Errorf("decode customer: %w", err)
		}
		all = append(all, cu)
		return nil
	})
	return all, err
}
