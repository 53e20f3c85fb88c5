package shopify

import "testing"

func TestNumericID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"gid://shopify/Order/123456", "123456"},
		{"gid://shopify/Customer/98765", "98765"},
		{"123456", "123456"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NumericID(tt.in); got != tt.want {
			t.Errorf("NumericID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func money(amount, currency string) MoneyBag {
	var m MoneyBag
	m.ShopMoney.Amount = amount
	m.ShopMoney.CurrencyCode = currency
	return m
}

func TestMoneyBagCents(t *testing.T) {
	tests := []struct {
		amount string
		want   int64
	}{
		{"25.50", 2550},
		{"0.00", 0},
		{"1234", 123400},
		{"19.999", 2000},
		{"not-a-number", 0},
		{"", 0},
	}

	for _, tt := range tests {
		if got := money(tt.amount, "").Cents(); got != tt.want {
			t.Errorf("Cents(%q) = %d, want %d", tt.amount, got, tt.want)
		}
	}
}

func TestMoneyBagCurrency(t *testing.T) {
	if got := money("1.00", "CAD").Currency(); got != "CAD" {
		t.Errorf("Currency() = %q, want CAD", got)
	}
	if got := money("1.00", "").Currency(); got != "USD" {
		t.Errorf("empty Currency() = %q, want USD", got)
	}
}
