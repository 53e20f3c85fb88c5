package etsy

import "math"

// Money is Etsy's fixed-point money object: an integer amount scaled
// by a divisor (usually 100).
type Money struct {
	Amount       int64  `json:"amount"`
	Divisor      int64  `json:"divisor"`
	CurrencyCode string `json:"currency_code"`
}

// Cents normalizes a Money value to integer cents. A missing divisor
// is treated as the conventional 100; divisor 1 means whole currency
// units.
func (m Money) Cents() int64 {
	if m.Divisor == 1 {
		return m.Amount * 100
	}
	divisor := m.Divisor
	if divisor == 0 {
		divisor = 100
	}
	return int64(math.Round(float64(m.Amount) * 100 / float64(divisor)))
}

// Currency returns the currency code, defaulting to USD.
func (m Money) Currency() string {
	if m.CurrencyCode == "" {
		return "USD"
	}
	return m.CurrencyCode
}
