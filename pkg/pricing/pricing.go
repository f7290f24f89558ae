// Package pricing holds the storefront's order pricing rules. The gateway uses
// it to show totals, orders-service uses it to verify what was submitted.
package pricing

import "github.com/shopspring/decimal"

var (
	// FreeShippingThreshold is the subtotal from which shipping is free (inclusive).
	FreeShippingThreshold = decimal.NewFromInt(500)
	// FlatShippingFee is charged below the threshold.
	FlatShippingFee = decimal.NewFromInt(25)
	// TaxRate applied to the subtotal.
	TaxRate = decimal.RequireFromString("0.08")
)

// CurrencyPlaces is the number of decimal places every derived amount is rounded to.
const CurrencyPlaces = 2

// Totals is the derived price breakdown of a cart at checkout time.
type Totals struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	ShippingFee decimal.Decimal `json:"shipping_fee"`
	Tax         decimal.Decimal `json:"tax"`
	Total       decimal.Decimal `json:"total"`
}

// Line is anything that has a unit price and a quantity.
type Line interface {
	LinePrice() decimal.Decimal
	LineQuantity() int
}

// LineSubtotal returns unit price × quantity.
func LineSubtotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}

// Subtotal sums the line subtotals exactly.
func Subtotal[L Line](lines []L) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(LineSubtotal(l.LinePrice(), l.LineQuantity()))
	}
	return sum
}

// ShippingFee returns 0 when subtotal >= FreeShippingThreshold, FlatShippingFee otherwise.
func ShippingFee(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThanOrEqual(FreeShippingThreshold) {
		return decimal.Zero
	}
	return FlatShippingFee
}

// Tax returns subtotal × TaxRate rounded half away from zero to cents.
func Tax(subtotal decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(TaxRate).Round(CurrencyPlaces)
}

// Compute derives the full breakdown from a subtotal. Each component is
// rounded before it is summed so the total never carries sub-cent drift.
func Compute(subtotal decimal.Decimal) Totals {
	subtotal = subtotal.Round(CurrencyPlaces)
	shipping := ShippingFee(subtotal)
	tax := Tax(subtotal)
	return Totals{
		Subtotal:    subtotal,
		ShippingFee: shipping,
		Tax:         tax,
		Total:       subtotal.Add(shipping).Add(tax),
	}
}

// ForLines is Compute(Subtotal(lines)).
func ForLines[L Line](lines []L) Totals {
	return Compute(Subtotal(lines))
}

// Equal reports whether two breakdowns match to the cent.
func (t Totals) Equal(o Totals) bool {
	return t.Subtotal.Equal(o.Subtotal) &&
		t.ShippingFee.Equal(o.ShippingFee) &&
		t.Tax.Equal(o.Tax) &&
		t.Total.Equal(o.Total)
}
