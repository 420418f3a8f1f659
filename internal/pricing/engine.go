package pricing

import "github.com/shopspring/decimal"

// Item describes a line item used for pricing calculation. UnitPrice is in
// major units.
type Item struct {
	Qty       int
	UnitPrice decimal.Decimal
}

// Summary aggregates computed pricing components in major units.
type Summary struct {
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// Compute calculates cart totals. Discounts never push the taxable base
// below zero and tax is applied on the discounted subtotal. taxBps is the
// tax rate in basis points.
func Compute(items []Item, discount decimal.Decimal, taxBps int) Summary {
	subtotal := decimal.Zero
	for _, it := range items {
		if it.Qty <= 0 {
			continue
		}
		subtotal = subtotal.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Qty))))
	}
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	taxable := subtotal.Sub(discount)
	tax := taxable.Mul(decimal.NewFromInt(int64(taxBps))).Div(decimal.NewFromInt(10000)).Round(2)
	return Summary{
		Subtotal: subtotal,
		Discount: discount,
		Tax:      tax,
		Total:    taxable.Add(tax),
	}
}
