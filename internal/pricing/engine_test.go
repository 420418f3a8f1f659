package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestComputeSubtotalOnly(t *testing.T) {
	sum := Compute([]Item{
		{Qty: 2, UnitPrice: d("19.99")},
		{Qty: 1, UnitPrice: d("4.50")},
		{Qty: 0, UnitPrice: d("99.00")},
	}, decimal.Zero, 0)

	assert.True(t, sum.Subtotal.Equal(d("44.48")), sum.Subtotal.String())
	assert.True(t, sum.Total.Equal(d("44.48")))
}

func TestComputeDiscountCappedAtSubtotal(t *testing.T) {
	sum := Compute([]Item{{Qty: 1, UnitPrice: d("10.00")}}, d("25.00"), 0)
	assert.True(t, sum.Discount.Equal(d("10.00")))
	assert.True(t, sum.Total.IsZero())
}

func TestComputeTaxOnDiscountedBase(t *testing.T) {
	sum := Compute([]Item{{Qty: 1, UnitPrice: d("100.00")}}, d("20.00"), 500)
	assert.True(t, sum.Tax.Equal(d("4.00")), sum.Tax.String())
	assert.True(t, sum.Total.Equal(d("84.00")), sum.Total.String())
}
