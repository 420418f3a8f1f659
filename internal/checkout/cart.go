package checkout

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-grocery/internal/pricing"
)

// Line is one cart entry. Price is the unit price in major units.
type Line struct {
	ProductID string
	Name      string
	Price     decimal.Decimal
	Quantity  int
}

// Cart holds the lines being checked out.
type Cart struct {
	Currency string
	Lines    []Line
}

// ParsePrice accepts the price representations the storefront feeds emit:
// plain numbers, numeric strings, and strings with a leading currency symbol
// or grouping commas ("₹1,299.00"). Anything that does not reduce to a
// non-negative decimal is an error.
func ParsePrice(raw string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimLeft(cleaned, "$€£₹¥ ")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	if cleaned == "" {
		return decimal.Decimal{}, fmt.Errorf("empty price %q", raw)
	}
	price, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid price %q", raw)
	}
	if price.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("negative price %q", raw)
	}
	return price, nil
}

// Validate checks the cart invariants: quantity at least 1, price
// non-negative on every line.
func (c *Cart) Validate() error {
	for i, line := range c.Lines {
		if line.Quantity < 1 {
			return fmt.Errorf("line %d: quantity must be at least 1", i)
		}
		if line.Price.IsNegative() {
			return fmt.Errorf("line %d: price must not be negative", i)
		}
	}
	return nil
}

// IsEmpty reports whether there is anything to pay for.
func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Lines) == 0
}

// Total returns the payable amount in major units.
func (c *Cart) Total() decimal.Decimal {
	items := make([]pricing.Item, 0, len(c.Lines))
	for _, line := range c.Lines {
		items = append(items, pricing.Item{Qty: line.Quantity, UnitPrice: line.Price})
	}
	return pricing.Compute(items, decimal.Zero, 0).Total
}
