package checkout

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrice(t *testing.T) {
	cases := map[string]string{
		"19.99":     "19.99",
		" 4.50 ":    "4.5",
		"₹1,299.00": "1299",
		"$0.99":     "0.99",
		"100":       "100",
	}
	for raw, want := range cases {
		got, err := ParsePrice(raw)
		require.NoError(t, err, raw)
		assert.True(t, got.Equal(decimal.RequireFromString(want)), "%s -> %s", raw, got)
	}
}

func TestParsePriceRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "  ", "free", "-5.00", "12.a"} {
		_, err := ParsePrice(raw)
		assert.Error(t, err, raw)
	}
}

func TestCartValidate(t *testing.T) {
	cart := &Cart{Lines: []Line{{ProductID: "p1", Price: decimal.NewFromInt(5), Quantity: 0}}}
	assert.Error(t, cart.Validate())

	cart.Lines[0].Quantity = 1
	assert.NoError(t, cart.Validate())

	cart.Lines[0].Price = decimal.NewFromInt(-1)
	assert.Error(t, cart.Validate())
}

func TestCartTotal(t *testing.T) {
	cart := &Cart{Lines: []Line{
		{Price: decimal.RequireFromString("19.99"), Quantity: 2},
		{Price: decimal.RequireFromString("4.50"), Quantity: 1},
	}}
	assert.True(t, cart.Total().Equal(decimal.RequireFromString("44.48")), cart.Total().String())
	assert.False(t, cart.IsEmpty())
	assert.True(t, (&Cart{}).IsEmpty())
}
