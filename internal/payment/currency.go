package payment

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Minor-unit exponents that deviate from the ISO 4217 default of two.
// Converting with a blanket x100 silently corrupts amounts for these
// currencies, so the exponent must be looked up per currency.
var (
	zeroDecimalCurrencies = map[string]struct{}{
		"bif": {}, "clp": {}, "djf": {}, "gnf": {}, "jpy": {}, "kmf": {},
		"krw": {}, "mga": {}, "pyg": {}, "rwf": {}, "ugx": {}, "vnd": {},
		"vuv": {}, "xaf": {}, "xof": {}, "xpf": {},
	}
	threeDecimalCurrencies = map[string]struct{}{
		"bhd": {}, "iqd": {}, "jod": {}, "kwd": {}, "lyd": {}, "omr": {}, "tnd": {},
	}
)

// MinorUnitExponent returns the number of decimal places used by the
// currency's minor unit.
func MinorUnitExponent(currency string) (int32, error) {
	code := strings.ToLower(strings.TrimSpace(currency))
	if len(code) != 3 {
		return 0, fmt.Errorf("invalid currency code %q", currency)
	}
	for _, r := range code {
		if r < 'a' || r > 'z' {
			return 0, fmt.Errorf("invalid currency code %q", currency)
		}
	}
	if _, ok := zeroDecimalCurrencies[code]; ok {
		return 0, nil
	}
	if _, ok := threeDecimalCurrencies[code]; ok {
		return 3, nil
	}
	return 2, nil
}

// MinorUnits converts a decimal amount in major units to the provider's
// smallest-unit integer representation. Rounding is deterministic half away
// from zero, matching the exponent of the currency's minor unit.
func MinorUnits(amount decimal.Decimal, currency string) (int64, error) {
	exp, err := MinorUnitExponent(currency)
	if err != nil {
		return 0, err
	}
	shifted := amount.Shift(exp).Round(0)
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("amount %s does not round to an integer for %s", amount, currency)
	}
	return shifted.IntPart(), nil
}
