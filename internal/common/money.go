package common

import (
	"math"
	"strings"
)

// Currencies whose minor unit equals the major unit on the Stripe API.
var zeroDecimalCurrencies = map[string]struct{}{
	"bif": {}, "clp": {}, "djf": {}, "gnf": {}, "jpy": {}, "kmf": {},
	"krw": {}, "mga": {}, "pyg": {}, "rwf": {}, "ugx": {}, "vnd": {},
	"vuv": {}, "xaf": {}, "xof": {}, "xpf": {},
}

var threeDecimalCurrencies = map[string]struct{}{
	"bhd": {}, "jod": {}, "kwd": {}, "omr": {}, "tnd": {},
}

// CurrencyExponent returns the number of minor-unit digits for a currency.
func CurrencyExponent(currency string) int {
	c := strings.ToLower(strings.TrimSpace(currency))
	if _, ok := zeroDecimalCurrencies[c]; ok {
		return 0
	}
	if _, ok := threeDecimalCurrencies[c]; ok {
		return 3
	}
	return 2
}

// MinorUnits converts a major-unit amount into the smallest currency unit,
// e.g. 49.99 USD becomes 4999.
func MinorUnits(amount float64, currency string) int64 {
	factor := math.Pow10(CurrencyExponent(currency))
	return int64(math.Round(amount * factor))
}
