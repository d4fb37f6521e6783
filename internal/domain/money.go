package domain

import "github.com/shopspring/decimal"

// Decimal scales shared by every component that stores or logs amounts.
// Fiat amounts are rounded half-up at the point of computation; crypto
// quantities are truncated toward zero so rounding can never manufacture
// quantity.
const (
	FiatScale     = 2 // Fiat amounts (balances, costs, proceeds, P/L)
	QuantityScale = 8 // Crypto quantities
	PriceScale    = 8 // Per-unit prices, including weighted averages
)

// RoundFiat rounds a fiat amount to 2 decimal places, half away from zero.
func RoundFiat(d decimal.Decimal) decimal.Decimal {
	return d.Round(FiatScale)
}

// RoundPrice rounds a per-unit price to 8 decimal places, half away from zero.
func RoundPrice(d decimal.Decimal) decimal.Decimal {
	return d.Round(PriceScale)
}

// TruncateQuantity truncates a crypto quantity to 8 decimal places toward
// zero, regardless of the discarded digits.
func TruncateQuantity(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(QuantityScale)
}

// WeightedAveragePrice recomputes the average purchase price after a buy:
// (oldQty*oldAvg + newQty*newPrice) / (oldQty+newQty), rounded half-up to the
// price scale. The caller guarantees oldQty+newQty is positive.
func WeightedAveragePrice(oldQty, oldAvg, newQty, newPrice decimal.Decimal) decimal.Decimal {
	total := oldQty.Add(newQty)
	return oldQty.Mul(oldAvg).Add(newQty.Mul(newPrice)).DivRound(total, PriceScale)
}
