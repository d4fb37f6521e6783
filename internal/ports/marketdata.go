package ports

import "github.com/shopspring/decimal"

// PriceSource exposes the latest known market prices. Reads are non-blocking
// and never touch the network; a stalled feed simply keeps serving the last
// observed price.
type PriceSource interface {
	// Price returns the latest known price for the symbol. ok is false when no
	// tick has arrived yet for the symbol, which is distinct from a zero price.
	Price(symbol string) (price decimal.Decimal, ok bool)
	// AllPrices returns an independent copy of the full snapshot.
	AllPrices() map[string]decimal.Decimal
}
