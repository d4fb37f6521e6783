package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PortfolioAsset is a holding of a single symbol within an account.
// One row exists per account+symbol; a holding whose quantity drops to zero is
// deleted rather than persisted.
type PortfolioAsset struct {
	ID                   int64           // Unique identifier (assigned by the ledger store)
	AccountID            int64           // Owning account
	Symbol               string          // Trading pair, e.g. "BTC/USD"
	Quantity             decimal.Decimal // Held quantity, 8 decimal places, truncated toward zero
	AveragePurchasePrice decimal.Decimal // Weighted average entry price, 8 decimal places
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// PortfolioEntry is a PortfolioAsset enriched with a live valuation.
// CurrentPrice and MarketValue are unset when no price has been observed for
// the symbol yet.
type PortfolioEntry struct {
	Asset        *PortfolioAsset
	CurrentPrice decimal.NullDecimal // Latest snapshot price, if known
	MarketValue  decimal.NullDecimal // Quantity x CurrentPrice, fiat-rounded, if known
}
