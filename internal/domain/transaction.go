package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is an immutable record of a completed trade.
// RealizedProfitLoss is set only for SELL records.
type Transaction struct {
	ID                 int64               // Unique identifier (assigned by the ledger store)
	AccountID          int64               // Account the trade was executed against
	Symbol             string              // Trading pair, e.g. "BTC/USD"
	Side               Side                // BUY or SELL
	Quantity           decimal.Decimal     // Traded quantity, 8 decimal places, truncated toward zero
	PricePerUnit       decimal.Decimal     // Execution price, 8 decimal places
	TotalValue         decimal.Decimal     // Quantity x price, fiat-rounded
	Timestamp          time.Time           // Execution time (UTC)
	RealizedProfitLoss decimal.NullDecimal // Proceeds minus cost basis; SELL only
}
