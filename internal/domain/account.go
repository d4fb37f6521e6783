package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account represents a simulated trading account holding a fiat balance.
// Balance is mutated only by the trading service; InitialBalance is fixed at
// creation and used as the reset target.
type Account struct {
	ID             int64           // Unique identifier (assigned by the ledger store)
	UserIdentifier string          // External identity the account belongs to
	Balance        decimal.Decimal // Current fiat balance, 2 decimal places
	InitialBalance decimal.Decimal // Fiat balance at creation, reset target
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
