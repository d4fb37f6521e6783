package ports

import (
	"context"

	"github.com/shopspring/decimal"

	"cryptosim/internal/domain"
)

// Ledger defines the row-level operations on accounts, portfolio assets and
// the transaction history. Lookup methods return nil, nil when the row does
// not exist; it is the caller's job to decide whether absence is an error.
type Ledger interface {
	// FindAccountByUser retrieves the account owned by the given user identity.
	FindAccountByUser(ctx context.Context, userIdentifier string) (*domain.Account, error)
	// FindAccountByID retrieves an account by its unique ID.
	FindAccountByID(ctx context.Context, accountID int64) (*domain.Account, error)
	// CreateAccount saves a new account and returns its assigned ID.
	CreateAccount(ctx context.Context, acct *domain.Account) (int64, error)
	// UpdateBalance sets the current balance of an account.
	UpdateBalance(ctx context.Context, accountID int64, newBalance decimal.Decimal) error
	// InitialBalance retrieves the fixed starting balance recorded at account
	// creation. found is false when the account row is missing.
	InitialBalance(ctx context.Context, accountID int64) (balance decimal.Decimal, found bool, err error)

	// FindAsset retrieves the holding of one symbol within an account.
	FindAsset(ctx context.Context, accountID int64, symbol string) (*domain.PortfolioAsset, error)
	// FindAssetsByAccount retrieves every holding of an account.
	FindAssetsByAccount(ctx context.Context, accountID int64) ([]*domain.PortfolioAsset, error)
	// AddAsset saves a new holding and returns its assigned ID.
	AddAsset(ctx context.Context, asset *domain.PortfolioAsset) (int64, error)
	// UpdateAsset sets the quantity and average purchase price of a holding.
	UpdateAsset(ctx context.Context, assetID int64, quantity, avgPrice decimal.Decimal) error
	// DeleteAsset removes a holding entirely.
	DeleteAsset(ctx context.Context, assetID int64) error
	// DeleteAssetsByAccount removes every holding of an account, returning the
	// number of rows deleted.
	DeleteAssetsByAccount(ctx context.Context, accountID int64) (int64, error)

	// LogTransaction appends an immutable trade record and returns its ID.
	LogTransaction(ctx context.Context, txn *domain.Transaction) (int64, error)
	// FindTransactionsByAccount retrieves the trade history of an account,
	// newest first.
	FindTransactionsByAccount(ctx context.Context, accountID int64) ([]*domain.Transaction, error)
}

// LedgerStore is a Ledger whose mutations can be grouped into an atomic unit.
type LedgerStore interface {
	Ledger

	// Transact runs fn against a transaction-scoped Ledger. All operations
	// performed through it commit together when fn returns nil and roll back
	// as a unit when fn returns an error or panics.
	Transact(ctx context.Context, fn func(Ledger) error) error
}
