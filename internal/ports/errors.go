package ports

import "errors"

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Trading Errors (client-visible rejections)
	ErrInvalidQuantity      = errors.New("trade quantity must be positive")
	ErrInsufficientFunds    = errors.New("insufficient funds for purchase")
	ErrInsufficientHoldings = errors.New("insufficient asset quantity to sell")
	ErrAccountNotFound      = errors.New("account not found")
	ErrAssetNotHeld         = errors.New("asset not found in portfolio")
	ErrPriceUnavailable     = errors.New("no price available for symbol")

	// Market Data Feed Errors
	ErrConnectionFailed = errors.New("failed to connect to the market data feed")
	ErrFeedClosed       = errors.New("market data feed is closed")

	// Database Specific Errors
	ErrDuplicateEntry = errors.New("database record already exists")
	ErrDBConnection   = errors.New("database connection error")
	ErrQueryFailed    = errors.New("database query failed")
	ErrUpdateFailed   = errors.New("database update failed")
	ErrDeleteFailed   = errors.New("database delete failed")
)
