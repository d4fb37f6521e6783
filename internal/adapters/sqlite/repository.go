package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/shopspring/decimal"

	"cryptosim/internal/domain"
	"cryptosim/internal/ports"
)

// querier is satisfied by both *sql.DB and *sql.Tx so the same query code can
// run standalone or inside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// ledgerOps implements ports.Ledger against any querier.
type ledgerOps struct {
	q      querier
	logger ports.Logger
}

// Repository implements ports.LedgerStore using SQLite.
type Repository struct {
	ledgerOps
	db *sql.DB
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/cryptosim.db" // Default path
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// SQLite serializes writers internally; the Go driver behaves best with a
	// single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{
		ledgerOps: ledgerOps{q: db, logger: cfg.Logger},
		db:        db,
	}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "SQLite ledger store initialized", map[string]interface{}{"path": dbPath})

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
// Decimal amounts are stored as TEXT to keep exact precision.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS accounts (
		account_id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_identifier TEXT NOT NULL UNIQUE,
		balance TEXT NOT NULL,
		initial_balance TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS portfolio_assets (
		asset_id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id INTEGER NOT NULL REFERENCES accounts(account_id),
		asset_symbol TEXT NOT NULL,
		quantity TEXT NOT NULL,
		average_purchase_price TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE(account_id, asset_symbol)
	);

	CREATE TABLE IF NOT EXISTS transactions (
		transaction_id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id INTEGER NOT NULL REFERENCES accounts(account_id),
		asset_symbol TEXT NOT NULL,
		transaction_type TEXT NOT NULL,
		quantity TEXT NOT NULL,
		price_per_unit TEXT NOT NULL,
		total_value TEXT NOT NULL,
		transaction_timestamp TIMESTAMP NOT NULL,
		realized_profit_loss TEXT DEFAULT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_assets_account ON portfolio_assets (account_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_account_ts ON transactions (account_id, transaction_timestamp);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// Transact runs fn against a transaction-scoped ledger. The transaction is
// committed when fn returns nil and rolled back when it returns an error or
// panics.
func (r *Repository) Transact(ctx context.Context, fn func(ports.Ledger) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w: %w", ports.ErrDBConnection, err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(&ledgerOps{q: tx, logger: r.logger}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w: %w", ports.ErrUpdateFailed, err)
	}
	committed = true
	return nil
}

// --- Account operations ---

const accountColumns = `account_id, user_identifier, balance, initial_balance, created_at, updated_at`

// FindAccountByUser retrieves the account owned by the given user identity.
func (o *ledgerOps) FindAccountByUser(ctx context.Context, userIdentifier string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE user_identifier = ?`
	acct, err := scanAccount(o.q.QueryRowContext(ctx, query, userIdentifier))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			o.logger.Debug(ctx, "Account not found for user", map[string]interface{}{"user": userIdentifier})
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query account for user %s: %w: %w", userIdentifier, ports.ErrQueryFailed, err)
	}
	return acct, nil
}

// FindAccountByID retrieves an account by its unique ID.
func (o *ledgerOps) FindAccountByID(ctx context.Context, accountID int64) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE account_id = ?`
	acct, err := scanAccount(o.q.QueryRowContext(ctx, query, accountID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query account ID %d: %w: %w", accountID, ports.ErrQueryFailed, err)
	}
	return acct, nil
}

// CreateAccount saves a new account and returns its assigned ID.
func (o *ledgerOps) CreateAccount(ctx context.Context, acct *domain.Account) (int64, error) {
	const query = `
	INSERT INTO accounts (user_identifier, balance, initial_balance, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)`

	now := time.Now().UTC()
	result, err := o.q.ExecContext(ctx, query,
		acct.UserIdentifier, acct.Balance.String(), acct.InitialBalance.String(), now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to insert account for user %s: %w: %w", acct.UserIdentifier, ports.ErrUpdateFailed, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for account %s: %w", acct.UserIdentifier, err)
	}
	acct.ID = id
	acct.CreatedAt = now
	acct.UpdatedAt = now
	o.logger.Debug(ctx, "Account created", map[string]interface{}{"accountID": id, "user": acct.UserIdentifier})
	return id, nil
}

// UpdateBalance sets the current balance of an account.
func (o *ledgerOps) UpdateBalance(ctx context.Context, accountID int64, newBalance decimal.Decimal) error {
	const query = `UPDATE accounts SET balance = ?, updated_at = ? WHERE account_id = ?`

	result, err := o.q.ExecContext(ctx, query, newBalance.String(), time.Now().UTC(), accountID)
	if err != nil {
		return fmt.Errorf("failed to update balance for account %d: %w: %w", accountID, ports.ErrUpdateFailed, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for balance update %d: %w", accountID, err)
	}
	if rows == 0 {
		return fmt.Errorf("account ID %d not found for balance update: %w", accountID, ports.ErrNotFound)
	}
	o.logger.Debug(ctx, "Balance updated", map[string]interface{}{"accountID": accountID, "balance": newBalance.String()})
	return nil
}

// InitialBalance retrieves the fixed starting balance recorded at creation.
func (o *ledgerOps) InitialBalance(ctx context.Context, accountID int64) (decimal.Decimal, bool, error) {
	const query = `SELECT initial_balance FROM accounts WHERE account_id = ?`

	var raw string
	err := o.q.QueryRowContext(ctx, query, accountID).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, fmt.Errorf("failed to query initial balance for account %d: %w: %w", accountID, ports.ErrQueryFailed, err)
	}
	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("corrupt initial balance '%s' for account %d: %w", raw, accountID, err)
	}
	return balance, true, nil
}

// --- Portfolio asset operations ---

const assetColumns = `asset_id, account_id, asset_symbol, quantity, average_purchase_price, created_at, updated_at`

// FindAsset retrieves the holding of one symbol within an account.
func (o *ledgerOps) FindAsset(ctx context.Context, accountID int64, symbol string) (*domain.PortfolioAsset, error) {
	query := `SELECT ` + assetColumns + ` FROM portfolio_assets WHERE account_id = ? AND asset_symbol = ?`
	asset, err := scanAsset(o.q.QueryRowContext(ctx, query, accountID, symbol))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query asset %s for account %d: %w: %w", symbol, accountID, ports.ErrQueryFailed, err)
	}
	return asset, nil
}

// FindAssetsByAccount retrieves every holding of an account.
func (o *ledgerOps) FindAssetsByAccount(ctx context.Context, accountID int64) ([]*domain.PortfolioAsset, error) {
	query := `SELECT ` + assetColumns + ` FROM portfolio_assets WHERE account_id = ? ORDER BY asset_symbol`

	rows, err := o.q.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query assets for account %d: %w: %w", accountID, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	assets := make([]*domain.PortfolioAsset, 0)
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset during FindAssetsByAccount: %w", err)
		}
		assets = append(assets, asset)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating asset rows: %w", err)
	}
	return assets, nil
}

// AddAsset saves a new holding and returns its assigned ID.
func (o *ledgerOps) AddAsset(ctx context.Context, asset *domain.PortfolioAsset) (int64, error) {
	const query = `
	INSERT INTO portfolio_assets (account_id, asset_symbol, quantity, average_purchase_price, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	now := time.Now().UTC()
	result, err := o.q.ExecContext(ctx, query,
		asset.AccountID, asset.Symbol, asset.Quantity.String(), asset.AveragePurchasePrice.String(), now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to insert asset %s for account %d: %w: %w", asset.Symbol, asset.AccountID, ports.ErrUpdateFailed, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for asset %s: %w", asset.Symbol, err)
	}
	asset.ID = id
	asset.CreatedAt = now
	asset.UpdatedAt = now
	o.logger.Debug(ctx, "Asset added", map[string]interface{}{"assetID": id, "symbol": asset.Symbol, "accountID": asset.AccountID})
	return id, nil
}

// UpdateAsset sets the quantity and average purchase price of a holding.
func (o *ledgerOps) UpdateAsset(ctx context.Context, assetID int64, quantity, avgPrice decimal.Decimal) error {
	const query = `UPDATE portfolio_assets SET quantity = ?, average_purchase_price = ?, updated_at = ? WHERE asset_id = ?`

	result, err := o.q.ExecContext(ctx, query, quantity.String(), avgPrice.String(), time.Now().UTC(), assetID)
	if err != nil {
		return fmt.Errorf("failed to update asset ID %d: %w: %w", assetID, ports.ErrUpdateFailed, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for asset update %d: %w", assetID, err)
	}
	if rows == 0 {
		return fmt.Errorf("asset ID %d not found for update: %w", assetID, ports.ErrNotFound)
	}
	o.logger.Debug(ctx, "Asset updated", map[string]interface{}{"assetID": assetID, "quantity": quantity.String()})
	return nil
}

// DeleteAsset removes a holding entirely.
func (o *ledgerOps) DeleteAsset(ctx context.Context, assetID int64) error {
	const query = `DELETE FROM portfolio_assets WHERE asset_id = ?`

	result, err := o.q.ExecContext(ctx, query, assetID)
	if err != nil {
		return fmt.Errorf("failed to delete asset ID %d: %w: %w", assetID, ports.ErrDeleteFailed, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for asset delete %d: %w", assetID, err)
	}
	if rows == 0 {
		return fmt.Errorf("asset ID %d not found for delete: %w", assetID, ports.ErrNotFound)
	}
	o.logger.Debug(ctx, "Asset deleted", map[string]interface{}{"assetID": assetID})
	return nil
}

// DeleteAssetsByAccount removes every holding of an account.
func (o *ledgerOps) DeleteAssetsByAccount(ctx context.Context, accountID int64) (int64, error) {
	const query = `DELETE FROM portfolio_assets WHERE account_id = ?`

	result, err := o.q.ExecContext(ctx, query, accountID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete assets for account %d: %w: %w", accountID, ports.ErrDeleteFailed, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected for account asset delete %d: %w", accountID, err)
	}
	o.logger.Debug(ctx, "Account assets deleted", map[string]interface{}{"accountID": accountID, "count": rows})
	return rows, nil
}

// --- Transaction history operations ---

// LogTransaction appends an immutable trade record and returns its ID.
func (o *ledgerOps) LogTransaction(ctx context.Context, txn *domain.Transaction) (int64, error) {
	const query = `
	INSERT INTO transactions (account_id, asset_symbol, transaction_type, quantity, price_per_unit,
	                          total_value, transaction_timestamp, realized_profit_loss)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	var realizedPL sql.NullString
	if txn.RealizedProfitLoss.Valid {
		realizedPL = sql.NullString{String: txn.RealizedProfitLoss.Decimal.String(), Valid: true}
	}

	result, err := o.q.ExecContext(ctx, query,
		txn.AccountID, txn.Symbol, string(txn.Side), txn.Quantity.String(), txn.PricePerUnit.String(),
		txn.TotalValue.String(), txn.Timestamp, realizedPL)
	if err != nil {
		return 0, fmt.Errorf("failed to insert transaction for account %d: %w: %w", txn.AccountID, ports.ErrUpdateFailed, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for transaction: %w", err)
	}
	txn.ID = id
	o.logger.Debug(ctx, "Transaction logged", map[string]interface{}{"transactionID": id, "symbol": txn.Symbol, "side": txn.Side})
	return id, nil
}

// FindTransactionsByAccount retrieves the trade history of an account, newest first.
func (o *ledgerOps) FindTransactionsByAccount(ctx context.Context, accountID int64) ([]*domain.Transaction, error) {
	const query = `
	SELECT transaction_id, account_id, asset_symbol, transaction_type, quantity, price_per_unit,
	       total_value, transaction_timestamp, realized_profit_loss
	FROM transactions
	WHERE account_id = ? ORDER BY transaction_timestamp DESC, transaction_id DESC`

	rows, err := o.q.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions for account %d: %w: %w", accountID, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	txns := make([]*domain.Transaction, 0)
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction during FindTransactionsByAccount: %w", err)
		}
		txns = append(txns, txn)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction rows: %w", err)
	}
	return txns, nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDecimal(raw string, column string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("corrupt decimal '%s' in column %s: %w", raw, column, err)
	}
	return d, nil
}

// scanAccount scans a row into a domain.Account struct.
func scanAccount(s scanner) (*domain.Account, error) {
	a := &domain.Account{}
	var balance, initialBalance string
	if err := s.Scan(&a.ID, &a.UserIdentifier, &balance, &initialBalance, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	var err error
	if a.Balance, err = scanDecimal(balance, "balance"); err != nil {
		return nil, err
	}
	if a.InitialBalance, err = scanDecimal(initialBalance, "initial_balance"); err != nil {
		return nil, err
	}
	return a, nil
}

// scanAsset scans a row into a domain.PortfolioAsset struct.
func scanAsset(s scanner) (*domain.PortfolioAsset, error) {
	a := &domain.PortfolioAsset{}
	var quantity, avgPrice string
	if err := s.Scan(&a.ID, &a.AccountID, &a.Symbol, &quantity, &avgPrice, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if a.Quantity, err = scanDecimal(quantity, "quantity"); err != nil {
		return nil, err
	}
	if a.AveragePurchasePrice, err = scanDecimal(avgPrice, "average_purchase_price"); err != nil {
		return nil, err
	}
	return a, nil
}

// scanTransaction scans a row into a domain.Transaction struct.
func scanTransaction(s scanner) (*domain.Transaction, error) {
	t := &domain.Transaction{}
	var side, quantity, price, total string
	var realizedPL sql.NullString
	if err := s.Scan(&t.ID, &t.AccountID, &t.Symbol, &side, &quantity, &price, &total, &t.Timestamp, &realizedPL); err != nil {
		return nil, err
	}
	t.Side = domain.Side(side)
	var err error
	if t.Quantity, err = scanDecimal(quantity, "quantity"); err != nil {
		return nil, err
	}
	if t.PricePerUnit, err = scanDecimal(price, "price_per_unit"); err != nil {
		return nil, err
	}
	if t.TotalValue, err = scanDecimal(total, "total_value"); err != nil {
		return nil, err
	}
	if realizedPL.Valid {
		pl, err := scanDecimal(realizedPL.String, "realized_profit_loss")
		if err != nil {
			return nil, err
		}
		t.RealizedProfitLoss = decimal.NullDecimal{Decimal: pl, Valid: true}
	}
	return t, nil
}
