package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptosim/internal/domain"
	"cryptosim/internal/ports"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// setupTestDB creates a temporary database for testing
func setupTestDB(t *testing.T) *Repository {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	repo, err := NewRepository(Config{
		DBPath: dbPath,
		Logger: &mockLogger{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func createTestAccount(t *testing.T, repo *Repository, user string) *domain.Account {
	t.Helper()
	acct := &domain.Account{
		UserIdentifier: user,
		Balance:        dec(t, "10000.00"),
		InitialBalance: dec(t, "10000.00"),
	}
	_, err := repo.CreateAccount(context.Background(), acct)
	require.NoError(t, err)
	return acct
}

func TestNewRepository(t *testing.T) {
	t.Run("requires a logger", func(t *testing.T) {
		_, err := NewRepository(Config{DBPath: filepath.Join(t.TempDir(), "test.db")})
		assert.Error(t, err)
	})

	t.Run("creates schema and data directory", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
		repo, err := NewRepository(Config{DBPath: dbPath, Logger: &mockLogger{}})
		require.NoError(t, err)
		defer repo.Close()

		// Schema is usable right away.
		acct, err := repo.FindAccountByUser(context.Background(), "nobody")
		require.NoError(t, err)
		assert.Nil(t, acct)
	})
}

func TestAccountOperations(t *testing.T) {
	ctx := context.Background()

	t.Run("create and find round trip", func(t *testing.T) {
		repo := setupTestDB(t)
		acct := createTestAccount(t, repo, "alice")
		assert.NotZero(t, acct.ID)
		assert.False(t, acct.CreatedAt.IsZero())

		found, err := repo.FindAccountByUser(ctx, "alice")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, acct.ID, found.ID)
		assert.True(t, dec(t, "10000.00").Equal(found.Balance))
		assert.True(t, dec(t, "10000.00").Equal(found.InitialBalance))

		byID, err := repo.FindAccountByID(ctx, acct.ID)
		require.NoError(t, err)
		require.NotNil(t, byID)
		assert.Equal(t, "alice", byID.UserIdentifier)
	})

	t.Run("absent account returns nil without error", func(t *testing.T) {
		repo := setupTestDB(t)

		found, err := repo.FindAccountByUser(ctx, "nobody")
		require.NoError(t, err)
		assert.Nil(t, found)

		byID, err := repo.FindAccountByID(ctx, 999)
		require.NoError(t, err)
		assert.Nil(t, byID)
	})

	t.Run("duplicate user identifier is rejected", func(t *testing.T) {
		repo := setupTestDB(t)
		createTestAccount(t, repo, "alice")

		dup := &domain.Account{
			UserIdentifier: "alice",
			Balance:        dec(t, "1.00"),
			InitialBalance: dec(t, "1.00"),
		}
		_, err := repo.CreateAccount(ctx, dup)
		assert.Error(t, err)
	})

	t.Run("update balance", func(t *testing.T) {
		repo := setupTestDB(t)
		acct := createTestAccount(t, repo, "alice")

		require.NoError(t, repo.UpdateBalance(ctx, acct.ID, dec(t, "5000.25")))

		found, err := repo.FindAccountByID(ctx, acct.ID)
		require.NoError(t, err)
		assert.True(t, dec(t, "5000.25").Equal(found.Balance))
	})

	t.Run("update balance of missing account", func(t *testing.T) {
		repo := setupTestDB(t)
		err := repo.UpdateBalance(ctx, 999, dec(t, "1.00"))
		assert.ErrorIs(t, err, ports.ErrNotFound)
	})

	t.Run("initial balance survives balance updates", func(t *testing.T) {
		repo := setupTestDB(t)
		acct := createTestAccount(t, repo, "alice")
		require.NoError(t, repo.UpdateBalance(ctx, acct.ID, dec(t, "0.01")))

		initial, found, err := repo.InitialBalance(ctx, acct.ID)
		require.NoError(t, err)
		require.True(t, found)
		assert.True(t, dec(t, "10000.00").Equal(initial))

		_, found, err = repo.InitialBalance(ctx, 999)
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestAssetOperations(t *testing.T) {
	ctx := context.Background()

	t.Run("add and find round trip with full precision", func(t *testing.T) {
		repo := setupTestDB(t)
		acct := createTestAccount(t, repo, "alice")

		asset := &domain.PortfolioAsset{
			AccountID:            acct.ID,
			Symbol:               "BTC/USD",
			Quantity:             dec(t, "0.00000001"),
			AveragePurchasePrice: dec(t, "65123.12345678"),
		}
		id, err := repo.AddAsset(ctx, asset)
		require.NoError(t, err)
		assert.NotZero(t, id)

		found, err := repo.FindAsset(ctx, acct.ID, "BTC/USD")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.True(t, dec(t, "0.00000001").Equal(found.Quantity))
		assert.True(t, dec(t, "65123.12345678").Equal(found.AveragePurchasePrice))
	})

	t.Run("absent asset returns nil without error", func(t *testing.T) {
		repo := setupTestDB(t)
		acct := createTestAccount(t, repo, "alice")

		found, err := repo.FindAsset(ctx, acct.ID, "ETH/USD")
		require.NoError(t, err)
		assert.Nil(t, found)
	})

	t.Run("one row per account and symbol", func(t *testing.T) {
		repo := setupTestDB(t)
		acct := createTestAccount(t, repo, "alice")

		first := &domain.PortfolioAsset{AccountID: acct.ID, Symbol: "BTC/USD", Quantity: dec(t, "1"), AveragePurchasePrice: dec(t, "100")}
		_, err := repo.AddAsset(ctx, first)
		require.NoError(t, err)

		dup := &domain.PortfolioAsset{AccountID: acct.ID, Symbol: "BTC/USD", Quantity: dec(t, "2"), AveragePurchasePrice: dec(t, "200")}
		_, err = repo.AddAsset(ctx, dup)
		assert.Error(t, err)
	})

	t.Run("list is ordered by symbol", func(t *testing.T) {
		repo := setupTestDB(t)
		acct := createTestAccount(t, repo, "alice")

		for _, symbol := range []string{"ETH/USD", "ADA/USD", "BTC/USD"} {
			asset := &domain.PortfolioAsset{AccountID: acct.ID, Symbol: symbol, Quantity: dec(t, "1"), AveragePurchasePrice: dec(t, "100")}
			_, err := repo.AddAsset(ctx, asset)
			require.NoError(t, err)
		}

		assets, err := repo.FindAssetsByAccount(ctx, acct.ID)
		require.NoError(t, err)
		require.Len(t, assets, 3)
		assert.Equal(t, "ADA/USD", assets[0].Symbol)
		assert.Equal(t, "BTC/USD", assets[1].Symbol)
		assert.Equal(t, "ETH/USD", assets[2].Symbol)
	})

	t.Run("update quantity and average price", func(t *testing.T) {
		repo := setupTestDB(t)
		acct := createTestAccount(t, repo, "alice")
		asset := &domain.PortfolioAsset{AccountID: acct.ID, Symbol: "BTC/USD", Quantity: dec(t, "1"), AveragePurchasePrice: dec(t, "100")}
		_, err := repo.AddAsset(ctx, asset)
		require.NoError(t, err)

		require.NoError(t, repo.UpdateAsset(ctx, asset.ID, dec(t, "1.5"), dec(t, "120")))

		found, err := repo.FindAsset(ctx, acct.ID, "BTC/USD")
		require.NoError(t, err)
		assert.True(t, dec(t, "1.5").Equal(found.Quantity))
		assert.True(t, dec(t, "120").Equal(found.AveragePurchasePrice))

		err = repo.UpdateAsset(ctx, 999, dec(t, "1"), dec(t, "1"))
		assert.ErrorIs(t, err, ports.ErrNotFound)
	})

	t.Run("delete single asset", func(t *testing.T) {
		repo := setupTestDB(t)
		acct := createTestAccount(t, repo, "alice")
		asset := &domain.PortfolioAsset{AccountID: acct.ID, Symbol: "BTC/USD", Quantity: dec(t, "1"), AveragePurchasePrice: dec(t, "100")}
		_, err := repo.AddAsset(ctx, asset)
		require.NoError(t, err)

		require.NoError(t, repo.DeleteAsset(ctx, asset.ID))

		found, err := repo.FindAsset(ctx, acct.ID, "BTC/USD")
		require.NoError(t, err)
		assert.Nil(t, found)

		err = repo.DeleteAsset(ctx, asset.ID)
		assert.ErrorIs(t, err, ports.ErrNotFound)
	})

	t.Run("delete all assets of an account", func(t *testing.T) {
		repo := setupTestDB(t)
		acct := createTestAccount(t, repo, "alice")
		other := createTestAccount(t, repo, "bob")

		for _, symbol := range []string{"BTC/USD", "ETH/USD"} {
			asset := &domain.PortfolioAsset{AccountID: acct.ID, Symbol: symbol, Quantity: dec(t, "1"), AveragePurchasePrice: dec(t, "100")}
			_, err := repo.AddAsset(ctx, asset)
			require.NoError(t, err)
		}
		kept := &domain.PortfolioAsset{AccountID: other.ID, Symbol: "BTC/USD", Quantity: dec(t, "1"), AveragePurchasePrice: dec(t, "100")}
		_, err := repo.AddAsset(ctx, kept)
		require.NoError(t, err)

		deleted, err := repo.DeleteAssetsByAccount(ctx, acct.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), deleted)

		// Other account untouched.
		remaining, err := repo.FindAssetsByAccount(ctx, other.ID)
		require.NoError(t, err)
		assert.Len(t, remaining, 1)

		// Deleting nothing reports zero, not an error.
		deleted, err = repo.DeleteAssetsByAccount(ctx, acct.ID)
		require.NoError(t, err)
		assert.Zero(t, deleted)
	})
}

func TestTransactionHistory(t *testing.T) {
	ctx := context.Background()

	t.Run("log and retrieve with realized profit", func(t *testing.T) {
		repo := setupTestDB(t)
		acct := createTestAccount(t, repo, "alice")

		txn := &domain.Transaction{
			AccountID:          acct.ID,
			Symbol:             "BTC/USD",
			Side:               domain.Sell,
			Quantity:           dec(t, "0.1"),
			PricePerUnit:       dec(t, "55000"),
			TotalValue:         dec(t, "5500.00"),
			Timestamp:          time.Now().UTC(),
			RealizedProfitLoss: decimal.NullDecimal{Decimal: dec(t, "500.00"), Valid: true},
		}
		id, err := repo.LogTransaction(ctx, txn)
		require.NoError(t, err)
		assert.NotZero(t, id)

		txns, err := repo.FindTransactionsByAccount(ctx, acct.ID)
		require.NoError(t, err)
		require.Len(t, txns, 1)
		got := txns[0]
		assert.Equal(t, domain.Sell, got.Side)
		assert.True(t, dec(t, "0.1").Equal(got.Quantity))
		assert.True(t, dec(t, "5500.00").Equal(got.TotalValue))
		require.True(t, got.RealizedProfitLoss.Valid)
		assert.True(t, dec(t, "500.00").Equal(got.RealizedProfitLoss.Decimal))
	})

	t.Run("buy record has no realized profit", func(t *testing.T) {
		repo := setupTestDB(t)
		acct := createTestAccount(t, repo, "alice")

		txn := &domain.Transaction{
			AccountID:    acct.ID,
			Symbol:       "BTC/USD",
			Side:         domain.Buy,
			Quantity:     dec(t, "0.1"),
			PricePerUnit: dec(t, "50000"),
			TotalValue:   dec(t, "5000.00"),
			Timestamp:    time.Now().UTC(),
		}
		_, err := repo.LogTransaction(ctx, txn)
		require.NoError(t, err)

		txns, err := repo.FindTransactionsByAccount(ctx, acct.ID)
		require.NoError(t, err)
		require.Len(t, txns, 1)
		assert.False(t, txns[0].RealizedProfitLoss.Valid)
	})

	t.Run("history comes back newest first", func(t *testing.T) {
		repo := setupTestDB(t)
		acct := createTestAccount(t, repo, "alice")

		base := time.Now().UTC().Add(-time.Hour)
		for i, symbol := range []string{"BTC/USD", "ETH/USD", "ADA/USD"} {
			txn := &domain.Transaction{
				AccountID:    acct.ID,
				Symbol:       symbol,
				Side:         domain.Buy,
				Quantity:     dec(t, "1"),
				PricePerUnit: dec(t, "100"),
				TotalValue:   dec(t, "100.00"),
				Timestamp:    base.Add(time.Duration(i) * time.Minute),
			}
			_, err := repo.LogTransaction(ctx, txn)
			require.NoError(t, err)
		}

		txns, err := repo.FindTransactionsByAccount(ctx, acct.ID)
		require.NoError(t, err)
		require.Len(t, txns, 3)
		assert.Equal(t, "ADA/USD", txns[0].Symbol)
		assert.Equal(t, "ETH/USD", txns[1].Symbol)
		assert.Equal(t, "BTC/USD", txns[2].Symbol)
	})
}

func TestTransact(t *testing.T) {
	ctx := context.Background()

	t.Run("commit persists every change", func(t *testing.T) {
		repo := setupTestDB(t)
		acct := createTestAccount(t, repo, "alice")

		err := repo.Transact(ctx, func(l ports.Ledger) error {
			if err := l.UpdateBalance(ctx, acct.ID, dec(t, "9000.00")); err != nil {
				return err
			}
			asset := &domain.PortfolioAsset{AccountID: acct.ID, Symbol: "BTC/USD", Quantity: dec(t, "0.02"), AveragePurchasePrice: dec(t, "50000")}
			_, err := l.AddAsset(ctx, asset)
			return err
		})
		require.NoError(t, err)

		found, err := repo.FindAccountByID(ctx, acct.ID)
		require.NoError(t, err)
		assert.True(t, dec(t, "9000.00").Equal(found.Balance))

		asset, err := repo.FindAsset(ctx, acct.ID, "BTC/USD")
		require.NoError(t, err)
		assert.NotNil(t, asset)
	})

	t.Run("error rolls back every change", func(t *testing.T) {
		repo := setupTestDB(t)
		acct := createTestAccount(t, repo, "alice")
		boom := errors.New("boom")

		err := repo.Transact(ctx, func(l ports.Ledger) error {
			if err := l.UpdateBalance(ctx, acct.ID, dec(t, "1.00")); err != nil {
				return err
			}
			asset := &domain.PortfolioAsset{AccountID: acct.ID, Symbol: "BTC/USD", Quantity: dec(t, "0.02"), AveragePurchasePrice: dec(t, "50000")}
			if _, err := l.AddAsset(ctx, asset); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		found, err := repo.FindAccountByID(ctx, acct.ID)
		require.NoError(t, err)
		assert.True(t, dec(t, "10000.00").Equal(found.Balance), "balance must be untouched after rollback")

		asset, err := repo.FindAsset(ctx, acct.ID, "BTC/USD")
		require.NoError(t, err)
		assert.Nil(t, asset, "asset insert must not survive rollback")
	})
}
