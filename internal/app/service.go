package app

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"cryptosim/config"
	"cryptosim/internal/domain"
	"cryptosim/internal/ports"
)

// TradingService executes simulated spot trades against the ledger store at
// prices read from the live snapshot. Every buy/sell/reset runs inside a
// single ledger transaction and is serialized per account, so balance,
// holding and history always move as one unit.
type TradingService struct {
	cfg    *config.Config
	logger ports.Logger
	prices ports.PriceSource
	store  ports.LedgerStore
	locks  *accountLocks
	now    func() time.Time
}

// NewTradingService creates a new application service instance.
func NewTradingService(
	cfg *config.Config,
	logger ports.Logger,
	prices ports.PriceSource,
	store ports.LedgerStore,
) (*TradingService, error) {

	if cfg == nil || logger == nil || prices == nil || store == nil {
		return nil, fmt.Errorf("missing required dependencies for TradingService")
	}
	if !cfg.StartingBalance.IsPositive() {
		return nil, fmt.Errorf("configuration StartingBalance must be positive")
	}

	return &TradingService{
		cfg:    cfg,
		logger: logger,
		prices: prices,
		store:  store,
		locks:  newAccountLocks(),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// findAccount resolves a user identity to its account through the given
// ledger view, translating absence into ErrAccountNotFound.
func (s *TradingService) findAccount(ctx context.Context, l ports.Ledger, userIdentifier string) (*domain.Account, error) {
	acct, err := l.FindAccountByUser(ctx, userIdentifier)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		s.logger.Warn(ctx, "Account not found", map[string]interface{}{"user": userIdentifier})
		return nil, fmt.Errorf("account not found for user %s: %w", userIdentifier, ports.ErrAccountNotFound)
	}
	return acct, nil
}

// Buy purchases quantity of symbol at the current snapshot price, debiting
// the account balance and updating the weighted-average holding. Returns the
// logged trade record.
func (s *TradingService) Buy(ctx context.Context, userIdentifier, symbol string, quantity decimal.Decimal) (*domain.Transaction, error) {
	s.logger.Info(ctx, "Buy requested", map[string]interface{}{"user": userIdentifier, "symbol": symbol, "quantity": quantity.String()})

	if !quantity.IsPositive() {
		return nil, fmt.Errorf("quantity to buy must be positive, got %s: %w", quantity, ports.ErrInvalidQuantity)
	}

	mu := s.locks.get(userIdentifier)
	mu.Lock()
	defer mu.Unlock()

	var logged *domain.Transaction
	err := s.store.Transact(ctx, func(l ports.Ledger) error {
		acct, err := s.findAccount(ctx, l, userIdentifier)
		if err != nil {
			return err
		}

		// Price lookup hits only the in-memory snapshot; the ledger
		// transaction never waits on the feed.
		price, ok := s.prices.Price(symbol)
		if !ok {
			return fmt.Errorf("price for %s is not currently available: %w", symbol, ports.ErrPriceUnavailable)
		}

		cost := domain.RoundFiat(quantity.Mul(price))
		if cost.GreaterThan(acct.Balance) {
			return fmt.Errorf("required %s, available %s: %w", cost, acct.Balance, ports.ErrInsufficientFunds)
		}

		if err := l.UpdateBalance(ctx, acct.ID, acct.Balance.Sub(cost)); err != nil {
			return err
		}

		asset, err := l.FindAsset(ctx, acct.ID, symbol)
		if err != nil {
			return err
		}
		if asset != nil {
			totalQty := asset.Quantity.Add(quantity)
			newAvg := domain.WeightedAveragePrice(asset.Quantity, asset.AveragePurchasePrice, quantity, price)
			if err := l.UpdateAsset(ctx, asset.ID, domain.TruncateQuantity(totalQty), newAvg); err != nil {
				return err
			}
		} else {
			newAsset := &domain.PortfolioAsset{
				AccountID:            acct.ID,
				Symbol:               symbol,
				Quantity:             domain.TruncateQuantity(quantity),
				AveragePurchasePrice: domain.RoundPrice(price),
			}
			if _, err := l.AddAsset(ctx, newAsset); err != nil {
				return err
			}
		}

		txn := &domain.Transaction{
			AccountID:    acct.ID,
			Symbol:       symbol,
			Side:         domain.Buy,
			Quantity:     domain.TruncateQuantity(quantity),
			PricePerUnit: domain.RoundPrice(price),
			TotalValue:   cost,
			Timestamp:    s.now(),
		}
		if _, err := l.LogTransaction(ctx, txn); err != nil {
			return err
		}
		logged = txn
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "Buy executed", map[string]interface{}{
		"user":          userIdentifier,
		"symbol":        symbol,
		"transactionID": logged.ID,
		"cost":          logged.TotalValue.String(),
	})
	return logged, nil
}

// Sell disposes of quantity of symbol at the current snapshot price,
// crediting the proceeds and recording realized profit/loss against the
// holding's average purchase price. A holding sold down to zero is removed.
func (s *TradingService) Sell(ctx context.Context, userIdentifier, symbol string, quantity decimal.Decimal) (*domain.Transaction, error) {
	s.logger.Info(ctx, "Sell requested", map[string]interface{}{"user": userIdentifier, "symbol": symbol, "quantity": quantity.String()})

	if !quantity.IsPositive() {
		return nil, fmt.Errorf("quantity to sell must be positive, got %s: %w", quantity, ports.ErrInvalidQuantity)
	}

	mu := s.locks.get(userIdentifier)
	mu.Lock()
	defer mu.Unlock()

	var logged *domain.Transaction
	err := s.store.Transact(ctx, func(l ports.Ledger) error {
		acct, err := s.findAccount(ctx, l, userIdentifier)
		if err != nil {
			return err
		}

		asset, err := l.FindAsset(ctx, acct.ID, symbol)
		if err != nil {
			return err
		}
		if asset == nil {
			return fmt.Errorf("asset %s not found in portfolio: %w", symbol, ports.ErrAssetNotHeld)
		}
		if asset.Quantity.LessThan(quantity) {
			return fmt.Errorf("available %s, requested %s of %s: %w", asset.Quantity, quantity, symbol, ports.ErrInsufficientHoldings)
		}

		price, ok := s.prices.Price(symbol)
		if !ok {
			return fmt.Errorf("price for %s is not currently available: %w", symbol, ports.ErrPriceUnavailable)
		}

		proceeds := domain.RoundFiat(quantity.Mul(price))
		costBasis := domain.RoundFiat(quantity.Mul(asset.AveragePurchasePrice))
		realizedPL := domain.RoundFiat(proceeds.Sub(costBasis))

		if err := l.UpdateBalance(ctx, acct.ID, acct.Balance.Add(proceeds)); err != nil {
			return err
		}

		remaining := asset.Quantity.Sub(quantity)
		if remaining.Sign() <= 0 {
			if err := l.DeleteAsset(ctx, asset.ID); err != nil {
				return err
			}
		} else {
			if err := l.UpdateAsset(ctx, asset.ID, domain.TruncateQuantity(remaining), asset.AveragePurchasePrice); err != nil {
				return err
			}
		}

		txn := &domain.Transaction{
			AccountID:          acct.ID,
			Symbol:             symbol,
			Side:               domain.Sell,
			Quantity:           domain.TruncateQuantity(quantity),
			PricePerUnit:       domain.RoundPrice(price),
			TotalValue:         proceeds,
			Timestamp:          s.now(),
			RealizedProfitLoss: decimal.NullDecimal{Decimal: realizedPL, Valid: true},
		}
		if _, err := l.LogTransaction(ctx, txn); err != nil {
			return err
		}
		logged = txn
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "Sell executed", map[string]interface{}{
		"user":          userIdentifier,
		"symbol":        symbol,
		"transactionID": logged.ID,
		"proceeds":      logged.TotalValue.String(),
		"realizedPL":    logged.RealizedProfitLoss.Decimal.String(),
	})
	return logged, nil
}

// ResetAccount restores the balance to the initial balance recorded at
// account creation and removes every holding. Trade history is intentionally
// kept. Returns the refreshed account.
func (s *TradingService) ResetAccount(ctx context.Context, userIdentifier string) (*domain.Account, error) {
	s.logger.Info(ctx, "Account reset requested", map[string]interface{}{"user": userIdentifier})

	mu := s.locks.get(userIdentifier)
	mu.Lock()
	defer mu.Unlock()

	var refreshed *domain.Account
	err := s.store.Transact(ctx, func(l ports.Ledger) error {
		acct, err := s.findAccount(ctx, l, userIdentifier)
		if err != nil {
			return err
		}

		initial, found, err := l.InitialBalance(ctx, acct.ID)
		if err != nil {
			return err
		}
		if !found {
			// The account row just resolved, so a missing initial balance is
			// data corruption rather than a user error.
			s.logger.Error(ctx, ports.ErrNotFound, "Initial balance missing for existing account", map[string]interface{}{"accountID": acct.ID})
			return fmt.Errorf("initial balance configuration missing for account %d: %w", acct.ID, ports.ErrNotFound)
		}

		if err := l.UpdateBalance(ctx, acct.ID, initial); err != nil {
			return err
		}
		deleted, err := l.DeleteAssetsByAccount(ctx, acct.ID)
		if err != nil {
			return err
		}
		s.logger.Info(ctx, "Portfolio cleared on reset", map[string]interface{}{"accountID": acct.ID, "assetsDeleted": deleted})

		refreshed, err = l.FindAccountByID(ctx, acct.ID)
		if err != nil {
			return err
		}
		if refreshed == nil {
			return fmt.Errorf("failed to reload account %d after reset: %w", acct.ID, ports.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "Account reset completed", map[string]interface{}{"user": userIdentifier, "balance": refreshed.Balance.String()})
	return refreshed, nil
}

// EnsureAccount provisions an account for the user with the configured
// starting balance if one does not exist yet, and returns it either way.
func (s *TradingService) EnsureAccount(ctx context.Context, userIdentifier string) (*domain.Account, error) {
	if userIdentifier == "" {
		return nil, fmt.Errorf("user identifier must not be empty: %w", ports.ErrInvalidRequest)
	}

	mu := s.locks.get(userIdentifier)
	mu.Lock()
	defer mu.Unlock()

	var acct *domain.Account
	err := s.store.Transact(ctx, func(l ports.Ledger) error {
		existing, err := l.FindAccountByUser(ctx, userIdentifier)
		if err != nil {
			return err
		}
		if existing != nil {
			acct = existing
			return nil
		}

		acct = &domain.Account{
			UserIdentifier: userIdentifier,
			Balance:        s.cfg.StartingBalance,
			InitialBalance: s.cfg.StartingBalance,
		}
		if _, err := l.CreateAccount(ctx, acct); err != nil {
			return err
		}
		s.logger.Info(ctx, "Account provisioned", map[string]interface{}{
			"user":    userIdentifier,
			"balance": acct.Balance.String(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// GetAccount retrieves the account details for a user.
func (s *TradingService) GetAccount(ctx context.Context, userIdentifier string) (*domain.Account, error) {
	return s.findAccount(ctx, s.store, userIdentifier)
}

// GetPortfolio retrieves the user's holdings, each valued at the current
// snapshot price when one is known.
func (s *TradingService) GetPortfolio(ctx context.Context, userIdentifier string) ([]*domain.PortfolioEntry, error) {
	acct, err := s.findAccount(ctx, s.store, userIdentifier)
	if err != nil {
		return nil, err
	}

	assets, err := s.store.FindAssetsByAccount(ctx, acct.ID)
	if err != nil {
		return nil, err
	}

	entries := make([]*domain.PortfolioEntry, 0, len(assets))
	for _, asset := range assets {
		entry := &domain.PortfolioEntry{Asset: asset}
		if price, ok := s.prices.Price(asset.Symbol); ok {
			entry.CurrentPrice = decimal.NullDecimal{Decimal: price, Valid: true}
			entry.MarketValue = decimal.NullDecimal{Decimal: domain.RoundFiat(asset.Quantity.Mul(price)), Valid: true}
		}
		entries = append(entries, entry)
	}
	s.logger.Debug(ctx, "Portfolio retrieved", map[string]interface{}{"user": userIdentifier, "assets": len(entries)})
	return entries, nil
}

// GetTradeHistory retrieves the user's trade records, newest first.
func (s *TradingService) GetTradeHistory(ctx context.Context, userIdentifier string) ([]*domain.Transaction, error) {
	acct, err := s.findAccount(ctx, s.store, userIdentifier)
	if err != nil {
		return nil, err
	}
	txns, err := s.store.FindTransactionsByAccount(ctx, acct.ID)
	if err != nil {
		return nil, err
	}
	s.logger.Debug(ctx, "Trade history retrieved", map[string]interface{}{"user": userIdentifier, "transactions": len(txns)})
	return txns, nil
}

// GetPrice returns the latest known price for a symbol.
func (s *TradingService) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	price, ok := s.prices.Price(symbol)
	if !ok {
		return decimal.Zero, fmt.Errorf("price for %s is not currently available: %w", symbol, ports.ErrPriceUnavailable)
	}
	return price, nil
}

// GetAllPrices returns a copy of the full price snapshot.
func (s *TradingService) GetAllPrices(ctx context.Context) map[string]decimal.Decimal {
	return s.prices.AllPrices()
}
