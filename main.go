package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"
	"os/signal"
	"syscall"
	"time"

	"cryptosim/config"
	"cryptosim/internal/adapters/krakenfeed"
	"cryptosim/internal/adapters/logger"
	"cryptosim/internal/adapters/sqlite"
	"cryptosim/internal/app"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.New(logger.Config{Level: cfg.LogLevel, FilePath: cfg.LogFile})
	defer func() { _ = appLogger.Sync() }()
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize ledger store")
		log.Fatalf("FATAL: Failed to initialize ledger store: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing ledger store")
		}
	}()
	appLogger.Info(context.Background(), "Ledger store initialized", map[string]interface{}{"path": cfg.DBPath})

	// 4. Initialize Market Data Feed (Kraken Adapter)
	feed, err := krakenfeed.New(krakenfeed.Config{
		URL:         cfg.KrakenWSURL,
		Symbols:     cfg.Symbols,
		Logger:      appLogger,
		DialTimeout: cfg.FeedDialTimeout,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Kraken feed")
		log.Fatalf("FATAL: Failed to initialize Kraken feed: %v", err)
	}

	// 5. Initialize Application Service
	tradingService, err := app.NewTradingService(cfg, appLogger, feed, repo)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize trading service")
		log.Fatalf("FATAL: Failed to initialize trading service: %v", err)
	}
	appLogger.Info(context.Background(), "Trading service initialized")

	ctx := context.Background()

	// 6. Provision the default account before accepting any work
	acct, err := tradingService.EnsureAccount(ctx, cfg.DefaultUser)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to provision default account")
		log.Fatalf("FATAL: Failed to provision default account: %v", err)
	}
	appLogger.Info(ctx, "Default account ready", map[string]interface{}{
		"user":    acct.UserIdentifier,
		"balance": acct.Balance.String(),
	})

	// 7. Start the price feed; it reconnects on its own after the first dial
	if err := feed.Start(ctx); err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to start Kraken feed")
		log.Fatalf("FATAL: Failed to start Kraken feed: %v", err)
	}
	appLogger.Info(ctx, "Price feed started", map[string]interface{}{"symbols": len(cfg.Symbols)})

	// 8. Block until asked to stop
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	appLogger.Info(ctx, "Shutdown signal received", map[string]interface{}{"signal": sig.String()})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := feed.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, err, "Error shutting down price feed")
	}

	appLogger.Info(ctx, "Application finished gracefully.")
}
