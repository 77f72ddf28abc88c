package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"academia-veritas/registry-backend/internal/anchorqueue"
	"academia-veritas/registry-backend/internal/config"
	"academia-veritas/registry-backend/internal/ledger"
)

// The anchor worker drains certificates whose ledger anchor is still
// pending. It runs the same reconciler as the API process; both sides stay
// idempotent because anchoring an already-anchored fingerprint is treated
// as success and the row update is guarded on the pending state.
func main() {
	_ = godotenv.Load()

	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.json"
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// DATABASE_URL wins over the assembled config DSN when set.
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		databaseURL = cfg.Database.GetDatabaseURL()
	}

	// Connect to database
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatal("Failed to ping database", zap.Error(err))
	}
	logger.Info("Connected to database")

	chain, err := ledger.NewStellarClient(ledger.Config{
		HorizonURL:        cfg.Ledger.HorizonURL,
		NetworkPassphrase: cfg.Ledger.NetworkPassphrase,
		AnchorSecretSeed:  cfg.Ledger.AnchorSecretSeed,
		SubmitTimeout:     cfg.Ledger.SubmitTimeout,
		MaxAttempts:       cfg.Ledger.MaxAttempts,
		RetryBackoff:      cfg.Ledger.RetryBackoff,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize ledger client", zap.Error(err))
	}

	worker := anchorqueue.NewReconciler(db, chain, nil, nil, anchorqueue.Config{
		PollInterval:  cfg.Reconciler.PollInterval,
		BatchSize:     cfg.Reconciler.BatchSize,
		AnchorTimeout: cfg.Reconciler.AnchorTimeout,
	}, logger)

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received")
		cancel()
	}()

	logger.Info("Anchor worker starting")
	if err := worker.Run(ctx); err != nil {
		logger.Error("Worker error", zap.Error(err))
	}

	logger.Info("Anchor worker stopped")
}
