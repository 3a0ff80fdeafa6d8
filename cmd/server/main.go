// Package main is the entry point for the lotledger API server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lotledger/internal/core/batchnum"
	"lotledger/internal/domain/allocation"
	"lotledger/internal/domain/batch"
	"lotledger/internal/domain/guard"
	"lotledger/internal/domain/ledger"
	"lotledger/internal/domain/receipt"
	v1 "lotledger/internal/infrastructure/http/v1"
	"lotledger/internal/infrastructure/storage/postgres"
	"lotledger/internal/infrastructure/storage/postgres/batch_repo"
	"lotledger/internal/infrastructure/storage/postgres/ledger_repo"
	"lotledger/internal/infrastructure/storage/postgres/purchase_repo"
	"lotledger/pkg/logger"
)

func main() {
	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	log.Info("starting lotledger server")

	// --- Database ---
	poolCfg := postgres.DefaultPoolConfig(mustEnv("DATABASE_URL"))
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	txManager := postgres.NewTxManager(pool)

	// --- Feature guard ---
	guardCfg, err := loadGuardConfig()
	if err != nil {
		log.Fatalw("failed to load feature configuration", "error", err)
	}
	featureGuard, err := guard.New(guardCfg)
	if err != nil {
		log.Fatalw("failed to build feature guard", "error", err)
	}
	log.Infow("feature guard initialized",
		"organization", guardCfg.OrganizationID,
		"expiry_mandatory", guardCfg.ExpiryMandatory,
		"allow_negative_stock", guardCfg.AllowNegativeStock,
		"custom_rules", len(guardCfg.CustomRules),
	)

	// --- Repositories ---
	batchRepo := batch_repo.NewBatchRepo(txManager)
	movementRepo := ledger_repo.NewMovementRepo(txManager)
	purchaseRepo := purchase_repo.NewPurchaseRepo(txManager)

	// --- Services ---
	registry := batch.NewRegistry(batchRepo, featureGuard, batchnum.New())
	ledgerService := ledger.NewService(movementRepo, registry, txManager)
	engine := allocation.NewEngine(registry, featureGuard)

	auditService, err := postgres.NewAuditService(txManager)
	if err != nil {
		log.Fatalw("failed to build audit service", "error", err)
	}

	processor := receipt.NewProcessor(purchaseRepo, registry, ledgerService, txManager, auditService)

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Pool:      pool,
		TxManager: txManager,
		Logger:    log,
		Guard:     featureGuard,
		Registry:  registry,
		Ledger:    ledgerService,
		Engine:    engine,
		Processor: processor,
		Purchases: purchaseRepo,
		Audit:     auditService,
	})

	// --- HTTP Server ---
	port := getEnv("APP_PORT", "8080")
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}

// loadGuardConfig reads feature configuration from FEATURES_CONFIG (JSON
// file path) or falls back to documented defaults for ORGANIZATION_ID.
func loadGuardConfig() (guard.Config, error) {
	orgID := getEnv("ORGANIZATION_ID", "default")

	path := os.Getenv("FEATURES_CONFIG")
	if path == "" {
		return guard.DefaultConfig(orgID), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return guard.Config{}, fmt.Errorf("read features config: %w", err)
	}

	cfg := guard.DefaultConfig(orgID)
	if err := json.Unmarshal(data, &cfg); err != nil {
		return guard.Config{}, fmt.Errorf("parse features config: %w", err)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		fmt.Printf("required environment variable %s not set\n", key)
		os.Exit(1)
	}
	return value
}
