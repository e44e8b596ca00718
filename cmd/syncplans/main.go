package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"payment-gateway-ledger/internal/client"
	"payment-gateway-ledger/internal/config"
	"payment-gateway-ledger/internal/logger"
	"payment-gateway-ledger/internal/repository"
	"payment-gateway-ledger/internal/service"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// syncplans mirrors every gateway price into subscription_plans once and
// exits non-zero when any price failed.
func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found (ok in prod)")
	}

	cfg, err := config.LoadSync()
	if err != nil {
		fmt.Printf("Failed to parse config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Printf("Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	db, err := client.InitDBClient(cfg.Database)
	if err != nil {
		log.Fatal("init database", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	synchronizer := service.NewCatalogSynchronizer(&service.HandlerContext{
		Log:          log.Named("syncplans"),
		Gateway:      client.NewStripeClient(log.Named("stripe"), cfg.Stripe),
		Plans:        repository.NewSubscriptionPlanRepository(db),
		FreePriceID:  cfg.Stripe.FreePriceID,
		SyncPageSize: cfg.Stripe.SyncPageSize,
	})

	result := synchronizer.SyncPlans(ctx)
	for _, msg := range result.Errors {
		log.Warn("sync error", zap.String("error", msg))
	}
	if !result.Success {
		_ = log.Sync()
		os.Exit(1)
	}
}
