package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"payment-gateway-ledger/internal/client"
	"payment-gateway-ledger/internal/config"
	"payment-gateway-ledger/internal/logger"
	"payment-gateway-ledger/internal/repository"
	"payment-gateway-ledger/internal/server"
	"payment-gateway-ledger/internal/service"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// load .env into os.Environ
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found (ok in prod)")
	}

	cfg, err := config.Load()
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

	log = log.With(zap.String("environment", cfg.Environment.Name))

	db, err := client.InitDBClient(cfg.Database)
	if err != nil {
		log.Fatal("init database", zap.Error(err))
	}
	stripeClient := client.NewStripeClient(log.Named("stripe"), cfg.Stripe)

	transactionRepo := repository.NewPaymentTransactionRepository(db)
	planRepo := repository.NewSubscriptionPlanRepository(db)
	subscriptionRepo := repository.NewUserSubscriptionRepository(db)
	walletRepo := repository.NewWalletRepository(db)
	webhookEventRepo := repository.NewWebhookEventRepository(db)

	walletService := service.NewWalletService(log.Named("wallet"), walletRepo)

	hc := &service.HandlerContext{
		Log:           log.Named("webhook"),
		Gateway:       stripeClient,
		Transactions:  transactionRepo,
		Plans:         planRepo,
		Subscriptions: subscriptionRepo,
		Wallets:       walletService,
		FreePriceID:   cfg.Stripe.FreePriceID,
		SyncPageSize:  cfg.Stripe.SyncPageSize,
	}

	webhookService := service.NewWebhookService(
		log.Named("webhook"),
		service.NewEventVerifier(cfg.Webhook.Secret, cfg.Webhook.Tolerance),
		service.NewDispatcher(hc),
		webhookEventRepo,
	)
	paymentService := service.NewPaymentService(
		log.Named("payment"),
		stripeClient,
		transactionRepo,
		planRepo,
		walletService,
		cfg.Stripe.SiteURL,
	)

	serverAddr := cfg.HTTP.Host + ":" + cfg.HTTP.Port

	// Init HTTP server
	srv := server.NewServer(log.Named("http"), server.Services{
		Webhook:   webhookService,
		Payment:   paymentService,
		Catalog:   service.NewCatalogSynchronizer(hc),
		JWTSecret: cfg.Auth.JWTSecret,
	})

	log.Info("starting HTTP server", zap.String("address", serverAddr))
	go func() {
		if err := srv.Start(serverAddr); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	<-sigChan
	log.Info("signal received, starting graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("HTTP server shutdown error", zap.Error(err))
	}
}
