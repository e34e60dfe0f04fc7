package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "offerpay/docs"

	"offerpay/internal/config"
	"offerpay/internal/coupon"
	"offerpay/internal/db"
	"offerpay/internal/gateway"
	"offerpay/internal/logger"
	"offerpay/internal/replay"
	"offerpay/internal/server"
	"offerpay/internal/topup"
	"offerpay/internal/wallet"
	"offerpay/internal/webhook"
)

// @title OfferPay Wallet & Settlement API
// @version 1.0
// @description Wallet ledger, top-up and payment settlement service.
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {

	logger.Init()
	logger.Info("Starting OfferPay application")
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	if cfg.WebhookSecret == "" {
		logger.Fatal("WEBHOOK_SECRET is not set; refusing to accept unverifiable webhooks")
	}

	logger.Info("Connecting to database...")
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	logger.Info("Database connected")

	if err := db.RunMigrations(database, "migrations"); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("Migrations completed")

	gw := gateway.NewHTTPClient(
		cfg.GatewayProvider,
		cfg.GatewayBaseURL,
		cfg.GatewayKeyID,
		cfg.GatewayKeySecret,
		cfg.WebhookSecret,
		cfg.GatewayTimeout,
	)

	attempts := topup.NewRepository(database)
	wallets := wallet.NewRepository(database)
	coupons := coupon.NewRepository(database)
	settlement := topup.NewSettlement(database, attempts, wallets, coupons, gw)
	processor := webhook.NewProcessor(webhook.NewRepository(database), gw, settlement)

	queue := replay.New(cfg.RedisAddr, processor)
	defer queue.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go queue.Start(ctx)
	go topup.NewSweeper(attempts, cfg.SweepInterval, cfg.MaxPendingAge).Start(ctx)

	srv := server.New(database, cfg, gw, processor, queue)

	serverErrChan := make(chan error, 1)
	go func() {
		logger.Infof("Server starting on port %s", cfg.Port)
		if err := srv.Start(cfg.Port); err != nil && err != http.ErrServerClosed {
			serverErrChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Infof("Received signal: %v", sig)
	case err := <-serverErrChan:
		logger.Errorf("Server error: %v", err)
	}

	logger.Info("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Error during server shutdown: %v", err)
	}

	logger.Info("Server stopped")
}
