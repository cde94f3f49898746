package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lexinote/payment-service/internal/config"
	"github.com/lexinote/payment-service/internal/infrastructure/activation"
	"github.com/lexinote/payment-service/internal/infrastructure/chain"
	"github.com/lexinote/payment-service/internal/infrastructure/database"
	httpServer "github.com/lexinote/payment-service/internal/infrastructure/http"
	"github.com/lexinote/payment-service/internal/infrastructure/lock"
	"github.com/lexinote/payment-service/internal/logger"
	"github.com/lexinote/payment-service/internal/usecase"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	zapLogger, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	// Initialize database connection
	db, err := database.NewConnection(&cfg.Database, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := database.Close(db, zapLogger); err != nil {
			zapLogger.Error("Failed to close database connection", zap.Error(err))
		}
	}()

	// Run database migrations
	if err := database.Migrate(db, zapLogger); err != nil {
		zapLogger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Initialize repositories
	repos := database.NewRepositories(db, zapLogger)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to the chain
	chainClient, err := chain.NewClient(chain.Config{
		Endpoints:     cfg.Chain.RPCEndpoints,
		TokenContract: cfg.Chain.TokenContract,
		RPCTimeout:    cfg.Chain.RPCTimeout,
	}, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to connect to chain RPC", zap.Error(err))
	}
	defer chainClient.Close()

	// Activation collaborators and dispatcher
	activationClient := activation.NewClient(cfg.Activation.BaseURL, cfg.Activation.APIKey, zapLogger)
	dispatcher := usecase.NewActivationDispatcher(repos.Payment, activationClient, activationClient, zapLogger)

	// Status change notifications
	notifier := usecase.NewWebhookNotifier(cfg.Webhook.Endpoint, cfg.Webhook.Secret, zapLogger)

	// Optional leader lock: without Redis the scheduler runs in
	// single-instance mode
	var leaderLock usecase.LeaderLock
	if cfg.Redis.Address != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		leaderLock = lock.NewRedisLock(redisClient, "payment:verification:leader", cfg.Verification.LockTTL, zapLogger)
	}

	absTolerance, err := decimal.NewFromString(cfg.Verification.AmountToleranceUSDT)
	if err != nil {
		zapLogger.Fatal("Invalid amount tolerance", zap.Error(err))
	}
	scanTolerance := decimal.NewFromFloat(cfg.Verification.ScanTolerancePercent).Div(decimal.NewFromInt(100))

	// Verification scheduler
	verifier := usecase.NewTransferVerifier(cfg.Chain.TokenContract)
	scheduler := usecase.NewVerificationScheduler(
		usecase.SchedulerConfig{
			CheckInterval:         cfg.Verification.CheckInterval,
			MaxRetries:            cfg.Verification.MaxRetries,
			RequiredConfirmations: cfg.Verification.RequiredConfirmations,
			PaymentTTL:            cfg.Verification.PaymentTTL,
			AmountToleranceUSDT:   absTolerance,
			ScanToleranceFraction: scanTolerance,
			MaxBlocksToScan:       cfg.Verification.MaxBlocksToScan,
			SweepBatchSize:        cfg.Verification.SweepBatchSize,
		},
		repos.Payment,
		repos.PendingTransaction,
		repos.WalletAddress,
		chainClient,
		verifier,
		dispatcher,
		notifier,
		leaderLock,
		zapLogger,
	)

	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		scheduler.Run(ctx)
	}()

	// Payment service and HTTP server
	paymentService := usecase.NewPaymentService(
		usecase.PaymentServiceConfig{
			ReceivingAddress:      cfg.Chain.ReceivingAddress,
			PaymentTTL:            cfg.Verification.PaymentTTL,
			RequiredConfirmations: cfg.Verification.RequiredConfirmations,
		},
		repos.Payment,
		repos.PendingTransaction,
		repos.WalletAddress,
		dispatcher,
		notifier,
		zapLogger,
	)

	httpSrv := httpServer.NewServer(cfg, zapLogger, paymentService)

	go func() {
		if err := httpSrv.Start(); err != nil {
			zapLogger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zapLogger.Info("Shutting down...")

	// Stop the scheduler first and wait for the in-flight sweep to finish
	// so no write is cut off mid-sweep
	cancel()
	<-schedulerDone

	if err := httpSrv.Shutdown(context.Background()); err != nil {
		zapLogger.Error("Failed to shutdown HTTP server", zap.Error(err))
	}

	zapLogger.Info("Shutdown complete")
}
