package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/config"
	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/gateway"
	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/services"
	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/tasks"
)

const tickInterval = 5 * time.Minute

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	db, err := services.InitDB(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}

	redis, err := services.NewRedisStore(cfg.RedisURL)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redis.Close()

	cipher, err := services.NewCredentialCipher(cfg.CredentialKey)
	if err != nil {
		logger.Fatal("invalid credential key", zap.Error(err))
	}

	ledger := services.NewLedgerService(db, logger)
	resolver := services.NewGatewayResolver(db, cfg, cipher)
	payments := services.NewPaymentService(db, redis, resolver, ledger, cfg, logger)
	disburser := gateway.NewIrisDisburser(cfg.Iris)
	payouts := services.NewPayoutService(db, redis, ledger, disburser, logger)

	deps := tasks.Deps{
		DB:       db,
		Payments: payments,
		Payouts:  payouts,
		Ledger:   ledger,
		Logger:   logger,
	}

	tasks.DefineTasks()

	logger.Info("worker started", zap.Duration("tick", tickInterval))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logger.Info("shutting down worker")
		cancel()
	}()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	// Run once on startup so a restart does not wait a full tick
	runAll(ctx, deps, logger)

	for {
		select {
		case <-ticker.C:
			runAll(ctx, deps, logger)
		case <-ctx.Done():
			return
		}
	}
}

func runAll(ctx context.Context, deps tasks.Deps, logger *zap.Logger) {
	for _, name := range tasks.GlobalRegistry.Names() {
		if ctx.Err() != nil {
			return
		}

		handler, ok := tasks.GetHandler(name)
		if !ok {
			continue
		}

		start := time.Now()
		result, err := handler(ctx, deps)
		if err != nil {
			logger.Error("task failed",
				zap.String("task", name),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err),
			)
			continue
		}
		logger.Info("task completed",
			zap.String("task", name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Any("result", result),
		)
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
