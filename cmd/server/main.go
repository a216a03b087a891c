package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/config"
	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/gateway"
	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/handlers"
	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/middleware"
	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/services"
)

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

	// Initialize Database
	db, err := services.InitDB(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := services.AutoMigrate(db); err != nil {
		logger.Fatal("failed to run database migrations", zap.Error(err))
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

	// Wire services
	ledger := services.NewLedgerService(db, logger)
	resolver := services.NewGatewayResolver(db, cfg, cipher)
	payments := services.NewPaymentService(db, redis, resolver, ledger, cfg, logger)
	webhooks := services.NewWebhookService(db, redis, resolver, payments, logger)
	disburser := gateway.NewIrisDisburser(cfg.Iris)
	payouts := services.NewPayoutService(db, redis, ledger, disburser, logger)
	gateways := services.NewGatewayConfigService(db, cipher, logger)

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = middleware.CustomErrorHandler(logger)

	// Middleware
	e.Use(echomw.RequestID())
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())

	// Initialize handlers
	paymentHandler := handlers.NewPaymentHandler(payments)
	webhookHandler := handlers.NewWebhookHandler(webhooks)
	providerHandler := handlers.NewProviderHandler(db, ledger, payouts, gateways)

	// Checkout and payment routes
	api := e.Group("/api")
	api.POST("/checkout/:booking_uid", paymentHandler.Checkout)
	api.GET("/payments/:uid", paymentHandler.Get)
	api.POST("/payments/:uid/complete", paymentHandler.Complete)
	api.POST("/payments/:uid/refund", paymentHandler.Refund)

	// Provider settlement routes
	api.GET("/providers/:id/balance", providerHandler.Balance)
	api.GET("/providers/:id/ledger", providerHandler.Ledger)
	api.GET("/providers/:id/gateways", providerHandler.ListGateways)
	api.POST("/providers/:id/gateways", providerHandler.RegisterGateway)
	api.PUT("/providers/:id/gateways/:config_id/primary", providerHandler.MarkGatewayPrimary)
	api.PUT("/providers/:id/gateways/:config_id/verification", providerHandler.SetGatewayVerification)
	api.GET("/providers/:id/payouts", providerHandler.ListPayouts)
	api.POST("/providers/:id/payouts", providerHandler.TriggerPayout)

	// Gateway notification routes
	e.POST("/webhooks/:gateway", webhookHandler.Receive)

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})

	// Start server with graceful shutdown
	go func() {
		logger.Info("server starting", zap.String("port", cfg.Port))
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server stopped", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
