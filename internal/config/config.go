// Package config loads the engine's environment-driven settings into one
// explicit struct that is injected where needed. Nothing else in the engine
// reads the environment.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/gateway"
)

// Config is everything the server and worker need at startup
type Config struct {
	Env  string
	Port string

	AppURL      string
	DatabaseURL string
	RedisURL    string

	// CredentialKey is the hex AES-256 key that encrypts gateway credentials
	CredentialKey string

	// SessionTTL bounds how long a checkout session token stays valid
	SessionTTL time.Duration

	WiPay    gateway.WiPayConfig
	Midtrans gateway.MidtransConfig
	Iris     gateway.IrisConfig
}

// Load reads the environment. It fails fast on settings without a safe
// default; missing required config is a programming/deployment error, not a
// runtime condition to limp through.
func Load() (*Config, error) {
	cfg := &Config{
		Env:           getEnv("APP_ENV", "development"),
		Port:          getEnv("PORT", "8080"),
		AppURL:        getEnv("APP_URL", "http://localhost:8080"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisURL:      getEnv("REDIS_URL", "redis://localhost:6379/0"),
		CredentialKey: os.Getenv("CREDENTIAL_KEY"),
		SessionTTL:    30 * time.Minute,
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}
	if cfg.CredentialKey == "" {
		return nil, fmt.Errorf("CREDENTIAL_KEY is not set")
	}

	wipayFeeRate, err := decimal.NewFromString(getEnv("WIPAY_FEE_RATE", "0.04"))
	if err != nil {
		return nil, fmt.Errorf("invalid WIPAY_FEE_RATE: %w", err)
	}
	cfg.WiPay = gateway.WiPayConfig{
		BaseURL:           getEnv("WIPAY_BASE_URL", "https://gateway.wipayfinancial.com"),
		PlatformAccountID: os.Getenv("WIPAY_PLATFORM_ACCOUNT"),
		WebhookSecret:     os.Getenv("WIPAY_WEBHOOK_SECRET"),
		FeeRate:           wipayFeeRate,
	}

	midtransFeeRate, err := decimal.NewFromString(getEnv("MIDTRANS_FEE_RATE", "0.029"))
	if err != nil {
		return nil, fmt.Errorf("invalid MIDTRANS_FEE_RATE: %w", err)
	}
	cfg.Midtrans = gateway.MidtransConfig{
		ServerKey:  os.Getenv("MIDTRANS_SERVER_KEY"),
		ClientKey:  os.Getenv("MIDTRANS_CLIENT_KEY"),
		Production: getEnv("MIDTRANS_IS_PRODUCTION", "false") == "true",
		FeeRate:    midtransFeeRate,
	}

	cfg.Iris = gateway.IrisConfig{
		APIKey:      os.Getenv("IRIS_API_KEY"),
		Production:  cfg.Midtrans.Production,
		ApproverOTP: os.Getenv("IRIS_APPROVER_OTP"),
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
