package services

import (
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/models"
)

// InitDB initializes the database connection with connection pooling
func InitDB(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

// AutoMigrate runs database migrations for all engine models
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Provider{},
		&models.Client{},
		&models.Booking{},
		&models.GatewayConfig{},
		&models.Payment{},
		&models.PaymentSession{},
		&models.Refund{},
		&models.LedgerEntry{},
		&models.Payout{},
		&models.ScheduledPayout{},
		&models.WebhookEvent{},
	)
}
