package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/models"
	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/services"
)

func main() {
	// defined flags
	providerID := flag.Uint("provider_id", 0, "Provider id (mandatory)")
	firstRunStr := flag.String("first_run", "", "First run time (mandatory, format: 2006-01-02 15:04 or RFC3339)")
	recurring := flag.String("recurring", "", "RFC 5545 RRULE, e.g. FREQ=WEEKLY;BYDAY=FR (optional; empty means run once)")

	flag.Parse()

	// Validation
	if *providerID == 0 || *firstRunStr == "" {
		fmt.Println("Usage: schedule_payout -provider_id <id> -first_run <YYYY-MM-DD HH:MM> [-recurring <rrule>]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	// Load env
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	db, err := services.InitDB(dsn)
	if err != nil {
		log.Fatalf("Failed to connect DB: %v", err)
	}

	firstRun, err := time.Parse(time.RFC3339, *firstRunStr)
	if err != nil {
		firstRun, err = time.ParseInLocation("2006-01-02 15:04", *firstRunStr, time.Local)
		if err != nil {
			log.Fatalf("Invalid first run format. Use '2006-01-02 15:04' (Local) or RFC3339: %v", err)
		}
	}

	var provider models.Provider
	if err := db.First(&provider, *providerID).Error; err != nil {
		log.Fatalf("Provider %d not found: %v", *providerID, err)
	}
	if provider.PayoutBank == "" || provider.PayoutAccount == "" {
		log.Fatalf("Provider %d has no payout destination configured", *providerID)
	}

	var recurringPtr *string
	if *recurring != "" {
		recurringPtr = recurring
	}

	schedule := models.ScheduledPayout{
		ProviderID:        *providerID,
		RecurringInterval: recurringPtr,
		NextRunAt:         firstRun,
		Status:            models.ScheduledPayoutStatusActive,
	}

	if err := db.Create(&schedule).Error; err != nil {
		log.Fatalf("Failed to create payout schedule: %v", err)
	}

	log.Printf("Payout schedule %d created for provider %d, first run %s", schedule.ID, *providerID, firstRun.Format(time.RFC3339))
}
