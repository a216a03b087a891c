package models

import (
	"time"

	"gorm.io/gorm"
)

// SubscriptionTier is the provider's subscription level. Fee rates and
// deposit policy are tier-determined; the engine reads them, never writes.
type SubscriptionTier string

const (
	TierStarter SubscriptionTier = "starter"
	TierGrowth  SubscriptionTier = "growth"
	TierPro     SubscriptionTier = "pro"
)

// Provider sells time-slot services and receives settled funds
type Provider struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Name     string           `gorm:"type:varchar(255)" json:"name"`
	Email    string           `gorm:"type:varchar(255);uniqueIndex" json:"email"`
	Currency string           `gorm:"type:varchar(3)" json:"currency"` // single currency per provider
	Tier     SubscriptionTier `gorm:"type:varchar(20);default:'starter'" json:"tier"`
	FeePayer FeePayer         `gorm:"type:varchar(20);default:'provider'" json:"fee_payer"`

	// Payout destination descriptor
	PayoutBank    string `gorm:"type:varchar(100)" json:"payout_bank"`
	PayoutAccount string `gorm:"type:varchar(100)" json:"payout_account"`
	PayoutName    string `gorm:"type:varchar(255)" json:"payout_name"`

	// Relationships
	GatewayConfigs []GatewayConfig `gorm:"foreignKey:ProviderID" json:"gateway_configs,omitempty"`
	LedgerEntries  []LedgerEntry   `gorm:"foreignKey:ProviderID" json:"ledger_entries,omitempty"`
	Payouts        []Payout        `gorm:"foreignKey:ProviderID" json:"payouts,omitempty"`
}

// Client books and pays for services
type Client struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Name  string `gorm:"type:varchar(255)" json:"name"`
	Email string `gorm:"type:varchar(255);uniqueIndex" json:"email"`
	Phone string `gorm:"type:varchar(50)" json:"phone"`
}
