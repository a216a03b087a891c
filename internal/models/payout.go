package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PayoutStatus tracks a batched disbursement through its lifecycle
type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "pending"
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusCompleted  PayoutStatus = "completed"
	PayoutStatusFailed     PayoutStatus = "failed"
	PayoutStatusCancelled  PayoutStatus = "cancelled"
)

// Payout is a batched disbursement of a provider's accrued, unpaid ledger
// credit. A failed payout keeps its payments attached for audit; retrying
// means creating a new payout over the still-unpaid payments, never mutating
// this one.
type Payout struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UID        string `gorm:"type:varchar(36);uniqueIndex" json:"uid"`
	ProviderID uint   `gorm:"index" json:"provider_id"`

	Amount   decimal.Decimal `gorm:"type:decimal(15,2)" json:"amount"`
	Currency string          `gorm:"type:varchar(3)" json:"currency"`

	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`

	// Destination method descriptor, frozen at batch time
	Bank        string `gorm:"type:varchar(100)" json:"bank"`
	Account     string `gorm:"type:varchar(100)" json:"account"`
	AccountName string `gorm:"type:varchar(255)" json:"account_name"`

	Status PayoutStatus `gorm:"type:varchar(20);index" json:"status"`

	// Reference is the external disbursement reference once processing starts
	Reference     string     `gorm:"type:varchar(100)" json:"reference"`
	FailureReason string     `gorm:"type:varchar(255)" json:"failure_reason"`
	CompletedAt   *time.Time `json:"completed_at"`

	// Relationships
	Provider Provider  `gorm:"foreignKey:ProviderID" json:"provider,omitempty"`
	Payments []Payment `gorm:"many2many:payout_payments;" json:"payments,omitempty"`
}

// BeforeCreate assigns the external-safe UID
func (p *Payout) BeforeCreate(tx *gorm.DB) error {
	if p.UID == "" {
		p.UID = uuid.New().String()
	}
	return nil
}
