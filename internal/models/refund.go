package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Refund records one refund issued against a payment. The reason is kept
// for audit only; it is never sent to the gateway as authorization.
type Refund struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	PaymentID  uint `gorm:"index" json:"payment_id"`
	ProviderID uint `gorm:"index" json:"provider_id"`

	Amount   decimal.Decimal `gorm:"type:decimal(15,2)" json:"amount"`
	Currency string          `gorm:"type:varchar(3)" json:"currency"`
	Reason   string          `gorm:"type:varchar(255)" json:"reason"`

	Gateway          GatewayKind `gorm:"type:varchar(50)" json:"gateway"`
	GatewayReference string      `gorm:"type:varchar(100)" json:"gateway_reference"`

	// LedgerEntryID links the compensating debit for escrow-settled payments
	LedgerEntryID *uint     `gorm:"index" json:"ledger_entry_id"`
	RefundDate    time.Time `json:"refund_date"`

	Payment Payment `gorm:"foreignKey:PaymentID" json:"payment,omitempty"`
}
