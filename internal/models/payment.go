package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PaymentStatus represents where a payment is in its lifecycle
type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "pending"
	PaymentStatusProcessing        PaymentStatus = "processing"
	PaymentStatusCompleted         PaymentStatus = "completed"
	PaymentStatusFailed            PaymentStatus = "failed"
	PaymentStatusRefunded          PaymentStatus = "refunded"
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
)

// CanTransitionTo reports whether moving from s to next is a legal
// state-machine step. Transitions are one-way; a failed payment is retried
// by creating a new Payment record, never by reviving this one.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	switch s {
	case PaymentStatusPending:
		// pending -> completed is allowed for gateways that settle
		// synchronously without a challenge step
		return next == PaymentStatusProcessing || next == PaymentStatusCompleted || next == PaymentStatusFailed
	case PaymentStatusProcessing:
		return next == PaymentStatusCompleted || next == PaymentStatusFailed
	case PaymentStatusCompleted:
		return next == PaymentStatusRefunded || next == PaymentStatusPartiallyRefunded
	case PaymentStatusPartiallyRefunded:
		return next == PaymentStatusRefunded || next == PaymentStatusPartiallyRefunded
	}
	return false
}

// IsFinal reports whether the payment can no longer move to completed
func (s PaymentStatus) IsFinal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed ||
		s == PaymentStatusRefunded || s == PaymentStatusPartiallyRefunded
}

// FeePayer identifies who absorbs the computed fees for a charge
type FeePayer string

const (
	FeePayerClient   FeePayer = "client"
	FeePayerProvider FeePayer = "provider"
)

// Payment is one attempt to collect money for a booking. Payments are a
// financial record and are never deleted.
type Payment struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// UID is the external-safe identifier shared with clients and gateways
	UID string `gorm:"type:varchar(36);uniqueIndex" json:"uid"`

	BookingID  uint  `gorm:"index" json:"booking_id"`
	ClientID   *uint `gorm:"index" json:"client_id"` // nil for guest bookings
	ProviderID uint  `gorm:"index" json:"provider_id"`

	// Amount is what the payer is charged now (deposit or full price,
	// plus convenience fee when the client is the fee payer)
	Amount   decimal.Decimal `gorm:"type:decimal(15,2)" json:"amount"`
	Currency string          `gorm:"type:varchar(3)" json:"currency"`

	// Fee breakdown captured at checkout time
	ServicePrice   decimal.Decimal `gorm:"type:decimal(15,2)" json:"service_price"`
	ZeenFee        decimal.Decimal `gorm:"type:decimal(15,2)" json:"zeen_fee"`
	GatewayFee     decimal.Decimal `gorm:"type:decimal(15,2)" json:"gateway_fee"`
	ProviderAmount decimal.Decimal `gorm:"type:decimal(15,2)" json:"provider_amount"`
	FeePayer       FeePayer        `gorm:"type:varchar(20)" json:"fee_payer"`

	Gateway              GatewayKind   `gorm:"type:varchar(50);index" json:"gateway"`
	GatewayOrderID       string        `gorm:"type:varchar(100);index" json:"gateway_order_id"`
	GatewayTransactionID string        `gorm:"type:varchar(100);index" json:"gateway_transaction_id"`
	Status               PaymentStatus `gorm:"type:varchar(30);index" json:"status"`

	// Card summary only, never the full PAN
	CardBrand string `gorm:"type:varchar(20)" json:"card_brand"`
	CardLast4 string `gorm:"type:varchar(4)" json:"card_last4"`

	FailureReason string `gorm:"type:varchar(255)" json:"failure_reason"`
	FailureCode   string `gorm:"type:varchar(50)" json:"failure_code"`

	// RawResponse keeps the gateway's final payload for audit and disputes
	RawResponse json.RawMessage `gorm:"type:jsonb" json:"raw_response,omitempty"`

	RefundedAmount decimal.Decimal `gorm:"type:decimal(15,2)" json:"refunded_amount"`
	PaidAt         *time.Time      `json:"paid_at"`
	RefundedAt     *time.Time      `json:"refunded_at"`

	// Relationships
	Booking  Booking  `gorm:"foreignKey:BookingID" json:"booking,omitempty"`
	Provider Provider `gorm:"foreignKey:ProviderID" json:"provider,omitempty"`
	Payouts  []Payout `gorm:"many2many:payout_payments;" json:"payouts,omitempty"`
	Refunds  []Refund `gorm:"foreignKey:PaymentID" json:"refunds,omitempty"`
}

// BeforeCreate assigns the external-safe UID
func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.UID == "" {
		p.UID = uuid.New().String()
	}
	return nil
}

// RemainingRefundable is the portion of the charge not yet refunded
func (p *Payment) RemainingRefundable() decimal.Decimal {
	return p.Amount.Sub(p.RefundedAmount)
}
