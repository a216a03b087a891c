package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// LedgerEntryType distinguishes how an entry affects the provider balance
type LedgerEntryType string

const (
	LedgerEntryCredit  LedgerEntryType = "credit"
	LedgerEntryDebit   LedgerEntryType = "debit"
	LedgerEntryHold    LedgerEntryType = "hold"
	LedgerEntryRelease LedgerEntryType = "release"
)

// Sign returns +1 for balance-increasing entry types and -1 otherwise
func (t LedgerEntryType) Sign() decimal.Decimal {
	switch t {
	case LedgerEntryCredit, LedgerEntryRelease:
		return decimal.NewFromInt(1)
	default:
		return decimal.NewFromInt(-1)
	}
}

// LedgerEntry is one immutable journal line adjusting a provider's running
// balance. Entries are append-only: never updated, never deleted. The
// BalanceAfter snapshot is computed at insert time and never rebalanced.
type LedgerEntry struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	ProviderID uint            `gorm:"index" json:"provider_id"`
	Type       LedgerEntryType `gorm:"type:varchar(20)" json:"type"`

	// Amount is always positive; Type carries the direction
	Amount       decimal.Decimal `gorm:"type:decimal(15,2)" json:"amount"`
	BalanceAfter decimal.Decimal `gorm:"type:decimal(15,2)" json:"balance_after"`

	PaymentID *uint `gorm:"index" json:"payment_id"`
	PayoutID  *uint `gorm:"index" json:"payout_id"`

	Metadata json.RawMessage `gorm:"type:jsonb" json:"metadata,omitempty"`
}

// SignedAmount is the entry's effect on the running balance
func (e LedgerEntry) SignedAmount() decimal.Decimal {
	return e.Amount.Mul(e.Type.Sign())
}
