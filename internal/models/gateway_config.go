package models

import (
	"time"

	"gorm.io/gorm"
)

// GatewayKind identifies a supported payment gateway. Dispatch over kinds
// is a closed switch; there is no reflective adapter lookup.
type GatewayKind string

const (
	// GatewayWiPay settles with a direct split: the processor divides funds
	// between platform and provider at authorization time.
	GatewayWiPay GatewayKind = "wipay"
	// GatewayMidtrans settles in escrow: the platform account receives the
	// full amount and owes the provider via the ledger and later payouts.
	GatewayMidtrans GatewayKind = "midtrans"
)

// Valid reports whether k names a known gateway
func (k GatewayKind) Valid() bool {
	return k == GatewayWiPay || k == GatewayMidtrans
}

// AllGatewayKinds enumerates the supported gateways
func AllGatewayKinds() []GatewayKind {
	return []GatewayKind{GatewayWiPay, GatewayMidtrans}
}

// Escrow reports whether the gateway settles through the platform's own
// account, feeding the provider ledger.
func (k GatewayKind) Escrow() bool {
	return k == GatewayMidtrans
}

// GatewayVerification is the verification state of a provider's credentials
type GatewayVerification string

const (
	GatewayVerificationPending  GatewayVerification = "pending"
	GatewayVerificationVerified GatewayVerification = "verified"
	GatewayVerificationFailed   GatewayVerification = "failed"
)

// GatewayConfig holds one provider's credentials for one gateway. The
// credential blob is encrypted at rest and only decrypted at point of use.
type GatewayConfig struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	ProviderID uint        `gorm:"index" json:"provider_id"`
	Gateway    GatewayKind `gorm:"type:varchar(50)" json:"gateway"`

	// AccountID is the merchant/account identifier at the gateway
	AccountID string `gorm:"type:varchar(100)" json:"account_id"`

	// Credentials is the AES-GCM encrypted credential blob; never exposed
	Credentials []byte `gorm:"type:bytea" json:"-"`

	Verification GatewayVerification `gorm:"type:varchar(20);default:'pending'" json:"verification"`

	// At most one primary config per provider; promotion demotes siblings
	IsPrimary bool `gorm:"default:false" json:"is_primary"`

	Provider Provider `gorm:"foreignKey:ProviderID" json:"provider,omitempty"`
}
