package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// PaymentSession is one gateway-side checkout attempt for a Payment. The
// SessionToken is the short-lived handle the client must echo back at
// completion; the request/response payloads are kept for audit.
type PaymentSession struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	PaymentID    uint        `gorm:"index" json:"payment_id"`
	BookingID    uint        `gorm:"index" json:"booking_id"`
	Gateway      GatewayKind `gorm:"type:varchar(50);not null" json:"gateway"`
	OrderID      string      `gorm:"type:varchar(100);index" json:"order_id"`
	SessionToken string      `gorm:"type:varchar(100);index" json:"session_token"`
	RedirectURL  string      `gorm:"type:varchar(1024)" json:"redirect_url"`

	IsActive  bool      `gorm:"default:true" json:"is_active"`
	ExpiresAt time.Time `json:"expires_at"`

	RequestMetadata  json.RawMessage `gorm:"type:jsonb" json:"request_metadata"`
	ResponseMetadata json.RawMessage `gorm:"type:jsonb" json:"response_metadata"`
}

// Expired reports whether the session token is past its lifetime
func (s PaymentSession) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
