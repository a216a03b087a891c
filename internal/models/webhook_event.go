package models

import (
	"encoding/json"
	"time"
)

// WebhookStatus is the processing outcome of an inbound gateway notification
type WebhookStatus string

const (
	WebhookStatusReceived  WebhookStatus = "received"
	WebhookStatusProcessed WebhookStatus = "processed"
	WebhookStatusDuplicate WebhookStatus = "duplicate"
	WebhookStatusUnmatched WebhookStatus = "unmatched"
	WebhookStatusRejected  WebhookStatus = "rejected"
)

// WebhookEvent journals every inbound gateway notification, verified or not.
// Rejected events are kept as potential security evidence.
type WebhookEvent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Gateway        GatewayKind     `gorm:"type:varchar(50);not null" json:"gateway"`
	OrderID        string          `gorm:"type:varchar(100);index" json:"order_id"`
	SignatureValid bool            `json:"signature_valid"`
	Status         WebhookStatus   `gorm:"type:varchar(20);index" json:"status"`
	Error          string          `gorm:"type:varchar(255)" json:"error"`
	Payload        json.RawMessage `gorm:"type:jsonb" json:"payload"`
}
