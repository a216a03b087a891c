package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BookingStatus represents the booking lifecycle owned by the booking domain.
// The settlement engine only ever drives pending -> confirmed, on payment.
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusCompleted BookingStatus = "completed"
)

// Booking is the collaborator record the engine collects money for. It
// supplies the payable amount and the payer identity; everything else about
// its lifecycle lives outside the settlement engine.
type Booking struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	UID        string `gorm:"type:varchar(36);uniqueIndex" json:"uid"`
	ProviderID uint   `gorm:"index" json:"provider_id"`
	ClientID   *uint  `gorm:"index" json:"client_id"` // nil for guest bookings

	// Guest payer identity when ClientID is nil
	GuestName  string `gorm:"type:varchar(255)" json:"guest_name"`
	GuestEmail string `gorm:"type:varchar(255)" json:"guest_email"`

	ServiceName string          `gorm:"type:varchar(255)" json:"service_name"`
	Price       decimal.Decimal `gorm:"type:decimal(15,2)" json:"price"`
	Currency    string          `gorm:"type:varchar(3)" json:"currency"`
	Status      BookingStatus   `gorm:"type:varchar(30);index" json:"status"`

	// Relationships
	Provider Provider  `gorm:"foreignKey:ProviderID" json:"provider,omitempty"`
	Client   *Client   `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	Payments []Payment `gorm:"foreignKey:BookingID" json:"payments,omitempty"`
}

// BeforeCreate assigns the external-safe UID
func (b *Booking) BeforeCreate(tx *gorm.DB) error {
	if b.UID == "" {
		b.UID = uuid.New().String()
	}
	return nil
}

// PayerEmail returns the registered client's email, or the guest email
func (b *Booking) PayerEmail() string {
	if b.Client != nil && b.Client.Email != "" {
		return b.Client.Email
	}
	return b.GuestEmail
}

// PayerName returns the registered client's name, or the guest name
func (b *Booking) PayerName() string {
	if b.Client != nil && b.Client.Name != "" {
		return b.Client.Name
	}
	return b.GuestName
}
