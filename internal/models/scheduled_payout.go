package models

import (
	"time"

	"github.com/teambition/rrule-go"
	"gorm.io/gorm"
)

// ScheduledPayoutStatus represents whether a payout schedule is live
type ScheduledPayoutStatus string

const (
	ScheduledPayoutStatusActive   ScheduledPayoutStatus = "active"
	ScheduledPayoutStatusDisabled ScheduledPayoutStatus = "disabled"
)

// ScheduledPayout is a provider's payout cadence. The worker picks up due
// schedules, runs the batch processor, and advances NextRunAt from the RRULE.
type ScheduledPayout struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	ProviderID uint `gorm:"index" json:"provider_id"`

	// RecurringInterval is an RFC 5545 RRULE string; nil means run once
	RecurringInterval *string `gorm:"type:text" json:"recurring_interval"`

	NextRunAt time.Time             `gorm:"index:idx_scheduled_payouts_status_next,priority:2,where:deleted_at IS NULL" json:"next_run_at"`
	LastRunAt *time.Time            `json:"last_run_at"`
	Status    ScheduledPayoutStatus `gorm:"type:varchar(20);index:idx_scheduled_payouts_status_next,priority:1,where:deleted_at IS NULL" json:"status"`

	Provider Provider `gorm:"foreignKey:ProviderID" json:"provider,omitempty"`
}

// NextRun calculates the schedule's next occurrence after now. It returns the
// current NextRunAt when there is no recurrence or the rule cannot be parsed.
func (s ScheduledPayout) NextRun(now time.Time) time.Time {
	if s.RecurringInterval == nil || *s.RecurringInterval == "" {
		return s.NextRunAt
	}

	rule, err := rrule.StrToRRule(*s.RecurringInterval)
	if err != nil {
		return s.NextRunAt
	}
	rule.DTStart(s.NextRunAt)
	next := rule.After(now, false)
	if next.IsZero() {
		return s.NextRunAt
	}
	return next
}
