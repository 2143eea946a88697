package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	NotificationBookingCreated = "booking_created"
	NotificationBookingStatus  = "booking_status"
	NotificationPayment        = "payment"
	NotificationPayout         = "payout"
)

type Notification struct {
	bun.BaseModel `bun:"table:notifications"`

	ID        string    `bun:"id,pk" json:"id"`
	UserID    string    `bun:"user_id,notnull" json:"userId"`
	BookingID string    `bun:"booking_id,nullzero" json:"bookingId,omitempty"`
	Type      string    `bun:"type,notnull" json:"type"`
	Title     string    `bun:"title,notnull" json:"title"`
	Message   string    `bun:"message,notnull" json:"message"`
	Read      bool      `bun:"read,notnull" json:"read"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"createdAt"`
}
