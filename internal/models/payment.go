package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

type Payment struct {
	bun.BaseModel `bun:"table:payments"`

	ID         string          `bun:"id,pk" json:"id"`
	BookingID  string          `bun:"booking_id,notnull" json:"bookingId"`
	CustomerID string          `bun:"customer_id,notnull" json:"customerId"`
	Gateway    string          `bun:"gateway,notnull" json:"gateway"`
	Reference  string          `bun:"reference,notnull" json:"reference"`
	Amount     decimal.Decimal `bun:"amount,type:numeric(12,2),notnull" json:"amount"`
	Currency   string          `bun:"currency,notnull" json:"currency"`
	Status     PaymentStatus   `bun:"status,notnull" json:"status"`
	CreatedAt  time.Time       `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt  time.Time       `bun:"updated_at,notnull" json:"updatedAt"`
	// RefundRequiredAt marks a completed payment that landed on a booking cancelled
	// or refunded before the payment could confirm it.
	RefundRequiredAt *time.Time `bun:"refund_required_at,nullzero" json:"refundRequiredAt,omitempty"`
}

// PaymentRequest records a payment made through a gateway. Status defaults to
// completed; gateways that confirm asynchronously send pending.
type PaymentRequest struct {
	BookingID string          `json:"bookingId" validate:"required"`
	Method    string          `json:"method" validate:"required,gateway"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency" validate:"required,currency"`
	Reference string          `json:"reference" validate:"required,max=128"`
	Status    PaymentStatus   `json:"status,omitempty" validate:"omitempty,oneof=pending completed failed"`
}

type PaymentFilter struct {
	CustomerID string
	BookingID  string
	Reference  string
	// RefundRequired keeps only payments flagged for a manual refund.
	RefundRequired bool
	Limit          int
	Offset         int
}

// GatewayCallback is the asynchronous confirmation a payment provider sends for a
// payment recorded as pending.
type GatewayCallback struct {
	Gateway   string    `json:"gateway"`
	Reference string    `json:"reference"`
	Succeeded bool      `json:"succeeded"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type PaymentEvent struct {
	Type      string          `json:"type"`
	PaymentID string          `json:"payment_id"`
	BookingID string          `json:"booking_id"`
	Reference string          `json:"reference"`
	Status    PaymentStatus   `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Reason    string          `json:"reason,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}
