package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type BookingStatus string

const (
	BookingPendingPayment   BookingStatus = "pending_payment"
	BookingPaymentConfirmed BookingStatus = "payment_confirmed"
	BookingInProgress       BookingStatus = "in_progress"
	BookingCompleted        BookingStatus = "completed"
	BookingCancelled        BookingStatus = "cancelled"
	BookingRefunded         BookingStatus = "refunded"
)

var bookingStatuses = []BookingStatus{
	BookingPendingPayment,
	BookingPaymentConfirmed,
	BookingInProgress,
	BookingCompleted,
	BookingCancelled,
	BookingRefunded,
}

// ParseBookingStatus reports whether s names a known booking status.
func ParseBookingStatus(s string) (BookingStatus, bool) {
	for _, st := range bookingStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// IsClosed is true for bookings that were called off and can no longer take a payment.
func (s BookingStatus) IsClosed() bool {
	return s == BookingCancelled || s == BookingRefunded
}

// ClosedStatuses lists the statuses IsClosed accepts.
var ClosedStatuses = []BookingStatus{BookingCancelled, BookingRefunded}

// IsPaid is true once a completed payment has been applied to the booking.
func (s BookingStatus) IsPaid() bool {
	return s == BookingPaymentConfirmed || s == BookingInProgress || s == BookingCompleted
}

type Booking struct {
	bun.BaseModel `bun:"table:bookings"`

	ID                  string          `bun:"id,pk" json:"id"`
	BookingCode         string          `bun:"booking_code,unique,notnull" json:"bookingCode"`
	CustomerID          string          `bun:"customer_id,notnull" json:"customerId"`
	TalentID            string          `bun:"talent_id,notnull" json:"talentId"`
	RecipientName       string          `bun:"recipient_name,notnull" json:"recipientName"`
	Occasion            string          `bun:"occasion,notnull" json:"occasion"`
	Instructions        string          `bun:"instructions,notnull" json:"instructions"`
	FromName            string          `bun:"from_name,notnull" json:"fromName"`
	FromEmail           string          `bun:"from_email,notnull" json:"fromEmail"`
	DeliveryPreferences string          `bun:"delivery_preferences,nullzero" json:"deliveryPreferences,omitempty"`
	Currency            string          `bun:"currency,notnull" json:"currency"`
	PaymentGateway      string          `bun:"payment_gateway,notnull" json:"paymentGateway"`
	AmountPaid          decimal.Decimal `bun:"amount_paid,type:numeric(12,2),notnull" json:"amountPaid"`
	PlatformFee         decimal.Decimal `bun:"platform_fee,type:numeric(12,2),notnull" json:"platformFee"`
	TalentEarnings      decimal.Decimal `bun:"talent_earnings,type:numeric(12,2),notnull" json:"talentEarnings"`
	Status              BookingStatus   `bun:"status,notnull" json:"status"`
	VideoURL            string          `bun:"video_url,nullzero" json:"videoUrl,omitempty"`
	CustomerRating      *int            `bun:"customer_rating" json:"customerRating,omitempty"`
	CustomerReview      string          `bun:"customer_review,nullzero" json:"customerReview,omitempty"`
	CreatedAt           time.Time       `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt           time.Time       `bun:"updated_at,notnull" json:"updatedAt"`
	DueDate             time.Time       `bun:"due_date,notnull" json:"dueDate"`
	CompletedAt         *time.Time      `bun:"completed_at,nullzero" json:"completedAt,omitempty"`

	Talent *Talent `bun:"rel:belongs-to,join:talent_id=id" json:"talent,omitempty"`
}

type CreateBookingRequest struct {
	TalentID            string `json:"talentId" validate:"required"`
	RecipientName       string `json:"recipientName" validate:"required"`
	Occasion            string `json:"occasion" validate:"required"`
	Instructions        string `json:"instructions" validate:"required"`
	Currency            string `json:"currency" validate:"required,currency"`
	PaymentGateway      string `json:"paymentGateway" validate:"required,gateway"`
	FromName            string `json:"fromName" validate:"required"`
	FromEmail           string `json:"fromEmail" validate:"required,email"`
	DeliveryPreferences string `json:"deliveryPreferences,omitempty"`
}

// BookingSummary is returned by the creation endpoint.
type BookingSummary struct {
	ID              string          `json:"id"`
	BookingCode     string          `json:"bookingCode"`
	Status          BookingStatus   `json:"status"`
	Amount          decimal.Decimal `json:"amount"`
	PlatformFee     decimal.Decimal `json:"platformFee"`
	TalentEarnings  decimal.Decimal `json:"talentEarnings"`
	Currency        string          `json:"currency"`
	PaymentGateway  string          `json:"paymentGateway"`
	DueDate         time.Time       `json:"dueDate"`
	RequiresPayment bool            `json:"requiresPayment"`
}

func (b Booking) Summary() BookingSummary {
	return BookingSummary{
		ID:              b.ID,
		BookingCode:     b.BookingCode,
		Status:          b.Status,
		Amount:          b.AmountPaid,
		PlatformFee:     b.PlatformFee,
		TalentEarnings:  b.TalentEarnings,
		Currency:        b.Currency,
		PaymentGateway:  b.PaymentGateway,
		DueDate:         b.DueDate,
		RequiresPayment: b.Status == BookingPendingPayment,
	}
}

type CustomerInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type TimelineEntry struct {
	Status    PaymentStatus   `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Gateway   string          `json:"gateway"`
	CreatedAt time.Time       `json:"createdAt"`
}

// BookingView is a booking enriched according to who is looking at it.
type BookingView struct {
	Booking  Booking         `json:"booking"`
	Customer *CustomerInfo   `json:"customer,omitempty"`
	Payments []Payment       `json:"payments,omitempty"`
	Timeline []TimelineEntry `json:"timeline,omitempty"`
}

type DeliverBookingRequest struct {
	VideoURL string `json:"videoUrl"`
}

type ReviewBookingRequest struct {
	Rating int    `json:"rating" validate:"min=1,max=5"`
	Review string `json:"review" validate:"max=2000"`
}

// BookingEvent is the payload streamed to Kafka and SSE subscribers.
type BookingEvent struct {
	Type        string          `json:"type"`
	BookingID   string          `json:"booking_id"`
	BookingCode string          `json:"booking_code"`
	CustomerID  string          `json:"customer_id"`
	TalentID    string          `json:"talent_id"`
	Status      BookingStatus   `json:"status"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Timestamp   time.Time       `json:"timestamp"`
}

func NewBookingEvent(eventType string, b Booking) BookingEvent {
	return BookingEvent{
		Type:        eventType,
		BookingID:   b.ID,
		BookingCode: b.BookingCode,
		CustomerID:  b.CustomerID,
		TalentID:    b.TalentID,
		Status:      b.Status,
		Amount:      b.AmountPaid,
		Currency:    b.Currency,
		Timestamp:   b.UpdatedAt,
	}
}

// BookingFilter narrows a booking listing. Exactly one of CustomerID or TalentID
// is expected to be set.
type BookingFilter struct {
	CustomerID string
	TalentID   string
	Status     BookingStatus
	Limit      int
	Offset     int
}

// StatusUpdate is a compare-and-swap on a booking's status: it applies only while
// the booking is in one of From.
type StatusUpdate struct {
	BookingID string
	From      []BookingStatus
	To        BookingStatus
	At        time.Time
	VideoURL  string
}
