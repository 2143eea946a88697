package admin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"torashaout/internal/apperrors"
	"torashaout/internal/booking"
	"torashaout/internal/logger"
	"torashaout/internal/models"
)

// BookingTransitioner is the part of the booking service admins drive.
type BookingTransitioner interface {
	ApplyTransition(ctx context.Context, bookingID string, action booking.Action) (*models.Booking, error)
}

type PaymentRefunder interface {
	MarkRefundedForBooking(ctx context.Context, bookingID string, at time.Time) (int64, error)
}

type TalentStore interface {
	SetTalentFlag(ctx context.Context, id, column string, value bool, at time.Time) (*models.Talent, error)
}

// ActionResult is what an admin booking action produced. PaymentUpdateFailed is set
// when a refund went through but its payments could not be flagged.
type ActionResult struct {
	Booking             *models.Booking `json:"booking"`
	PaymentsRefunded    int64           `json:"paymentsRefunded,omitempty"`
	PaymentUpdateFailed bool            `json:"paymentUpdateFailed,omitempty"`
}

var adminActions = map[string]booking.Action{
	"cancel":   booking.ActionCancel,
	"refund":   booking.ActionRefund,
	"complete": booking.ActionComplete,
}

type talentFlag struct {
	column string
	value  bool
}

var talentActions = map[string]talentFlag{
	"verify":   {column: "is_verified", value: true},
	"unverify": {column: "is_verified", value: false},
	"pause":    {column: "is_accepting_bookings", value: false},
	"resume":   {column: "is_accepting_bookings", value: true},
}

type Dispatcher struct {
	Bookings BookingTransitioner
	Payments PaymentRefunder
	Talents  TalentStore
	Logger   *logger.Logger

	now func() time.Time
}

func NewDispatcher(bookings BookingTransitioner, payments PaymentRefunder, talents TalentStore, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		Bookings: bookings,
		Payments: payments,
		Talents:  talents,
		Logger:   log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (d *Dispatcher) SetClock(now func() time.Time) {
	d.now = now
}

func requireAdmin(caller models.Caller) error {
	if !caller.Authenticated() {
		return apperrors.ErrUnauthenticated
	}
	if !caller.IsAdmin() {
		return apperrors.ErrAdminOnly
	}
	return nil
}

// ApplyAdminAction cancels, refunds or completes a booking on an admin's behalf.
func (d *Dispatcher) ApplyAdminAction(ctx context.Context, caller models.Caller, bookingID, action string) (*ActionResult, error) {
	if err := requireAdmin(caller); err != nil {
		if caller.Authenticated() {
			d.Logger.LogSecurity("ADMIN_DENIED", fmt.Sprintf("user %s tried %s on booking %s", caller.UserID, action, bookingID))
		}
		return nil, err
	}

	a, ok := adminActions[strings.ToLower(strings.TrimSpace(action))]
	if !ok {
		return nil, apperrors.ErrUnsupportedAction.WithMessage("Unsupported admin action %q", action)
	}

	b, err := d.Bookings.ApplyTransition(ctx, bookingID, a)
	if err != nil {
		return nil, err
	}
	d.Logger.LogBooking("ADMIN_"+strings.ToUpper(string(a)), bookingID, fmt.Sprintf("by %s, now %s", caller.UserID, b.Status))

	res := &ActionResult{Booking: b}
	if a != booking.ActionRefund {
		return res, nil
	}

	// the booking is already refunded; a failure here is reported, not rolled back
	n, err := d.Payments.MarkRefundedForBooking(ctx, bookingID, d.now())
	if err != nil {
		d.Logger.Error("ADMIN", fmt.Sprintf("Booking %s refunded but payments were not updated: %v", bookingID, err))
		res.PaymentUpdateFailed = true
		return res, nil
	}
	res.PaymentsRefunded = n
	return res, nil
}

// ApplyTalentAction verifies, unverifies, pauses or resumes a talent.
func (d *Dispatcher) ApplyTalentAction(ctx context.Context, caller models.Caller, talentID, action string) (*models.Talent, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}

	flag, ok := talentActions[strings.ToLower(strings.TrimSpace(action))]
	if !ok {
		return nil, apperrors.ErrUnsupportedAction.WithMessage("Unsupported talent action %q", action)
	}

	t, err := d.Talents.SetTalentFlag(ctx, talentID, flag.column, flag.value, d.now())
	if err != nil {
		return nil, apperrors.Internal("failed to update talent", err)
	}
	if t == nil {
		return nil, apperrors.ErrTalentNotFound.WithMessage("Talent not found")
	}
	d.Logger.Info("ADMIN", fmt.Sprintf("Talent %s: %s by %s", talentID, action, caller.UserID))
	return t, nil
}
