package booking

import (
	"fmt"

	"torashaout/internal/apperrors"
	"torashaout/internal/models"
)

type Action string

const (
	ActionConfirmPayment Action = "confirm_payment"
	ActionStart          Action = "start"
	ActionCancel         Action = "cancel"
	ActionRefund         Action = "refund"
	ActionComplete       Action = "complete"
)

type Transition struct {
	From []models.BookingStatus
	To   models.BookingStatus
}

func (t Transition) allows(s models.BookingStatus) bool {
	for _, f := range t.From {
		if f == s {
			return true
		}
	}
	return false
}

var transitions = map[Action]Transition{
	ActionConfirmPayment: {
		From: []models.BookingStatus{models.BookingPendingPayment},
		To:   models.BookingPaymentConfirmed,
	},
	ActionStart: {
		From: []models.BookingStatus{models.BookingPaymentConfirmed},
		To:   models.BookingInProgress,
	},
	ActionCancel: {
		From: []models.BookingStatus{models.BookingPendingPayment, models.BookingPaymentConfirmed, models.BookingInProgress},
		To:   models.BookingCancelled,
	},
	ActionRefund: {
		From: []models.BookingStatus{models.BookingPaymentConfirmed, models.BookingInProgress},
		To:   models.BookingRefunded,
	},
	ActionComplete: {
		From: []models.BookingStatus{models.BookingPaymentConfirmed, models.BookingInProgress},
		To:   models.BookingCompleted,
	},
}

// Policy holds the operator decisions the transition table leaves open.
type Policy struct {
	// AllowCompletedRefunds lets an admin refund a booking after delivery.
	AllowCompletedRefunds bool
}

// Transition returns the guard for action under p.
func (p Policy) Transition(action Action) (Transition, bool) {
	t, ok := transitions[action]
	if !ok {
		return Transition{}, false
	}
	if action == ActionRefund && p.AllowCompletedRefunds {
		from := make([]models.BookingStatus, 0, len(t.From)+1)
		from = append(from, t.From...)
		t.From = append(from, models.BookingCompleted)
	}
	return t, true
}

// Allows reports whether action may run on a booking currently in status.
func (p Policy) Allows(action Action, status models.BookingStatus) bool {
	t, ok := p.Transition(action)
	return ok && t.allows(status)
}

func ParseAction(s string) (Action, bool) {
	a := Action(s)
	_, ok := transitions[a]
	return a, ok
}

// conflictError names the booking's current status so the client can explain why
// the action was refused.
func conflictError(action Action, current models.BookingStatus) error {
	t := transitions[action]
	switch {
	case action == ActionConfirmPayment && current.IsPaid():
		return apperrors.ErrAlreadyPaid.WithMessage("Booking is already paid (status: %s)", current)
	case current == t.To:
		return apperrors.ErrInvalidTransition.WithMessage("Booking is already %s", current)
	case action == ActionRefund && current == models.BookingPendingPayment:
		return apperrors.ErrInvalidTransition.WithMessage("Cannot refund a booking that has not been paid (status: %s)", current)
	default:
		return apperrors.ErrInvalidTransition.WithMessage("Cannot %s a booking with status %s", humanAction(action), current)
	}
}

func humanAction(a Action) string {
	if a == ActionConfirmPayment {
		return "confirm payment for"
	}
	return fmt.Sprint(a)
}
