package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindBadRequest
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindBusy
)

// Error is a domain error. Two errors are the same for errors.Is when their codes match,
// so callers can compare against the sentinels below while messages stay specific.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details []string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithMessage returns a copy carrying a more specific message.
func (e *Error) WithMessage(format string, args ...interface{}) *Error {
	c := *e
	c.Message = fmt.Sprintf(format, args...)
	return &c
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Validation(details []string) *Error {
	return &Error{Kind: KindValidation, Code: "request.invalid", Message: "Validation failed", Details: details}
}

func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Code: "internal", Message: message, Err: err}
}

var (
	ErrUnauthenticated = New(KindUnauthorized, "auth.unauthenticated", "Authentication required")
	ErrForbidden       = New(KindForbidden, "auth.forbidden", "You are not allowed to perform this action")
	ErrAdminOnly       = New(KindForbidden, "auth.admin_only", "Admin access required")

	ErrTalentNotFound     = New(KindNotFound, "talent.not_found", "Talent not found or unavailable")
	ErrTalentNotAccepting = New(KindBadRequest, "talent.not_accepting", "Talent is not accepting bookings")
	ErrTalentNoPrice      = New(KindBadRequest, "talent.no_price", "Talent has no price configured for this currency")

	ErrBookingNotFound      = New(KindNotFound, "booking.not_found", "Booking not found")
	ErrInvalidTransition    = New(KindConflict, "booking.invalid_transition", "Booking status does not allow this action")
	ErrBookingCodeTaken     = New(KindBusy, "booking.code_collision", "Could not allocate a booking code, please retry")
	ErrReviewNotAllowed     = New(KindConflict, "booking.review_not_allowed", "Only completed bookings can be reviewed")
	ErrUnsupportedAction    = New(KindValidation, "booking.unsupported_action", "Unsupported action")
	ErrPaymentNotFound      = New(KindNotFound, "payment.not_found", "Payment not found")
	ErrAlreadyPaid          = New(KindConflict, "payment.already_paid", "Booking is already paid")
	ErrPaymentInProgress    = New(KindBusy, "payment.in_progress", "A payment for this booking is already being processed")
	ErrPaymentUnverified    = New(KindBadRequest, "payment.unverified", "Payment could not be verified with the gateway")
	ErrAmountMismatch       = New(KindValidation, "payment.amount_mismatch", "Payment amount or currency does not match the booking")
	ErrInsufficientFunds    = New(KindBadRequest, "payout.insufficient_balance", "Requested amount exceeds available balance")
	ErrPayoutBusy           = New(KindBusy, "payout.in_progress", "Another payout request is being processed")
	ErrTalentProfileMissing = New(KindNotFound, "talent.profile_missing", "No talent profile for this account")
)

func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation, KindBadRequest, KindConflict:
		// state conflicts are reported as bad requests naming the current status
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindBusy:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
