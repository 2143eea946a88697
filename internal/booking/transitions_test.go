package booking

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"torashaout/internal/apperrors"
	"torashaout/internal/models"
)

func TestPolicy_Allows(t *testing.T) {
	p := Policy{AllowCompletedRefunds: true}

	allowed := map[Action][]models.BookingStatus{
		ActionConfirmPayment: {models.BookingPendingPayment},
		ActionStart:          {models.BookingPaymentConfirmed},
		ActionCancel:         {models.BookingPendingPayment, models.BookingPaymentConfirmed, models.BookingInProgress},
		ActionRefund:         {models.BookingPaymentConfirmed, models.BookingInProgress, models.BookingCompleted},
		ActionComplete:       {models.BookingPaymentConfirmed, models.BookingInProgress},
	}
	all := []models.BookingStatus{
		models.BookingPendingPayment, models.BookingPaymentConfirmed, models.BookingInProgress,
		models.BookingCompleted, models.BookingCancelled, models.BookingRefunded,
	}

	for action, from := range allowed {
		for _, s := range all {
			want := false
			for _, f := range from {
				if f == s {
					want = true
				}
			}
			assert.Equal(t, want, p.Allows(action, s), "%s from %s", action, s)
		}
	}
}

func TestPolicy_CompletedRefundsCanBeDisabled(t *testing.T) {
	assert.False(t, Policy{}.Allows(ActionRefund, models.BookingCompleted))
	assert.True(t, Policy{}.Allows(ActionRefund, models.BookingInProgress))

	// the shared table must not be mutated by an enabling policy
	Policy{AllowCompletedRefunds: true}.Transition(ActionRefund)
	assert.Len(t, transitions[ActionRefund].From, 2)
}

func TestParseAction(t *testing.T) {
	a, ok := ParseAction("refund")
	assert.True(t, ok)
	assert.Equal(t, ActionRefund, a)

	_, ok = ParseAction("delete")
	assert.False(t, ok)
}

func TestConflictError_NamesStatus(t *testing.T) {
	err := conflictError(ActionRefund, models.BookingPendingPayment)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
	assert.Contains(t, err.Error(), "pending_payment")
	assert.Contains(t, err.Error(), "not been paid")

	err = conflictError(ActionCancel, models.BookingCancelled)
	assert.Contains(t, err.Error(), "already cancelled")

	err = conflictError(ActionComplete, models.BookingRefunded)
	assert.Contains(t, err.Error(), "Cannot complete a booking with status refunded")

	err = conflictError(ActionConfirmPayment, models.BookingPaymentConfirmed)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyPaid)
}
