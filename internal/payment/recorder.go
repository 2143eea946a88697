package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"torashaout/internal/apperrors"
	"torashaout/internal/logger"
	"torashaout/internal/models"
	"torashaout/internal/payment/services"
	"torashaout/internal/payment/storage"
	"torashaout/internal/utils"
	"torashaout/internal/validation"
)

// Bookings is the part of the booking lifecycle the recorder drives.
type Bookings interface {
	LoadBooking(ctx context.Context, id string) (*models.Booking, error)
	ConfirmPayment(ctx context.Context, id string) (*models.Booking, error)
}

// Gate is a short-lived per-booking lock taken around recording a completed
// payment. It narrows contention; the store's unique index decides.
type Gate interface {
	LockPayment(ctx context.Context, bookingID, owner string) (bool, error)
	UnlockPayment(ctx context.Context, bookingID, owner string) error
}

type EventPublisher interface {
	PublishPaymentEvent(ctx context.Context, event models.PaymentEvent) error
	PublishReconciliation(ctx context.Context, event models.PaymentEvent) error
}

type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

// RecordResult is the outcome of recording a payment. ReconciliationPending means
// the payment is stored but the booking could not be advanced yet. RefundRequired
// means the booking was closed in the meantime and the payment has to be returned.
type RecordResult struct {
	Payment               models.Payment  `json:"payment"`
	Booking               *models.Booking `json:"booking,omitempty"`
	ReconciliationPending bool            `json:"reconciliationPending"`
	RefundRequired        bool            `json:"refundRequired,omitempty"`
}

type Recorder struct {
	Store    storage.Store
	Bookings Bookings
	Verifier services.Verifier
	Gate     Gate
	Kafka    EventPublisher
	Notifier Notifier
	Logger   *logger.Logger

	now func() time.Time
}

func NewRecorder(store storage.Store, bookings Bookings, verifier services.Verifier, gate Gate, kafka EventPublisher, notifier Notifier, log *logger.Logger) *Recorder {
	if verifier == nil {
		verifier = services.Simulated{}
	}
	return &Recorder{
		Store:    store,
		Bookings: bookings,
		Verifier: verifier,
		Gate:     gate,
		Kafka:    kafka,
		Notifier: notifier,
		Logger:   log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source.
func (r *Recorder) SetClock(now func() time.Time) {
	r.now = now
}

var paymentMessages = validation.Messages{
	"bookingId.required": "Booking ID is required",
	"method.required":    "Payment method is required",
	"currency.required":  "Currency is required",
	"reference.required": "Payment reference is required",
	"reference.max":      "Payment reference must be at most 128 characters",
	"status.oneof":       "Status must be one of pending, completed, failed",
}

func validatePaymentRequest(req *models.PaymentRequest) []string {
	validation.TrimStrings(req)
	errs := validation.Struct(req, paymentMessages)
	if !req.Amount.IsPositive() {
		errs = append(errs, "Amount must be greater than zero")
	}
	return errs
}

// RecordPayment stores a payment for one of the caller's bookings and, when it is
// completed, advances the booking to payment_confirmed. At most one completed
// payment per booking ever succeeds; later attempts fail with "already paid".
func (r *Recorder) RecordPayment(ctx context.Context, caller models.Caller, req models.PaymentRequest) (*RecordResult, error) {
	if !caller.Authenticated() {
		return nil, apperrors.ErrUnauthenticated
	}
	if errs := validatePaymentRequest(&req); len(errs) > 0 {
		return nil, apperrors.Validation(errs)
	}
	if req.Status == "" {
		req.Status = models.PaymentCompleted
	}

	b, err := r.Bookings.LoadBooking(ctx, req.BookingID)
	if err != nil {
		return nil, apperrors.Internal("failed to load booking", err)
	}
	if b == nil {
		return nil, apperrors.ErrBookingNotFound
	}
	if b.CustomerID != caller.UserID {
		r.Logger.LogSecurity("PAYMENT_FORBIDDEN", fmt.Sprintf("user %s tried to pay booking %s", caller.UserID, b.ID))
		return nil, apperrors.ErrForbidden.WithMessage("You can only pay for your own bookings")
	}
	if !req.Amount.Round(2).Equal(b.AmountPaid) || req.Currency != b.Currency {
		return nil, apperrors.ErrAmountMismatch.WithMessage("Payment must be %s %s", b.AmountPaid.StringFixed(2), b.Currency)
	}
	if err := payable(b); err != nil {
		return nil, err
	}

	status, err := r.Verifier.Verify(ctx, services.VerifyRequest{
		Gateway:   req.Method,
		Reference: req.Reference,
		Amount:    b.AmountPaid,
		Currency:  b.Currency,
		Requested: req.Status,
	})
	if err != nil {
		r.Logger.LogPayment("UNVERIFIED", b.ID, fmt.Sprintf("%s %s: %v", req.Method, req.Reference, err))
		return nil, apperrors.ErrPaymentUnverified
	}
	if req.Status == models.PaymentCompleted && status != models.PaymentCompleted {
		r.Logger.LogPayment("DOWNGRADE", b.ID, fmt.Sprintf("%s reports %s as %s", req.Method, req.Reference, status))
	}

	now := r.now()
	p := models.Payment{
		ID:         utils.NewID(),
		BookingID:  b.ID,
		CustomerID: caller.UserID,
		Gateway:    req.Method,
		Reference:  req.Reference,
		Amount:     b.AmountPaid,
		Currency:   b.Currency,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if status == models.PaymentCompleted {
		release, err := r.lock(ctx, b.ID, p.ID)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	if err := r.Store.InsertPayment(ctx, &p); err != nil {
		if errors.Is(err, apperrors.ErrAlreadyPaid) {
			r.Logger.LogPayment("DUPLICATE", b.ID, fmt.Sprintf("rejected %s, booking already has a completed payment", req.Reference))
			return nil, apperrors.ErrAlreadyPaid
		}
		return nil, apperrors.Internal("failed to record payment", err)
	}
	r.Logger.LogPayment("RECORD", b.ID, fmt.Sprintf("%s %s %s via %s (%s)", p.Status, p.Amount.StringFixed(2), p.Currency, p.Gateway, p.Reference))
	r.publish(ctx, "payment."+string(p.Status), p, "")

	result := &RecordResult{Payment: p, Booking: b}
	if p.Status == models.PaymentCompleted {
		r.confirmBooking(ctx, result)
	}
	return result, nil
}

// payable rejects bookings that can no longer take a payment, naming their status.
func payable(b *models.Booking) error {
	switch {
	case b.Status == models.BookingPendingPayment:
		return nil
	case b.Status.IsPaid():
		return apperrors.ErrAlreadyPaid.WithMessage("Booking is already paid (status: %s)", b.Status)
	default:
		return apperrors.ErrInvalidTransition.WithMessage("Cannot pay for a booking with status %s", b.Status)
	}
}

// lock takes the booking's payment gate. A gate that errors is logged and skipped.
func (r *Recorder) lock(ctx context.Context, bookingID, owner string) (func(), error) {
	noop := func() {}
	if r.Gate == nil {
		return noop, nil
	}
	ok, err := r.Gate.LockPayment(ctx, bookingID, owner)
	if err != nil {
		r.Logger.Warn("REDIS", fmt.Sprintf("payment lock unavailable for %s, relying on store guard: %v", bookingID, err))
		return noop, nil
	}
	if !ok {
		return nil, apperrors.ErrPaymentInProgress
	}
	return func() {
		if err := r.Gate.UnlockPayment(context.Background(), bookingID, owner); err != nil {
			r.Logger.Warn("REDIS", fmt.Sprintf("failed to release payment lock for %s: %v", bookingID, err))
		}
	}, nil
}

// confirmBooking is the second phase of a completed payment. The payment is
// already committed; if the booking cannot be advanced the result is flagged and
// the reconciler picks it up later.
func (r *Recorder) confirmBooking(ctx context.Context, result *RecordResult) {
	b, err := r.Bookings.ConfirmPayment(ctx, result.Payment.BookingID)
	if err == nil {
		result.Booking = b
		return
	}

	result.ReconciliationPending = true
	r.Logger.LogReconciliation(result.Payment.BookingID, result.Payment.ID, fmt.Sprintf("booking not advanced after payment: %v", err))

	// a booking closed between the checks and the insert will never be confirmed
	current, lerr := r.Bookings.LoadBooking(ctx, result.Payment.BookingID)
	if lerr == nil && current != nil {
		result.Booking = current
		if current.Status.IsClosed() {
			result.RefundRequired = r.flagRefund(ctx, &result.Payment, current.Status)
			return
		}
	}
	r.publishReconciliation(ctx, "payment.reconciliation_required", result.Payment, err.Error())
}

// flagRefund marks a completed payment on a closed booking for a manual refund and
// tells operations about it. It reports whether the payment is flagged.
func (r *Recorder) flagRefund(ctx context.Context, p *models.Payment, status models.BookingStatus) bool {
	now := r.now()
	if _, err := r.Store.FlagRefundRequired(ctx, p.ID, now); err != nil {
		r.Logger.Error("RECONCILE", fmt.Sprintf("failed to flag payment %s for refund: %v", p.ID, err))
		return false
	}
	p.RefundRequiredAt = &now
	reason := fmt.Sprintf("booking is %s", status)
	r.Logger.LogReconciliation(p.BookingID, p.ID, "completed payment on a closed booking, refund required: "+reason)
	r.publishReconciliation(ctx, "payment.refund_required", *p, reason)
	return true
}

func (r *Recorder) publishReconciliation(ctx context.Context, eventType string, p models.Payment, reason string) {
	if r.Kafka == nil {
		return
	}
	if err := r.Kafka.PublishReconciliation(ctx, paymentEvent(eventType, p, reason, r.now())); err != nil {
		r.Logger.Error("KAFKA", fmt.Sprintf("publish reconciliation for %s: %v", p.ID, err))
	}
}

func (r *Recorder) publish(ctx context.Context, eventType string, p models.Payment, reason string) {
	if r.Kafka == nil {
		return
	}
	if err := r.Kafka.PublishPaymentEvent(ctx, paymentEvent(eventType, p, reason, r.now())); err != nil {
		r.Logger.Error("KAFKA", fmt.Sprintf("publish %s for %s: %v", eventType, p.ID, err))
	}
}

func paymentEvent(eventType string, p models.Payment, reason string, at time.Time) models.PaymentEvent {
	return models.PaymentEvent{
		Type:      eventType,
		PaymentID: p.ID,
		BookingID: p.BookingID,
		Reference: p.Reference,
		Status:    p.Status,
		Amount:    p.Amount,
		Currency:  p.Currency,
		Reason:    reason,
		Timestamp: at,
	}
}

// ListPayments returns the caller's payments; admins see everyone's.
func (r *Recorder) ListPayments(ctx context.Context, caller models.Caller, f models.PaymentFilter) ([]models.Payment, error) {
	if !caller.Authenticated() {
		return nil, apperrors.ErrUnauthenticated
	}
	if !caller.IsAdmin() {
		f.CustomerID = caller.UserID
	}
	payments, err := r.Store.ListPayments(ctx, f)
	if err != nil {
		return nil, apperrors.Internal("failed to list payments", err)
	}
	return payments, nil
}

// HandleGatewayCallback settles a pending payment from the gateway's asynchronous
// answer. Replays of a settled payment are ignored so redelivered messages are
// harmless.
func (r *Recorder) HandleGatewayCallback(ctx context.Context, cb models.GatewayCallback) (*RecordResult, error) {
	p, err := r.Store.GetPaymentByReference(ctx, cb.Gateway, cb.Reference)
	if err != nil {
		return nil, apperrors.Internal("failed to load payment", err)
	}
	if p == nil {
		return nil, apperrors.ErrPaymentNotFound.WithMessage("No %s payment with reference %s", cb.Gateway, cb.Reference)
	}
	if p.Status != models.PaymentPending {
		r.Logger.LogPayment("CALLBACK_REPLAY", p.BookingID, fmt.Sprintf("%s already %s", p.Reference, p.Status))
		return &RecordResult{Payment: *p}, nil
	}

	now := r.now()
	if !cb.Succeeded {
		return r.settleFailed(ctx, p, cb.Reason, now)
	}

	release, err := r.lock(ctx, p.BookingID, p.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	updated, err := r.Store.UpdateStatus(ctx, p.ID, models.PaymentPending, models.PaymentCompleted, now)
	if errors.Is(err, apperrors.ErrAlreadyPaid) {
		// the booking was paid through another reference; this capture has to be refunded by hand
		r.Logger.LogReconciliation(p.BookingID, p.ID, fmt.Sprintf("duplicate capture %s on a paid booking, marking failed", p.Reference))
		return r.settleFailed(ctx, p, "booking already paid", now)
	}
	if err != nil {
		return nil, apperrors.Internal("failed to settle payment", err)
	}
	if !updated {
		return &RecordResult{Payment: *p}, nil
	}

	p.Status = models.PaymentCompleted
	p.UpdatedAt = now
	r.Logger.LogPayment("SETTLED", p.BookingID, fmt.Sprintf("%s completed by %s callback", p.Reference, p.Gateway))
	r.publish(ctx, "payment.completed", *p, "")

	result := &RecordResult{Payment: *p}
	r.confirmBooking(ctx, result)
	return result, nil
}

func (r *Recorder) settleFailed(ctx context.Context, p *models.Payment, reason string, now time.Time) (*RecordResult, error) {
	if _, err := r.Store.UpdateStatus(ctx, p.ID, models.PaymentPending, models.PaymentFailed, now); err != nil {
		return nil, apperrors.Internal("failed to settle payment", err)
	}
	p.Status = models.PaymentFailed
	p.UpdatedAt = now
	r.Logger.LogPayment("FAILED", p.BookingID, fmt.Sprintf("%s failed: %s", p.Reference, reason))
	r.publish(ctx, "payment.failed", *p, reason)

	if r.Notifier != nil {
		msg := fmt.Sprintf("Your %s payment %s did not go through", p.Gateway, p.Reference)
		if reason != "" {
			msg += ": " + reason
		}
		if err := r.Notifier.Notify(ctx, models.Notification{
			ID:        utils.NewID(),
			UserID:    p.CustomerID,
			BookingID: p.BookingID,
			Type:      models.NotificationPayment,
			Title:     "Payment failed",
			Message:   msg,
			CreatedAt: now,
		}); err != nil {
			r.Logger.Error("NOTIFY", fmt.Sprintf("notify %s about failed payment %s: %v", p.CustomerID, p.ID, err))
		}
	}
	return &RecordResult{Payment: *p}, nil
}
