package payment_api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/cast"

	"torashaout/internal/auth"
	"torashaout/internal/logger"
	"torashaout/internal/models"
	"torashaout/internal/payment"
	"torashaout/internal/utils"
)

type Recorder interface {
	RecordPayment(ctx context.Context, caller models.Caller, req models.PaymentRequest) (*payment.RecordResult, error)
	ListPayments(ctx context.Context, caller models.Caller, f models.PaymentFilter) ([]models.Payment, error)
	HandleGatewayCallback(ctx context.Context, cb models.GatewayCallback) (*payment.RecordResult, error)
}

type Handler struct {
	Recorder Recorder
	Logger   *logger.Logger
}

func NewHandler(recorder Recorder, log *logger.Logger) *Handler {
	return &Handler{Recorder: recorder, Logger: log}
}

// RecordPayment answers 201 when the booking was advanced and 202 when the payment
// is stored but the booking still has to be reconciled or the payment refunded.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req models.PaymentRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}

	res, err := h.Recorder.RecordPayment(r.Context(), auth.CallerFrom(r.Context()), req)
	if err != nil {
		h.Logger.Debug("API", fmt.Sprintf("RecordPayment: %v", err))
		utils.WriteError(w, h.Logger, err)
		return
	}

	if res.RefundRequired {
		utils.WriteSuccess(w, http.StatusAccepted, fmt.Sprintf("Payment recorded, booking is %s and the payment is flagged for refund", res.Booking.Status), res)
		return
	}
	if res.ReconciliationPending {
		utils.WriteSuccess(w, http.StatusAccepted, "Payment recorded, booking status pending reconciliation", res)
		return
	}
	msg := "Payment recorded"
	if res.Payment.Status == models.PaymentPending {
		msg = "Payment recorded, awaiting gateway confirmation"
	}
	utils.WriteSuccess(w, http.StatusCreated, msg, res)
}

func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.PaymentFilter{
		BookingID:      q.Get("bookingId"),
		Reference:      q.Get("reference"),
		RefundRequired: cast.ToBool(q.Get("refundRequired")),
		Limit:          cast.ToInt(q.Get("limit")),
		Offset:         cast.ToInt(q.Get("offset")),
	}
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 50
	}

	payments, err := h.Recorder.ListPayments(r.Context(), auth.CallerFrom(r.Context()), filter)
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", payments)
}
