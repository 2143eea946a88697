package payment_api

import (
	"errors"
	"io"
	"net/http"

	"torashaout/internal/apperrors"
	"torashaout/internal/logger"
	"torashaout/internal/models"
	"torashaout/internal/payment/services"
	"torashaout/internal/utils"
)

const maxWebhookBody = int64(65536)

type WebhookParser interface {
	ParseWebhook(payload []byte, signature string) (models.GatewayCallback, bool, error)
}

// StripeWebhookHandler receives signed Stripe events and settles the payment they
// refer to.
type StripeWebhookHandler struct {
	Parser   WebhookParser
	Recorder Recorder
	Logger   *logger.Logger
}

func NewStripeWebhookHandler(parser WebhookParser, recorder Recorder, log *logger.Logger) *StripeWebhookHandler {
	return &StripeWebhookHandler{Parser: parser, Recorder: recorder, Logger: log}
}

func (h *StripeWebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		utils.WriteError(w, h.Logger, apperrors.New(apperrors.KindBadRequest, "webhook.unreadable", "Could not read request body"))
		return
	}

	cb, ok, err := h.Parser.ParseWebhook(payload, r.Header.Get("Stripe-Signature"))
	if errors.Is(err, services.ErrWebhookSignature) {
		utils.WriteError(w, h.Logger, apperrors.New(apperrors.KindBadRequest, "webhook.signature", "Invalid webhook signature"))
		return
	}
	if err != nil {
		utils.WriteError(w, h.Logger, apperrors.New(apperrors.KindBadRequest, "webhook.payload", "Invalid webhook payload"))
		return
	}
	if !ok {
		utils.WriteSuccess(w, http.StatusOK, "Event ignored", nil)
		return
	}

	res, err := h.Recorder.HandleGatewayCallback(r.Context(), cb)
	if errors.Is(err, apperrors.ErrPaymentNotFound) {
		// not one of ours, or recorded later; acknowledge so Stripe stops retrying
		h.Logger.Warn("STRIPE", "webhook for unknown payment intent "+cb.Reference)
		utils.WriteSuccess(w, http.StatusOK, "Event ignored", nil)
		return
	}
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Event processed", res)
}
