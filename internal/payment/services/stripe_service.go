package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"

	"torashaout/internal/logger"
	"torashaout/internal/models"
	"torashaout/internal/utils"
)

var (
	ErrStripeAPIError         = errors.New("stripe API error")
	ErrStripeClientInitFailed = errors.New("failed to initialize Stripe client")
	ErrWebhookSignature       = errors.New("invalid stripe webhook signature")
)

// PaymentIntentGetter is the part of the Stripe client the verifier needs.
type PaymentIntentGetter interface {
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeService checks customer-reported Stripe payments against the PaymentIntent
// they name and turns signed webhooks into gateway callbacks.
type StripeService struct {
	intents       PaymentIntentGetter
	webhookSecret string
	log           *logger.Logger
}

func NewStripeService(secretKey, webhookSecret string, log *logger.Logger) (*StripeService, error) {
	if secretKey == "" {
		log.Error("STRIPE", "STRIPE_SECRET_KEY environment variable not set")
		return nil, ErrStripeClientInitFailed
	}

	sc := client.New(secretKey, nil)
	if sc == nil {
		log.Error("STRIPE", "Failed to initialize Stripe client")
		return nil, ErrStripeClientInitFailed
	}

	log.Info("STRIPE", "Stripe client initialized successfully")
	return NewStripeServiceWithClient(sc.PaymentIntents, webhookSecret, log), nil
}

func NewStripeServiceWithClient(intents PaymentIntentGetter, webhookSecret string, log *logger.Logger) *StripeService {
	return &StripeService{intents: intents, webhookSecret: webhookSecret, log: log}
}

// Verify looks the reference up as a PaymentIntent id. The intent must be for the
// booking's amount and currency.
func (s *StripeService) Verify(ctx context.Context, req VerifyRequest) (models.PaymentStatus, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := s.intents.Get(req.Reference, params)
	if err != nil {
		s.log.Error("STRIPE", fmt.Sprintf("Failed to fetch payment intent %s: %v", req.Reference, err))
		return "", fmt.Errorf("%w: %v", ErrStripeAPIError, err)
	}

	wantCents := req.Amount.Shift(2).IntPart()
	if pi.Amount != wantCents || !strings.EqualFold(string(pi.Currency), req.Currency) {
		s.log.LogSecurity("AMOUNT_MISMATCH", fmt.Sprintf("intent %s is %d %s, booking expects %d %s",
			pi.ID, pi.Amount, pi.Currency, wantCents, req.Currency))
		return "", fmt.Errorf("%w: amount or currency differs", ErrVerificationFailed)
	}

	status := intentStatus(pi.Status)
	s.log.Info("STRIPE", fmt.Sprintf("Payment intent %s is %s (%s)", pi.ID, pi.Status, status))
	return status, nil
}

func intentStatus(st stripe.PaymentIntentStatus) models.PaymentStatus {
	switch st {
	case stripe.PaymentIntentStatusSucceeded:
		return models.PaymentCompleted
	case stripe.PaymentIntentStatusProcessing,
		stripe.PaymentIntentStatusRequiresAction,
		stripe.PaymentIntentStatusRequiresCapture,
		stripe.PaymentIntentStatusRequiresConfirmation:
		return models.PaymentPending
	default:
		return models.PaymentFailed
	}
}

// ParseWebhook verifies the Stripe-Signature header and converts payment intent
// events into a callback. ok is false for event types the service ignores.
func (s *StripeService) ParseWebhook(payload []byte, signature string) (cb models.GatewayCallback, ok bool, err error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		s.log.LogSecurity("WEBHOOK_REJECTED", err.Error())
		return cb, false, fmt.Errorf("%w: %v", ErrWebhookSignature, err)
	}

	var succeeded bool
	switch event.Type {
	case "payment_intent.succeeded":
		succeeded = true
	case "payment_intent.payment_failed", "payment_intent.canceled":
		succeeded = false
	default:
		s.log.Debug("STRIPE", fmt.Sprintf("Ignoring webhook event %s", event.Type))
		return cb, false, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return cb, false, fmt.Errorf("decode payment intent from %s: %w", event.ID, err)
	}

	cb = models.GatewayCallback{
		Gateway:   "stripe",
		Reference: pi.ID,
		Succeeded: succeeded,
		Timestamp: utils.UnixTimeToTime(event.Created),
	}
	if pi.LastPaymentError != nil {
		cb.Reason = pi.LastPaymentError.Msg
	}
	return cb, true, nil
}
