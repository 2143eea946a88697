package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/uptrace/bun"

	"torashaout/internal/admin"
	"torashaout/internal/admin/admin_api"
	"torashaout/internal/apperrors"
	"torashaout/internal/auth"
	"torashaout/internal/booking"
	"torashaout/internal/booking/booking_api"
	bookingdb "torashaout/internal/booking/db"
	"torashaout/internal/booking/qr"
	"torashaout/internal/config"
	"torashaout/internal/kafka"
	"torashaout/internal/locks"
	"torashaout/internal/logger"
	"torashaout/internal/models"
	"torashaout/internal/notification"
	"torashaout/internal/notification/notification_api"
	"torashaout/internal/payment"
	"torashaout/internal/payment/payment_api"
	"torashaout/internal/payment/services"
	"torashaout/internal/payment/storage"
	"torashaout/internal/payout"
	"torashaout/internal/payout/payout_api"
	"torashaout/internal/pricing"
	"torashaout/internal/sse"
)

// Deps are the connections and integrations the service is built from.
type Deps struct {
	Config   *config.Config
	DB       *bun.DB
	Logger   *logger.Logger
	Verifier auth.Verifier
	// Kafka must be non-nil; use kafka.NewDisabledProducer when it is off.
	Kafka *kafka.Producer
	// Gate guards payment recording and Locker the payout and reconciler mutexes.
	Gate   payment.Gate
	Locker locks.Locker
	// Payments verifies customer-reported payments; nil trusts the client.
	Payments services.Verifier
	// Webhooks parses signed Stripe events; nil leaves the webhook route off.
	Webhooks payment_api.WebhookParser
}

// App is the wired service.
type App struct {
	Router     http.Handler
	Bookings   *booking.BookingService
	Recorder   *payment.Recorder
	Reconciler *payment.Reconciler
	Payouts    *payout.PayoutService
	Dispatcher *admin.Dispatcher
	Events     *sse.BookingEventEmitter
	Store      *storage.SQLStore

	log *logger.Logger
}

func NewApp(d Deps) *App {
	cfg, log := d.Config, d.Logger

	emitter := sse.NewBookingEventEmitter()
	notes := notification.NewStore(d.DB)
	paymentStore := storage.NewSQLStore(d.DB, log)

	bookings := booking.NewBookingService(bookingdb.New(d.DB), paymentStore, d.Kafka, notes, emitter, log, booking.Options{
		FeePercent:  pricing.ParseFeePercent(cfg.Booking.PlatformFeePercent),
		Policy:      booking.Policy{AllowCompletedRefunds: cfg.Booking.AllowCompletedRefunds},
		CodeRetries: cfg.Booking.CodeRetries,
	})
	recorder := payment.NewRecorder(paymentStore, bookings, d.Payments, d.Gate, d.Kafka, notes, log)
	reconciler := payment.NewReconciler(paymentStore, bookings, d.Locker, log, cfg.Reconciler.BatchSize, cfg.Reconciler.LockTTL)
	payouts := payout.NewPayoutService(payout.NewDB(d.DB), d.Locker, d.Kafka, notes, log, payout.Options{
		BankTransferETA: cfg.Payout.BankTransferETA,
		MobileMoneyETA:  cfg.Payout.MobileMoneyETA,
		LockTTL:         cfg.Payout.LockTTL,
	})
	adminDB := admin.NewDB(d.DB)
	dispatcher := admin.NewDispatcher(bookings, paymentStore, adminDB, log)

	bookingHandler := booking_api.NewHandler(bookings, qr.NewShareQR(cfg.Server.PublicBaseURL), log)
	handlers := Handlers{
		Bookings:      bookingHandler,
		BookingEvents: booking_api.NewSSEHandler(bookings, bookings, emitter, log),
		Payments:      payment_api.NewHandler(recorder, log),
		Admin:         admin_api.NewHandler(dispatcher, admin.NewStatsService(adminDB), log),
		Payouts:       payout_api.NewHandler(payouts, log),
		Notifications: notification_api.NewHandler(notes, log),
	}
	if d.Webhooks != nil {
		handlers.StripeWebhook = payment_api.NewStripeWebhookHandler(d.Webhooks, recorder, log)
	}

	router := NewRouter(handlers, Options{
		Verifier:       d.Verifier,
		Logger:         log,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Health:         paymentStore.HealthCheck,
		Tracing:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
	})

	return &App{
		Router:     router,
		Bookings:   bookings,
		Recorder:   recorder,
		Reconciler: reconciler,
		Payouts:    payouts,
		Dispatcher: dispatcher,
		Events:     emitter,
		Store:      paymentStore,
		log:        log,
	}
}

// HandleCallback feeds a gateway callback from the message bus to the recorder.
// Callbacks for payments this service never recorded are dropped.
func (a *App) HandleCallback(ctx context.Context, cb models.GatewayCallback) error {
	_, err := a.Recorder.HandleGatewayCallback(ctx, cb)
	if errors.Is(err, apperrors.ErrPaymentNotFound) {
		a.log.Warn("KAFKA", fmt.Sprintf("no payment for %s reference %s, dropping callback", cb.Gateway, cb.Reference))
		return nil
	}
	return err
}
