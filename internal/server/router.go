// Package server assembles the HTTP surface from the per-domain handlers.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"torashaout/internal/admin/admin_api"
	"torashaout/internal/auth"
	"torashaout/internal/booking/booking_api"
	"torashaout/internal/logger"
	"torashaout/internal/notification/notification_api"
	"torashaout/internal/payment/payment_api"
	"torashaout/internal/payout/payout_api"
	"torashaout/internal/utils"
)

type Handlers struct {
	Bookings      *booking_api.Handler
	BookingEvents *booking_api.SSEHandler
	Payments      *payment_api.Handler
	// StripeWebhook is nil when Stripe is not configured.
	StripeWebhook http.Handler
	Admin         *admin_api.Handler
	Payouts       *payout_api.Handler
	Notifications *notification_api.Handler
}

type Options struct {
	Verifier       auth.Verifier
	Logger         *logger.Logger
	AllowedOrigins []string
	// Health reports whether the service's dependencies are reachable.
	Health      func(ctx context.Context) error
	Tracing     bool
	ServiceName string
}

func NewRouter(h Handlers, opts Options) http.Handler {
	log := opts.Logger
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(opts.AllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Stripe-Signature"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// --- Public Routes ---
	r.Get("/health", healthHandler(opts.Health, log))
	if h.StripeWebhook != nil {
		r.Method(http.MethodPost, "/webhooks/stripe", h.StripeWebhook)
		log.Info("ROUTER", "Stripe webhook registered at /webhooks/stripe")
	}

	// --- Authenticated Routes ---
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(opts.Verifier, log))

		r.Route("/bookings", func(r chi.Router) {
			r.Post("/", h.Bookings.CreateBooking)
			r.Get("/", h.Bookings.ListBookings)
			if h.BookingEvents != nil {
				r.Get("/events", h.BookingEvents.StreamTalentEvents)
			}
			r.Get("/{codeOrId}", h.Bookings.GetBooking)
			r.Get("/{codeOrId}/qr", h.Bookings.GetBookingQR)
			if h.BookingEvents != nil {
				r.Get("/{codeOrId}/events", h.BookingEvents.StreamBookingEvents)
			}
			r.Post("/{id}/start", h.Bookings.StartBooking)
			r.Post("/{id}/deliver", h.Bookings.DeliverBooking)
			r.Post("/{id}/review", h.Bookings.ReviewBooking)
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/", h.Payments.RecordPayment)
			r.Get("/", h.Payments.ListPayments)
		})

		r.Route("/payouts", func(r chi.Router) {
			r.Post("/", h.Payouts.RequestPayout)
			r.Get("/", h.Payouts.ListPayouts)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", h.Notifications.List)
			r.Post("/{id}/read", h.Notifications.MarkRead)
		})

		h.Admin.RegisterRoutes(r)
	})
	log.Info("ROUTER", "Booking, payment, payout, notification and admin routes registered")

	if opts.Tracing {
		return otelhttp.NewHandler(r, opts.ServiceName)
	}
	return r
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func healthHandler(check func(ctx context.Context) error, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				log.Error("HEALTH", err.Error())
				utils.WriteJSON(w, http.StatusServiceUnavailable, utils.ErrorResponse("", "Service unavailable"))
				return
			}
		}
		utils.WriteSuccess(w, http.StatusOK, "ToraShaout booking service is healthy", map[string]string{"status": "ok"})
	}
}

func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.LogAPI(r.Method, r.URL.Path, fmt.Sprint(ww.Status()), time.Since(start).String())
		})
	}
}
