package booking_api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cast"

	"torashaout/internal/apperrors"
	"torashaout/internal/auth"
	"torashaout/internal/booking"
	"torashaout/internal/logger"
	"torashaout/internal/models"
	"torashaout/internal/utils"
)

type BookingService interface {
	CreateBooking(ctx context.Context, caller models.Caller, req models.CreateBookingRequest) (*models.Booking, error)
	ListBookings(ctx context.Context, caller models.Caller, f booking.ListFilter) ([]models.Booking, error)
	GetBooking(ctx context.Context, caller models.Caller, codeOrID string) (*models.BookingView, error)
	StartBooking(ctx context.Context, caller models.Caller, bookingID string) (*models.Booking, error)
	DeliverBooking(ctx context.Context, caller models.Caller, bookingID string, req models.DeliverBookingRequest) (*models.Booking, error)
	ReviewBooking(ctx context.Context, caller models.Caller, bookingID string, req models.ReviewBookingRequest) (*models.Booking, error)
}

type QRGenerator interface {
	PNG(bookingCode string, size int) ([]byte, error)
}

type Handler struct {
	Service BookingService
	QR      QRGenerator
	Logger  *logger.Logger
}

func NewHandler(service BookingService, qr QRGenerator, log *logger.Logger) *Handler {
	return &Handler{Service: service, QR: qr, Logger: log}
}

func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req models.CreateBookingRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}

	b, err := h.Service.CreateBooking(r.Context(), auth.CallerFrom(r.Context()), req)
	if err != nil {
		h.Logger.Debug("API", fmt.Sprintf("CreateBooking: %v", err))
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusCreated, "Booking created", b.Summary())
}

func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := booking.ListFilter{
		Status:   q.Get("status"),
		AsTalent: q.Get("as") == "talent",
		Limit:    cast.ToInt(q.Get("limit")),
		Offset:   cast.ToInt(q.Get("offset")),
	}
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 50
	}

	bookings, err := h.Service.ListBookings(r.Context(), auth.CallerFrom(r.Context()), filter)
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", bookings)
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	view, err := h.Service.GetBooking(r.Context(), auth.CallerFrom(r.Context()), chi.URLParam(r, "codeOrId"))
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", view)
}

// GetBookingQR serves a PNG QR code of the booking's share link to anyone who can
// see the booking.
func (h *Handler) GetBookingQR(w http.ResponseWriter, r *http.Request) {
	view, err := h.Service.GetBooking(r.Context(), auth.CallerFrom(r.Context()), chi.URLParam(r, "codeOrId"))
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}

	png, err := h.QR.PNG(view.Booking.BookingCode, cast.ToInt(r.URL.Query().Get("size")))
	if err != nil {
		utils.WriteError(w, h.Logger, apperrors.Internal("failed to render QR code", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (h *Handler) StartBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.Service.StartBooking(r.Context(), auth.CallerFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Booking started", b)
}

func (h *Handler) DeliverBooking(w http.ResponseWriter, r *http.Request) {
	var req models.DeliverBookingRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	b, err := h.Service.DeliverBooking(r.Context(), auth.CallerFrom(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Video delivered", b)
}

func (h *Handler) ReviewBooking(w http.ResponseWriter, r *http.Request) {
	var req models.ReviewBookingRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	b, err := h.Service.ReviewBooking(r.Context(), auth.CallerFrom(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Review saved", b)
}
