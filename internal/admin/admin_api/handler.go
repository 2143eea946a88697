package admin_api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"torashaout/internal/admin"
	"torashaout/internal/auth"
	"torashaout/internal/logger"
	"torashaout/internal/models"
	"torashaout/internal/utils"
)

type Dispatcher interface {
	ApplyAdminAction(ctx context.Context, caller models.Caller, bookingID, action string) (*admin.ActionResult, error)
	ApplyTalentAction(ctx context.Context, caller models.Caller, talentID, action string) (*models.Talent, error)
}

type StatsProvider interface {
	Stats(ctx context.Context, caller models.Caller) (*admin.PlatformStats, error)
}

// Handler serves the admin endpoints
type Handler struct {
	Dispatcher Dispatcher
	Stats      StatsProvider
	Logger     *logger.Logger
}

func NewHandler(dispatcher Dispatcher, stats StatsProvider, log *logger.Logger) *Handler {
	return &Handler{Dispatcher: dispatcher, Stats: stats, Logger: log}
}

// RegisterRoutes mounts the admin routes on a chi router
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Post("/bookings/{id}/{action}", h.BookingAction)
		r.Post("/talents/{id}/{action}", h.TalentAction)
		r.Get("/stats", h.GetStats)
	})
}

func (h *Handler) BookingAction(w http.ResponseWriter, r *http.Request) {
	id, action := chi.URLParam(r, "id"), chi.URLParam(r, "action")
	res, err := h.Dispatcher.ApplyAdminAction(r.Context(), auth.CallerFrom(r.Context()), id, action)
	if err != nil {
		h.Logger.Debug("API", fmt.Sprintf("admin %s on %s: %v", action, id, err))
		utils.WriteError(w, h.Logger, err)
		return
	}

	msg := fmt.Sprintf("Booking %s", res.Booking.Status)
	if res.PaymentUpdateFailed {
		msg += ", payment records could not be updated"
	}
	utils.WriteSuccess(w, http.StatusOK, msg, res)
}

func (h *Handler) TalentAction(w http.ResponseWriter, r *http.Request) {
	t, err := h.Dispatcher.ApplyTalentAction(r.Context(), auth.CallerFrom(r.Context()), chi.URLParam(r, "id"), chi.URLParam(r, "action"))
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Talent updated", t)
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Stats.Stats(r.Context(), auth.CallerFrom(r.Context()))
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", stats)
}
