package booking_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"torashaout/internal/auth"
	"torashaout/internal/logger"
	"torashaout/internal/models"
	"torashaout/internal/utils"
)

type EventSource interface {
	SubscribeToBooking(ctx context.Context, bookingID string) <-chan models.BookingEvent
	SubscribeToTalent(ctx context.Context, talentID string) <-chan models.BookingEvent
	BookingClientCount(bookingID string) int
	TalentClientCount(talentID string) int
}

// TalentResolver finds the talent profile behind a caller.
type TalentResolver interface {
	TalentFor(ctx context.Context, caller models.Caller) (*models.Talent, error)
}

// SSEHandler streams status changes of one booking to anyone allowed to view it,
// and of every booking of a talent to that talent.
type SSEHandler struct {
	Service BookingService
	Talents TalentResolver
	Events  EventSource
	Logger  *logger.Logger
}

func NewSSEHandler(service BookingService, talents TalentResolver, events EventSource, log *logger.Logger) *SSEHandler {
	return &SSEHandler{Service: service, Talents: talents, Events: events, Logger: log}
}

func (h *SSEHandler) StreamBookingEvents(w http.ResponseWriter, r *http.Request) {
	view, err := h.Service.GetBooking(r.Context(), auth.CallerFrom(r.Context()), chi.URLParam(r, "codeOrId"))
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	bookingID := view.Booking.ID
	ctx := r.Context()
	eventChan := h.Events.SubscribeToBooking(ctx, bookingID)

	initial, _ := json.Marshal(models.NewBookingEvent("booking.snapshot", view.Booking))
	h.Logger.Info("SSE", fmt.Sprintf("client connected to booking %s (%d listening)", bookingID, h.Events.BookingClientCount(bookingID)))
	h.stream(ctx, w, flusher, eventChan, initial, "booking "+bookingID)
}

// StreamTalentEvents streams status changes of every booking of the calling talent.
func (h *SSEHandler) StreamTalentEvents(w http.ResponseWriter, r *http.Request) {
	talent, err := h.Talents.TalentFor(r.Context(), auth.CallerFrom(r.Context()))
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	eventChan := h.Events.SubscribeToTalent(ctx, talent.ID)

	initial, _ := json.Marshal(map[string]string{"status": "connected", "talentId": talent.ID})
	h.Logger.Info("SSE", fmt.Sprintf("client connected to talent %s (%d listening)", talent.ID, h.Events.TalentClientCount(talent.ID)))
	h.stream(ctx, w, flusher, eventChan, initial, "talent "+talent.ID)
}

func (h *SSEHandler) stream(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, eventChan <-chan models.BookingEvent, initial []byte, subject string) {
	setupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "event: connected\ndata: %s\n\n", initial)
	flusher.Flush()

	for {
		select {
		case event, ok := <-eventChan:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("failed to serialize booking event: %v", err))
				continue
			}
			fmt.Fprintf(w, "event: status\ndata: %s\n\n", data)
			flusher.Flush()

		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("client disconnected from %s", subject))
			return
		}
	}
}

func setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
