package payout_api

import (
	"context"
	"fmt"
	"net/http"

	"torashaout/internal/auth"
	"torashaout/internal/logger"
	"torashaout/internal/models"
	"torashaout/internal/utils"
)

type PayoutService interface {
	RequestPayout(ctx context.Context, caller models.Caller, req models.PayoutRequest) (*models.Payout, error)
	ListPayouts(ctx context.Context, caller models.Caller) (*models.PayoutSummary, error)
}

type Handler struct {
	Service PayoutService
	Logger  *logger.Logger
}

func NewHandler(service PayoutService, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

func (h *Handler) RequestPayout(w http.ResponseWriter, r *http.Request) {
	var req models.PayoutRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}

	p, err := h.Service.RequestPayout(r.Context(), auth.CallerFrom(r.Context()), req)
	if err != nil {
		h.Logger.Debug("API", fmt.Sprintf("RequestPayout: %v", err))
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusCreated, "Payout requested", p)
}

func (h *Handler) ListPayouts(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Service.ListPayouts(r.Context(), auth.CallerFrom(r.Context()))
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", summary)
}
