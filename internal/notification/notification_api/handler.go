package notification_api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cast"

	"torashaout/internal/apperrors"
	"torashaout/internal/auth"
	"torashaout/internal/logger"
	"torashaout/internal/models"
	"torashaout/internal/utils"
)

type Store interface {
	ListForUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID, id string) (bool, error)
}

type Handler struct {
	Store  Store
	Logger *logger.Logger
}

func NewHandler(store Store, log *logger.Logger) *Handler {
	return &Handler{Store: store, Logger: log}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	caller := auth.CallerFrom(r.Context())
	if !caller.Authenticated() {
		utils.WriteError(w, h.Logger, apperrors.ErrUnauthenticated)
		return
	}

	q := r.URL.Query()
	limit := cast.ToInt(q.Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	list, err := h.Store.ListForUser(r.Context(), caller.UserID, cast.ToBool(q.Get("unread")), limit)
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", list)
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	caller := auth.CallerFrom(r.Context())
	if !caller.Authenticated() {
		utils.WriteError(w, h.Logger, apperrors.ErrUnauthenticated)
		return
	}

	ok, err := h.Store.MarkRead(r.Context(), caller.UserID, chi.URLParam(r, "id"))
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	if !ok {
		utils.WriteError(w, h.Logger, apperrors.New(apperrors.KindNotFound, "notification.not_found", "Notification not found"))
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Notification marked as read", nil)
}
