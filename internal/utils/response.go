package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"torashaout/internal/apperrors"
	"torashaout/internal/logger"
)

type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Details   []string    `json:"details,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func SuccessResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	}
}

func ErrorResponse(message, error string) APIResponse {
	return APIResponse{
		Success:   false,
		Message:   message,
		Error:     error,
		Timestamp: time.Now(),
	}
}

func WriteJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func WriteSuccess(w http.ResponseWriter, status int, message string, data interface{}) {
	WriteJSON(w, status, SuccessResponse(message, data))
}

// WriteError renders err as the standard failure envelope. Errors outside the
// apperrors taxonomy are logged and reported as a generic failure.
func WriteError(w http.ResponseWriter, log *logger.Logger, err error) {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) || appErr.Kind == apperrors.KindInternal {
		if log != nil {
			log.Error("API", "internal error: "+err.Error())
		}
		WriteJSON(w, http.StatusInternalServerError, ErrorResponse("", "Internal server error"))
		return
	}

	resp := ErrorResponse("", appErr.Message)
	resp.Details = appErr.Details
	WriteJSON(w, apperrors.HTTPStatus(appErr), resp)
}

// DecodeJSON reads a request body into dst, reporting malformed input as a bad request.
func DecodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return apperrors.New(apperrors.KindBadRequest, "request.malformed", "Invalid request body")
	}
	return nil
}
