package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"ms-voyage/internal/models"
)

// APIResponse is the envelope every handler writes. Error carries the raw
// error text and is only set on failures; Data is omitted when empty.
type APIResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func SuccessResponse(message string, data any) APIResponse {
	return APIResponse{Success: true, Message: message, Data: data, Timestamp: time.Now().UTC()}
}

func ErrorResponse(message, detail string) APIResponse {
	return APIResponse{Success: false, Message: message, Error: detail, Timestamp: time.Now().UTC()}
}

func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// WriteError maps a domain error onto its HTTP status and writes the error
// envelope.
func WriteError(w http.ResponseWriter, message string, err error) {
	WriteJSON(w, StatusForError(err), ErrorResponse(message, err.Error()))
}

// StatusForError translates the domain error taxonomy into HTTP statuses.
// Anything unrecognized is a 500.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, models.ErrInsufficientBalance):
		return http.StatusPaymentRequired
	case errors.Is(err, models.ErrInvalidAmount),
		errors.Is(err, models.ErrInactiveCity),
		errors.Is(err, models.ErrInactiveAirship):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrInvalidTicketStatus),
		errors.Is(err, models.ErrActiveStayExists),
		errors.Is(err, models.ErrStayNotCheckedIn),
		errors.Is(err, models.ErrDuplicatedReward),
		errors.Is(err, models.ErrRoomCapacityExceeded):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
