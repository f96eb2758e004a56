package room_api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-voyage/internal/auth"
	"ms-voyage/internal/rooms"
	"ms-voyage/internal/utils"
)

type Handler struct {
	RoomService *rooms.RoomService
}

func NewHandler(roomService *rooms.RoomService) *Handler {
	return &Handler{RoomService: roomService}
}

// GetCurrentStay answers "where am I": the caller's checked-in stay, or 404.
func (h *Handler) GetCurrentStay(w http.ResponseWriter, r *http.Request) {
	stay, err := h.RoomService.GetCurrentStay(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		utils.WriteError(w, "No active stay", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("ok", stay))
}

// ExtendStay pushes the checkout back one period for the extension fee.
func (h *Handler) ExtendStay(w http.ResponseWriter, r *http.Request) {
	stayID := chi.URLParam(r, "stayID")
	stay, err := h.RoomService.Extend(r.Context(), stayID, auth.UserID(r.Context()))
	if err != nil {
		utils.WriteError(w, "Failed to extend stay", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("stay extended", stay))
}

// CheckoutStay leaves the room early.
func (h *Handler) CheckoutStay(w http.ResponseWriter, r *http.Request) {
	stayID := chi.URLParam(r, "stayID")
	stay, err := h.RoomService.CheckoutManual(r.Context(), stayID, auth.UserID(r.Context()))
	if err != nil {
		utils.WriteError(w, "Failed to check out", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("checked out", stay))
}

// ListRoomMembers shows who shares the room. Occupants only.
func (h *Handler) ListRoomMembers(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	stays, err := h.RoomService.ListRoomMembers(r.Context(), roomID, auth.UserID(r.Context()))
	if err != nil {
		utils.WriteError(w, "Failed to fetch room members", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("ok", stays))
}
