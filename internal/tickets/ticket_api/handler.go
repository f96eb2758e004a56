package ticket_api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-voyage/internal/auth"
	"ms-voyage/internal/models"
	"ms-voyage/internal/tickets"
	"ms-voyage/internal/utils"
)

type Handler struct {
	TicketService *tickets.TicketService
}

func NewHandler(ticketService *tickets.TicketService) *Handler {
	return &Handler{TicketService: ticketService}
}

// PurchaseTicket buys an airship ticket to a city. The fare is debited and the
// traveler boards immediately.
func (h *Handler) PurchaseTicket(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CityID    string `json:"city_id"`
		AirshipID string `json:"airship_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.CityID == "" || req.AirshipID == "" {
		http.Error(w, "city_id and airship_id are required", http.StatusBadRequest)
		return
	}

	ticket, err := h.TicketService.Purchase(r.Context(), auth.UserID(r.Context()), req.CityID, req.AirshipID)
	if err != nil {
		utils.WriteError(w, "Failed to purchase ticket", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("ticket purchased", ticket))
}

func (h *Handler) CancelTicket(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")
	ticket, err := h.TicketService.Cancel(r.Context(), ticketID, auth.UserID(r.Context()))
	if err != nil {
		utils.WriteError(w, "Failed to cancel ticket", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("ticket cancelled", ticket))
}

func (h *Handler) ViewTicket(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")
	ticket, err := h.TicketService.Get(r.Context(), ticketID, auth.UserID(r.Context()))
	if err != nil {
		utils.WriteError(w, "Ticket not found", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("ok", ticket))
}

// ListMyTickets returns the caller's tickets, optional ?status= filter.
func (h *Handler) ListMyTickets(w http.ResponseWriter, r *http.Request) {
	status := models.TicketStatus(r.URL.Query().Get("status"))
	list, err := h.TicketService.List(r.Context(), auth.UserID(r.Context()), status)
	if err != nil {
		utils.WriteError(w, "Failed to fetch tickets", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("ok", list))
}

// GetCurrentBoarding returns the in-flight ticket, 404 when not traveling.
func (h *Handler) GetCurrentBoarding(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.TicketService.GetCurrentBoarding(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		utils.WriteError(w, "No boarding ticket", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("ok", ticket))
}
