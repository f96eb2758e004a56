package user_api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"ms-voyage/internal/auth"
	"ms-voyage/internal/ledger"
	"ms-voyage/internal/models"
	"ms-voyage/internal/users"
	"ms-voyage/internal/utils"
)

const tokenTTL = 24 * time.Hour

type Handler struct {
	UserService   *users.UserService
	LedgerService *ledger.LedgerService
	JWTSecret     string
}

func NewHandler(userService *users.UserService, ledgerService *ledger.LedgerService, jwtSecret string) *Handler {
	return &Handler{
		UserService:   userService,
		LedgerService: ledgerService,
		JWTSecret:     jwtSecret,
	}
}

// Register creates an account and returns it together with a bearer token.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Nickname string `json:"nickname"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	user, err := h.UserService.Register(r.Context(), req.Email, req.Nickname)
	if err != nil {
		utils.WriteError(w, "Failed to register", err)
		return
	}

	token, err := auth.GenerateToken(h.JWTSecret, user.ID, tokenTTL)
	if err != nil {
		utils.WriteError(w, "Failed to issue token", err)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("registered", map[string]interface{}{
		"user":  user,
		"token": token,
	}))
}

func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.UserService.Get(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		utils.WriteError(w, "User not found", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("ok", user))
}

func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Nickname string `json:"nickname"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	user, err := h.UserService.UpdateNickname(r.Context(), auth.UserID(r.Context()), req.Nickname)
	if err != nil {
		utils.WriteError(w, "Failed to update profile", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("updated", user))
}

func (h *Handler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	if err := h.UserService.Deactivate(r.Context(), auth.UserID(r.Context())); err != nil {
		utils.WriteError(w, "Failed to deactivate", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	balance, err := h.LedgerService.GetBalance(r.Context(), userID)
	if err != nil {
		utils.WriteError(w, "Failed to fetch balance", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("ok", map[string]interface{}{
		"user_id":        userID,
		"current_points": balance,
	}))
}

// ListTransactions returns the caller's ledger history, newest first.
// Supports ?type=, ?reason=, ?limit=, ?offset=.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ledger.TransactionFilter{
		Type:   models.TransactionType(q.Get("type")),
		Reason: models.TransactionReason(q.Get("reason")),
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		filter.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v > 0 {
		filter.Offset = v
	}

	txs, err := h.LedgerService.ListTransactions(r.Context(), auth.UserID(r.Context()), filter)
	if err != nil {
		utils.WriteError(w, "Failed to fetch transactions", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("ok", txs))
}
