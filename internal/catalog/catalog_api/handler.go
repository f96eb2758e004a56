package catalog_api

import (
	"net/http"

	"ms-voyage/internal/catalog"
	"ms-voyage/internal/utils"
)

type Handler struct {
	CatalogService *catalog.CatalogService
}

func NewHandler(catalogService *catalog.CatalogService) *Handler {
	return &Handler{CatalogService: catalogService}
}

func (h *Handler) ListCities(w http.ResponseWriter, r *http.Request) {
	cities, err := h.CatalogService.ListActiveCities(r.Context())
	if err != nil {
		utils.WriteError(w, "Failed to fetch cities", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("ok", cities))
}

func (h *Handler) ListAirships(w http.ResponseWriter, r *http.Request) {
	airships, err := h.CatalogService.ListActiveAirships(r.Context())
	if err != nil {
		utils.WriteError(w, "Failed to fetch airships", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("ok", airships))
}
