package handlers

import (
	"context"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"anisync/models"
	"anisync/services/catalog"
)

type catalogService interface {
	WatchList(ctx context.Context, token, catalogID string) ([]models.CatalogMeta, error)
}

var _ catalogService = (*catalog.Service)(nil)

// CatalogHandler serves the watch-list catalogs. A failed or partially
// failed assembly degrades to whatever subset succeeded; the host always
// gets a metas array.
type CatalogHandler struct {
	Service catalogService
}

func NewCatalogHandler(service catalogService) *CatalogHandler {
	return &CatalogHandler{Service: service}
}

type catalogResponse struct {
	Metas []models.CatalogMeta `json:"metas"`
}

func (h *CatalogHandler) Get(w http.ResponseWriter, r *http.Request) {
	opts, err := userOptions(r)
	if err != nil {
		log.Printf("[catalog] rejecting request with bad options: %v", err)
		respondJSON(w, http.StatusOK, catalogResponse{Metas: []models.CatalogMeta{}})
		return
	}

	catalogID := mux.Vars(r)["id"]
	metas, err := h.Service.WatchList(r.Context(), opts.Token, catalogID)
	if err != nil {
		log.Printf("[catalog] watch list %q failed: %v", catalogID, err)
		metas = nil
	}
	if metas == nil {
		metas = []models.CatalogMeta{}
	}
	respondJSON(w, http.StatusOK, catalogResponse{Metas: metas})
}
