package handler

import (
	"net/http"

	"aiaxstock/internal/service"
	"aiaxstock/pkg/response"
)

// CatalogHandler serves the catalog reference data.
type CatalogHandler struct {
	catalog *service.CatalogService
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(catalog *service.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// Get handles GET /api/v1/catalog
func (h *CatalogHandler) Get(w http.ResponseWriter, r *http.Request) {
	response.OK(w, h.catalog.Load(r.Context()))
}
