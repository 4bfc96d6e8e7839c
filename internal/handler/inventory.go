package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"aiaxstock/internal/model"
	"aiaxstock/internal/service"
	"aiaxstock/pkg/response"
)

// InventoryHandler handles stock summary and Owner lot HTTP requests.
type InventoryHandler struct {
	inventory *service.InventoryService
}

// NewInventoryHandler creates a new inventory handler.
func NewInventoryHandler(inventory *service.InventoryService) *InventoryHandler {
	return &InventoryHandler{
		inventory: inventory,
	}
}

// Summary handles GET /api/v1/stock/summary?scope=&product_key=&account_type=
func (h *InventoryHandler) Summary(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r)
	if !ok {
		return
	}
	scope, err := service.ParseScope(r.URL.Query().Get("scope"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	rows, err := h.inventory.Summary(r.Context(), s, service.SummaryQuery{
		Scope:       scope,
		ProductKey:  q.Get("product_key"),
		AccountType: q.Get("account_type"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, map[string]interface{}{
		"scope": scope,
		"rows":  rows,
	})
}

// Peek handles GET /api/v1/stock/peek?product_key=&account_type=
func (h *InventoryHandler) Peek(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entries, err := h.inventory.Peek(r.Context(), q.Get("product_key"), q.Get("account_type"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, entries)
}

// ListLots handles GET /api/v1/lots
func (h *InventoryHandler) ListLots(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := model.LotFilter{
		ProductKey:    q.Get("product_key"),
		AccountType:   q.Get("account_type"),
		DurationCode:  q.Get("duration_code"),
		AvailableOnly: q.Get("available") == "true",
	}

	lots, err := h.inventory.ListLots(r.Context(), s, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, lots)
}

// AddLot handles POST /api/v1/lots
func (h *InventoryHandler) AddLot(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r)
	if !ok {
		return
	}
	var in service.AddStockInput
	if !decodeJSON(w, r, &in) {
		return
	}

	lot, err := h.inventory.AddStock(r.Context(), s, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Created(w, lot)
}

// EditLot handles PATCH /api/v1/lots/{id}
func (h *InventoryHandler) EditLot(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r)
	if !ok {
		return
	}
	var patch model.LotPatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	lot, err := h.inventory.EditLot(r.Context(), s, chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, lot)
}

// Archive handles POST /api/v1/lots/{id}/archive
func (h *InventoryHandler) Archive(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r)
	if !ok {
		return
	}
	lot, err := h.inventory.Archive(r.Context(), s, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, lot)
}

// Unarchive handles POST /api/v1/lots/{id}/unarchive
func (h *InventoryHandler) Unarchive(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r)
	if !ok {
		return
	}
	lot, err := h.inventory.Unarchive(r.Context(), s, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, lot)
}

// DeleteLot handles DELETE /api/v1/lots/{id}
func (h *InventoryHandler) DeleteLot(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r)
	if !ok {
		return
	}
	if err := h.inventory.DeleteLot(r.Context(), s, chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	response.NoContent(w)
}

// Purge handles POST /api/v1/lots/purge
func (h *InventoryHandler) Purge(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r)
	if !ok {
		return
	}
	n, err := h.inventory.Purge(r.Context(), s)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, map[string]int{"archived": n})
}

// ExportLots handles GET /api/v1/lots/export
func (h *InventoryHandler) ExportLots(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r)
	if !ok {
		return
	}
	header, rows, err := h.inventory.ExportLots(r.Context(), s)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.CSV(w, exportName("lots"), header, rows)
}

func exportName(kind string) string {
	return fmt.Sprintf("aiaxstock-%s-%s.csv", kind, time.Now().UTC().Format("20060102-150405"))
}
