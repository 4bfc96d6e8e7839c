package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"aiaxstock/internal/model"
	"aiaxstock/internal/service"
	"aiaxstock/pkg/response"
)

// SalesHandler serves the caller's ledger.
type SalesHandler struct {
	ledger *service.LedgerService
}

// NewSalesHandler creates a new sales handler.
func NewSalesHandler(ledger *service.LedgerService) *SalesHandler {
	return &SalesHandler{ledger: ledger}
}

func ledgerQuery(r *http.Request) (service.LedgerQuery, error) {
	q := r.URL.Query()
	page, err := queryInt(r, "page")
	if err != nil {
		return service.LedgerQuery{}, err
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		return service.LedgerQuery{}, err
	}
	return service.LedgerQuery{
		ProductKey: q.Get("product_key"),
		Buyer:      q.Get("buyer"),
		Page:       page,
		Limit:      limit,
	}, nil
}

// List handles GET /api/v1/sales?product_key=&buyer=&page=&limit=
func (h *SalesHandler) List(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r)
	if !ok {
		return
	}
	q, err := ledgerQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	sales, total, q, err := h.ledger.List(r.Context(), s, q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSONWithMeta(w, http.StatusOK, sales, q.Page, q.Limit, total)
}

// Export handles GET /api/v1/sales/export
func (h *SalesHandler) Export(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r)
	if !ok {
		return
	}
	q, err := ledgerQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	header, rows, err := h.ledger.Export(r.Context(), s, q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.CSV(w, exportName("sales"), header, rows)
}

// Update handles PATCH /api/v1/sales/{id}
func (h *SalesHandler) Update(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r)
	if !ok {
		return
	}
	var patch model.SalePatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	sale, err := h.ledger.Update(r.Context(), s, chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, sale)
}

// ExtendRequest is the body of an expiry extension.
type ExtendRequest struct {
	Days int `json:"days"`
}

// Extend handles POST /api/v1/sales/{id}/extend
func (h *SalesHandler) Extend(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r)
	if !ok {
		return
	}
	var req ExtendRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sale, err := h.ledger.ExtendExpiry(r.Context(), s, chi.URLParam(r, "id"), req.Days)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, sale)
}
