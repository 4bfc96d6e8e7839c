package handler

import (
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"aiaxstock/internal/model"
	"aiaxstock/internal/repository"
	"aiaxstock/internal/service"
	"aiaxstock/pkg/response"
)

// noStockMessage is shown when a pool has nothing left to dispense.
const noStockMessage = "No stock available for this product, account type and duration."

// CheckoutHandler dispenses one unit and returns the refreshed views.
type CheckoutHandler struct {
	checkout  *service.CheckoutService
	inventory *service.InventoryService
	ledger    *service.LedgerService
	log       *logrus.Entry
}

// NewCheckoutHandler creates a new checkout handler.
func NewCheckoutHandler(checkout *service.CheckoutService, inventory *service.InventoryService, ledger *service.LedgerService) *CheckoutHandler {
	return &CheckoutHandler{
		checkout:  checkout,
		inventory: inventory,
		ledger:    ledger,
		log:       logrus.WithField("component", "checkout-handler"),
	}
}

// CheckoutResponse is the result of a checkout. Account is nil when
// nothing was dispensed.
type CheckoutResponse struct {
	Dispensed bool                 `json:"dispensed"`
	Message   string               `json:"message,omitempty"`
	Account   *model.Checkout      `json:"account,omitempty"`
	Summary   []model.StockSummary `json:"summary"`
	Sales     []model.Sale         `json:"sales"`
}

// Checkout handles POST /api/v1/checkout
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r)
	if !ok {
		return
	}
	var in service.CheckoutInput
	if !decodeJSON(w, r, &in) {
		return
	}

	co, err := h.checkout.Checkout(r.Context(), s, in)
	resp := CheckoutResponse{Account: co, Dispensed: err == nil}
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrNoStock):
		resp.Message = noStockMessage
	default:
		writeError(w, r, err)
		return
	}

	h.refresh(r, s, &resp)
	response.OK(w, resp)
}

// refresh loads the available summary and the first ledger page. Failures
// leave the lists empty; the checkout itself already happened.
func (h *CheckoutHandler) refresh(r *http.Request, s *model.Session, resp *CheckoutResponse) {
	resp.Summary = []model.StockSummary{}
	resp.Sales = []model.Sale{}

	summary, err := h.inventory.Summary(r.Context(), s, service.SummaryQuery{Scope: service.ScopeAvailable})
	if err != nil {
		h.log.WithError(err).Warn("failed to refresh summary after checkout")
	} else {
		resp.Summary = summary
	}

	sales, _, _, err := h.ledger.List(r.Context(), s, service.LedgerQuery{})
	if err != nil {
		h.log.WithError(err).Warn("failed to refresh ledger after checkout")
	} else {
		resp.Sales = sales
	}
}
