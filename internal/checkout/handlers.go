package checkout

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/salon-pos/internal/cart"
	"github.com/noah-isme/salon-pos/internal/common"
)

// Handler exposes payment over HTTP.
type Handler struct {
	Svc *Service
}

// Pay handles POST /carts/{id}/pay.
func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	op, ok := common.OperatorFrom(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	var payload struct {
		Method string `json:"method" validate:"required"`
	}
	if err := common.DecodeJSON(r, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	receipt, err := h.Svc.Pay(r.Context(), op, chi.URLParam(r, "id"), payload.Method)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, receipt, receipt.Message)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrLedgerUnavailable) {
		common.JSONError(w, http.StatusServiceUnavailable, "LEDGER_UNAVAILABLE", retryMessage, map[string]any{"retryable": true})
		return
	}
	if err != nil && !common.IsAppError(err) && errors.Is(err, cart.ErrInvalidInput) {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error(), map[string]any{"hint": cart.UserMessage(err)})
		return
	}
	cart.WriteError(w, err)
}
