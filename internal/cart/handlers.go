package cart

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/salon-pos/internal/common"
	"github.com/noah-isme/salon-pos/internal/pricing"
)

// Handler wires cart services to HTTP.
type Handler struct {
	Svc *Service
}

// Routes mounts the cart endpoints under a router. extra registers further
// routes on the per-cart subrouter, such as payment.
func (h *Handler) Routes(r chi.Router, extra ...func(chi.Router)) {
	r.Post("/", h.Create)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Delete("/", h.Clear)
		r.Post("/items", h.AddItem)
		r.Patch("/items/{itemId}", h.UpdateQuantity)
		r.Delete("/items/{itemId}", h.RemoveItem)
		r.Put("/customer", h.SelectCustomer)
		r.Put("/staff", h.SelectStaff)
		r.Put("/discount", h.ApplyDiscount)
		r.Delete("/discount", h.RemoveDiscount)
		r.Post("/checkout", h.Checkout)
		r.Post("/checkout/cancel", h.CancelPayment)
		for _, fn := range extra {
			fn(r)
		}
	})
}

// Create opens a cart for the authenticated operator.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	op, ok := h.operator(w, r)
	if !ok {
		return
	}
	view, err := h.Svc.Create(r.Context(), op)
	if err != nil {
		WriteError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, view, "")
}

// Get returns the cart with pricing preview.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	op, ok := h.operator(w, r)
	if !ok {
		return
	}
	view, err := h.Svc.Get(r.Context(), op, chi.URLParam(r, "id"))
	h.respond(w, view, err)
}

// Clear discards the cart contents.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	op, ok := h.operator(w, r)
	if !ok {
		return
	}
	view, err := h.Svc.Clear(r.Context(), op, chi.URLParam(r, "id"))
	h.respond(w, view, err)
}

// AddItem adds one unit of a catalog service.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	op, ok := h.operator(w, r)
	if !ok {
		return
	}
	var payload struct {
		ServiceID string `json:"serviceId" validate:"required"`
	}
	if err := common.DecodeJSON(r, &payload); err != nil {
		WriteError(w, err)
		return
	}
	view, err := h.Svc.AddItem(r.Context(), op, chi.URLParam(r, "id"), payload.ServiceID)
	h.respond(w, view, err)
}

// UpdateQuantity adjusts a line by a signed delta.
func (h *Handler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	op, ok := h.operator(w, r)
	if !ok {
		return
	}
	var payload struct {
		Delta int `json:"delta" validate:"required"`
	}
	if err := common.DecodeJSON(r, &payload); err != nil {
		WriteError(w, err)
		return
	}
	view, err := h.Svc.UpdateQuantity(r.Context(), op, chi.URLParam(r, "id"), chi.URLParam(r, "itemId"), payload.Delta)
	h.respond(w, view, err)
}

// RemoveItem drops a line.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	op, ok := h.operator(w, r)
	if !ok {
		return
	}
	view, err := h.Svc.RemoveItem(r.Context(), op, chi.URLParam(r, "id"), chi.URLParam(r, "itemId"))
	h.respond(w, view, err)
}

// SelectCustomer sets or clears the customer.
func (h *Handler) SelectCustomer(w http.ResponseWriter, r *http.Request) {
	op, ok := h.operator(w, r)
	if !ok {
		return
	}
	var payload struct {
		CustomerID *string `json:"customerId"`
	}
	if err := common.DecodeJSON(r, &payload); err != nil {
		WriteError(w, err)
		return
	}
	view, err := h.Svc.SelectCustomer(r.Context(), op, chi.URLParam(r, "id"), deref(payload.CustomerID))
	h.respond(w, view, err)
}

// SelectStaff sets or clears the staff member.
func (h *Handler) SelectStaff(w http.ResponseWriter, r *http.Request) {
	op, ok := h.operator(w, r)
	if !ok {
		return
	}
	var payload struct {
		StaffID *string `json:"staffId"`
	}
	if err := common.DecodeJSON(r, &payload); err != nil {
		WriteError(w, err)
		return
	}
	view, err := h.Svc.SelectStaff(r.Context(), op, chi.URLParam(r, "id"), deref(payload.StaffID))
	h.respond(w, view, err)
}

// ApplyDiscount selects a percentage tier or a voucher.
func (h *Handler) ApplyDiscount(w http.ResponseWriter, r *http.Request) {
	op, ok := h.operator(w, r)
	if !ok {
		return
	}
	var payload struct {
		Kind   string `json:"kind" validate:"required,oneof=percentage voucher"`
		Tier   int    `json:"tier" validate:"required_if=Kind percentage"`
		Code   string `json:"code" validate:"required_if=Kind voucher"`
		Amount string `json:"amount" validate:"required_if=Kind voucher"`
	}
	if err := common.DecodeJSON(r, &payload); err != nil {
		WriteError(w, err)
		return
	}
	id := chi.URLParam(r, "id")
	var (
		view View
		err  error
	)
	if payload.Kind == string(pricing.KindPercentage) {
		view, err = h.Svc.ApplyPercentage(r.Context(), op, id, payload.Tier)
	} else {
		view, err = h.Svc.ApplyVoucher(r.Context(), op, id, payload.Code, payload.Amount)
	}
	if err != nil {
		WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, view, h.Svc.DiscountMessage(view.Discount))
}

// RemoveDiscount clears the discount.
func (h *Handler) RemoveDiscount(w http.ResponseWriter, r *http.Request) {
	op, ok := h.operator(w, r)
	if !ok {
		return
	}
	view, err := h.Svc.RemoveDiscount(r.Context(), op, chi.URLParam(r, "id"))
	h.respond(w, view, err)
}

// Checkout validates the cart and exposes payment methods.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	op, ok := h.operator(w, r)
	if !ok {
		return
	}
	view, err := h.Svc.Checkout(r.Context(), op, chi.URLParam(r, "id"))
	h.respond(w, view, err)
}

// CancelPayment returns the cart to editing.
func (h *Handler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	op, ok := h.operator(w, r)
	if !ok {
		return
	}
	view, err := h.Svc.CancelPayment(r.Context(), op, chi.URLParam(r, "id"))
	h.respond(w, view, err)
}

func (h *Handler) operator(w http.ResponseWriter, r *http.Request) (common.Operator, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return common.Operator{}, false
	}
	op, ok := common.OperatorFrom(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return common.Operator{}, false
	}
	return op, true
}

func (h *Handler) respond(w http.ResponseWriter, view View, err error) {
	if err != nil {
		WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, view, "")
}

// WriteError maps cart and pricing errors onto the canonical error payload.
func WriteError(w http.ResponseWriter, err error) {
	if err == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unknown error", nil)
		return
	}
	if common.WriteAppError(w, err) {
		return
	}
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, pricing.ErrInvalidDiscount):
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error(), nil)
	case errors.Is(err, common.ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, ErrStaffLocked):
		common.JSONError(w, http.StatusForbidden, "STAFF_LOCKED", err.Error(), nil)
	case errors.Is(err, ErrPaymentPending):
		common.JSONError(w, http.StatusConflict, "PAYMENT_PENDING", err.Error(), nil)
	case errors.Is(err, ErrPaymentConfirmed):
		common.JSONError(w, http.StatusConflict, "PAYMENT_CONFIRMED", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to process cart", nil)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
