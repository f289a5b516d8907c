package directory

import (
	"net/http"

	"github.com/noah-isme/salon-pos/internal/common"
)

// Handler serves the customer and staff pickers.
type Handler struct {
	Dir *Directory
}

// Customers handles GET /customers?q=.
func (h *Handler) Customers(w http.ResponseWriter, r *http.Request) {
	if h.Dir == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "directory not configured", nil)
		return
	}
	common.Data(w, http.StatusOK, h.Dir.SearchCustomers(r.URL.Query().Get("q")), "")
}

// Staff handles GET /staff.
func (h *Handler) Staff(w http.ResponseWriter, r *http.Request) {
	if h.Dir == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "directory not configured", nil)
		return
	}
	common.Data(w, http.StatusOK, h.Dir.Staff(), "")
}
