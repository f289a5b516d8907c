package audit

import (
	"net/http"
	"strconv"

	"github.com/noah-isme/salon-pos/internal/common"
)

// Handler exposes the trail to managers.
type Handler struct {
	Service *Service
}

// List handles GET /audit?limit=.
func (h Handler) List(w http.ResponseWriter, r *http.Request) {
	op, ok := common.OperatorFrom(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	if !op.CanReassignStaff {
		common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "manager access required", nil)
		return
	}
	if h.Service == nil || h.Service.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "AUDIT_NOT_CONFIGURED", "audit store not configured", nil)
		return
	}
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 || limit > 200 {
		limit = 50
	}
	entries, err := h.Service.Recent(r.Context(), limit)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "AUDIT_QUERY_FAILED", "unable to fetch audit entries", nil)
		return
	}
	common.Data(w, http.StatusOK, entries, "")
}
