package reporting

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/salon-pos/internal/common"
)

// Handler exposes dashboard read endpoints.
type Handler struct {
	Aggregator *Aggregator
	Refresher  *Refresher
	Now        func() time.Time
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// Routes mounts the reporting endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/overview", h.Overview)
	r.Get("/entries", h.Entries)
	r.Get("/range", h.Range)
}

// Overview returns the latest refreshed overview, computing one on demand
// when the refresher has not produced a result yet.
func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	if h.Refresher != nil && r.URL.Query().Get("fresh") == "" {
		if ov, ok := h.Refresher.Latest(); ok {
			common.Data(w, http.StatusOK, ov, "")
			return
		}
	}
	if h.Aggregator == nil {
		common.JSONError(w, http.StatusInternalServerError, "REPORTING_NOT_CONFIGURED", "reporting not configured", nil)
		return
	}
	ov, err := h.Aggregator.Overview(r.Context(), h.now())
	if err != nil {
		common.JSONError(w, http.StatusServiceUnavailable, "LEDGER_UNAVAILABLE", "unable to compute overview", nil)
		return
	}
	common.Data(w, http.StatusOK, ov, "")
}

// Entries returns the ledger entries between from and to (RFC3339, inclusive).
func (h *Handler) Entries(w http.ResponseWriter, r *http.Request) {
	if h.Aggregator == nil {
		common.JSONError(w, http.StatusInternalServerError, "REPORTING_NOT_CONFIGURED", "reporting not configured", nil)
		return
	}
	query := r.URL.Query()
	from, err := time.Parse(time.RFC3339Nano, query.Get("from"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid from date", nil)
		return
	}
	to, err := time.Parse(time.RFC3339Nano, query.Get("to"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid to date", nil)
		return
	}
	drill, err := h.Aggregator.DrillDown(r.Context(), from, to, strings.TrimSpace(query.Get("label")))
	if err != nil {
		if errors.Is(err, ErrInvalidRange) {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "from must not be after to", nil)
			return
		}
		common.JSONError(w, http.StatusServiceUnavailable, "LEDGER_UNAVAILABLE", "unable to load entries", nil)
		return
	}
	common.Data(w, http.StatusOK, drill, "")
}

// Range returns the boundaries of a calendar period around anchor, which
// defaults to now and may be given as RFC3339 or YYYY-MM-DD.
func (h *Handler) Range(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	period, err := ParsePeriod(query.Get("period"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error(), nil)
		return
	}
	anchor := h.now()
	if h.Aggregator != nil {
		anchor = anchor.In(h.Aggregator.location())
	}
	if raw := strings.TrimSpace(query.Get("anchor")); raw != "" {
		anchor, err = parseAnchor(raw, anchor.Location())
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid anchor", nil)
			return
		}
	}
	rng, err := DateRange(period, anchor)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error(), nil)
		return
	}
	prior, _ := DateRange(period, Previous(period, anchor))
	common.Data(w, http.StatusOK, map[string]any{
		"period":  period,
		"label":   Label(period),
		"current": rng,
		"prior":   prior,
	}, "")
}

func parseAnchor(raw string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.ParseInLocation(time.DateOnly, raw, loc)
}
