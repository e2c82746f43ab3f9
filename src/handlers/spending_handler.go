package handlers

import (
	"net/http"
	"strings"

	"budgee-sync/src/middleware"
	"budgee-sync/src/spending"
)

// RecalculateSpending recomputes actual spend for the requested YYYY-MM months.
// An empty list covers the earliest transaction's month through the current month.
func RecalculateSpending(svc *spending.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		budgetID, log := budgetScope(r)
		var req struct {
			Months []string `json:"months"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
			return
		}
		result, err := svc.Recalculate(r.Context(), budgetID, req.Months)
		if err != nil {
			writeErr(w, log, "Failed to recalculate spending", err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, result)
	}
}

// GetSpending reads stored spending. months is a comma-separated query parameter.
func GetSpending(svc *spending.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		budgetID, log := budgetScope(r)
		var months []string
		if raw := r.URL.Query().Get("months"); raw != "" {
			for _, m := range strings.Split(raw, ",") {
				if m = strings.TrimSpace(m); m != "" {
					months = append(months, m)
				}
			}
		}
		result, err := svc.List(r.Context(), budgetID, months)
		if err != nil {
			writeErr(w, log, "Failed to read spending", err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, result)
	}
}
