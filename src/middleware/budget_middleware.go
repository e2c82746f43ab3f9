package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"budgee-sync/src/logger"
	"budgee-sync/src/models"
	"budgee-sync/src/store"
)

const budgetKey contextKey = "budget"

// BudgetOwnerMiddleware loads the {budget_id} route parameter for the caller's
// team. A budget owned by another team is reported as not found.
func BudgetOwnerMiddleware(budgets store.BudgetStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			budgetID := chi.URLParam(r, "budget_id")
			b, err := budgets.GetBudget(r.Context(), TeamID(r.Context()), budgetID)
			if errors.Is(err, store.ErrNotFound) {
				WriteError(w, http.StatusNotFound, "not_found", "budget not found")
				return
			}
			if err != nil {
				log := logger.FromContext(r.Context())
				log.Error().Err(err).Str("budget_id", budgetID).Msg("Failed to load budget")
				WriteError(w, http.StatusInternalServerError, "internal", "failed to load budget")
				return
			}
			ctx := context.WithValue(r.Context(), budgetKey, b)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Budget returns the budget loaded by BudgetOwnerMiddleware.
func Budget(ctx context.Context) *models.Budget {
	b, _ := ctx.Value(budgetKey).(*models.Budget)
	return b
}
