package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"budgee-sync/src/categories"
	"budgee-sync/src/logger"
	"budgee-sync/src/middleware"
	"budgee-sync/src/models"
	"budgee-sync/src/store"
	"budgee-sync/src/txsync"
)

func budgetScope(r *http.Request) (string, zerolog.Logger) {
	budgetID := chi.URLParam(r, "budget_id")
	return budgetID, logger.FromContext(r.Context()).With().Str("budget_id", budgetID).Logger()
}

type budgetRequest struct {
	Name string `json:"name"`
}

func CreateBudget(st store.BudgetStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())
		var req budgetRequest
		if err := decodeJSON(w, r, &req); err != nil || req.Name == "" {
			middleware.WriteError(w, http.StatusBadRequest, "invalid_request", "name is required")
			return
		}
		b, err := st.CreateBudget(r.Context(), models.Budget{
			TeamID:    middleware.TeamID(r.Context()),
			Name:      req.Name,
			CreatedBy: middleware.UserID(r.Context()),
		})
		if err != nil {
			writeErr(w, log, "Failed to create budget", err)
			return
		}
		log.Info().Str("budget_id", b.ID).Msg("Created budget")
		middleware.WriteJSON(w, http.StatusCreated, b)
	}
}

// GetBudgets lists the caller's team budgets, newest first.
func GetBudgets(st store.BudgetStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		budgets, err := st.ListBudgets(r.Context(), middleware.TeamID(r.Context()))
		if err != nil {
			writeErr(w, logger.FromContext(r.Context()), "Failed to list budgets", err)
			return
		}
		if budgets == nil {
			budgets = []models.Budget{}
		}
		middleware.WriteJSON(w, http.StatusOK, budgets)
	}
}

func GetBudget() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, middleware.Budget(r.Context()))
	}
}

func UpdateBudget(st store.BudgetStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, log := budgetScope(r)
		var req budgetRequest
		if err := decodeJSON(w, r, &req); err != nil || req.Name == "" {
			middleware.WriteError(w, http.StatusBadRequest, "invalid_request", "name is required")
			return
		}
		b := *middleware.Budget(r.Context())
		b.Name = req.Name
		updated, err := st.UpdateBudget(r.Context(), b)
		if err != nil {
			writeErr(w, log, "Failed to update budget", err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, updated)
	}
}

// DeleteBudget removes the budget and everything projected or configured under it.
func DeleteBudget(st store.BudgetStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		budgetID, log := budgetScope(r)
		if err := st.DeleteBudget(r.Context(), middleware.TeamID(r.Context()), budgetID); err != nil {
			writeErr(w, log, "Failed to delete budget", err)
			return
		}
		log.Info().Msg("Deleted budget")
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"id": budgetID})
	}
}

// GetCategoryConfig returns the budget's effective category groups.
func GetCategoryConfig(st store.CategoryStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		budgetID, log := budgetScope(r)
		cfg, err := st.ReadBudgetCategoryConfig(r.Context(), budgetID)
		if err != nil {
			writeErr(w, log, "Failed to read category config", err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, cfg)
	}
}

// UpdateCustomCategories replaces the budget's custom groups. The result must still contain
// the Other fallback category.
func UpdateCustomCategories(st store.CategoryStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		budgetID, log := budgetScope(r)
		var req struct {
			Groups []models.CategoryGroup `json:"groups"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
			return
		}
		for _, g := range req.Groups {
			if g.ID == "" || g.Name == "" {
				middleware.WriteError(w, http.StatusBadRequest, "invalid_request", "every group needs an id and a name")
				return
			}
		}
		if _, err := categories.NewIndex(categories.Overlay(categories.DefaultGroups(), req.Groups)); err != nil {
			writeErr(w, log, "Invalid category config", err)
			return
		}
		if err := st.SaveCustomCategories(r.Context(), budgetID, req.Groups); err != nil {
			writeErr(w, log, "Failed to save custom categories", err)
			return
		}
		cfg, err := st.ReadBudgetCategoryConfig(r.Context(), budgetID)
		if err != nil {
			writeErr(w, log, "Failed to read category config", err)
			return
		}
		log.Info().Int("groups", len(req.Groups)).Msg("Updated custom categories")
		middleware.WriteJSON(w, http.StatusOK, cfg)
	}
}

func GetBudgetTransactions(st store.ProjectionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		budgetID, log := budgetScope(r)
		txns, err := st.ListBudgetTransactions(r.Context(), budgetID)
		if err != nil {
			writeErr(w, log, "Failed to list budget transactions", err)
			return
		}
		if txns == nil {
			txns = []models.BudgetTransaction{}
		}
		middleware.WriteJSON(w, http.StatusOK, txns)
	}
}

func GetAccountLinks(st store.BudgetLinkStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		budgetID, log := budgetScope(r)
		links, err := st.ListLinks(r.Context(), budgetID)
		if err != nil {
			writeErr(w, log, "Failed to list account links", err)
			return
		}
		if links == nil {
			links = []models.BudgetAccountLink{}
		}
		middleware.WriteJSON(w, http.StatusOK, links)
	}
}

// CreateAccountLink links one of the team's bank accounts to the budget. Transactions
// already stored for the account are projected right away and the spending of their
// months is recalculated. Accounts of other teams are refused.
func CreateAccountLink(engine *txsync.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		budgetID, log := budgetScope(r)
		var req struct {
			ExternalAccountID string `json:"external_account_id"`
		}
		if err := decodeJSON(w, r, &req); err != nil || req.ExternalAccountID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "invalid_request", "external_account_id is required")
			return
		}
		link := models.BudgetAccountLink{BudgetID: budgetID, ExternalAccountID: req.ExternalAccountID}
		res, err := engine.LinkAccount(r.Context(), middleware.TeamID(r.Context()), link)
		if err != nil {
			writeErr(w, log, "Failed to create account link", err)
			return
		}
		middleware.WriteJSON(w, http.StatusCreated, map[string]any{
			"link":      res.Link,
			"projected": len(res.Projections),
		})
	}
}

func DeleteAccountLink(st store.BudgetLinkStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		budgetID, log := budgetScope(r)
		linkID := chi.URLParam(r, "link_id")
		if err := st.DeleteLink(r.Context(), budgetID, linkID); err != nil {
			writeErr(w, log, "Account link not found", err)
			return
		}
		log.Info().Str("link_id", linkID).Msg("Unlinked account")
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"id": linkID})
	}
}
