package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"budgee-sync/src/middleware"
	"budgee-sync/src/models"
	"budgee-sync/src/rules"
)

type ruleRequest struct {
	Name           string                `json:"name"`
	Conditions     models.RuleConditions `json:"conditions"`
	Actions        models.RuleActions    `json:"actions"`
	Active         *bool                 `json:"active"`
	ApplyToHistory bool                  `json:"apply_to_history"`
}

func (req ruleRequest) rule(budgetID, ruleID string) *models.TransactionRule {
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return &models.TransactionRule{
		ID:             ruleID,
		BudgetID:       budgetID,
		Name:           req.Name,
		Conditions:     req.Conditions,
		Actions:        req.Actions,
		Active:         active,
		ApplyToHistory: req.ApplyToHistory,
	}
}

type ruleResponse struct {
	Rule    *models.TransactionRule `json:"rule"`
	Applied int                     `json:"applied"`
}

func CreateTransactionRule(svc *rules.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		budgetID, log := budgetScope(r)
		var req ruleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
			return
		}
		created, applied, err := svc.Create(r.Context(), req.rule(budgetID, ""))
		if err != nil {
			writeErr(w, log, "Failed to create transaction rule", err)
			return
		}
		log.Info().Str("rule_id", created.ID).Str("name", created.Name).Int("applied", applied).Msg("Created transaction rule")
		middleware.WriteJSON(w, http.StatusCreated, ruleResponse{Rule: created, Applied: applied})
	}
}

func GetTransactionRuleByID(svc *rules.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		budgetID, log := budgetScope(r)
		rule, err := svc.Get(r.Context(), budgetID, chi.URLParam(r, "rule_id"))
		if err != nil {
			writeErr(w, log, "Transaction rule not found", err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, rule)
	}
}

// GetAllTransactionRules lists the budget's rules in evaluation order, inactive ones included.
func GetAllTransactionRules(svc *rules.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		budgetID, log := budgetScope(r)
		list, err := svc.List(r.Context(), budgetID)
		if err != nil {
			writeErr(w, log, "Failed to list transaction rules", err)
			return
		}
		if list == nil {
			list = []models.TransactionRule{}
		}
		middleware.WriteJSON(w, http.StatusOK, list)
	}
}

func UpdateTransactionRule(svc *rules.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		budgetID, log := budgetScope(r)
		var req ruleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
			return
		}
		updated, applied, err := svc.Update(r.Context(), req.rule(budgetID, chi.URLParam(r, "rule_id")))
		if err != nil {
			writeErr(w, log, "Failed to update transaction rule", err)
			return
		}
		log.Info().Str("rule_id", updated.ID).Int("applied", applied).Msg("Updated transaction rule")
		middleware.WriteJSON(w, http.StatusOK, ruleResponse{Rule: updated, Applied: applied})
	}
}

func DeleteTransactionRule(svc *rules.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		budgetID, log := budgetScope(r)
		ruleID := chi.URLParam(r, "rule_id")
		if err := svc.Delete(r.Context(), budgetID, ruleID); err != nil {
			writeErr(w, log, "Transaction rule not found", err)
			return
		}
		log.Info().Str("rule_id", ruleID).Msg("Deleted transaction rule")
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"id": ruleID})
	}
}

func SetTransactionRuleOrder(svc *rules.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		budgetID, log := budgetScope(r)
		var req struct {
			RuleIDs []string `json:"rule_ids"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
			return
		}
		if err := svc.SetOrder(r.Context(), budgetID, req.RuleIDs); err != nil {
			writeErr(w, log, "Failed to set rule order", err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, map[string][]string{"rule_ids": req.RuleIDs})
	}
}

// TriggerTransactionRules reruns the active rules over the budget's full history.
func TriggerTransactionRules(svc *rules.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		budgetID, log := budgetScope(r)
		n, err := svc.ApplyToHistory(r.Context(), budgetID)
		if err != nil {
			writeErr(w, log, "Failed to apply transaction rules", err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, map[string]int{"applied": n})
	}
}
