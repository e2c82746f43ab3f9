package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"budgee-sync/src/models"
)

const ruleColumns = `id, budget_id, name, conditions, actions, active, apply_to_history, created_at, updated_at`

func scanRule(row pgx.Row) (*models.TransactionRule, error) {
	var r models.TransactionRule
	err := row.Scan(&r.ID, &r.BudgetID, &r.Name, &r.Conditions, &r.Actions, &r.Active, &r.ApplyToHistory, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

// CreateRule inserts the rule and appends it to the budget's rule order.
func (s *Store) CreateRule(ctx context.Context, rule *models.TransactionRule) (*models.TransactionRule, error) {
	query := `
		INSERT INTO transaction_rules (budget_id, name, conditions, actions, active, apply_to_history)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + ruleColumns
	r, err := scanRule(s.q.QueryRow(ctx, query, rule.BudgetID, rule.Name, rule.Conditions, rule.Actions, rule.Active, rule.ApplyToHistory))
	if err != nil {
		return nil, err
	}
	order := `
		INSERT INTO budget_rule_order (budget_id, rule_ids)
		VALUES ($1, ARRAY[$2::text])
		ON CONFLICT (budget_id) DO UPDATE SET rule_ids = array_append(budget_rule_order.rule_ids, $2::text)
	`
	if _, err := s.q.Exec(ctx, order, r.BudgetID, r.ID); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) GetRule(ctx context.Context, budgetID, ruleID string) (*models.TransactionRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM transaction_rules WHERE id = $1 AND budget_id = $2`
	return scanRule(s.q.QueryRow(ctx, query, ruleID, budgetID))
}

func (s *Store) ListRules(ctx context.Context, budgetID string) ([]models.TransactionRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM transaction_rules WHERE budget_id = $1 ORDER BY created_at, id`
	rows, err := s.q.Query(ctx, query, budgetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []models.TransactionRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *r)
	}
	return rules, rows.Err()
}

func (s *Store) UpdateRule(ctx context.Context, rule *models.TransactionRule) (*models.TransactionRule, error) {
	query := `
		UPDATE transaction_rules
		SET name = $1, conditions = $2, actions = $3, active = $4, apply_to_history = $5, updated_at = NOW()
		WHERE id = $6 AND budget_id = $7
		RETURNING ` + ruleColumns
	return scanRule(s.q.QueryRow(ctx, query, rule.Name, rule.Conditions, rule.Actions, rule.Active, rule.ApplyToHistory, rule.ID, rule.BudgetID))
}

func (s *Store) DeleteRule(ctx context.Context, budgetID, ruleID string) error {
	if err := requireRow(s.q.Exec(ctx, `DELETE FROM transaction_rules WHERE id = $1 AND budget_id = $2`, ruleID, budgetID)); err != nil {
		return err
	}
	_, err := s.q.Exec(ctx, `UPDATE budget_rule_order SET rule_ids = array_remove(rule_ids, $2) WHERE budget_id = $1`, budgetID, ruleID)
	return err
}

func (s *Store) RuleOrder(ctx context.Context, budgetID string) ([]string, error) {
	var ids []string
	err := s.q.QueryRow(ctx, `SELECT rule_ids FROM budget_rule_order WHERE budget_id = $1`, budgetID).Scan(&ids)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return ids, err
}

func (s *Store) SetRuleOrder(ctx context.Context, budgetID string, ruleIDs []string) error {
	query := `
		INSERT INTO budget_rule_order (budget_id, rule_ids)
		VALUES ($1, $2)
		ON CONFLICT (budget_id) DO UPDATE SET rule_ids = EXCLUDED.rule_ids
	`
	_, err := s.q.Exec(ctx, query, budgetID, nonNil(ruleIDs))
	return err
}
