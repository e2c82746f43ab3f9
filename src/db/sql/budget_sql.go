package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"budgee-sync/src/categories"
	"budgee-sync/src/models"
)

// ReadBudgetCategoryConfig overlays the budget's custom groups on the defaults. Results are cached until the
// budget's custom categories change.
func (s *Store) ReadBudgetCategoryConfig(ctx context.Context, budgetID string) (*models.BudgetCategoryConfig, error) {
	if cfg, ok := s.cache.Get(budgetID); ok {
		return cfg, nil
	}

	var custom []models.CategoryGroup
	err := s.q.QueryRow(ctx, `SELECT groups FROM custom_category_groups WHERE budget_id = $1`, budgetID).Scan(&custom)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	cfg := &models.BudgetCategoryConfig{
		BudgetID: budgetID,
		Groups:   categories.Overlay(categories.DefaultGroups(), custom),
	}
	s.cache.Set(cfg)
	return cfg, nil
}

func (s *Store) SaveCustomCategories(ctx context.Context, budgetID string, groups []models.CategoryGroup) error {
	query := `
		INSERT INTO custom_category_groups (budget_id, groups)
		VALUES ($1, $2)
		ON CONFLICT (budget_id) DO UPDATE SET groups = EXCLUDED.groups, updated_at = NOW()
	`
	if groups == nil {
		groups = []models.CategoryGroup{}
	}
	_, err := s.q.Exec(ctx, query, budgetID, groups)
	s.cache.Invalidate(budgetID)
	return err
}

// ListMonthlySpending returns every stored month when months is empty.
func (s *Store) ListMonthlySpending(ctx context.Context, budgetID string, months []string) ([]models.MonthlyCategorySpend, error) {
	query := `
		SELECT budget_id, month, group_id, category_id, actual, target, tax_deductible, updated_at
		FROM monthly_category_spending
		WHERE budget_id = $1 AND (cardinality($2::text[]) = 0 OR month = ANY($2))
		ORDER BY month, group_id, category_id
	`
	rows, err := s.q.Query(ctx, query, budgetID, nonNil(months))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.MonthlyCategorySpend
	for rows.Next() {
		var r models.MonthlyCategorySpend
		err := rows.Scan(&r.BudgetID, &r.Month, &r.GroupID, &r.CategoryID, &r.Actual, &r.Target, &r.TaxDeductible, &r.UpdatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) UpsertMonthlySpending(ctx context.Context, rows []models.MonthlyCategorySpend) error {
	query := `
		INSERT INTO monthly_category_spending (budget_id, month, group_id, category_id, actual, target, tax_deductible)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (budget_id, month, group_id, category_id) DO UPDATE SET
			actual = EXCLUDED.actual,
			target = EXCLUDED.target,
			tax_deductible = EXCLUDED.tax_deductible,
			updated_at = NOW()
	`
	b := &pgx.Batch{}
	for _, r := range rows {
		b.Queue(query, r.BudgetID, r.Month, r.GroupID, r.CategoryID, r.Actual, r.Target, r.TaxDeductible)
	}
	return s.execBatch(ctx, b)
}

const budgetColumns = `id, team_id, name, created_by, created_at, updated_at`

func scanBudget(row pgx.Row) (*models.Budget, error) {
	var b models.Budget
	err := row.Scan(&b.ID, &b.TeamID, &b.Name, &b.CreatedBy, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

func (s *Store) CreateBudget(ctx context.Context, budget models.Budget) (*models.Budget, error) {
	query := `
		INSERT INTO budgets (team_id, name, created_by)
		VALUES ($1, $2, $3)
		RETURNING ` + budgetColumns
	return scanBudget(s.q.QueryRow(ctx, query, budget.TeamID, budget.Name, budget.CreatedBy))
}

// GetBudget reports another team's budget as not found.
func (s *Store) GetBudget(ctx context.Context, teamID, budgetID string) (*models.Budget, error) {
	query := `SELECT ` + budgetColumns + ` FROM budgets WHERE id = $1 AND team_id = $2`
	return scanBudget(s.q.QueryRow(ctx, query, budgetID, teamID))
}

func (s *Store) ListBudgets(ctx context.Context, teamID string) ([]models.Budget, error) {
	query := `
		SELECT ` + budgetColumns + `
		FROM budgets WHERE team_id = $1
		ORDER BY created_at DESC, id
	`
	rows, err := s.q.Query(ctx, query, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var budgets []models.Budget
	for rows.Next() {
		var b models.Budget
		if err := rows.Scan(&b.ID, &b.TeamID, &b.Name, &b.CreatedBy, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		budgets = append(budgets, b)
	}
	return budgets, rows.Err()
}

func (s *Store) UpdateBudget(ctx context.Context, budget models.Budget) (*models.Budget, error) {
	query := `
		UPDATE budgets
		SET name = $3, updated_at = NOW()
		WHERE id = $1 AND team_id = $2
		RETURNING ` + budgetColumns
	return scanBudget(s.q.QueryRow(ctx, query, budget.ID, budget.TeamID, budget.Name))
}

// DeleteBudget relies on ON DELETE CASCADE for the budget's dependent rows.
func (s *Store) DeleteBudget(ctx context.Context, teamID, budgetID string) error {
	err := requireRow(s.q.Exec(ctx, `DELETE FROM budgets WHERE id = $1 AND team_id = $2`, budgetID, teamID))
	if err == nil {
		s.cache.Invalidate(budgetID)
	}
	return err
}
