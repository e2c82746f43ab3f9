package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"budgee-sync/src/models"
	"budgee-sync/src/store"
)

func (s *Store) CreateBudget(ctx context.Context, budget models.Budget) (*models.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if budget.ID == "" {
		budget.ID = uuid.NewString()
	}
	now := s.now()
	budget.CreatedAt = now
	budget.UpdatedAt = now
	put(s.journal, s.budgets, budget.ID, budget)
	return &budget, nil
}

func (s *Store) GetBudget(ctx context.Context, teamID, budgetID string) (*models.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.budgets[budgetID]
	if !ok || b.TeamID != teamID {
		return nil, store.ErrNotFound
	}
	return &b, nil
}

func (s *Store) ListBudgets(ctx context.Context, teamID string) ([]models.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Budget
	for _, b := range s.budgets {
		if b.TeamID == teamID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// UpdateBudget renames the budget. Team and creator never change.
func (s *Store) UpdateBudget(ctx context.Context, budget models.Budget) (*models.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.budgets[budget.ID]
	if !ok || existing.TeamID != budget.TeamID {
		return nil, store.ErrNotFound
	}
	existing.Name = budget.Name
	existing.UpdatedAt = s.now()
	put(s.journal, s.budgets, existing.ID, existing)
	return &existing, nil
}

func (s *Store) DeleteBudget(ctx context.Context, teamID, budgetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.budgets[budgetID]
	if !ok || b.TeamID != teamID {
		return store.ErrNotFound
	}
	drop(s.journal, s.budgets, budgetID)
	for id, l := range s.links {
		if l.BudgetID == budgetID {
			drop(s.journal, s.links, id)
		}
	}
	for id, p := range s.projections {
		if p.BudgetID == budgetID {
			drop(s.journal, s.projections, id)
		}
	}
	for id, r := range s.rules {
		if r.BudgetID == budgetID {
			drop(s.journal, s.rules, id)
		}
	}
	for k, r := range s.spending {
		if r.BudgetID == budgetID {
			drop(s.journal, s.spending, k)
		}
	}
	drop(s.journal, s.ruleOrder, budgetID)
	drop(s.journal, s.custom, budgetID)
	return nil
}
