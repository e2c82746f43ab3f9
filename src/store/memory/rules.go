package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"budgee-sync/src/models"
	"budgee-sync/src/store"
)

func (s *Store) ListRules(ctx context.Context, budgetID string) ([]models.TransactionRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.TransactionRule
	for _, r := range s.rules {
		if r.BudgetID == budgetID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) GetRule(ctx context.Context, budgetID, ruleID string) (*models.TransactionRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rules[ruleID]
	if !ok || r.BudgetID != budgetID {
		return nil, store.ErrNotFound
	}
	return &r, nil
}

func (s *Store) CreateRule(ctx context.Context, rule *models.TransactionRule) (*models.TransactionRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := *rule
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := s.now()
	r.CreatedAt = now
	r.UpdatedAt = now
	put(s.journal, s.rules, r.ID, r)
	put(s.journal, s.ruleOrder, r.BudgetID, append(s.ruleOrder[r.BudgetID], r.ID))
	return &r, nil
}

func (s *Store) UpdateRule(ctx context.Context, rule *models.TransactionRule) (*models.TransactionRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.rules[rule.ID]
	if !ok || existing.BudgetID != rule.BudgetID {
		return nil, store.ErrNotFound
	}
	r := *rule
	r.CreatedAt = existing.CreatedAt
	r.UpdatedAt = s.now()
	put(s.journal, s.rules, r.ID, r)
	return &r, nil
}

func (s *Store) DeleteRule(ctx context.Context, budgetID, ruleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[ruleID]
	if !ok || r.BudgetID != budgetID {
		return store.ErrNotFound
	}
	drop(s.journal, s.rules, ruleID)
	order := s.ruleOrder[budgetID][:0:0]
	for _, id := range s.ruleOrder[budgetID] {
		if id != ruleID {
			order = append(order, id)
		}
	}
	put(s.journal, s.ruleOrder, budgetID, order)
	return nil
}

func (s *Store) RuleOrder(ctx context.Context, budgetID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.ruleOrder[budgetID]...), nil
}

func (s *Store) SetRuleOrder(ctx context.Context, budgetID string, ruleIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	put(s.journal, s.ruleOrder, budgetID, append([]string(nil), ruleIDs...))
	return nil
}
