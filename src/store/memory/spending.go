package memory

import (
	"context"
	"sort"

	"budgee-sync/src/models"
)

func spendKey(r models.MonthlyCategorySpend) string {
	return r.BudgetID + "|" + r.Month + "|" + r.GroupID + "|" + r.CategoryID
}

func (s *Store) ListMonthlySpending(ctx context.Context, budgetID string, months []string) ([]models.MonthlyCategorySpend, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := toSet(months)
	var out []models.MonthlyCategorySpend
	for _, r := range s.spending {
		if r.BudgetID != budgetID {
			continue
		}
		if len(months) > 0 {
			if _, ok := want[r.Month]; !ok {
				continue
			}
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return spendKey(out[i]) < spendKey(out[j]) })
	return out, nil
}

func (s *Store) UpsertMonthlySpending(ctx context.Context, rows []models.MonthlyCategorySpend) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for _, r := range rows {
		r.UpdatedAt = now
		put(s.journal, s.spending, spendKey(r), r)
	}
	return nil
}
