package memory

import (
	"context"

	"github.com/google/uuid"

	"budgee-sync/src/models"
)

func (s *Store) RecurringGroupsContaining(ctx context.Context, transactionIDs []string) ([]models.RecurringTransactionGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := toSet(transactionIDs)
	var out []models.RecurringTransactionGroup
	for _, g := range s.recurring {
		for _, id := range g.TransactionIDs {
			if _, ok := want[id]; ok {
				out = append(out, copyGroup(g))
				break
			}
		}
	}
	return out, nil
}

func (s *Store) UpsertRecurringGroup(ctx context.Context, group models.RecurringTransactionGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	row := copyGroup(group)
	if existing, ok := s.recurring[row.ID]; ok && row.ID != "" {
		row.CreatedAt = existing.CreatedAt
	} else {
		if row.ID == "" {
			row.ID = uuid.NewString()
		}
		row.CreatedAt = now
	}
	row.UpdatedAt = now
	put(s.journal, s.recurring, row.ID, row)
	return nil
}

func (s *Store) DeleteRecurringGroups(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		drop(s.journal, s.recurring, id)
	}
	return nil
}
