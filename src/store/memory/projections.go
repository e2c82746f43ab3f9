package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"budgee-sync/src/models"
	"budgee-sync/src/store"
)

func (s *Store) FindBudgetTransactions(ctx context.Context, keys []models.ProjectionKey) ([]models.BudgetTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := make(map[models.ProjectionKey]struct{}, len(keys))
	for _, k := range keys {
		want[k] = struct{}{}
	}
	var out []models.BudgetTransaction
	for _, p := range s.projections {
		if _, ok := want[p.Key()]; ok {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

func (s *Store) BulkInsertBudgetTransactions(ctx context.Context, rows []models.BudgetTransaction) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[models.ProjectionKey]struct{}, len(s.projections))
	for _, p := range s.projections {
		seen[p.Key()] = struct{}{}
	}
	for _, r := range rows {
		if _, ok := s.links[r.LinkID]; !ok {
			return nil, fmt.Errorf("insert budget transaction: link %s does not exist", r.LinkID)
		}
		if _, dup := seen[r.Key()]; dup {
			return nil, errDuplicate("budget_transactions(link_id, transaction_id)", r.LinkID+"/"+r.TransactionID)
		}
		seen[r.Key()] = struct{}{}
	}

	now := s.now()
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		row := r.Clone()
		row.ID = uuid.NewString()
		row.CreatedAt = now
		row.UpdatedAt = now
		put(s.journal, s.projections, row.ID, row)
		ids = append(ids, row.ID)
	}
	return ids, nil
}

func (s *Store) UpsertBudgetTransactions(ctx context.Context, rows []models.BudgetTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for _, r := range rows {
		row := r.Clone()
		existingID := ""
		if _, ok := s.projections[row.ID]; ok && row.ID != "" {
			existingID = row.ID
		} else {
			for id, p := range s.projections {
				if p.Key() == row.Key() {
					existingID = id
					break
				}
			}
		}
		if existingID != "" {
			row.ID = existingID
			row.CreatedAt = s.projections[existingID].CreatedAt
		} else {
			if _, ok := s.links[row.LinkID]; !ok {
				return fmt.Errorf("upsert budget transaction: link %s does not exist", row.LinkID)
			}
			row.ID = uuid.NewString()
			row.CreatedAt = now
		}
		row.UpdatedAt = now
		put(s.journal, s.projections, row.ID, row)
	}
	return nil
}

func (s *Store) ListBudgetTransactions(ctx context.Context, budgetID string) ([]models.BudgetTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.BudgetTransaction
	for _, p := range s.projections {
		if p.BudgetID == budgetID {
			out = append(out, p.Clone())
		}
	}
	sortProjections(out)
	return out, nil
}

func (s *Store) LinksForAccounts(ctx context.Context, externalAccountIDs []string) ([]models.BudgetAccountLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := toSet(externalAccountIDs)
	var out []models.BudgetAccountLink
	for _, l := range s.links {
		if _, ok := want[l.ExternalAccountID]; ok {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ActiveLinkIDs(ctx context.Context, linkIDs []string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, id := range linkIDs {
		if _, ok := s.links[id]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *Store) ListLinks(ctx context.Context, budgetID string) ([]models.BudgetAccountLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.BudgetAccountLink
	for _, l := range s.links {
		if l.BudgetID == budgetID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateLink is idempotent on (budget, account).
func (s *Store) CreateLink(ctx context.Context, teamID string, link models.BudgetAccountLink) (*models.BudgetAccountLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ownsAccountLocked(teamID, link.ExternalAccountID) {
		return nil, store.ErrAccountNotOwned
	}
	for _, l := range s.links {
		if l.BudgetID == link.BudgetID && l.ExternalAccountID == link.ExternalAccountID {
			found := l
			return &found, nil
		}
	}
	link.ID = uuid.NewString()
	link.CreatedAt = s.now()
	put(s.journal, s.links, link.ID, link)
	return &link, nil
}

func (s *Store) ownsAccountLocked(teamID, externalAccountID string) bool {
	for _, a := range s.accounts {
		if a.ExternalAccountID == externalAccountID {
			item, ok := s.items[a.ItemID]
			return ok && teamID != "" && item.TeamID == teamID
		}
	}
	return false
}

// DeleteLink removes the link and every projection made through it.
func (s *Store) DeleteLink(ctx context.Context, budgetID, linkID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.links[linkID]
	if !ok || l.BudgetID != budgetID {
		return store.ErrNotFound
	}
	drop(s.journal, s.links, linkID)
	for id, p := range s.projections {
		if p.LinkID == linkID {
			drop(s.journal, s.projections, id)
		}
	}
	return nil
}
