package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"budgee-sync/src/categories"
	"budgee-sync/src/models"
	"budgee-sync/src/store"
)

func (s *Store) ItemsForTeam(ctx context.Context, teamID string) ([]models.PlaidItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.PlaidItem
	for _, item := range s.items {
		if item.TeamID == teamID {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetItem(ctx context.Context, id string) (*models.PlaidItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &item, nil
}

func (s *Store) GetItemByExternalID(ctx context.Context, itemID string) (*models.PlaidItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, item := range s.items {
		if item.ItemID == itemID {
			found := item
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) UpdateCursor(ctx context.Context, id string, cursor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return store.ErrNotFound
	}
	item.Cursor = cursor
	put(s.journal, s.items, id, item)
	return nil
}

func (s *Store) ReadBudgetCategoryConfig(ctx context.Context, budgetID string) (*models.BudgetCategoryConfig, error) {
	s.mu.RLock()
	custom := s.custom[budgetID]
	s.mu.RUnlock()
	return &models.BudgetCategoryConfig{
		BudgetID: budgetID,
		Groups:   categories.Overlay(categories.DefaultGroups(), custom),
	}, nil
}

func (s *Store) SaveItem(ctx context.Context, item models.PlaidItem) (*models.PlaidItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.items {
		if existing.ItemID == item.ItemID && item.ItemID != "" {
			existing.AccessToken = item.AccessToken
			existing.TeamID = item.TeamID
			put(s.journal, s.items, id, existing)
			saved := existing
			return &saved, nil
		}
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	item.CreatedAt = s.now()
	put(s.journal, s.items, item.ID, item)
	return &item, nil
}

func (s *Store) SaveAccounts(ctx context.Context, accounts []models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byExternal := make(map[string]string, len(s.accounts))
	for id, a := range s.accounts {
		byExternal[a.ExternalAccountID] = id
	}
	now := s.now()
	for _, a := range accounts {
		if id, ok := byExternal[a.ExternalAccountID]; ok {
			a.ID = id
			a.CreatedAt = s.accounts[id].CreatedAt
		} else {
			if a.ID == "" {
				a.ID = uuid.NewString()
			}
			a.CreatedAt = now
			byExternal[a.ExternalAccountID] = a.ID
		}
		put(s.journal, s.accounts, a.ID, a)
	}
	return nil
}

func (s *Store) ListAccounts(ctx context.Context, itemID string) ([]models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Account
	for _, a := range s.accounts {
		if a.ItemID == itemID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalAccountID < out[j].ExternalAccountID })
	return out, nil
}

func (s *Store) SaveCustomCategories(ctx context.Context, budgetID string, groups []models.CategoryGroup) error {
	s.SetCustomCategories(budgetID, groups)
	return nil
}
