package db

import (
	"context"

	"github.com/jackc/pgx/v5"

	"budgee-sync/src/models"
)

func (s *Store) ItemsForTeam(ctx context.Context, teamID string) ([]models.PlaidItem, error) {
	query := `SELECT id, team_id, item_id, access_token, sync_cursor, created_at FROM plaid_items WHERE team_id = $1 ORDER BY id`

	rows, err := s.q.Query(ctx, query, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.PlaidItem
	for rows.Next() {
		var item models.PlaidItem
		err := rows.Scan(&item.ID, &item.TeamID, &item.ItemID, &item.AccessToken, &item.Cursor, &item.CreatedAt)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

func (s *Store) getItem(ctx context.Context, where string, arg string) (*models.PlaidItem, error) {
	query := `SELECT id, team_id, item_id, access_token, sync_cursor, created_at FROM plaid_items WHERE ` + where + ` = $1`
	var item models.PlaidItem
	err := s.q.QueryRow(ctx, query, arg).
		Scan(&item.ID, &item.TeamID, &item.ItemID, &item.AccessToken, &item.Cursor, &item.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &item, nil
}

func (s *Store) GetItem(ctx context.Context, id string) (*models.PlaidItem, error) {
	return s.getItem(ctx, "id", id)
}

func (s *Store) GetItemByExternalID(ctx context.Context, itemID string) (*models.PlaidItem, error) {
	return s.getItem(ctx, "item_id", itemID)
}

func (s *Store) SaveItem(ctx context.Context, item models.PlaidItem) (*models.PlaidItem, error) {
	query := `
		INSERT INTO plaid_items (team_id, item_id, access_token)
		VALUES ($1, $2, $3)
		ON CONFLICT (item_id) DO UPDATE SET team_id = EXCLUDED.team_id, access_token = EXCLUDED.access_token
		RETURNING id, team_id, item_id, access_token, sync_cursor, created_at
	`
	var saved models.PlaidItem
	err := s.q.QueryRow(ctx, query, item.TeamID, item.ItemID, item.AccessToken).
		Scan(&saved.ID, &saved.TeamID, &saved.ItemID, &saved.AccessToken, &saved.Cursor, &saved.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

func (s *Store) UpdateCursor(ctx context.Context, id string, cursor string) error {
	return requireRow(s.q.Exec(ctx, `UPDATE plaid_items SET sync_cursor = $1 WHERE id = $2`, cursor, id))
}

func (s *Store) SaveAccounts(ctx context.Context, accounts []models.Account) error {
	query := `
		INSERT INTO accounts (item_id, account_id, name, mask, type, subtype)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (account_id) DO UPDATE SET
			name = EXCLUDED.name,
			mask = EXCLUDED.mask,
			type = EXCLUDED.type,
			subtype = EXCLUDED.subtype
	`
	b := &pgx.Batch{}
	for _, acc := range accounts {
		b.Queue(query, acc.ItemID, acc.ExternalAccountID, acc.Name, acc.Mask, acc.Type, acc.Subtype)
	}
	return s.execBatch(ctx, b)
}

func (s *Store) ListAccounts(ctx context.Context, itemID string) ([]models.Account, error) {
	query := `
		SELECT id, item_id, account_id, name, mask, type, subtype, created_at
		FROM accounts
		WHERE item_id = $1
		ORDER BY account_id
	`
	rows, err := s.q.Query(ctx, query, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		var a models.Account
		err := rows.Scan(&a.ID, &a.ItemID, &a.ExternalAccountID, &a.Name, &a.Mask, &a.Type, &a.Subtype, &a.CreatedAt)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}
