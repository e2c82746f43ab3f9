package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"budgee-sync/src/models"
	"budgee-sync/src/store"
)

const budgetTransactionColumns = `id, budget_id, link_id, transaction_id, semantic_id, date, amount, status, merchant_name,
	category_group_id, category_id, tags, notes, attachment_refs, created_at, updated_at`

func scanBudgetTransactions(rows pgx.Rows) ([]models.BudgetTransaction, error) {
	defer rows.Close()
	var out []models.BudgetTransaction
	for rows.Next() {
		var b models.BudgetTransaction
		err := rows.Scan(&b.ID, &b.BudgetID, &b.LinkID, &b.TransactionID, &b.SemanticID, &b.Date, &b.Amount, &b.Status,
			&b.MerchantName, &b.CategoryGroupID, &b.CategoryID, &b.Tags, &b.Notes, &b.AttachmentRefs, &b.CreatedAt, &b.UpdatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func (s *Store) FindBudgetTransactions(ctx context.Context, keys []models.ProjectionKey) ([]models.BudgetTransaction, error) {
	links := make([]string, len(keys))
	txns := make([]string, len(keys))
	for i, k := range keys {
		links[i] = k.LinkID
		txns[i] = k.TransactionID
	}
	query := `
		SELECT ` + budgetTransactionColumns + `
		FROM budget_transactions
		WHERE (link_id, transaction_id) IN (SELECT * FROM unnest($1::text[], $2::text[]))
	`
	rows, err := s.q.Query(ctx, query, links, txns)
	if err != nil {
		return nil, err
	}
	return scanBudgetTransactions(rows)
}

func (s *Store) BulkInsertBudgetTransactions(ctx context.Context, rows []models.BudgetTransaction) ([]string, error) {
	query := `
		INSERT INTO budget_transactions (budget_id, link_id, transaction_id, semantic_id, date, amount, status, merchant_name,
			category_group_id, category_id, tags, notes, attachment_refs)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`
	b := &pgx.Batch{}
	for _, r := range rows {
		b.Queue(query, r.BudgetID, r.LinkID, r.TransactionID, r.SemanticID, r.Date, r.Amount, r.Status, r.MerchantName,
			r.CategoryGroupID, r.CategoryID, nonNil(r.Tags), r.Notes, nonNil(r.AttachmentRefs))
	}
	return s.batchIDs(ctx, b)
}

func (s *Store) UpsertBudgetTransactions(ctx context.Context, rows []models.BudgetTransaction) error {
	query := `
		INSERT INTO budget_transactions (budget_id, link_id, transaction_id, semantic_id, date, amount, status, merchant_name,
			category_group_id, category_id, tags, notes, attachment_refs)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (link_id, transaction_id) DO UPDATE SET
			semantic_id = EXCLUDED.semantic_id,
			date = EXCLUDED.date,
			amount = EXCLUDED.amount,
			status = EXCLUDED.status,
			merchant_name = EXCLUDED.merchant_name,
			category_group_id = EXCLUDED.category_group_id,
			category_id = EXCLUDED.category_id,
			tags = EXCLUDED.tags,
			notes = EXCLUDED.notes,
			attachment_refs = EXCLUDED.attachment_refs,
			updated_at = NOW()
	`
	b := &pgx.Batch{}
	for _, r := range rows {
		b.Queue(query, r.BudgetID, r.LinkID, r.TransactionID, r.SemanticID, r.Date, r.Amount, r.Status, r.MerchantName,
			r.CategoryGroupID, r.CategoryID, nonNil(r.Tags), r.Notes, nonNil(r.AttachmentRefs))
	}
	return s.execBatch(ctx, b)
}

func (s *Store) ListBudgetTransactions(ctx context.Context, budgetID string) ([]models.BudgetTransaction, error) {
	query := `SELECT ` + budgetTransactionColumns + ` FROM budget_transactions WHERE budget_id = $1 ORDER BY date, id`
	rows, err := s.q.Query(ctx, query, budgetID)
	if err != nil {
		return nil, err
	}
	return scanBudgetTransactions(rows)
}

func scanLinks(rows pgx.Rows) ([]models.BudgetAccountLink, error) {
	defer rows.Close()
	var links []models.BudgetAccountLink
	for rows.Next() {
		var l models.BudgetAccountLink
		if err := rows.Scan(&l.ID, &l.BudgetID, &l.ExternalAccountID, &l.CreatedAt); err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

func (s *Store) LinksForAccounts(ctx context.Context, externalAccountIDs []string) ([]models.BudgetAccountLink, error) {
	query := `SELECT id, budget_id, account_id, created_at FROM budget_account_links WHERE account_id = ANY($1) ORDER BY id`
	rows, err := s.q.Query(ctx, query, externalAccountIDs)
	if err != nil {
		return nil, err
	}
	return scanLinks(rows)
}

// ActiveLinkIDs locks the surviving links so they cannot be removed before the caller commits.
func (s *Store) ActiveLinkIDs(ctx context.Context, linkIDs []string) ([]string, error) {
	rows, err := s.q.Query(ctx, `SELECT id FROM budget_account_links WHERE id = ANY($1) FOR SHARE`, linkIDs)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *Store) ListLinks(ctx context.Context, budgetID string) ([]models.BudgetAccountLink, error) {
	query := `SELECT id, budget_id, account_id, created_at FROM budget_account_links WHERE budget_id = $1 ORDER BY id`
	rows, err := s.q.Query(ctx, query, budgetID)
	if err != nil {
		return nil, err
	}
	return scanLinks(rows)
}

// CreateLink only inserts accounts of the team's own connection items.
func (s *Store) CreateLink(ctx context.Context, teamID string, link models.BudgetAccountLink) (*models.BudgetAccountLink, error) {
	query := `
		INSERT INTO budget_account_links (budget_id, account_id)
		SELECT $1, a.account_id
		FROM accounts a
		JOIN plaid_items p ON p.id = a.item_id
		WHERE a.account_id = $2 AND p.team_id = $3
		ON CONFLICT (budget_id, account_id) DO UPDATE SET budget_id = EXCLUDED.budget_id
		RETURNING id, budget_id, account_id, created_at
	`
	var l models.BudgetAccountLink
	err := s.q.QueryRow(ctx, query, link.BudgetID, link.ExternalAccountID, teamID).
		Scan(&l.ID, &l.BudgetID, &l.ExternalAccountID, &l.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrAccountNotOwned
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *Store) DeleteLink(ctx context.Context, budgetID, linkID string) error {
	return requireRow(s.q.Exec(ctx, `DELETE FROM budget_account_links WHERE id = $1 AND budget_id = $2`, linkID, budgetID))
}
