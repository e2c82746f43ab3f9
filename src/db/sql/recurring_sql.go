package db

import (
	"context"

	"budgee-sync/src/models"
)

func (s *Store) RecurringGroupsContaining(ctx context.Context, transactionIDs []string) ([]models.RecurringTransactionGroup, error) {
	query := `
		SELECT id, semantic_id, transaction_ids, merchant_name, amount, category_id, frequency, pattern, created_at, updated_at
		FROM recurring_transaction_groups
		WHERE transaction_ids && $1::text[]
	`
	rows, err := s.q.Query(ctx, query, transactionIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []models.RecurringTransactionGroup
	for rows.Next() {
		var g models.RecurringTransactionGroup
		err := rows.Scan(&g.ID, &g.SemanticID, &g.TransactionIDs, &g.MerchantName, &g.Amount, &g.CategoryID,
			&g.Frequency, &g.Pattern, &g.CreatedAt, &g.UpdatedAt)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (s *Store) UpsertRecurringGroup(ctx context.Context, group models.RecurringTransactionGroup) error {
	query := `
		INSERT INTO recurring_transaction_groups (id, semantic_id, transaction_ids, merchant_name, amount, category_id, frequency, pattern)
		VALUES (COALESCE(NULLIF($1, ''), gen_random_uuid()::text), $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			semantic_id = EXCLUDED.semantic_id,
			transaction_ids = EXCLUDED.transaction_ids,
			merchant_name = EXCLUDED.merchant_name,
			amount = EXCLUDED.amount,
			category_id = EXCLUDED.category_id,
			frequency = EXCLUDED.frequency,
			pattern = EXCLUDED.pattern,
			updated_at = NOW()
	`
	_, err := s.q.Exec(ctx, query, group.ID, group.SemanticID, nonNil(group.TransactionIDs), group.MerchantName,
		group.Amount, group.CategoryID, group.Frequency, group.Pattern)
	return err
}

func (s *Store) DeleteRecurringGroups(ctx context.Context, ids []string) error {
	_, err := s.q.Exec(ctx, `DELETE FROM recurring_transaction_groups WHERE id = ANY($1)`, ids)
	return err
}
