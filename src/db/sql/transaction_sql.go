package db

import (
	"context"

	"github.com/jackc/pgx/v5"

	"budgee-sync/src/models"
)

const transactionColumns = `id, semantic_id, external_id, account_id, date, amount, status, merchant_name, payee, currency, category_id, raw, created_at, updated_at`

func scanTransactions(rows pgx.Rows) ([]models.Transaction, error) {
	defer rows.Close()
	var txns []models.Transaction
	for rows.Next() {
		var t models.Transaction
		err := rows.Scan(&t.ID, &t.SemanticID, &t.ExternalID, &t.ExternalAccountID, &t.Date, &t.Amount, &t.Status,
			&t.MerchantName, &t.Payee, &t.Currency, &t.CategoryID, &t.Raw, &t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

func (s *Store) FindTransactionsByExternalIDs(ctx context.Context, externalIDs []string) ([]models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE external_id = ANY($1)`
	rows, err := s.q.Query(ctx, query, externalIDs)
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows)
}

func (s *Store) ListTransactionsByAccount(ctx context.Context, externalAccountID string) ([]models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE account_id = $1 ORDER BY date, id`
	rows, err := s.q.Query(ctx, query, externalAccountID)
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows)
}

func (s *Store) FindTransactionsBySemanticIDs(ctx context.Context, semanticIDs []string) ([]models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE semantic_id = ANY($1)`
	rows, err := s.q.Query(ctx, query, semanticIDs)
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows)
}

func (s *Store) ExistingSemanticIDs(ctx context.Context, candidates []string) ([]string, error) {
	rows, err := s.q.Query(ctx, `SELECT semantic_id FROM transactions WHERE semantic_id = ANY($1)`, candidates)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// BulkInsertTransactions sends every insert in one batch, which Postgres runs as a single implicit transaction.
func (s *Store) BulkInsertTransactions(ctx context.Context, txns []models.Transaction) ([]string, error) {
	query := `
		INSERT INTO transactions (semantic_id, external_id, account_id, date, amount, status, merchant_name, payee, currency, category_id, raw)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`
	b := &pgx.Batch{}
	for _, t := range txns {
		b.Queue(query, t.SemanticID, t.ExternalIDValue(), t.ExternalAccountID, t.Date, t.Amount, t.Status,
			t.MerchantName, t.Payee, t.Currency, t.CategoryID, t.Raw)
	}
	return s.batchIDs(ctx, b)
}

// UpsertTransactions updates rows by id, and inserts rows without one keyed on semantic id.
// Semantic id and created_at are never overwritten.
func (s *Store) UpsertTransactions(ctx context.Context, txns []models.Transaction) error {
	update := `
		UPDATE transactions
		SET external_id = NULLIF($2, ''), account_id = $3, date = $4, amount = $5, status = $6,
			merchant_name = $7, payee = $8, currency = $9, category_id = $10, raw = $11, updated_at = NOW()
		WHERE id = $1
	`
	insert := `
		INSERT INTO transactions (semantic_id, external_id, account_id, date, amount, status, merchant_name, payee, currency, category_id, raw)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (semantic_id) DO UPDATE SET
			external_id = EXCLUDED.external_id,
			account_id = EXCLUDED.account_id,
			date = EXCLUDED.date,
			amount = EXCLUDED.amount,
			status = EXCLUDED.status,
			merchant_name = EXCLUDED.merchant_name,
			payee = EXCLUDED.payee,
			currency = EXCLUDED.currency,
			category_id = EXCLUDED.category_id,
			raw = EXCLUDED.raw,
			updated_at = NOW()
	`
	b := &pgx.Batch{}
	for _, t := range txns {
		if t.ID != "" {
			b.Queue(update, t.ID, t.ExternalIDValue(), t.ExternalAccountID, t.Date, t.Amount, t.Status,
				t.MerchantName, t.Payee, t.Currency, t.CategoryID, t.Raw)
			continue
		}
		b.Queue(insert, t.SemanticID, t.ExternalIDValue(), t.ExternalAccountID, t.Date, t.Amount, t.Status,
			t.MerchantName, t.Payee, t.Currency, t.CategoryID, t.Raw)
	}
	return s.execBatch(ctx, b)
}

func (s *Store) RewriteTransactionIdentity(ctx context.Context, oldExternalID string, posted models.Transaction) (bool, error) {
	query := `
		UPDATE transactions
		SET external_id = $2, status = $3, date = $4, amount = $5, merchant_name = $6, payee = $7, currency = $8,
			category_id = COALESCE(NULLIF($9, ''), category_id),
			raw = COALESCE($10, raw),
			updated_at = NOW()
		WHERE external_id = $1
	`
	tag, err := s.q.Exec(ctx, query, oldExternalID, posted.ExternalIDValue(), posted.Status, posted.Date, posted.Amount,
		posted.MerchantName, posted.Payee, posted.Currency, posted.CategoryID, posted.Raw)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteTransactionsByExternalIDs also removes the rows' projections through the foreign key cascade.
func (s *Store) DeleteTransactionsByExternalIDs(ctx context.Context, externalIDs []string) (int, error) {
	tag, err := s.q.Exec(ctx, `DELETE FROM transactions WHERE external_id = ANY($1)`, externalIDs)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
