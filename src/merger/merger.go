// Package merger writes transactions, budget projections and recurring groups
// to the store, splitting each batch into true inserts and updates.
package merger

import (
	"context"
	"fmt"

	"budgee-sync/src/ids"
	"budgee-sync/src/linker"
	"budgee-sync/src/models"
	"budgee-sync/src/recurring"
	"budgee-sync/src/store"
)

// RowCountError reports a bulk insert that returned a different number of ids
// than rows submitted. Sample identifies the first submitted row.
type RowCountError struct {
	Table     string
	Submitted int
	Returned  int
	Sample    string
}

func (e *RowCountError) Error() string {
	return fmt.Sprintf("bulk insert into %s returned %d ids for %d rows (first row %s)", e.Table, e.Returned, e.Submitted, e.Sample)
}

// PrepareFunc adjusts a budget's freshly projected rows before they are inserted.
type PrepareFunc func(ctx context.Context, st store.Store, budgetID string, rows []models.BudgetTransaction) ([]models.BudgetTransaction, error)

type Merger struct {
	ids *ids.Generator
}

func New(gen *ids.Generator) *Merger {
	return &Merger{ids: gen}
}

type TransactionResult struct {
	Inserted []models.Transaction
	Updated  []models.Transaction
}

// MergeTransactions matches each candidate against the store on external id,
// or on semantic id for manual entries. Matches keep their stored id and
// semantic id and are upserted; the rest get a fresh semantic id and go through
// a single bulk insert. A later candidate with the same key replaces an earlier one.
func (m *Merger) MergeTransactions(ctx context.Context, st store.TransactionStore, txns []models.Transaction) (*TransactionResult, error) {
	res := &TransactionResult{}
	if len(txns) == 0 {
		return res, nil
	}
	txns = dedupeTransactions(txns)

	var externalIDs, semanticIDs []string
	for _, t := range txns {
		if t.IsManual() {
			if t.SemanticID != "" {
				semanticIDs = append(semanticIDs, t.SemanticID)
			}
			continue
		}
		externalIDs = append(externalIDs, t.ExternalIDValue())
	}

	byExternal := make(map[string]models.Transaction)
	if len(externalIDs) > 0 {
		found, err := st.FindTransactionsByExternalIDs(ctx, externalIDs)
		if err != nil {
			return nil, fmt.Errorf("find transactions by external id: %w", err)
		}
		for _, t := range found {
			byExternal[t.ExternalIDValue()] = t
		}
	}
	bySemantic := make(map[string]models.Transaction)
	if len(semanticIDs) > 0 {
		found, err := st.FindTransactionsBySemanticIDs(ctx, semanticIDs)
		if err != nil {
			return nil, fmt.Errorf("find transactions by semantic id: %w", err)
		}
		for _, t := range found {
			bySemantic[t.SemanticID] = t
		}
	}

	var inserts []models.Transaction
	for _, t := range txns {
		var existing models.Transaction
		var ok bool
		if t.IsManual() {
			existing, ok = bySemantic[t.SemanticID]
		} else {
			existing, ok = byExternal[t.ExternalIDValue()]
		}
		if !ok {
			inserts = append(inserts, t)
			continue
		}
		t.ID = existing.ID
		t.SemanticID = existing.SemanticID
		t.CreatedAt = existing.CreatedAt
		res.Updated = append(res.Updated, t)
	}

	if len(inserts) > 0 {
		if err := m.assignSemanticIDs(ctx, inserts); err != nil {
			return nil, err
		}
		rowIDs, err := st.BulkInsertTransactions(ctx, inserts)
		if err != nil {
			return nil, fmt.Errorf("bulk insert transactions: %w", err)
		}
		if len(rowIDs) != len(inserts) {
			return nil, &RowCountError{
				Table:     "transactions",
				Submitted: len(inserts),
				Returned:  len(rowIDs),
				Sample:    sampleTransaction(inserts[0]),
			}
		}
		for i := range inserts {
			inserts[i].ID = rowIDs[i]
		}
		res.Inserted = inserts
	}

	if len(res.Updated) > 0 {
		if err := st.UpsertTransactions(ctx, res.Updated); err != nil {
			return nil, fmt.Errorf("upsert transactions: %w", err)
		}
	}
	return res, nil
}

func (m *Merger) assignSemanticIDs(ctx context.Context, txns []models.Transaction) error {
	var seeds []ids.Seed
	var idx []int
	for i, t := range txns {
		if t.SemanticID != "" {
			continue
		}
		seeds = append(seeds, ids.Seed{Date: t.Date, ExternalID: t.ExternalIDValue(), MerchantName: t.Counterparty()})
		idx = append(idx, i)
	}
	if len(seeds) == 0 {
		return nil
	}
	generated, err := m.ids.Generate(ctx, seeds)
	if err != nil {
		return fmt.Errorf("generate semantic ids: %w", err)
	}
	for j, i := range idx {
		txns[i].SemanticID = generated[j]
	}
	return nil
}

type ProjectionResult struct {
	Inserted []models.BudgetTransaction
	Updated  []models.BudgetTransaction
	// Dropped counts rows whose budget-account link vanished before the write.
	Dropped int
}

// MergeBudgetTransactions writes projections keyed on (link, transaction).
// Rows for links that no longer exist are dropped. New rows pass through
// prepare, grouped by budget, before the bulk insert. Existing rows take the
// ledger fields from the candidate and keep the budget-owned ones (category,
// merchant name, tags, notes, attachments).
func (m *Merger) MergeBudgetTransactions(ctx context.Context, st store.Store, rows []models.BudgetTransaction, prepare PrepareFunc) (*ProjectionResult, error) {
	res := &ProjectionResult{}
	if len(rows) == 0 {
		return res, nil
	}
	kept, dropped, err := linker.Prune(ctx, st, rows)
	if err != nil {
		return nil, err
	}
	res.Dropped = dropped
	if len(kept) == 0 {
		return res, nil
	}

	keys := make([]models.ProjectionKey, 0, len(kept))
	for _, r := range kept {
		keys = append(keys, r.Key())
	}
	found, err := st.FindBudgetTransactions(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("find budget transactions: %w", err)
	}
	existing := make(map[models.ProjectionKey]models.BudgetTransaction, len(found))
	for _, r := range found {
		existing[r.Key()] = r
	}

	newByBudget := make(map[string][]models.BudgetTransaction)
	var budgets []string
	seen := make(map[models.ProjectionKey]int)
	for _, r := range kept {
		if old, ok := existing[r.Key()]; ok {
			merged := old.Clone()
			merged.SemanticID = r.SemanticID
			merged.Date = r.Date
			merged.Amount = r.Amount
			merged.Status = r.Status
			if i, dup := seen[r.Key()]; dup {
				res.Updated[i] = merged
				continue
			}
			seen[r.Key()] = len(res.Updated)
			res.Updated = append(res.Updated, merged)
			continue
		}
		if _, dup := seen[r.Key()]; dup {
			continue
		}
		seen[r.Key()] = -1
		if _, ok := newByBudget[r.BudgetID]; !ok {
			budgets = append(budgets, r.BudgetID)
		}
		newByBudget[r.BudgetID] = append(newByBudget[r.BudgetID], r)
	}

	var inserts []models.BudgetTransaction
	for _, budgetID := range budgets {
		batch := newByBudget[budgetID]
		if prepare != nil {
			batch, err = prepare(ctx, st, budgetID, batch)
			if err != nil {
				return nil, fmt.Errorf("prepare budget %s: %w", budgetID, err)
			}
		}
		inserts = append(inserts, batch...)
	}

	if len(inserts) > 0 {
		rowIDs, err := st.BulkInsertBudgetTransactions(ctx, inserts)
		if err != nil {
			return nil, fmt.Errorf("bulk insert budget transactions: %w", err)
		}
		if len(rowIDs) != len(inserts) {
			return nil, &RowCountError{
				Table:     "budget_transactions",
				Submitted: len(inserts),
				Returned:  len(rowIDs),
				Sample:    inserts[0].LinkID + "/" + inserts[0].TransactionID,
			}
		}
		for i := range inserts {
			inserts[i].ID = rowIDs[i]
		}
		res.Inserted = inserts
	}

	if len(res.Updated) > 0 {
		if err := st.UpsertBudgetTransactions(ctx, res.Updated); err != nil {
			return nil, fmt.Errorf("upsert budget transactions: %w", err)
		}
	}
	return res, nil
}

// ApplyRecurring writes a recurrence plan: merged and new groups first, then
// the duplicates they absorbed.
func (m *Merger) ApplyRecurring(ctx context.Context, st store.RecurringStore, plan recurring.Plan) error {
	for _, g := range plan.Upserts {
		if err := st.UpsertRecurringGroup(ctx, g); err != nil {
			return fmt.Errorf("upsert recurring group %s: %w", g.ID, err)
		}
	}
	if len(plan.Deletes) > 0 {
		if err := st.DeleteRecurringGroups(ctx, plan.Deletes); err != nil {
			return fmt.Errorf("delete recurring groups: %w", err)
		}
	}
	return nil
}

func dedupeTransactions(txns []models.Transaction) []models.Transaction {
	pos := make(map[string]int, len(txns))
	out := make([]models.Transaction, 0, len(txns))
	for _, t := range txns {
		key := "ext:" + t.ExternalIDValue()
		if t.IsManual() {
			if t.SemanticID == "" {
				out = append(out, t)
				continue
			}
			key = "sem:" + t.SemanticID
		}
		if i, ok := pos[key]; ok {
			out[i] = t
			continue
		}
		pos[key] = len(out)
		out = append(out, t)
	}
	return out
}

func sampleTransaction(t models.Transaction) string {
	if !t.IsManual() {
		return "external_id=" + t.ExternalIDValue()
	}
	return "semantic_id=" + t.SemanticID
}
