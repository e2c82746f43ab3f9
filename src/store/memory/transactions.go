package memory

import (
	"context"

	"github.com/google/uuid"

	"budgee-sync/src/models"
)

func (s *Store) FindTransactionsByExternalIDs(ctx context.Context, externalIDs []string) ([]models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := toSet(externalIDs)
	var out []models.Transaction
	for _, t := range s.transactions {
		if _, ok := want[t.ExternalIDValue()]; ok && !t.IsManual() {
			out = append(out, copyTransaction(t))
		}
	}
	return out, nil
}

func (s *Store) FindTransactionsBySemanticIDs(ctx context.Context, semanticIDs []string) ([]models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := toSet(semanticIDs)
	var out []models.Transaction
	for _, t := range s.transactions {
		if _, ok := want[t.SemanticID]; ok {
			out = append(out, copyTransaction(t))
		}
	}
	return out, nil
}

func (s *Store) ExistingSemanticIDs(ctx context.Context, candidates []string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := toSet(candidates)
	var out []string
	for _, t := range s.transactions {
		if _, ok := want[t.SemanticID]; ok {
			out = append(out, t.SemanticID)
		}
	}
	return out, nil
}

func (s *Store) BulkInsertTransactions(ctx context.Context, txns []models.Transaction) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seenExt := make(map[string]struct{})
	seenSem := make(map[string]struct{})
	for _, t := range s.transactions {
		if !t.IsManual() {
			seenExt[t.ExternalIDValue()] = struct{}{}
		}
		seenSem[t.SemanticID] = struct{}{}
	}
	for _, t := range txns {
		if !t.IsManual() {
			if _, dup := seenExt[t.ExternalIDValue()]; dup {
				return nil, errDuplicate("transactions.external_id", t.ExternalIDValue())
			}
			seenExt[t.ExternalIDValue()] = struct{}{}
		}
		if _, dup := seenSem[t.SemanticID]; dup {
			return nil, errDuplicate("transactions.semantic_id", t.SemanticID)
		}
		seenSem[t.SemanticID] = struct{}{}
	}

	now := s.now()
	ids := make([]string, 0, len(txns))
	for _, t := range txns {
		row := copyTransaction(t)
		row.ID = uuid.NewString()
		row.CreatedAt = now
		row.UpdatedAt = now
		put(s.journal, s.transactions, row.ID, row)
		ids = append(ids, row.ID)
	}
	return ids, nil
}

func (s *Store) UpsertTransactions(ctx context.Context, txns []models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for _, t := range txns {
		row := copyTransaction(t)
		if existing, ok := s.findLocked(row); ok {
			row.ID = existing.ID
			row.SemanticID = existing.SemanticID
			row.CreatedAt = existing.CreatedAt
		} else {
			if row.ID == "" {
				row.ID = uuid.NewString()
			}
			row.CreatedAt = now
		}
		row.UpdatedAt = now
		put(s.journal, s.transactions, row.ID, row)
	}
	return nil
}

func (s *Store) findLocked(t models.Transaction) (models.Transaction, bool) {
	if t.ID != "" {
		if existing, ok := s.transactions[t.ID]; ok {
			return existing, true
		}
	}
	for _, existing := range s.transactions {
		if !t.IsManual() && !existing.IsManual() && existing.ExternalIDValue() == t.ExternalIDValue() {
			return existing, true
		}
		if t.SemanticID != "" && existing.SemanticID == t.SemanticID {
			return existing, true
		}
	}
	return models.Transaction{}, false
}

func (s *Store) RewriteTransactionIdentity(ctx context.Context, oldExternalID string, posted models.Transaction) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.transactions {
		if t.IsManual() || t.ExternalIDValue() != oldExternalID {
			continue
		}
		newExt := posted.ExternalIDValue()
		for otherID, other := range s.transactions {
			if otherID != id && !other.IsManual() && other.ExternalIDValue() == newExt {
				return false, errDuplicate("transactions.external_id", newExt)
			}
		}
		t.ExternalID = &newExt
		t.Status = posted.Status
		t.Date = posted.Date
		t.Amount = posted.Amount
		t.MerchantName = posted.MerchantName
		t.Payee = posted.Payee
		t.Currency = posted.Currency
		if posted.CategoryID != "" {
			t.CategoryID = posted.CategoryID
		}
		if posted.Raw != nil {
			t.Raw = append([]byte(nil), posted.Raw...)
		}
		t.UpdatedAt = s.now()
		put(s.journal, s.transactions, id, t)
		return true, nil
	}
	return false, nil
}

func (s *Store) DeleteTransactionsByExternalIDs(ctx context.Context, externalIDs []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := toSet(externalIDs)
	deleted := 0
	for id, t := range s.transactions {
		if t.IsManual() {
			continue
		}
		if _, ok := want[t.ExternalIDValue()]; !ok {
			continue
		}
		drop(s.journal, s.transactions, id)
		for pid, p := range s.projections {
			if p.TransactionID == id {
				drop(s.journal, s.projections, pid)
			}
		}
		deleted++
	}
	return deleted, nil
}

// ListTransactionsByAccount returns the account's transactions ordered by date then id.
func (s *Store) ListTransactionsByAccount(ctx context.Context, externalAccountID string) ([]models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Transaction
	for _, t := range s.transactions {
		if t.ExternalAccountID == externalAccountID {
			out = append(out, copyTransaction(t))
		}
	}
	sortTransactions(out)
	return out, nil
}
