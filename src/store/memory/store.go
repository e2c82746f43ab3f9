// Package memory is an in-memory implementation of store.Store.
// It is safe for concurrent use. Data is lost on restart; it backs demo mode and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"budgee-sync/src/models"
	"budgee-sync/src/store"
)

// Store holds the data shared by the root store and every transaction opened on it.
type Store struct {
	*data
	// journal is set on transaction-scoped stores and records how to undo each write.
	journal *journal
}

type data struct {
	mu   sync.RWMutex
	txMu sync.Mutex
	now  func() time.Time

	transactions map[string]models.Transaction
	projections  map[string]models.BudgetTransaction
	links        map[string]models.BudgetAccountLink
	budgets      map[string]models.Budget
	recurring    map[string]models.RecurringTransactionGroup
	items        map[string]models.PlaidItem
	accounts     map[string]models.Account
	custom       map[string][]models.CategoryGroup
	rules        map[string]models.TransactionRule
	ruleOrder    map[string][]string
	spending     map[string]models.MonthlyCategorySpend
}

func New() *Store {
	return &Store{data: &data{
		now:          time.Now,
		transactions: make(map[string]models.Transaction),
		projections:  make(map[string]models.BudgetTransaction),
		links:        make(map[string]models.BudgetAccountLink),
		budgets:      make(map[string]models.Budget),
		recurring:    make(map[string]models.RecurringTransactionGroup),
		items:        make(map[string]models.PlaidItem),
		accounts:     make(map[string]models.Account),
		custom:       make(map[string][]models.CategoryGroup),
		rules:        make(map[string]models.TransactionRule),
		ruleOrder:    make(map[string][]string),
		spending:     make(map[string]models.MonthlyCategorySpend),
	}}
}

// SetClock replaces the time source used for created/updated timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// WithTx serializes transactional callers and runs fn against a store that
// journals its writes. If fn fails or panics, only the keys fn wrote are put
// back; writes made meanwhile by non-transactional callers survive. A nested
// call rolls back to its own starting point, like a savepoint.
func (s *Store) WithTx(ctx context.Context, fn func(store.Store) error) error {
	tx := s
	mark := 0
	if s.journal == nil {
		s.txMu.Lock()
		defer s.txMu.Unlock()
		tx = &Store{data: s.data, journal: &journal{}}
	} else {
		s.mu.RLock()
		mark = len(s.journal.undo)
		s.mu.RUnlock()
	}

	committed := false
	defer func() {
		if !committed {
			tx.rollback(mark)
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *Store) rollback(mark int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.journal.undo) - 1; i >= mark; i-- {
		s.journal.undo[i]()
	}
	s.journal.undo = s.journal.undo[:mark]
}

type journal struct {
	undo []func()
}

// put writes m[k] = v, journaling the previous entry. Callers hold mu.
func put[K comparable, V any](j *journal, m map[K]V, k K, v V) {
	remember(j, m, k)
	m[k] = v
}

// drop deletes m[k], journaling the previous entry. Callers hold mu.
func drop[K comparable, V any](j *journal, m map[K]V, k K) {
	remember(j, m, k)
	delete(m, k)
}

func remember[K comparable, V any](j *journal, m map[K]V, k K) {
	if j == nil {
		return
	}
	old, existed := m[k]
	j.undo = append(j.undo, func() {
		if existed {
			m[k] = old
		} else {
			delete(m, k)
		}
	})
}

func copyTransaction(t models.Transaction) models.Transaction {
	c := t
	if t.ExternalID != nil {
		ext := *t.ExternalID
		c.ExternalID = &ext
	}
	if t.Raw != nil {
		c.Raw = append([]byte(nil), t.Raw...)
	}
	return c
}

func copyGroup(g models.RecurringTransactionGroup) models.RecurringTransactionGroup {
	c := g
	c.TransactionIDs = append([]string(nil), g.TransactionIDs...)
	if g.Pattern != nil {
		c.Pattern = append([]byte(nil), g.Pattern...)
	}
	return c
}

func toSet(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}

// Seeding helpers.

func (s *Store) AddItem(item models.PlaidItem) models.PlaidItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = s.now()
	}
	put(s.journal, s.items, item.ID, item)
	return item
}

// AddBudget stores budget as-is, keeping a preset id.
func (s *Store) AddBudget(budget models.Budget) models.Budget {
	s.mu.Lock()
	defer s.mu.Unlock()
	if budget.ID == "" {
		budget.ID = uuid.NewString()
	}
	if budget.CreatedAt.IsZero() {
		budget.CreatedAt = s.now()
		budget.UpdatedAt = budget.CreatedAt
	}
	put(s.journal, s.budgets, budget.ID, budget)
	return budget
}

func (s *Store) AddLink(link models.BudgetAccountLink) models.BudgetAccountLink {
	s.mu.Lock()
	defer s.mu.Unlock()
	if link.ID == "" {
		link.ID = uuid.NewString()
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = s.now()
	}
	put(s.journal, s.links, link.ID, link)
	return link
}

func (s *Store) RemoveLink(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	drop(s.journal, s.links, id)
}

// SetCustomCategories sets the budget's overlay on top of the default category tree.
func (s *Store) SetCustomCategories(budgetID string, groups []models.CategoryGroup) {
	s.mu.Lock()
	defer s.mu.Unlock()
	put(s.journal, s.custom, budgetID, groups)
}

// Transactions returns every stored transaction ordered by date then id.
func (s *Store) Transactions() []models.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Transaction, 0, len(s.transactions))
	for _, t := range s.transactions {
		out = append(out, copyTransaction(t))
	}
	sortTransactions(out)
	return out
}

func sortTransactions(txns []models.Transaction) {
	sort.Slice(txns, func(i, j int) bool {
		if !txns[i].Date.Equal(txns[j].Date) {
			return txns[i].Date.Before(txns[j].Date)
		}
		return txns[i].ID < txns[j].ID
	})
}

func (s *Store) AllBudgetTransactions() []models.BudgetTransaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.BudgetTransaction, 0, len(s.projections))
	for _, p := range s.projections {
		out = append(out, p.Clone())
	}
	sortProjections(out)
	return out
}

func (s *Store) RecurringGroups() []models.RecurringTransactionGroup {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.RecurringTransactionGroup, 0, len(s.recurring))
	for _, g := range s.recurring {
		out = append(out, copyGroup(g))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PutRecurringGroup stores g as-is, keeping its timestamps.
func (s *Store) PutRecurringGroup(g models.RecurringTransactionGroup) {
	s.mu.Lock()
	defer s.mu.Unlock()
	put(s.journal, s.recurring, g.ID, copyGroup(g))
}

func (s *Store) Cursor(itemID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.items[itemID].Cursor
}

func sortProjections(rows []models.BudgetTransaction) {
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].Date.Equal(rows[j].Date) {
			return rows[i].Date.Before(rows[j].Date)
		}
		if rows[i].BudgetID != rows[j].BudgetID {
			return rows[i].BudgetID < rows[j].BudgetID
		}
		return rows[i].ID < rows[j].ID
	})
}

func errDuplicate(kind, key string) error {
	return fmt.Errorf("duplicate key value violates unique constraint on %s: %s", kind, key)
}

var _ store.Store = (*Store)(nil)
