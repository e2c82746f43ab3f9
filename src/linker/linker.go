// Package linker decides which budgets see a bank account's transactions.
package linker

import (
	"context"
	"fmt"
	"sort"

	"budgee-sync/src/models"
	"budgee-sync/src/store"
)

// Assignment is the category a projection receives inside one budget.
type Assignment struct {
	GroupID    string
	CategoryID string
}

// Categorizer assigns a category to txn within budgetID.
type Categorizer func(budgetID string, txn models.Transaction) Assignment

type Linker struct {
	links store.LinkStore
}

func New(links store.LinkStore) *Linker {
	return &Linker{links: links}
}

// LinkSet maps an external account id to the links that reference it.
type LinkSet map[string][]models.BudgetAccountLink

// Budgets lists the distinct budget ids across the set, sorted.
func (s LinkSet) Budgets() []string {
	seen := make(map[string]struct{})
	for _, links := range s {
		for _, l := range links {
			seen[l.BudgetID] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Resolve loads the links for every account in accountIDs. Accounts with no
// links are absent from the result.
func (l *Linker) Resolve(ctx context.Context, accountIDs []string) (LinkSet, error) {
	links, err := l.links.LinksForAccounts(ctx, dedupe(accountIDs))
	if err != nil {
		return nil, fmt.Errorf("load budget account links: %w", err)
	}
	set := make(LinkSet)
	for _, link := range links {
		set[link.ExternalAccountID] = append(set[link.ExternalAccountID], link)
	}
	return set, nil
}

// Project fans txn out into one BudgetTransaction per link. An unlinked
// transaction yields no projections and stays a plain Transaction.
func Project(txn models.Transaction, links []models.BudgetAccountLink, categorize Categorizer) []models.BudgetTransaction {
	if len(links) == 0 {
		return nil
	}
	out := make([]models.BudgetTransaction, 0, len(links))
	for _, link := range links {
		a := categorize(link.BudgetID, txn)
		out = append(out, models.BudgetTransaction{
			BudgetID:        link.BudgetID,
			LinkID:          link.ID,
			TransactionID:   txn.ID,
			SemanticID:      txn.SemanticID,
			Date:            txn.Date,
			Amount:          txn.Amount,
			Status:          txn.Status,
			MerchantName:    txn.Counterparty(),
			CategoryGroupID: a.GroupID,
			CategoryID:      a.CategoryID,
		})
	}
	return out
}

// Prune drops projections whose link no longer exists, which happens when an
// account is unlinked between fetch and persist. It returns the surviving rows
// and the number dropped.
func Prune(ctx context.Context, links store.LinkStore, rows []models.BudgetTransaction) ([]models.BudgetTransaction, int, error) {
	if len(rows) == 0 {
		return rows, 0, nil
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.LinkID)
	}
	active, err := links.ActiveLinkIDs(ctx, dedupe(ids))
	if err != nil {
		return nil, 0, fmt.Errorf("check active links: %w", err)
	}
	alive := make(map[string]struct{}, len(active))
	for _, id := range active {
		alive[id] = struct{}{}
	}
	kept := make([]models.BudgetTransaction, 0, len(rows))
	for _, r := range rows {
		if _, ok := alive[r.LinkID]; ok {
			kept = append(kept, r)
		}
	}
	return kept, len(rows) - len(kept), nil
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok || v == "" {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
