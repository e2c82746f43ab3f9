// Package store declares the persistence capabilities the sync engine consumes.
// Every write is an upsert or a single-row update keyed by a stable identifier,
// so replaying a batch never duplicates rows.
package store

import (
	"context"
	"errors"

	"budgee-sync/src/models"
)

var ErrNotFound = errors.New("not found")

// ErrAccountNotOwned rejects linking an account that is unknown or belongs to another team.
var ErrAccountNotOwned = errors.New("account does not belong to team")

type TransactionStore interface {
	FindTransactionsByExternalIDs(ctx context.Context, externalIDs []string) ([]models.Transaction, error)
	FindTransactionsBySemanticIDs(ctx context.Context, semanticIDs []string) ([]models.Transaction, error)
	// BulkInsertTransactions inserts all rows atomically and returns their ids in submission order.
	BulkInsertTransactions(ctx context.Context, txns []models.Transaction) ([]string, error)
	UpsertTransactions(ctx context.Context, txns []models.Transaction) error
	// RewriteTransactionIdentity moves the row stored under oldExternalID onto the posted
	// event's external id and values. It reports false when no such row exists.
	RewriteTransactionIdentity(ctx context.Context, oldExternalID string, posted models.Transaction) (bool, error)
	DeleteTransactionsByExternalIDs(ctx context.Context, externalIDs []string) (int, error)
	ListTransactionsByAccount(ctx context.Context, externalAccountID string) ([]models.Transaction, error)
}

// SemanticIDChecker answers which candidate semantic ids are already taken.
type SemanticIDChecker interface {
	ExistingSemanticIDs(ctx context.Context, candidates []string) ([]string, error)
}

type ProjectionStore interface {
	FindBudgetTransactions(ctx context.Context, keys []models.ProjectionKey) ([]models.BudgetTransaction, error)
	BulkInsertBudgetTransactions(ctx context.Context, rows []models.BudgetTransaction) ([]string, error)
	UpsertBudgetTransactions(ctx context.Context, rows []models.BudgetTransaction) error
	ListBudgetTransactions(ctx context.Context, budgetID string) ([]models.BudgetTransaction, error)
}

type LinkStore interface {
	LinksForAccounts(ctx context.Context, externalAccountIDs []string) ([]models.BudgetAccountLink, error)
	// ActiveLinkIDs returns the subset of linkIDs that still exist.
	ActiveLinkIDs(ctx context.Context, linkIDs []string) ([]string, error)
}

type RecurringStore interface {
	RecurringGroupsContaining(ctx context.Context, transactionIDs []string) ([]models.RecurringTransactionGroup, error)
	UpsertRecurringGroup(ctx context.Context, group models.RecurringTransactionGroup) error
	DeleteRecurringGroups(ctx context.Context, ids []string) error
}

// BudgetLinkStore manages the budget-account links themselves.
type BudgetLinkStore interface {
	ListLinks(ctx context.Context, budgetID string) ([]models.BudgetAccountLink, error)
	// CreateLink links an account of teamID's connection items to a budget. It is
	// idempotent and returns ErrAccountNotOwned for any other account.
	CreateLink(ctx context.Context, teamID string, link models.BudgetAccountLink) (*models.BudgetAccountLink, error)
	DeleteLink(ctx context.Context, budgetID, linkID string) error
}

// BudgetStore reads and writes team-owned budgets. Lookups are scoped by team,
// so another team's budget reads as ErrNotFound.
type BudgetStore interface {
	CreateBudget(ctx context.Context, budget models.Budget) (*models.Budget, error)
	GetBudget(ctx context.Context, teamID, budgetID string) (*models.Budget, error)
	ListBudgets(ctx context.Context, teamID string) ([]models.Budget, error)
	UpdateBudget(ctx context.Context, budget models.Budget) (*models.Budget, error)
	// DeleteBudget removes the budget with its links, projections, rules, categories and spending.
	DeleteBudget(ctx context.Context, teamID, budgetID string) error
}

type ItemStore interface {
	ItemsForTeam(ctx context.Context, teamID string) ([]models.PlaidItem, error)
	GetItem(ctx context.Context, id string) (*models.PlaidItem, error)
	GetItemByExternalID(ctx context.Context, itemID string) (*models.PlaidItem, error)
	// SaveItem inserts the item, or refreshes the access token of an item with the same provider id.
	SaveItem(ctx context.Context, item models.PlaidItem) (*models.PlaidItem, error)
	UpdateCursor(ctx context.Context, id string, cursor string) error
}

type AccountStore interface {
	SaveAccounts(ctx context.Context, accounts []models.Account) error
	ListAccounts(ctx context.Context, itemID string) ([]models.Account, error)
}

type CategoryStore interface {
	ReadBudgetCategoryConfig(ctx context.Context, budgetID string) (*models.BudgetCategoryConfig, error)
	// SaveCustomCategories replaces the budget's overlay on the default groups.
	SaveCustomCategories(ctx context.Context, budgetID string, groups []models.CategoryGroup) error
}

type RuleStore interface {
	ListRules(ctx context.Context, budgetID string) ([]models.TransactionRule, error)
	GetRule(ctx context.Context, budgetID, ruleID string) (*models.TransactionRule, error)
	CreateRule(ctx context.Context, rule *models.TransactionRule) (*models.TransactionRule, error)
	UpdateRule(ctx context.Context, rule *models.TransactionRule) (*models.TransactionRule, error)
	DeleteRule(ctx context.Context, budgetID, ruleID string) error
	RuleOrder(ctx context.Context, budgetID string) ([]string, error)
	SetRuleOrder(ctx context.Context, budgetID string, ruleIDs []string) error
}

type SpendingStore interface {
	ListMonthlySpending(ctx context.Context, budgetID string, months []string) ([]models.MonthlyCategorySpend, error)
	UpsertMonthlySpending(ctx context.Context, rows []models.MonthlyCategorySpend) error
}

// Store is the full persistence surface. WithTx runs fn against a Store whose
// writes commit together or not at all.
type Store interface {
	TransactionStore
	SemanticIDChecker
	ProjectionStore
	LinkStore
	BudgetLinkStore
	BudgetStore
	RecurringStore
	ItemStore
	AccountStore
	CategoryStore
	RuleStore
	SpendingStore
	WithTx(ctx context.Context, fn func(Store) error) error
}
