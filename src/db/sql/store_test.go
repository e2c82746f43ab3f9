package db

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	conn "budgee-sync/src/db"
	"budgee-sync/src/models"
	"budgee-sync/src/store"
)

// newTestStore connects to TEST_DATABASE_URL and skips when it is unset.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := conn.Connect(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, conn.Migrate(ctx, pool))

	c, err := conn.NewCategoryCache()
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return New(pool, c)
}

func ptr(s string) *string { return &s }

func TestPostgresTransactionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	suffix := uuid.NewString()[:8]
	pendingID := "pending-" + suffix
	postedID := "posted-" + suffix

	ids, err := s.BulkInsertTransactions(ctx, []models.Transaction{{
		SemanticID: "20261015-" + suffix,
		ExternalID: ptr(pendingID),
		Date:       time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC),
		Amount:     decimal.RequireFromString("42.00"),
		Status:     models.StatusPending,
	}})
	require.NoError(t, err)
	require.Len(t, ids, 1)

	ok, err := s.RewriteTransactionIdentity(ctx, pendingID, models.Transaction{
		ExternalID: ptr(postedID),
		Date:       time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC),
		Amount:     decimal.RequireFromString("42.00"),
		Status:     models.StatusPosted,
	})
	require.NoError(t, err)
	require.True(t, ok)

	found, err := s.FindTransactionsByExternalIDs(ctx, []string{pendingID, postedID})
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, ids[0], found[0].ID)
	require.Equal(t, models.StatusPosted, found[0].Status)

	n, err := s.DeleteTransactionsByExternalIDs(ctx, []string{postedID})
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestPostgresWithTxRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	semanticID := "20261015-rollback-" + uuid.NewString()[:8]

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx store.Store) error {
		_, err := tx.BulkInsertTransactions(ctx, []models.Transaction{{
			SemanticID: semanticID,
			Date:       time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC),
			Amount:     decimal.RequireFromString("1.00"),
			Status:     models.StatusPosted,
		}})
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	taken, err := s.ExistingSemanticIDs(ctx, []string{semanticID})
	require.NoError(t, err)
	require.Empty(t, taken)
}

func TestPostgresRuleOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	budget, err := s.CreateBudget(ctx, models.Budget{TeamID: "team-" + uuid.NewString()[:8], Name: "Household"})
	require.NoError(t, err)
	budgetID := budget.ID

	first, err := s.CreateRule(ctx, &models.TransactionRule{BudgetID: budgetID, Name: "first", Active: true})
	require.NoError(t, err)
	second, err := s.CreateRule(ctx, &models.TransactionRule{BudgetID: budgetID, Name: "second", Active: true})
	require.NoError(t, err)

	order, err := s.RuleOrder(ctx, budgetID)
	require.NoError(t, err)
	require.Equal(t, []string{first.ID, second.ID}, order)

	require.NoError(t, s.DeleteRule(ctx, budgetID, first.ID))
	order, err = s.RuleOrder(ctx, budgetID)
	require.NoError(t, err)
	require.Equal(t, []string{second.ID}, order)

	require.ErrorIs(t, s.DeleteRule(ctx, budgetID, first.ID), store.ErrNotFound)
}

func TestPostgresBudgetsAreTeamScoped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	team := "team-" + uuid.NewString()[:8]
	other := "team-" + uuid.NewString()[:8]

	b, err := s.CreateBudget(ctx, models.Budget{TeamID: team, Name: "Household", CreatedBy: "user-1"})
	require.NoError(t, err)

	_, err = s.GetBudget(ctx, other, b.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.UpdateBudget(ctx, models.Budget{ID: b.ID, TeamID: other, Name: "Stolen"})
	require.ErrorIs(t, err, store.ErrNotFound)
	require.ErrorIs(t, s.DeleteBudget(ctx, other, b.ID), store.ErrNotFound)

	renamed, err := s.UpdateBudget(ctx, models.Budget{ID: b.ID, TeamID: team, Name: "Family"})
	require.NoError(t, err)
	require.Equal(t, "Family", renamed.Name)
	require.Equal(t, "user-1", renamed.CreatedBy)

	require.NoError(t, s.DeleteBudget(ctx, team, b.ID))
	_, err = s.GetBudget(ctx, team, b.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestPostgresCreateLinkRequiresOwnedAccount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	suffix := uuid.NewString()[:8]
	team := "team-" + suffix
	other := "other-" + suffix

	item, err := s.SaveItem(ctx, models.PlaidItem{TeamID: other, ItemID: "item-" + suffix, AccessToken: "access"})
	require.NoError(t, err)
	acct := "acct-" + suffix
	require.NoError(t, s.SaveAccounts(ctx, []models.Account{{ItemID: item.ID, ExternalAccountID: acct, Name: "Checking"}}))

	b, err := s.CreateBudget(ctx, models.Budget{TeamID: team, Name: "Household"})
	require.NoError(t, err)

	_, err = s.CreateLink(ctx, team, models.BudgetAccountLink{BudgetID: b.ID, ExternalAccountID: acct})
	require.ErrorIs(t, err, store.ErrAccountNotOwned)
	_, err = s.CreateLink(ctx, team, models.BudgetAccountLink{BudgetID: b.ID, ExternalAccountID: "missing-" + suffix})
	require.ErrorIs(t, err, store.ErrAccountNotOwned)

	own, err := s.CreateBudget(ctx, models.Budget{TeamID: other, Name: "Theirs"})
	require.NoError(t, err)
	link, err := s.CreateLink(ctx, other, models.BudgetAccountLink{BudgetID: own.ID, ExternalAccountID: acct})
	require.NoError(t, err)
	require.Equal(t, acct, link.ExternalAccountID)

	txns, err := s.ListTransactionsByAccount(ctx, acct)
	require.NoError(t, err)
	require.Empty(t, txns)
}
