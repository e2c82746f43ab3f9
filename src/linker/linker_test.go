package linker

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"budgee-sync/src/models"
	"budgee-sync/src/store/memory"
)

func fixedCategory(budgetID string, txn models.Transaction) Assignment {
	return Assignment{GroupID: "grp_" + budgetID, CategoryID: "cat_" + budgetID}
}

func TestResolveAndProjectFanOut(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	a := st.AddLink(models.BudgetAccountLink{BudgetID: "budget-a", ExternalAccountID: "acc-1"})
	b := st.AddLink(models.BudgetAccountLink{BudgetID: "budget-b", ExternalAccountID: "acc-1"})
	st.AddLink(models.BudgetAccountLink{BudgetID: "budget-c", ExternalAccountID: "acc-2"})

	set, err := New(st).Resolve(ctx, []string{"acc-1", "acc-1", "acc-9"})
	require.NoError(t, err)
	require.Len(t, set["acc-1"], 2)
	require.Empty(t, set["acc-9"])
	require.Equal(t, []string{"budget-a", "budget-b"}, set.Budgets())

	txn := models.Transaction{
		ID:                "txn-1",
		SemanticID:        "20261015-t1-abcdef",
		ExternalAccountID: "acc-1",
		Date:              time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC),
		Amount:            decimal.RequireFromString("12.50"),
		Status:            models.StatusPosted,
		Payee:             "Corner Cafe",
	}
	rows := Project(txn, set["acc-1"], fixedCategory)
	require.Len(t, rows, 2)

	budgets := map[string]string{}
	for _, r := range rows {
		require.Equal(t, txn.SemanticID, r.SemanticID)
		require.Equal(t, txn.ID, r.TransactionID)
		require.Equal(t, "Corner Cafe", r.MerchantName)
		require.Equal(t, "cat_"+r.BudgetID, r.CategoryID)
		budgets[r.BudgetID] = r.LinkID
	}
	require.Equal(t, map[string]string{"budget-a": a.ID, "budget-b": b.ID}, budgets)
}

func TestProjectUnlinked(t *testing.T) {
	require.Empty(t, Project(models.Transaction{ID: "x"}, nil, fixedCategory))
}

func TestPruneDropsOrphans(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	keep := st.AddLink(models.BudgetAccountLink{BudgetID: "budget-a", ExternalAccountID: "acc-1"})
	gone := st.AddLink(models.BudgetAccountLink{BudgetID: "budget-b", ExternalAccountID: "acc-1"})
	st.RemoveLink(gone.ID)

	rows := []models.BudgetTransaction{
		{LinkID: keep.ID, TransactionID: "t"},
		{LinkID: gone.ID, TransactionID: "t"},
	}
	kept, dropped, err := Prune(ctx, st, rows)
	require.NoError(t, err)
	require.Equal(t, 1, dropped)
	require.Len(t, kept, 1)
	require.Equal(t, keep.ID, kept[0].LinkID)
}
