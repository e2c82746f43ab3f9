package rules

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"budgee-sync/src/categories"
	"budgee-sync/src/models"
	"budgee-sync/src/store/memory"
)

func day(d int) time.Time {
	return time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC)
}

func merchantRule(id, value string, actions models.RuleActions) models.TransactionRule {
	return models.TransactionRule{
		ID:       id,
		BudgetID: "budget-1",
		Active:   true,
		Conditions: models.RuleConditions{
			Merchant: &models.MerchantCondition{Enabled: true, Mode: models.MatchContains, Value: value},
		},
		Actions: actions,
	}
}

func setCategory(id string) models.RuleActions {
	return models.RuleActions{SetCategory: &models.SetCategoryAction{Enabled: true, CategoryID: id}}
}

func TestMatches(t *testing.T) {
	txn := models.BudgetTransaction{
		LinkID:       "link-1",
		Date:         day(30),
		Amount:       decimal.RequireFromString("-42.00"),
		MerchantName: "Blue Bottle Coffee",
	}

	tests := []struct {
		name string
		cond models.RuleConditions
		want bool
	}{
		{"no conditions", models.RuleConditions{}, true},
		{"merchant contains case-insensitive", models.RuleConditions{Merchant: &models.MerchantCondition{Enabled: true, Mode: models.MatchContains, Value: "bottle"}}, true},
		{"merchant exact mismatch", models.RuleConditions{Merchant: &models.MerchantCondition{Enabled: true, Mode: models.MatchExact, Value: "bottle"}}, false},
		{"merchant exact", models.RuleConditions{Merchant: &models.MerchantCondition{Enabled: true, Mode: models.MatchExact, Value: "blue bottle coffee"}}, true},
		{"disabled condition passes", models.RuleConditions{Merchant: &models.MerchantCondition{Enabled: false, Value: "nope"}}, true},
		{"amount exact uses absolute value", models.RuleConditions{Amount: &models.AmountCondition{Enabled: true, Mode: models.MatchExact, Value: decimal.NewFromInt(42)}}, true},
		{"amount range", models.RuleConditions{Amount: &models.AmountCondition{Enabled: true, Mode: models.MatchRange, Min: decimal.NewFromInt(40), Max: decimal.NewFromInt(50)}}, true},
		{"amount out of range", models.RuleConditions{Amount: &models.AmountCondition{Enabled: true, Mode: models.MatchRange, Min: decimal.NewFromInt(1), Max: decimal.NewFromInt(10)}}, false},
		{"day exact", models.RuleConditions{Day: &models.DayCondition{Enabled: true, Mode: models.MatchExact, Day: 30}}, true},
		{"day range wraps month end", models.RuleConditions{Day: &models.DayCondition{Enabled: true, Mode: models.MatchRange, From: 28, To: 3}}, true},
		{"day range excludes", models.RuleConditions{Day: &models.DayCondition{Enabled: true, Mode: models.MatchRange, From: 1, To: 15}}, false},
		{"account", models.RuleConditions{Account: &models.AccountCondition{Enabled: true, LinkID: "link-1"}}, true},
		{"other account", models.RuleConditions{Account: &models.AccountCondition{Enabled: true, LinkID: "link-2"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := models.TransactionRule{Active: true, Conditions: tt.cond}
			require.Equal(t, tt.want, Matches(r, txn))
		})
	}

	wrapped := models.TransactionRule{Conditions: models.RuleConditions{
		Day: &models.DayCondition{Enabled: true, Mode: models.MatchRange, From: 28, To: 3},
	}}
	early := txn
	early.Date = day(2)
	require.True(t, Matches(wrapped, early))
	mid := txn
	mid.Date = day(15)
	require.False(t, Matches(wrapped, mid))
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(merchantRule("r", "cafe", setCategory("cat_other"))))

	empty := merchantRule("r", "  ", setCategory("cat_other"))
	require.ErrorIs(t, Validate(empty), ErrInvalidRule)

	badDay := models.TransactionRule{Conditions: models.RuleConditions{
		Day: &models.DayCondition{Enabled: true, Mode: models.MatchExact, Day: 32},
	}}
	require.ErrorIs(t, Validate(badDay), ErrInvalidRule)

	badRange := models.TransactionRule{Conditions: models.RuleConditions{
		Amount: &models.AmountCondition{Enabled: true, Mode: models.MatchRange, Min: decimal.NewFromInt(9), Max: decimal.NewFromInt(1)},
	}}
	require.ErrorIs(t, Validate(badRange), ErrInvalidRule)

	noCategory := merchantRule("r", "cafe", models.RuleActions{SetCategory: &models.SetCategoryAction{Enabled: true}})
	require.ErrorIs(t, Validate(noCategory), ErrInvalidRule)
}

func TestOrder(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	all := []models.TransactionRule{
		{ID: "a", Active: true, CreatedAt: base},
		{ID: "b", Active: true, CreatedAt: base.Add(time.Hour)},
		{ID: "c", Active: false, CreatedAt: base.Add(2 * time.Hour)},
		{ID: "d", Active: true, CreatedAt: base.Add(3 * time.Hour)},
	}
	ids := func(rules []models.TransactionRule) []string {
		var out []string
		for _, r := range rules {
			out = append(out, r.ID)
		}
		return out
	}

	require.Equal(t, []string{"b", "a", "d"}, ids(Order(all, []string{"b", "c", "missing", "a"})))
	require.Equal(t, []string{"b", "c", "a", "d"}, ids(Sort(all, []string{"b", "c", "b", "a"})))
	require.Equal(t, []string{"a", "b", "d"}, ids(Order(all, nil)))
}

func TestApplyLastRuleWins(t *testing.T) {
	ix, err := categories.NewIndex(categories.DefaultGroups())
	require.NoError(t, err)

	txns := []models.BudgetTransaction{
		{ID: "p1", MerchantName: "Blue Bottle Coffee", CategoryID: "cat_other", CategoryGroupID: "grp_other", Date: day(5)},
		{ID: "p2", MerchantName: "Hardware Store", CategoryID: "cat_other", CategoryGroupID: "grp_other", Date: day(5)},
	}
	ordered := []models.TransactionRule{
		merchantRule("first", "coffee", setCategory("cat_restaurants")),
		merchantRule("second", "bottle", models.RuleActions{
			SetCategory: &models.SetCategoryAction{Enabled: true, CategoryID: "cat_coffee_shops"},
			SetTags:     &models.SetTagsAction{Enabled: true, Tags: []string{"caffeine"}},
			SetNote:     &models.SetNoteAction{Enabled: true, Note: "morning"},
		}),
	}

	res := Apply(ordered, txns, ix)
	require.Equal(t, []int{0}, res.Changed)
	require.Len(t, res.Applied, 2)

	got := res.Transactions[0]
	require.Equal(t, "cat_coffee_shops", got.CategoryID)
	require.Equal(t, "grp_dining", got.CategoryGroupID)
	require.Equal(t, []string{"caffeine"}, got.Tags)
	require.Equal(t, "morning", got.Notes)
	require.Equal(t, txns[1], res.Transactions[1])

	// input untouched
	require.Equal(t, "cat_other", txns[0].CategoryID)
	require.Nil(t, txns[0].Tags)
}

func TestApplyRenameFeedsLaterRules(t *testing.T) {
	txns := []models.BudgetTransaction{{ID: "p1", MerchantName: "SQ *BLUE BTL 1234"}}
	ordered := []models.TransactionRule{
		merchantRule("rename", "blue btl", models.RuleActions{
			RenameMerchant: &models.RenameMerchantAction{Enabled: true, Name: "Blue Bottle"},
		}),
		merchantRule("cat", "blue bottle", setCategory("cat_coffee_shops")),
	}
	res := Apply(ordered, txns, nil)
	require.Equal(t, "Blue Bottle", res.Transactions[0].MerchantName)
	require.Equal(t, "cat_coffee_shops", res.Transactions[0].CategoryID)
}

func TestApplySkipsInvalidAndUnknownCategory(t *testing.T) {
	ix, err := categories.NewIndex(categories.DefaultGroups())
	require.NoError(t, err)

	txns := []models.BudgetTransaction{{ID: "p1", MerchantName: "Cafe", CategoryID: "cat_other", CategoryGroupID: "grp_other"}}
	ordered := []models.TransactionRule{
		merchantRule("invalid", "", setCategory("cat_restaurants")),
		merchantRule("unknown", "cafe", setCategory("cat_does_not_exist")),
	}
	res := Apply(ordered, txns, ix)
	require.Equal(t, 1, res.Skipped)
	require.Empty(t, res.Changed)
	require.Equal(t, "cat_other", res.Transactions[0].CategoryID)
}

func TestApplyIsDeterministic(t *testing.T) {
	txns := []models.BudgetTransaction{{ID: "p1", MerchantName: "Cafe"}}
	ordered := []models.TransactionRule{merchantRule("r", "cafe", setCategory("cat_coffee_shops"))}
	first := Apply(ordered, txns, nil)
	second := Apply(ordered, first.Transactions, nil)
	require.Equal(t, first.Transactions, second.Transactions)
	require.Empty(t, second.Changed)
}

func seedProjection(t *testing.T, st *memory.Store, budgetID, merchant string) models.BudgetTransaction {
	t.Helper()
	link := st.AddLink(models.BudgetAccountLink{BudgetID: budgetID, ExternalAccountID: "acc-" + merchant})
	row := models.BudgetTransaction{
		BudgetID:        budgetID,
		LinkID:          link.ID,
		TransactionID:   "txn-" + merchant,
		Date:            day(10),
		Amount:          decimal.NewFromInt(-5),
		MerchantName:    merchant,
		CategoryID:      "cat_other",
		CategoryGroupID: "grp_other",
	}
	ids, err := st.BulkInsertBudgetTransactions(context.Background(), []models.BudgetTransaction{row})
	require.NoError(t, err)
	row.ID = ids[0]
	return row
}

func TestServiceApplyToHistory(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	seedProjection(t, st, "budget-1", "Corner Cafe")
	seedProjection(t, st, "budget-1", "Gas Station")
	seedProjection(t, st, "budget-2", "Corner Cafe")

	svc := NewService(st)
	rule := merchantRule("", "cafe", setCategory("cat_coffee_shops"))
	rule.ApplyToHistory = true

	created, n, err := svc.Create(ctx, &rule)
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Equal(t, 1, n)

	rows, err := st.ListBudgetTransactions(ctx, "budget-1")
	require.NoError(t, err)
	byMerchant := map[string]models.BudgetTransaction{}
	for _, r := range rows {
		byMerchant[r.MerchantName] = r
	}
	require.Equal(t, "cat_coffee_shops", byMerchant["Corner Cafe"].CategoryID)
	require.Equal(t, "grp_dining", byMerchant["Corner Cafe"].CategoryGroupID)
	require.Equal(t, "cat_other", byMerchant["Gas Station"].CategoryID)

	other, err := st.ListBudgetTransactions(ctx, "budget-2")
	require.NoError(t, err)
	require.Equal(t, "cat_other", other[0].CategoryID)

	again, err := svc.ApplyToHistory(ctx, "budget-1")
	require.NoError(t, err)
	require.Zero(t, again)
}

func TestServiceCreateWithoutHistoryLeavesRows(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	seedProjection(t, st, "budget-1", "Corner Cafe")

	rule := merchantRule("", "cafe", setCategory("cat_coffee_shops"))
	_, n, err := NewService(st).Create(ctx, &rule)
	require.NoError(t, err)
	require.Zero(t, n)

	rows, err := st.ListBudgetTransactions(ctx, "budget-1")
	require.NoError(t, err)
	require.Equal(t, "cat_other", rows[0].CategoryID)
}

func TestServiceSetOrder(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	svc := NewService(st)

	r1 := merchantRule("", "a", setCategory("cat_other"))
	r2 := merchantRule("", "b", setCategory("cat_other"))
	first, _, err := svc.Create(ctx, &r1)
	require.NoError(t, err)
	second, _, err := svc.Create(ctx, &r2)
	require.NoError(t, err)

	require.NoError(t, svc.SetOrder(ctx, "budget-1", []string{second.ID, first.ID}))
	list, err := svc.List(ctx, "budget-1")
	require.NoError(t, err)
	require.Equal(t, second.ID, list[0].ID)
	require.Equal(t, first.ID, list[1].ID)

	require.ErrorIs(t, svc.SetOrder(ctx, "budget-1", []string{"foreign"}), ErrInvalidRule)
	require.ErrorIs(t, svc.SetOrder(ctx, "budget-1", []string{first.ID, first.ID}), ErrInvalidRule)
}

func TestServiceRejectsInvalidRule(t *testing.T) {
	bad := merchantRule("", "", setCategory("cat_other"))
	_, _, err := NewService(memory.New()).Create(context.Background(), &bad)
	require.ErrorIs(t, err, ErrInvalidRule)
}
