// Package spending rolls budget transactions into monthly per-category totals.
package spending

import (
	"github.com/shopspring/decimal"

	"budgee-sync/src/categories"
	"budgee-sync/src/models"
	"budgee-sync/src/util"
)

var hundred = decimal.NewFromInt(100)

// Actuals holds computed spend per month, then per category id.
type Actuals map[string]map[string]decimal.Decimal

func (a Actuals) add(month, categoryID string, amount decimal.Decimal) {
	m, ok := a[month]
	if !ok {
		m = make(map[string]decimal.Decimal)
		a[month] = m
	}
	m[categoryID] = m[categoryID].Add(amount)
}

// Get returns the spend for a category in a month, zero when absent.
func (a Actuals) Get(month, categoryID string) decimal.Decimal {
	return a[month][categoryID]
}

// Aggregate sums txns per month and category for the given months. Unknown
// categories count toward Other. A composite category is split across its
// components by weight, and amounts in income groups are made negative.
func Aggregate(ix *categories.Index, txns []models.BudgetTransaction, months []string) Actuals {
	want := make(map[string]struct{}, len(months))
	out := make(Actuals, len(months))
	for _, m := range months {
		want[m] = struct{}{}
		out[m] = make(map[string]decimal.Decimal)
	}
	for _, txn := range txns {
		month := util.MonthKey(txn.Date)
		if _, ok := want[month]; !ok {
			continue
		}
		res := ix.CategoryOrOther(txn.CategoryID)
		if !res.Category.IsComposite() {
			out.add(month, res.Category.ID, normalize(res.Group, txn.Amount))
			continue
		}
		for _, part := range Split(txn.Amount, res.Category.Components) {
			comp := ix.CategoryOrOther(part.CategoryID)
			out.add(month, comp.Category.ID, normalize(comp.Group, part.Amount))
		}
	}
	return out
}

// Share is one component's portion of a split amount.
type Share struct {
	CategoryID string
	Amount     decimal.Decimal
}

// Split divides amount by component weights (percentages). Each share is
// rounded to cents and the last share takes the remainder, so shares always
// sum to amount.
func Split(amount decimal.Decimal, components []models.CategoryWeight) []Share {
	if len(components) == 0 {
		return nil
	}
	out := make([]Share, len(components))
	allocated := decimal.Zero
	for i, c := range components {
		if i == len(components)-1 {
			out[i] = Share{CategoryID: c.CategoryID, Amount: amount.Sub(allocated)}
			break
		}
		share := amount.Mul(c.Weight).Div(hundred).Round(2)
		allocated = allocated.Add(share)
		out[i] = Share{CategoryID: c.CategoryID, Amount: share}
	}
	return out
}

func normalize(g models.CategoryGroup, amount decimal.Decimal) decimal.Decimal {
	if isIncome(g) {
		return amount.Abs().Neg()
	}
	return amount
}

func isIncome(g models.CategoryGroup) bool {
	return g.Income || g.Name == models.IncomeGroupName
}

// Key identifies a stored monthly row.
type Key struct {
	Month      string
	CategoryID string
}

// Build lays out every reported group for each month, filling actuals from a
// and targets from stored. Disabled groups are omitted, except the one holding
// Other, which is always present.
func Build(budgetID string, ix *categories.Index, months []string, a Actuals, stored map[Key]models.MonthlyCategorySpend) []models.MonthlySpending {
	groups := reportedGroups(ix)
	out := make([]models.MonthlySpending, 0, len(months))
	for _, month := range months {
		ms := models.MonthlySpending{BudgetID: budgetID, Month: month}
		for _, g := range groups {
			gs := models.GroupSpending{GroupID: g.ID, Name: g.Name}
			for _, c := range g.Categories {
				row := stored[Key{Month: month, CategoryID: c.ID}]
				cs := models.CategorySpending{
					CategoryID:    c.ID,
					Name:          c.Name,
					Actual:        a.Get(month, c.ID),
					Target:        row.Target,
					TaxDeductible: row.TaxDeductible,
				}
				gs.Actual = gs.Actual.Add(cs.Actual)
				gs.Target = gs.Target.Add(cs.Target)
				gs.Categories = append(gs.Categories, cs)
			}
			ms.Groups = append(ms.Groups, gs)
		}
		out = append(out, ms)
	}
	return out
}

// Rows flattens a rollup into storable per-category rows.
func Rows(ms []models.MonthlySpending) []models.MonthlyCategorySpend {
	var out []models.MonthlyCategorySpend
	for _, m := range ms {
		for _, g := range m.Groups {
			for _, c := range g.Categories {
				out = append(out, models.MonthlyCategorySpend{
					BudgetID:      m.BudgetID,
					Month:         m.Month,
					GroupID:       g.GroupID,
					CategoryID:    c.CategoryID,
					Actual:        c.Actual,
					Target:        c.Target,
					TaxDeductible: c.TaxDeductible,
				})
			}
		}
	}
	return out
}

func reportedGroups(ix *categories.Index) []models.CategoryGroup {
	otherGroupID := ix.Other().Group.ID
	var out []models.CategoryGroup
	sawOther := false
	for _, g := range ix.Groups() {
		if g.ID == otherGroupID {
			if sawOther {
				continue
			}
			sawOther = true
			out = append(out, g)
			continue
		}
		if g.Enabled {
			out = append(out, g)
		}
	}
	return out
}
