package models

import "github.com/shopspring/decimal"

const (
	OtherCategoryName = "Other"
	OtherGroupName    = "Other"
	IncomeGroupName   = "Income"
)

// CategoryWeight is one component of a composite category.
type CategoryWeight struct {
	CategoryID string          `json:"category_id"`
	Weight     decimal.Decimal `json:"weight"`
}

type Category struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Components []CategoryWeight `json:"components,omitempty"`
}

func (c Category) IsComposite() bool {
	return len(c.Components) > 0
}

type CategoryGroup struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Categories []Category `json:"categories"`
	Enabled    bool       `json:"enabled"`
	Income     bool       `json:"income"`
}

// BudgetCategoryConfig is the effective category tree for one budget:
// the default set with the budget's custom overlay applied.
type BudgetCategoryConfig struct {
	BudgetID string          `json:"budget_id"`
	Groups   []CategoryGroup `json:"groups"`
}
