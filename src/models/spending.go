package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MonthlyCategorySpend is the stored row behind a budget's monthly rollup.
// Actual is recomputed by aggregation; Target and TaxDeductible are user-owned.
type MonthlyCategorySpend struct {
	BudgetID      string          `json:"budget_id"`
	Month         string          `json:"month"`
	GroupID       string          `json:"group_id"`
	CategoryID    string          `json:"category_id"`
	Actual        decimal.Decimal `json:"actual"`
	Target        decimal.Decimal `json:"target"`
	TaxDeductible bool            `json:"tax_deductible"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type CategorySpending struct {
	CategoryID    string          `json:"category_id"`
	Name          string          `json:"name"`
	Actual        decimal.Decimal `json:"actual"`
	Target        decimal.Decimal `json:"target"`
	TaxDeductible bool            `json:"tax_deductible"`
}

type GroupSpending struct {
	GroupID    string             `json:"group_id"`
	Name       string             `json:"name"`
	Actual     decimal.Decimal    `json:"actual"`
	Target     decimal.Decimal    `json:"target"`
	Categories []CategorySpending `json:"categories"`
}

type MonthlySpending struct {
	BudgetID string          `json:"budget_id"`
	Month    string          `json:"month"`
	Groups   []GroupSpending `json:"groups"`
}

// Group returns the named group's rollup, or nil.
func (m MonthlySpending) Group(name string) *GroupSpending {
	for i := range m.Groups {
		if m.Groups[i].Name == name {
			return &m.Groups[i]
		}
	}
	return nil
}
