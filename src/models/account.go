package models

import "time"

type Account struct {
	ID                string    `json:"id"`
	ItemID            string    `json:"item_id"`
	ExternalAccountID string    `json:"external_account_id"`
	Name              string    `json:"name"`
	Mask              string    `json:"mask"`
	Type              string    `json:"type"`
	Subtype           string    `json:"subtype"`
	CreatedAt         time.Time `json:"created_at"`
}

// BudgetAccountLink associates a raw bank account with a budget. An account may be
// linked to any number of budgets.
type BudgetAccountLink struct {
	ID                string    `json:"id"`
	BudgetID          string    `json:"budget_id"`
	ExternalAccountID string    `json:"external_account_id"`
	CreatedAt         time.Time `json:"created_at"`
}
