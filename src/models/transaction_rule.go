package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type MatchMode string

const (
	MatchContains MatchMode = "contains"
	MatchExact    MatchMode = "exact"
	MatchRange    MatchMode = "range"
)

type MerchantCondition struct {
	Enabled bool      `json:"enabled"`
	Mode    MatchMode `json:"mode"`
	Value   string    `json:"value"`
}

// AmountCondition compares against the absolute value of the transaction amount.
type AmountCondition struct {
	Enabled bool            `json:"enabled"`
	Mode    MatchMode       `json:"mode"`
	Value   decimal.Decimal `json:"value"`
	Min     decimal.Decimal `json:"min"`
	Max     decimal.Decimal `json:"max"`
}

type DayCondition struct {
	Enabled bool      `json:"enabled"`
	Mode    MatchMode `json:"mode"`
	Day     int       `json:"day"`
	From    int       `json:"from"`
	To      int       `json:"to"`
}

type AccountCondition struct {
	Enabled bool   `json:"enabled"`
	LinkID  string `json:"link_id"`
}

type RuleConditions struct {
	Merchant *MerchantCondition `json:"merchant,omitempty"`
	Amount   *AmountCondition   `json:"amount,omitempty"`
	Day      *DayCondition      `json:"day,omitempty"`
	Account  *AccountCondition  `json:"account,omitempty"`
}

type SetCategoryAction struct {
	Enabled    bool   `json:"enabled"`
	CategoryID string `json:"category_id"`
}

type RenameMerchantAction struct {
	Enabled bool   `json:"enabled"`
	Name    string `json:"name"`
}

type SetNoteAction struct {
	Enabled bool   `json:"enabled"`
	Note    string `json:"note"`
}

type SetTagsAction struct {
	Enabled bool     `json:"enabled"`
	Tags    []string `json:"tags"`
}

type RuleActions struct {
	SetCategory    *SetCategoryAction    `json:"set_category,omitempty"`
	RenameMerchant *RenameMerchantAction `json:"rename_merchant,omitempty"`
	SetNote        *SetNoteAction        `json:"set_note,omitempty"`
	SetTags        *SetTagsAction        `json:"set_tags,omitempty"`
}

type TransactionRule struct {
	ID             string         `json:"id"`
	BudgetID       string         `json:"budget_id"`
	Name           string         `json:"name"`
	Conditions     RuleConditions `json:"conditions"` // JSONB
	Actions        RuleActions    `json:"actions"`    // JSONB
	Active         bool           `json:"active"`
	ApplyToHistory bool           `json:"apply_to_history"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}
