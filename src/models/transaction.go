package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	StatusPending TransactionStatus = "pending"
	StatusPosted  TransactionStatus = "posted"
)

// Transaction is the persisted, budget-independent record of a bank ledger event.
// SemanticID is generated once and never rewritten; ExternalID follows the
// provider and changes when a pending event is superseded by its posted form.
type Transaction struct {
	ID                string            `json:"id"`
	SemanticID        string            `json:"semantic_id"`
	ExternalID        *string           `json:"external_id"`
	ExternalAccountID string            `json:"external_account_id"`
	Date              time.Time         `json:"date"`
	Amount            decimal.Decimal   `json:"amount"`
	Status            TransactionStatus `json:"status"`
	MerchantName      string            `json:"merchant_name"`
	Payee             string            `json:"payee"`
	Currency          string            `json:"currency"`
	CategoryID        string            `json:"category_id"`
	Raw               json.RawMessage   `json:"raw,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// IsManual reports whether the transaction was entered by hand rather than synced.
func (t Transaction) IsManual() bool {
	return t.ExternalID == nil || *t.ExternalID == ""
}

func (t Transaction) ExternalIDValue() string {
	if t.ExternalID == nil {
		return ""
	}
	return *t.ExternalID
}

// Counterparty returns the merchant name, falling back to the payee.
func (t Transaction) Counterparty() string {
	if t.MerchantName != "" {
		return t.MerchantName
	}
	return t.Payee
}
