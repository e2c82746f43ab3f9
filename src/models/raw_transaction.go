package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// RawTransaction is a single event as reported by the aggregator.
type RawTransaction struct {
	ExternalID         string          `json:"external_id"`
	ExternalAccountID  string          `json:"external_account_id"`
	PendingExternalID  string          `json:"pending_external_id,omitempty"`
	Date               time.Time       `json:"date"`
	Amount             decimal.Decimal `json:"amount"`
	MerchantName       string          `json:"merchant_name"`
	Payee              string          `json:"payee"`
	Currency           string          `json:"currency"`
	Pending            bool            `json:"pending"`
	CategoryLabel      string          `json:"category_label"`
	Recurring          bool            `json:"recurring"`
	RecurringFrequency string          `json:"recurring_frequency,omitempty"`
	RecurringPattern   json.RawMessage `json:"recurring_pattern,omitempty"`
	Raw                json.RawMessage `json:"raw,omitempty"`
}

func (r RawTransaction) Status() TransactionStatus {
	if r.Pending {
		return StatusPending
	}
	return StatusPosted
}

// Supersedes reports whether this event is the posted form of an earlier pending event.
func (r RawTransaction) Supersedes() bool {
	return !r.Pending && r.PendingExternalID != ""
}

type RemovedTransaction struct {
	ExternalID        string `json:"external_id"`
	ExternalAccountID string `json:"external_account_id,omitempty"`
}

// ChangePage is one page of the aggregator's incremental change feed.
type ChangePage struct {
	Added      []RawTransaction
	Modified   []RawTransaction
	Removed    []RemovedTransaction
	NextCursor string
	HasMore    bool
}
