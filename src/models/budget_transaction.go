package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BudgetTransaction is a Transaction projected into one budget through a budget-account link.
type BudgetTransaction struct {
	ID              string            `json:"id"`
	BudgetID        string            `json:"budget_id"`
	LinkID          string            `json:"link_id"`
	TransactionID   string            `json:"transaction_id"`
	SemanticID      string            `json:"semantic_id"`
	Date            time.Time         `json:"date"`
	Amount          decimal.Decimal   `json:"amount"`
	Status          TransactionStatus `json:"status"`
	MerchantName    string            `json:"merchant_name"`
	CategoryGroupID string            `json:"category_group_id"`
	CategoryID      string            `json:"category_id"`
	Tags            []string          `json:"tags"`
	Notes           string            `json:"notes"`
	AttachmentRefs  []string          `json:"attachment_refs"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// ProjectionKey identifies a BudgetTransaction independently of its row id.
type ProjectionKey struct {
	LinkID        string
	TransactionID string
}

func (b BudgetTransaction) Key() ProjectionKey {
	return ProjectionKey{LinkID: b.LinkID, TransactionID: b.TransactionID}
}

// Clone returns a copy that shares no slices with b.
func (b BudgetTransaction) Clone() BudgetTransaction {
	c := b
	if b.Tags != nil {
		c.Tags = append([]string(nil), b.Tags...)
	}
	if b.AttachmentRefs != nil {
		c.AttachmentRefs = append([]string(nil), b.AttachmentRefs...)
	}
	return c
}
