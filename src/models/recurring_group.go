package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type RecurringTransactionGroup struct {
	ID             string          `json:"id"`
	SemanticID     string          `json:"semantic_id"`
	TransactionIDs []string        `json:"transaction_ids"`
	MerchantName   string          `json:"merchant_name"`
	Amount         decimal.Decimal `json:"amount"`
	CategoryID     string          `json:"category_id"`
	Frequency      string          `json:"frequency"`
	Pattern        json.RawMessage `json:"pattern,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
