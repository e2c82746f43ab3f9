package plaid

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/plaid/plaid-go/v41/plaid"
	"github.com/shopspring/decimal"

	"budgee-sync/src/models"
)

// Aggregator serves the sync engine from Plaid's transactions/sync and
// transactions/recurring/get endpoints.
type Aggregator struct {
	client *plaid.APIClient
}

func NewAggregator(client *plaid.APIClient) *Aggregator {
	return &Aggregator{client: client}
}

func (a *Aggregator) FetchChanges(ctx context.Context, accessToken, cursor string) (*models.ChangePage, error) {
	request := plaid.NewTransactionsSyncRequest(accessToken)
	if cursor != "" {
		request.SetCursor(cursor)
	}
	resp, _, err := a.client.PlaidApi.TransactionsSync(ctx).TransactionsSyncRequest(*request).Execute()
	if err != nil {
		return nil, fmt.Errorf("transactions sync: %w", describe(err))
	}

	page := &models.ChangePage{
		NextCursor: resp.GetNextCursor(),
		HasMore:    resp.GetHasMore(),
	}
	for _, t := range resp.GetAdded() {
		page.Added = append(page.Added, toRaw(t))
	}
	for _, t := range resp.GetModified() {
		page.Modified = append(page.Modified, toRaw(t))
	}
	for _, r := range resp.GetRemoved() {
		page.Removed = append(page.Removed, models.RemovedTransaction{
			ExternalID:        r.GetTransactionId(),
			ExternalAccountID: r.GetAccountId(),
		})
	}
	return page, nil
}

// Enrich marks the transactions that belong to one of Plaid's recurring streams.
func (a *Aggregator) Enrich(ctx context.Context, accessToken string, txns []models.RawTransaction) ([]models.RawTransaction, error) {
	if len(txns) == 0 {
		return txns, nil
	}
	request := plaid.TransactionsRecurringGetRequest{AccessToken: accessToken}
	request.SetAccountIds(accountIDs(txns))
	resp, _, err := a.client.PlaidApi.TransactionsRecurringGet(ctx).TransactionsRecurringGetRequest(request).Execute()
	if err != nil {
		return nil, fmt.Errorf("transactions recurring get: %w", describe(err))
	}

	var streams []Stream
	for _, s := range append(resp.GetInflowStreams(), resp.GetOutflowStreams()...) {
		streams = append(streams, Stream{
			ID:             s.GetStreamId(),
			Description:    s.GetDescription(),
			MerchantName:   s.GetMerchantName(),
			Frequency:      string(s.GetFrequency()),
			Active:         s.GetIsActive(),
			TransactionIDs: s.GetTransactionIds(),
		})
	}
	return MarkRecurring(txns, streams), nil
}

// Stream is the part of a Plaid recurring stream the engine uses.
type Stream struct {
	ID             string   `json:"stream_id"`
	Description    string   `json:"description"`
	MerchantName   string   `json:"merchant_name,omitempty"`
	Frequency      string   `json:"frequency"`
	Active         bool     `json:"is_active"`
	TransactionIDs []string `json:"-"`
}

// MarkRecurring flags every transaction listed in an active stream and attaches
// the stream as its recurrence pattern. Input order is kept.
func MarkRecurring(txns []models.RawTransaction, streams []Stream) []models.RawTransaction {
	byTxn := make(map[string]Stream)
	for _, s := range streams {
		if !s.Active {
			continue
		}
		for _, id := range s.TransactionIDs {
			byTxn[id] = s
		}
	}
	out := make([]models.RawTransaction, len(txns))
	for i, t := range txns {
		if s, ok := byTxn[t.ExternalID]; ok {
			t.Recurring = true
			t.RecurringFrequency = s.Frequency
			if pattern, err := json.Marshal(s); err == nil {
				t.RecurringPattern = pattern
			}
		}
		out[i] = t
	}
	return out
}

func toRaw(t plaid.Transaction) models.RawTransaction {
	pfc := t.GetPersonalFinanceCategory()
	out := models.RawTransaction{
		ExternalID:        t.GetTransactionId(),
		ExternalAccountID: t.GetAccountId(),
		PendingExternalID: t.GetPendingTransactionId(),
		Date:              ParseDate(t.GetDate()),
		Amount:            decimal.NewFromFloat(t.GetAmount()),
		MerchantName:      t.GetMerchantName(),
		Payee:             payee(t),
		Currency:          t.GetIsoCurrencyCode(),
		Pending:           t.GetPending(),
		CategoryLabel:     CategoryLabel(pfc.GetDetailed(), pfc.GetPrimary()),
	}
	if raw, err := json.Marshal(t); err == nil {
		out.Raw = raw
	}
	return out
}

func payee(t plaid.Transaction) string {
	meta := t.GetPaymentMeta()
	if p := meta.GetPayee(); p != "" {
		return p
	}
	return t.GetName()
}

// CategoryLabel prefers the detailed personal finance category.
func CategoryLabel(detailed, primary string) string {
	if strings.TrimSpace(detailed) != "" {
		return detailed
	}
	return primary
}

// ParseDate reads Plaid's YYYY-MM-DD dates. Anything else yields the zero time.
func ParseDate(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}
	}
	return d
}

func accountIDs(txns []models.RawTransaction) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, t := range txns {
		if _, ok := seen[t.ExternalAccountID]; ok || t.ExternalAccountID == "" {
			continue
		}
		seen[t.ExternalAccountID] = struct{}{}
		out = append(out, t.ExternalAccountID)
	}
	return out
}

// describe surfaces Plaid's error body, which the generated client keeps out of Error().
func describe(err error) error {
	if perr, ok := err.(plaid.GenericOpenAPIError); ok {
		if body := strings.TrimSpace(string(perr.Body())); body != "" {
			return fmt.Errorf("%w: %s", err, body)
		}
	}
	return err
}
