// Package recurring folds transactions the aggregator flagged as recurring into
// RecurringTransactionGroups, one per (counterparty, amount, frequency) signature.
package recurring

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"budgee-sync/src/models"
	"budgee-sync/src/store"
)

// Candidate is a persisted transaction carrying recurrence metadata from enrichment.
type Candidate struct {
	TransactionID string          `json:"transaction_id"`
	SemanticID    string          `json:"semantic_id"`
	Date          time.Time       `json:"date"`
	Counterparty  string          `json:"counterparty"`
	Amount        decimal.Decimal `json:"amount"`
	Frequency     string          `json:"frequency"`
	CategoryID    string          `json:"category_id"`
	Pattern       json.RawMessage `json:"pattern,omitempty"`
}

// Signature is the grouping key for candidates.
type Signature struct {
	Counterparty string
	Amount       string
	Frequency    string
}

func SignatureOf(c Candidate) Signature {
	return Signature{
		Counterparty: strings.ToLower(strings.TrimSpace(c.Counterparty)),
		Amount:       c.Amount.Round(2).StringFixed(2),
		Frequency:    strings.ToUpper(strings.TrimSpace(c.Frequency)),
	}
}

// Plan lists the writes that bring stored groups in line with a batch of candidates.
type Plan struct {
	Upserts []models.RecurringTransactionGroup
	Deletes []string
}

func (p Plan) Empty() bool {
	return len(p.Upserts) == 0 && len(p.Deletes) == 0
}

// Build groups candidates by signature. A signature whose members touch no
// existing group becomes a new group. Otherwise every existing group sharing a
// member is merged into the one with the oldest UpdatedAt and the rest are
// deleted, so repeated runs converge on a single group per pattern.
func Build(candidates []Candidate, existing []models.RecurringTransactionGroup) Plan {
	bySig := make(map[Signature][]Candidate)
	var order []Signature
	for _, c := range candidates {
		if c.TransactionID == "" {
			continue
		}
		sig := SignatureOf(c)
		if _, ok := bySig[sig]; !ok {
			order = append(order, sig)
		}
		bySig[sig] = append(bySig[sig], c)
	}
	sort.Slice(order, func(i, j int) bool { return sigLess(order[i], order[j]) })

	groups := make(map[string]*models.RecurringTransactionGroup, len(existing))
	owner := make(map[string]string)
	for i := range existing {
		g := existing[i]
		g.TransactionIDs = append([]string(nil), g.TransactionIDs...)
		groups[g.ID] = &g
		for _, id := range g.TransactionIDs {
			if _, taken := owner[id]; !taken {
				owner[id] = g.ID
			}
		}
	}

	deleted := make(map[string]bool)
	touched := make(map[string]bool)
	var created []models.RecurringTransactionGroup

	for _, sig := range order {
		members := bySig[sig]
		sort.SliceStable(members, func(i, j int) bool {
			if !members[i].Date.Equal(members[j].Date) {
				return members[i].Date.Before(members[j].Date)
			}
			return members[i].TransactionID < members[j].TransactionID
		})
		canonical := members[0]
		latest := members[len(members)-1]

		var matched []*models.RecurringTransactionGroup
		seen := make(map[string]bool)
		for _, m := range members {
			gid, ok := owner[m.TransactionID]
			if !ok || seen[gid] || deleted[gid] {
				continue
			}
			seen[gid] = true
			matched = append(matched, groups[gid])
		}

		if len(matched) == 0 {
			g := models.RecurringTransactionGroup{
				ID:             uuid.NewString(),
				SemanticID:     canonical.SemanticID,
				TransactionIDs: memberIDs(members),
				MerchantName:   strings.TrimSpace(canonical.Counterparty),
				Amount:         canonical.Amount.Round(2),
				CategoryID:     canonical.CategoryID,
				Frequency:      latest.Frequency,
				Pattern:        latestPattern(members),
			}
			created = append(created, g)
			continue
		}

		sort.SliceStable(matched, func(i, j int) bool { return olderThan(matched[i], matched[j]) })
		keeper := matched[0]
		ids := append([]string(nil), keeper.TransactionIDs...)
		for _, dup := range matched[1:] {
			ids = append(ids, dup.TransactionIDs...)
			deleted[dup.ID] = true
			for _, id := range dup.TransactionIDs {
				owner[id] = keeper.ID
			}
		}
		ids = append(ids, memberIDs(members)...)
		keeper.TransactionIDs = unique(ids)
		for _, id := range keeper.TransactionIDs {
			owner[id] = keeper.ID
		}
		keeper.Frequency = latest.Frequency
		if latest.CategoryID != "" {
			keeper.CategoryID = latest.CategoryID
		}
		if p := latestPattern(members); p != nil {
			keeper.Pattern = p
		}
		touched[keeper.ID] = true
	}

	var plan Plan
	var keepIDs []string
	for id := range touched {
		if !deleted[id] {
			keepIDs = append(keepIDs, id)
		}
	}
	sort.Strings(keepIDs)
	for _, id := range keepIDs {
		plan.Upserts = append(plan.Upserts, *groups[id])
	}
	plan.Upserts = append(plan.Upserts, created...)
	for id := range deleted {
		plan.Deletes = append(plan.Deletes, id)
	}
	sort.Strings(plan.Deletes)
	return plan
}

// Detect loads the stored groups that share a transaction with candidates and builds the plan.
func Detect(ctx context.Context, st store.RecurringStore, candidates []Candidate) (Plan, error) {
	if len(candidates) == 0 {
		return Plan{}, nil
	}
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.TransactionID)
	}
	existing, err := st.RecurringGroupsContaining(ctx, ids)
	if err != nil {
		return Plan{}, fmt.Errorf("load recurring groups: %w", err)
	}
	return Build(candidates, existing), nil
}

func olderThan(a, b *models.RecurringTransactionGroup) bool {
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.Before(b.UpdatedAt)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func sigLess(a, b Signature) bool {
	if a.Counterparty != b.Counterparty {
		return a.Counterparty < b.Counterparty
	}
	if a.Amount != b.Amount {
		return a.Amount < b.Amount
	}
	return a.Frequency < b.Frequency
}

func memberIDs(members []Candidate) []string {
	out := make([]string, 0, len(members))
	for _, m := range members {
		out = append(out, m.TransactionID)
	}
	return unique(out)
}

func latestPattern(members []Candidate) json.RawMessage {
	for i := len(members) - 1; i >= 0; i-- {
		if len(members[i].Pattern) > 0 {
			return members[i].Pattern
		}
	}
	return nil
}

func unique(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0:0]
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
