// Package rules evaluates user-defined transaction rules. Apply returns new
// rows and never mutates its input.
package rules

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"budgee-sync/src/models"
)

var ErrInvalidRule = errors.New("invalid transaction rule")

// Sort returns every rule in the budget's explicit order. Rules missing from
// order follow the listed ones, oldest first.
func Sort(all []models.TransactionRule, order []string) []models.TransactionRule {
	byID := make(map[string]models.TransactionRule, len(all))
	for _, r := range all {
		byID[r.ID] = r
	}
	out := make([]models.TransactionRule, 0, len(all))
	placed := make(map[string]struct{}, len(all))
	for _, id := range order {
		r, ok := byID[id]
		if !ok {
			continue
		}
		if _, dup := placed[id]; dup {
			continue
		}
		placed[id] = struct{}{}
		out = append(out, r)
	}
	var rest []models.TransactionRule
	for _, r := range all {
		if _, ok := placed[r.ID]; !ok {
			rest = append(rest, r)
		}
	}
	sort.SliceStable(rest, func(i, j int) bool { return rest[i].CreatedAt.Before(rest[j].CreatedAt) })
	return append(out, rest...)
}

// Order is Sort restricted to active rules.
func Order(all []models.TransactionRule, order []string) []models.TransactionRule {
	sorted := Sort(all, order)
	out := sorted[:0]
	for _, r := range sorted {
		if r.Active {
			out = append(out, r)
		}
	}
	return out
}

// Validate rejects rules whose enabled parts cannot be evaluated.
func Validate(r models.TransactionRule) error {
	c := r.Conditions
	if c.Merchant != nil && c.Merchant.Enabled {
		if strings.TrimSpace(c.Merchant.Value) == "" {
			return fmt.Errorf("%w: merchant condition needs a value", ErrInvalidRule)
		}
		if !oneOf(c.Merchant.Mode, "", models.MatchContains, models.MatchExact) {
			return fmt.Errorf("%w: merchant mode %q", ErrInvalidRule, c.Merchant.Mode)
		}
	}
	if c.Amount != nil && c.Amount.Enabled {
		switch c.Amount.Mode {
		case "", models.MatchExact:
		case models.MatchRange:
			if c.Amount.Min.Abs().GreaterThan(c.Amount.Max.Abs()) {
				return fmt.Errorf("%w: amount range min exceeds max", ErrInvalidRule)
			}
		default:
			return fmt.Errorf("%w: amount mode %q", ErrInvalidRule, c.Amount.Mode)
		}
	}
	if c.Day != nil && c.Day.Enabled {
		switch c.Day.Mode {
		case "", models.MatchExact:
			if !validDay(c.Day.Day) {
				return fmt.Errorf("%w: day %d", ErrInvalidRule, c.Day.Day)
			}
		case models.MatchRange:
			if !validDay(c.Day.From) || !validDay(c.Day.To) {
				return fmt.Errorf("%w: day range %d..%d", ErrInvalidRule, c.Day.From, c.Day.To)
			}
		default:
			return fmt.Errorf("%w: day mode %q", ErrInvalidRule, c.Day.Mode)
		}
	}
	if c.Account != nil && c.Account.Enabled && c.Account.LinkID == "" {
		return fmt.Errorf("%w: account condition needs a link id", ErrInvalidRule)
	}
	a := r.Actions
	if a.SetCategory != nil && a.SetCategory.Enabled && a.SetCategory.CategoryID == "" {
		return fmt.Errorf("%w: set category action needs a category", ErrInvalidRule)
	}
	if a.RenameMerchant != nil && a.RenameMerchant.Enabled && strings.TrimSpace(a.RenameMerchant.Name) == "" {
		return fmt.Errorf("%w: rename action needs a name", ErrInvalidRule)
	}
	return nil
}

// Matches reports whether every enabled condition of r passes for txn.
// Disabled or absent conditions pass vacuously.
func Matches(r models.TransactionRule, txn models.BudgetTransaction) bool {
	c := r.Conditions
	if c.Merchant != nil && c.Merchant.Enabled && !matchMerchant(*c.Merchant, txn.MerchantName) {
		return false
	}
	if c.Amount != nil && c.Amount.Enabled && !matchAmount(*c.Amount, txn.Amount) {
		return false
	}
	if c.Day != nil && c.Day.Enabled && !matchDay(*c.Day, txn.Date.Day()) {
		return false
	}
	if c.Account != nil && c.Account.Enabled && c.Account.LinkID != txn.LinkID {
		return false
	}
	return true
}

func matchMerchant(c models.MerchantCondition, merchant string) bool {
	m := strings.ToLower(strings.TrimSpace(merchant))
	v := strings.ToLower(strings.TrimSpace(c.Value))
	if c.Mode == models.MatchExact {
		return m == v
	}
	return strings.Contains(m, v)
}

func matchAmount(c models.AmountCondition, amount decimal.Decimal) bool {
	abs := amount.Abs()
	if c.Mode == models.MatchRange {
		return abs.GreaterThanOrEqual(c.Min.Abs()) && abs.LessThanOrEqual(c.Max.Abs())
	}
	return abs.Equal(c.Value.Abs())
}

func matchDay(c models.DayCondition, day int) bool {
	if c.Mode == models.MatchRange {
		if c.From <= c.To {
			return day >= c.From && day <= c.To
		}
		// wraps past month end, e.g. 28..3
		return day >= c.From || day <= c.To
	}
	return day == c.Day
}

func validDay(d int) bool {
	return d >= 1 && d <= 31
}

func oneOf(m models.MatchMode, modes ...models.MatchMode) bool {
	for _, x := range modes {
		if m == x {
			return true
		}
	}
	return false
}
