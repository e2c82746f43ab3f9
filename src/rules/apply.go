package rules

import (
	"budgee-sync/src/categories"
	"budgee-sync/src/models"
)

// Change records which rule last touched a transaction.
type Change struct {
	Index  int
	RuleID string
	Fields []string
}

// Result is the outcome of running rules over a set of transactions.
type Result struct {
	Transactions []models.BudgetTransaction
	// Changed holds the indexes of transactions that differ from their input.
	Changed []int
	Applied []Change
	// Skipped counts rules ignored because they failed validation.
	Skipped int
}

// Apply runs ordered rules over txns in sequence. Each matching rule applies
// every enabled action in a fixed order (category, merchant, note, tags), and
// later rules see the values written by earlier ones, so the last matching
// rule wins for any field. When ix is non-nil a category action also sets the
// category group, and a category absent from ix is ignored.
func Apply(ordered []models.TransactionRule, txns []models.BudgetTransaction, ix *categories.Index) Result {
	valid := make([]models.TransactionRule, 0, len(ordered))
	skipped := 0
	for _, r := range ordered {
		if !r.Active {
			continue
		}
		if Validate(r) != nil {
			skipped++
			continue
		}
		valid = append(valid, r)
	}

	res := Result{Transactions: make([]models.BudgetTransaction, len(txns)), Skipped: skipped}
	for i, txn := range txns {
		cur := txn.Clone()
		changed := false
		for _, r := range valid {
			if !Matches(r, cur) {
				continue
			}
			var fields []string
			cur, fields = applyActions(r.Actions, cur, ix)
			if len(fields) > 0 {
				changed = true
				res.Applied = append(res.Applied, Change{Index: i, RuleID: r.ID, Fields: fields})
			}
		}
		res.Transactions[i] = cur
		if changed && !equalTransaction(cur, txn) {
			res.Changed = append(res.Changed, i)
		}
	}
	return res
}

func applyActions(a models.RuleActions, txn models.BudgetTransaction, ix *categories.Index) (models.BudgetTransaction, []string) {
	var fields []string
	if a.SetCategory != nil && a.SetCategory.Enabled {
		if ix == nil {
			txn.CategoryID = a.SetCategory.CategoryID
			fields = append(fields, "category")
		} else if res, ok := ix.Category(a.SetCategory.CategoryID); ok {
			txn.CategoryID = res.Category.ID
			txn.CategoryGroupID = res.Group.ID
			fields = append(fields, "category")
		}
	}
	if a.RenameMerchant != nil && a.RenameMerchant.Enabled {
		txn.MerchantName = a.RenameMerchant.Name
		fields = append(fields, "merchant")
	}
	if a.SetNote != nil && a.SetNote.Enabled {
		txn.Notes = a.SetNote.Note
		fields = append(fields, "notes")
	}
	if a.SetTags != nil && a.SetTags.Enabled {
		txn.Tags = append([]string(nil), a.SetTags.Tags...)
		fields = append(fields, "tags")
	}
	return txn, fields
}

func equalTransaction(a, b models.BudgetTransaction) bool {
	if a.CategoryID != b.CategoryID || a.CategoryGroupID != b.CategoryGroupID ||
		a.MerchantName != b.MerchantName || a.Notes != b.Notes || len(a.Tags) != len(b.Tags) {
		return false
	}
	for i := range a.Tags {
		if a.Tags[i] != b.Tags[i] {
			return false
		}
	}
	return true
}
