package categories

import (
	"strings"

	"budgee-sync/src/models"
)

var defaultTree = []struct {
	group      string
	income     bool
	categories []string
}{
	{"Income", true, []string{"Paycheck", "Interest Income", "Other Income"}},
	{"Housing", false, []string{"Rent", "Mortgage", "Home Improvement"}},
	{"Bills & Utilities", false, []string{"Utilities", "Phone & Internet", "Insurance", "Subscriptions"}},
	{"Groceries", false, []string{"Groceries"}},
	{"Dining", false, []string{"Restaurants", "Coffee Shops", "Fast Food", "Bars"}},
	{"Transportation", false, []string{"Gas", "Public Transit", "Rideshare", "Parking", "Auto Maintenance"}},
	{"Shopping", false, []string{"General Merchandise", "Clothing", "Electronics"}},
	{"Lifestyle", false, []string{"Entertainment", "Travel", "Personal Care", "Fitness", "Education", "Gifts & Donations"}},
	{"Health", false, []string{"Medical", "Pharmacy"}},
	{"Financial", false, []string{"Loan Payments", "Fees", "Taxes"}},
	{"Transfers", false, []string{"Transfer In", "Transfer Out"}},
	{models.OtherGroupName, false, []string{models.OtherCategoryName}},
}

// DefaultGroups returns a fresh copy of the tenant-independent category tree.
func DefaultGroups() []models.CategoryGroup {
	groups := make([]models.CategoryGroup, 0, len(defaultTree))
	for _, g := range defaultTree {
		group := models.CategoryGroup{
			ID:      "grp_" + slug(g.group),
			Name:    g.group,
			Enabled: true,
			Income:  g.income,
		}
		for _, name := range g.categories {
			group.Categories = append(group.Categories, models.Category{ID: "cat_" + slug(name), Name: name})
		}
		groups = append(groups, group)
	}
	return groups
}

// Overlay applies a budget's custom groups on top of base. A custom group whose id
// matches a base group replaces it; any other custom group is appended.
func Overlay(base, custom []models.CategoryGroup) []models.CategoryGroup {
	out := make([]models.CategoryGroup, 0, len(base)+len(custom))
	byID := make(map[string]int, len(base))
	for _, g := range base {
		byID[g.ID] = len(out)
		out = append(out, g)
	}
	for _, g := range custom {
		if i, ok := byID[g.ID]; ok {
			out[i] = g
			continue
		}
		byID[g.ID] = len(out)
		out = append(out, g)
	}
	return out
}

func slug(name string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore && b.Len() > 0:
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}
