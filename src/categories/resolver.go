// Package categories maps aggregator category labels onto a budget's category tree.
package categories

import (
	"errors"
	"strings"

	"budgee-sync/src/models"
)

var ErrNoDefaultCategory = errors.New("no default Other category configured")

// Resolution is a category together with the group that owns it.
type Resolution struct {
	Category models.Category
	Group    models.CategoryGroup
}

// Index is a lookup view over one set of category groups.
type Index struct {
	byName map[string]Resolution
	byID   map[string]Resolution
	other  Resolution
	groups []models.CategoryGroup
}

// NewIndex indexes the enabled groups. Categories in later groups shadow same-named
// categories in earlier ones, so a budget overlay wins over the defaults.
func NewIndex(groups []models.CategoryGroup) (*Index, error) {
	ix := &Index{
		byName: make(map[string]Resolution),
		byID:   make(map[string]Resolution),
		groups: groups,
	}
	foundOther := false
	for _, g := range groups {
		otherGroup := isOther(g.Name)
		for _, c := range g.Categories {
			res := Resolution{Category: c, Group: g}
			if otherGroup && isOther(c.Name) && !foundOther {
				ix.other = res
				foundOther = true
			}
			if !g.Enabled {
				continue
			}
			ix.byName[strings.ToLower(c.Name)] = res
			ix.byID[c.ID] = res
		}
	}
	if !foundOther {
		return nil, ErrNoDefaultCategory
	}
	ix.byID[ix.other.Category.ID] = ix.other
	return ix, nil
}

func (ix *Index) Other() Resolution {
	return ix.other
}

// Category looks up a category by id.
func (ix *Index) Category(id string) (Resolution, bool) {
	res, ok := ix.byID[id]
	return res, ok
}

// CategoryOrOther looks up a category by id, falling back to Other.
func (ix *Index) CategoryOrOther(id string) Resolution {
	if res, ok := ix.byID[id]; ok {
		return res
	}
	return ix.other
}

func (ix *Index) ByName(name string) (Resolution, bool) {
	res, ok := ix.byName[strings.ToLower(strings.TrimSpace(name))]
	return res, ok
}

func (ix *Index) Groups() []models.CategoryGroup {
	return ix.groups
}

// Resolver turns aggregator labels into categories using an injected Mapping.
type Resolver struct {
	mapping *Mapping
}

func NewResolver(mapping *Mapping) *Resolver {
	if mapping == nil {
		mapping = NewMapping(nil)
	}
	return &Resolver{mapping: mapping}
}

// ResolveOne never fails: unknown labels, and names missing from the index, land on Other.
func (r *Resolver) ResolveOne(ix *Index, label string) Resolution {
	name, ok := r.mapping.Lookup(label)
	if !ok {
		return ix.Other()
	}
	res, ok := ix.ByName(name)
	if !ok {
		return ix.Other()
	}
	return res
}

// Resolve resolves every distinct label in labels.
func (r *Resolver) Resolve(ix *Index, labels []string) map[string]Resolution {
	out := make(map[string]Resolution, len(labels))
	for _, label := range labels {
		if _, done := out[label]; done {
			continue
		}
		out[label] = r.ResolveOne(ix, label)
	}
	return out
}

func isOther(name string) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	return n == "other" || n == "others"
}
