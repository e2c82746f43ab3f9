package txsync

import (
	"strings"

	"budgee-sync/src/models"
)

// Rewrite moves a stored pending transaction onto its posted successor.
type Rewrite struct {
	OldExternalID string
	Posted        models.RawTransaction
}

// ChangeSet is the normalized result of one or more change pages.
type ChangeSet struct {
	Upserts  []models.RawTransaction
	Rewrites []Rewrite
	Removals []string
	Added    int
	Modified int
	Skipped  []SkippedEvent
}

type SkippedEvent struct {
	ExternalID string
	Reason     string
}

type eventKind int

const (
	kindAdded eventKind = iota
	kindModified
	kindRemoved
)

type event struct {
	kind    eventKind
	raw     models.RawTransaction
	removed models.RemovedTransaction
}

// Classify folds pages, in order, into a ChangeSet. The latest event for an
// external id wins. Removals are reclassified before any addition is handled:
// a posted event whose pending id names a removed event replaces that removal
// with an identity rewrite. A posted event whose pending id names no removal
// is still emitted as a rewrite, because the pending row may already be stored.
// A pending event superseded within the same pages is dropped.
// Events missing an id, account or date are skipped.
func Classify(pages []*models.ChangePage) ChangeSet {
	var cs ChangeSet
	latest := make(map[string]event)
	var order []string

	record := func(id string, ev event) {
		if _, ok := latest[id]; !ok {
			order = append(order, id)
		}
		latest[id] = ev
	}

	for _, p := range pages {
		if p == nil {
			continue
		}
		for _, r := range p.Added {
			if reason := invalid(r); reason != "" {
				cs.Skipped = append(cs.Skipped, SkippedEvent{ExternalID: r.ExternalID, Reason: reason})
				continue
			}
			record(r.ExternalID, event{kind: kindAdded, raw: r})
		}
		for _, r := range p.Modified {
			if reason := invalid(r); reason != "" {
				cs.Skipped = append(cs.Skipped, SkippedEvent{ExternalID: r.ExternalID, Reason: reason})
				continue
			}
			record(r.ExternalID, event{kind: kindModified, raw: r})
		}
		for _, r := range p.Removed {
			if strings.TrimSpace(r.ExternalID) == "" {
				cs.Skipped = append(cs.Skipped, SkippedEvent{Reason: "removal without transaction id"})
				continue
			}
			record(r.ExternalID, event{kind: kindRemoved, removed: r})
		}
	}

	removed := make(map[string]bool)
	for _, id := range order {
		if latest[id].kind == kindRemoved {
			removed[id] = true
		}
	}

	superseded := make(map[string]bool)
	for _, id := range order {
		ev := latest[id]
		if ev.kind == kindRemoved || !ev.raw.Supersedes() {
			continue
		}
		old := ev.raw.PendingExternalID
		if superseded[old] {
			continue
		}
		superseded[old] = true
		delete(removed, old)
	}

	for _, id := range order {
		ev := latest[id]
		if ev.kind != kindRemoved && superseded[id] {
			// The pending event and its posted successor arrived together; only the posted row is kept.
			continue
		}
		switch {
		case ev.kind == kindRemoved:
			if removed[id] {
				cs.Removals = append(cs.Removals, id)
			}
		case ev.raw.Supersedes():
			cs.Rewrites = append(cs.Rewrites, Rewrite{OldExternalID: ev.raw.PendingExternalID, Posted: ev.raw})
		default:
			cs.Upserts = append(cs.Upserts, ev.raw)
		}
		switch ev.kind {
		case kindAdded:
			cs.Added++
		case kindModified:
			cs.Modified++
		}
	}
	return cs
}

// Events returns every upsert and rewrite target, in order.
func (cs ChangeSet) Events() []models.RawTransaction {
	out := make([]models.RawTransaction, 0, len(cs.Upserts)+len(cs.Rewrites))
	out = append(out, cs.Upserts...)
	for _, rw := range cs.Rewrites {
		out = append(out, rw.Posted)
	}
	return out
}

// ReplaceEvents swaps in enriched events, matched by external id.
func (cs *ChangeSet) ReplaceEvents(enriched []models.RawTransaction) {
	byID := make(map[string]models.RawTransaction, len(enriched))
	for _, e := range enriched {
		byID[e.ExternalID] = e
	}
	for i, u := range cs.Upserts {
		if e, ok := byID[u.ExternalID]; ok {
			cs.Upserts[i] = e
		}
	}
	for i, rw := range cs.Rewrites {
		if e, ok := byID[rw.Posted.ExternalID]; ok {
			cs.Rewrites[i].Posted = e
		}
	}
}

func invalid(r models.RawTransaction) string {
	switch {
	case strings.TrimSpace(r.ExternalID) == "":
		return "missing transaction id"
	case strings.TrimSpace(r.ExternalAccountID) == "":
		return "missing account id"
	case r.Date.IsZero():
		return "missing date"
	}
	return ""
}
