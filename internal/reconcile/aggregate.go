package reconcile

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Aggregate groups classified responses by (supplier, date) and computes
// per-group counts over distinct item ids. Groups are ordered most recent
// date first, ties broken by supplier name ascending under a collator so the
// response-list view is deterministic.
func Aggregate(classified []ClassifiedResponse, supplierNames map[int64]string) []SupplierDateSummary {
	type bucket struct {
		summary     SupplierDateSummary
		matched     map[string]bool
		extra       map[string]bool
		missing     map[string]bool
		replacement map[string]bool
	}

	buckets := make(map[groupKey]*bucket)
	var order []groupKey
	for _, cr := range classified {
		gk := groupKey{supplierID: cr.SupplierID, date: dateKey(cr.ResponseDate)}
		b, ok := buckets[gk]
		if !ok {
			b = &bucket{
				summary: SupplierDateSummary{
					SupplierID:   cr.SupplierID,
					SupplierName: supplierNames[cr.SupplierID],
					Date:         cr.ResponseDate,
				},
				matched:     make(map[string]bool),
				extra:       make(map[string]bool),
				missing:     make(map[string]bool),
				replacement: make(map[string]bool),
			}
			buckets[gk] = b
			order = append(order, gk)
		}
		switch cr.Kind {
		case KindMatched, KindPromotion:
			b.matched[cr.ItemID] = true
		case KindExtra:
			b.extra[cr.ItemID] = true
		case KindMissing:
			b.missing[cr.ItemID] = true
		case KindReplacement:
			b.replacement[cr.ItemID] = true
		}
	}

	out := make([]SupplierDateSummary, 0, len(buckets))
	for _, gk := range order {
		b := buckets[gk]
		s := b.summary
		s.MatchedItems = sortedKeys(b.matched)
		s.ExtraItems = sortedKeys(b.extra)
		s.MissingItems = sortedKeys(b.missing)
		s.ReplacementItems = sortedKeys(b.replacement)
		s.ExtraCount = len(s.ExtraItems)
		s.MissingCount = len(s.MissingItems)
		s.ReplacementCount = len(s.ReplacementItems)
		s.TotalCount = len(s.MatchedItems) + s.ExtraCount + s.ReplacementCount
		out = append(out, s)
	}

	coll := collate.New(language.Und)
	sort.SliceStable(out, func(i, j int) bool {
		di, dj := dateKey(out[i].Date), dateKey(out[j].Date)
		if di != dj {
			return di > dj
		}
		return coll.CompareString(out[i].SupplierName, out[j].SupplierName) < 0
	})
	return out
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
