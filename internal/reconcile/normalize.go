package reconcile

import (
	"math"
	"sort"
	"time"

	"github.com/odyssey-erp/sourcing/internal/refchain"
)

// dateKey compares calendar dates only. Responses, promotions and reference
// changes recorded on the same day must line up regardless of time-of-day.
func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

type groupKey struct {
	supplierID int64
	date       string
}

// lineKey scopes dedup to one pricing source. A supplier's regular list and
// its promotions are distinct concurrent sources, so same-day quotes from
// different sources never collapse into each other.
type lineKey struct {
	supplierID  int64
	itemID      string
	date        string
	isPromotion bool
	promotionID int64
}

// Normalize classifies every supplier line (and every active promotion,
// admitted as a promotion-flagged line) against the inquiry's item list and
// synthesizes missing entries per (supplier, date) group. It is a pure
// function; bad records become diagnostics, never errors.
func Normalize(inquiryItems []InquiryItem, lines []SupplierResponseLine, promotions []PromotionItem, idx *refchain.Index, now time.Time) ([]ClassifiedResponse, []Diagnostic) {
	inquiry := make(map[string]InquiryItem, len(inquiryItems))
	for _, it := range inquiryItems {
		if _, ok := inquiry[it.ItemID]; !ok {
			inquiry[it.ItemID] = it
		}
	}

	raw := make([]SupplierResponseLine, 0, len(lines)+len(promotions))
	raw = append(raw, lines...)
	for _, p := range promotions {
		if !p.ActiveAt(now) {
			continue
		}
		raw = append(raw, SupplierResponseLine{
			SupplierID:    p.SupplierID,
			ItemID:        p.ItemID,
			PriceQuoted:   p.PromotionPrice,
			ResponseDate:  now,
			IsPromotion:   true,
			PromotionID:   p.PromotionID,
			PromotionName: p.PromotionName,
		})
	}

	var diags []Diagnostic

	// Dedup within (supplier, item, calendar date, pricing source): the
	// lowest quoted price wins. Relying on arrival order here would make
	// reconciliation depend on upload order, so the rule is explicit.
	deduped := make(map[lineKey]SupplierResponseLine, len(raw))
	var order []lineKey
	for _, line := range raw {
		switch {
		case line.SupplierID == 0:
			diags = append(diags, Diagnostic{ItemID: line.ItemID, Date: line.ResponseDate, Reason: ErrMissingSupplier.Error()})
			continue
		case line.ItemID == "":
			diags = append(diags, Diagnostic{SupplierID: line.SupplierID, Date: line.ResponseDate, Reason: ErrMissingItem.Error()})
			continue
		case line.PriceQuoted <= 0 || math.IsNaN(line.PriceQuoted) || math.IsInf(line.PriceQuoted, 0):
			diags = append(diags, Diagnostic{SupplierID: line.SupplierID, ItemID: line.ItemID, Date: line.ResponseDate, Reason: ErrInvalidPrice.Error()})
			continue
		}
		key := lineKey{
			supplierID:  line.SupplierID,
			itemID:      line.ItemID,
			date:        dateKey(line.ResponseDate),
			isPromotion: line.IsPromotion,
			promotionID: line.PromotionID,
		}
		existing, ok := deduped[key]
		if !ok {
			deduped[key] = line
			order = append(order, key)
			continue
		}
		diags = append(diags, Diagnostic{SupplierID: line.SupplierID, ItemID: line.ItemID, Date: line.ResponseDate, Reason: ErrDuplicateLine.Error()})
		if line.PriceQuoted < existing.PriceQuoted {
			deduped[key] = line
		}
	}

	groups := make(map[groupKey][]SupplierResponseLine)
	var groupOrder []groupKey
	for _, key := range order {
		line := deduped[key]
		gk := groupKey{supplierID: key.supplierID, date: key.date}
		if _, ok := groups[gk]; !ok {
			groupOrder = append(groupOrder, gk)
		}
		groups[gk] = append(groups[gk], line)
	}

	var out []ClassifiedResponse
	for _, gk := range groupOrder {
		out = append(out, classifyGroup(groups[gk], inquiry, inquiryItems, idx)...)
	}
	return out, diags
}

// attributeLine finds the inquiry item a supplier line prices. A line can
// reach the inquiry three ways: it quotes the inquiry id directly, its id
// resolves forward to an inquiry id (supplier still quoting a superseded id),
// or an inquiry id resolves to it (supplier already quoting the successor of
// an inquiry item). The bool reports a direct quote.
func attributeLine(itemID, resolved string, inquiry map[string]InquiryItem, idx *refchain.Index) (string, bool) {
	if _, ok := inquiry[itemID]; ok {
		return itemID, true
	}
	if resolved != itemID {
		if _, ok := inquiry[resolved]; ok {
			return resolved, false
		}
	}
	if idx != nil {
		// IncomingReferences is sorted, so the pick is deterministic when
		// several superseded inquiry ids point at the same successor.
		for _, in := range idx.IncomingReferences(itemID) {
			if _, ok := inquiry[in]; ok {
				return in, false
			}
		}
	}
	return "", false
}

// classifyGroup resolves, classifies and backfills one (supplier, date) group.
func classifyGroup(lines []SupplierResponseLine, inquiry map[string]InquiryItem, inquiryItems []InquiryItem, idx *refchain.Index) []ClassifiedResponse {
	// Direct matches claim their inquiry ids first so a replacement can never
	// shadow an item the supplier also quoted under its current id.
	directClaims := make(map[string]bool, len(lines))
	for _, line := range lines {
		if _, ok := inquiry[line.ItemID]; ok {
			directClaims[line.ItemID] = true
		}
	}

	claimed := make(map[string]bool, len(lines))
	out := make([]ClassifiedResponse, 0, len(lines))
	for _, line := range lines {
		resolved := line.ItemID
		if idx != nil {
			resolved = idx.Resolve(line.ItemID)
		}
		cr := ClassifiedResponse{
			ItemID:          line.ItemID,
			SupplierID:      line.SupplierID,
			ResponseDate:    line.ResponseDate,
			EffectiveItemID: resolved,
			Price:           line.PriceQuoted,
			IsPromotion:     line.IsPromotion,
			PromotionID:     line.PromotionID,
			PromotionName:   line.PromotionName,
		}
		target, direct := attributeLine(line.ItemID, resolved, inquiry, idx)
		switch {
		case target == "":
			cr.Kind = KindExtra
		case direct || directClaims[target]:
			// Either the line quotes the inquiry id itself, or the supplier
			// already quoted the target under its current id and this
			// superseded-id line is just another quote for it.
			cr.Kind = KindMatched
			if line.IsPromotion {
				cr.Kind = KindPromotion
			}
			cr.EffectiveItemID = target
			claimed[target] = true
		default:
			cr.Kind = KindReplacement
			cr.EffectiveItemID = target
			cr.ReplacementTargetID = target
			claimed[target] = true
		}
		out = append(out, cr)
	}

	if len(lines) == 0 {
		return out
	}
	supplierID := lines[0].SupplierID
	date := lines[0].ResponseDate

	// Inquiry items nobody quoted in this group become synthetic missing
	// entries, deduplicated by item id.
	missing := make([]string, 0)
	seen := make(map[string]bool, len(inquiryItems))
	for _, it := range inquiryItems {
		if claimed[it.ItemID] || seen[it.ItemID] {
			continue
		}
		seen[it.ItemID] = true
		missing = append(missing, it.ItemID)
	}
	sort.Strings(missing)
	for _, id := range missing {
		out = append(out, ClassifiedResponse{
			ItemID:          id,
			SupplierID:      supplierID,
			ResponseDate:    date,
			Kind:            KindMissing,
			EffectiveItemID: id,
		})
	}
	return out
}
