// Package orders turns a finished price comparison into per-supplier order
// candidates.
package orders

import (
	"sort"

	"github.com/odyssey-erp/sourcing/internal/compare"
)

// OrderLine is one candidate purchase line for a supplier.
type OrderLine struct {
	ItemID      string
	SupplierID  int64
	PromotionID int64
	UnitPrice   float64
	Quantity    float64
}

// Candidates is the builder output: order lines grouped by supplier, plus
// the items no selected group won. Unfulfillable items are reporting data
// for the caller, not an error.
type Candidates struct {
	BySupplier    map[int64][]OrderLine
	Unfulfillable []string
}

// Build emits one order line per item whose winning group is among the
// selected groups. When several selected groups co-win an item the first in
// the result's deterministic winner order takes it. Quantity is the
// effective quantity the caller resolved (override else requested).
// Suppliers that win nothing yield no order.
func Build(results map[string]compare.Result, selected map[compare.GroupKey]bool, quantities map[string]float64, rowOrder map[string]int) Candidates {
	out := Candidates{BySupplier: make(map[int64][]OrderLine)}

	itemIDs := make([]string, 0, len(results))
	for itemID := range results {
		itemIDs = append(itemIDs, itemID)
	}
	sort.Slice(itemIDs, func(i, j int) bool {
		ri, rj := rowOrder[itemIDs[i]], rowOrder[itemIDs[j]]
		if ri != rj {
			return ri < rj
		}
		return itemIDs[i] < itemIDs[j]
	})

	for _, itemID := range itemIDs {
		res := results[itemID]
		winner, ok := pickWinner(res, selected)
		if !ok {
			out.Unfulfillable = append(out.Unfulfillable, itemID)
			continue
		}
		price, ok := res.PerGroupPrice[winner]
		if !ok {
			out.Unfulfillable = append(out.Unfulfillable, itemID)
			continue
		}
		out.BySupplier[winner.SupplierID] = append(out.BySupplier[winner.SupplierID], OrderLine{
			ItemID:      itemID,
			SupplierID:  winner.SupplierID,
			PromotionID: winner.PromotionID,
			UnitPrice:   price,
			Quantity:    quantities[itemID],
		})
	}
	return out
}

func pickWinner(res compare.Result, selected map[compare.GroupKey]bool) (compare.GroupKey, bool) {
	for _, g := range res.WinningGroups {
		if selected[g] {
			return g, true
		}
	}
	return compare.GroupKey{}, false
}
