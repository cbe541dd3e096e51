package compare

import (
	"fmt"
	"math"
	"sort"
)

// Session owns one user's interactive comparison: submitted prices per
// (item, group), temporary price and quantity overrides, the active-group
// set, and a lazily invalidated best-price cache. A session has a single
// writer; edits are applied in arrival order and every read sees the latest
// override map.
type Session struct {
	policy PromotionPolicy

	prices    map[string]map[GroupKey]float64
	overrides map[string]map[GroupKey]float64
	active    map[GroupKey]bool

	requestedQty map[string]float64
	qtyOverride  map[string]float64
	rowIndex     map[string]int

	best  map[string]bestEntry
	dirty map[string]bool
}

type bestEntry struct {
	price float64
	ok    bool
}

// NewSession constructs an empty session under the given promotion policy.
func NewSession(policy PromotionPolicy) *Session {
	if policy == "" {
		policy = PromotionsCompete
	}
	return &Session{
		policy:       policy,
		prices:       make(map[string]map[GroupKey]float64),
		overrides:    make(map[string]map[GroupKey]float64),
		active:       make(map[GroupKey]bool),
		requestedQty: make(map[string]float64),
		qtyOverride:  make(map[string]float64),
		rowIndex:     make(map[string]int),
		best:         make(map[string]bestEntry),
		dirty:        make(map[string]bool),
	}
}

// AddItem registers an inquiry item with its requested quantity and row
// order. Items must be added before quotes against them are read back.
func (s *Session) AddItem(itemID string, requestedQty float64, rowIndex int) {
	if _, ok := s.prices[itemID]; !ok {
		s.prices[itemID] = make(map[GroupKey]float64)
	}
	s.requestedQty[itemID] = requestedQty
	s.rowIndex[itemID] = rowIndex
	s.dirty[itemID] = true
}

// AddQuote records a submitted price for an item from one group and marks
// the group active. Prices ≤ 0 or non-finite are ignored, never treated as 0.
func (s *Session) AddQuote(itemID string, group GroupKey, price float64) {
	if !validPrice(price) {
		return
	}
	if _, ok := s.prices[itemID]; !ok {
		s.prices[itemID] = make(map[GroupKey]float64)
	}
	s.prices[itemID][group] = price
	if _, ok := s.active[group]; !ok {
		s.active[group] = true
	}
	s.dirty[itemID] = true
}

// EditKind enumerates session edits.
type EditKind string

const (
	EditSetOverride   EditKind = "set_override"
	EditClearOverride EditKind = "clear_override"
	EditSetQuantity   EditKind = "set_quantity"
	EditToggleGroup   EditKind = "toggle_group"
)

// Edit is one interactive change to the session.
type Edit struct {
	Kind   EditKind
	ItemID string
	Group  GroupKey
	Price  float64
	Qty    float64
	Active bool
}

// Apply folds one edit into the session. Invalid numeric input is coerced to
// "absent" rather than rejected, so the comparison stays a total function.
func (s *Session) Apply(edit Edit) error {
	switch edit.Kind {
	case EditSetOverride:
		if _, ok := s.prices[edit.ItemID]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownItem, edit.ItemID)
		}
		if !validPrice(edit.Price) {
			delete(s.overrides[edit.ItemID], edit.Group)
			s.dirty[edit.ItemID] = true
			return nil
		}
		if s.overrides[edit.ItemID] == nil {
			s.overrides[edit.ItemID] = make(map[GroupKey]float64)
		}
		s.overrides[edit.ItemID][edit.Group] = edit.Price
		s.dirty[edit.ItemID] = true
	case EditClearOverride:
		delete(s.overrides[edit.ItemID], edit.Group)
		s.dirty[edit.ItemID] = true
	case EditSetQuantity:
		if _, ok := s.prices[edit.ItemID]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownItem, edit.ItemID)
		}
		if edit.Qty <= 0 || math.IsNaN(edit.Qty) || math.IsInf(edit.Qty, 0) {
			delete(s.qtyOverride, edit.ItemID)
			return nil
		}
		s.qtyOverride[edit.ItemID] = edit.Qty
	case EditToggleGroup:
		s.active[edit.Group] = edit.Active
		s.invalidateAll()
	default:
		return fmt.Errorf("compare: unknown edit kind %q", edit.Kind)
	}
	return nil
}

// SetGroupActive toggles one pricing source in or out of the comparison.
func (s *Session) SetGroupActive(group GroupKey, active bool) {
	_ = s.Apply(Edit{Kind: EditToggleGroup, Group: group, Active: active})
}

func (s *Session) invalidateAll() {
	for itemID := range s.prices {
		s.dirty[itemID] = true
	}
}

// priceFor returns the effective price of a group for an item: the override
// when present, else the submitted quote.
func (s *Session) priceFor(itemID string, group GroupKey) (float64, bool) {
	if ov, ok := s.overrides[itemID][group]; ok {
		return ov, true
	}
	p, ok := s.prices[itemID][group]
	return p, ok
}

// BestPrice returns the minimum effective price over active groups, or false
// when no group has a usable price. Recomputation is lazy: only items
// touched since the last read are recomputed.
func (s *Session) BestPrice(itemID string) (float64, bool) {
	if !s.dirty[itemID] {
		entry, ok := s.best[itemID]
		if ok {
			return entry.price, entry.ok
		}
	}
	best := math.Inf(1)
	found := false
	for group := range s.prices[itemID] {
		if !s.active[group] {
			continue
		}
		price, ok := s.priceFor(itemID, group)
		if !ok || !validPrice(price) {
			continue
		}
		if price < best {
			best = price
			found = true
		}
	}
	entry := bestEntry{price: best, ok: found}
	if !found {
		entry.price = 0
	}
	s.best[itemID] = entry
	delete(s.dirty, itemID)
	return entry.price, entry.ok
}

// IsWinning reports whether a group's effective price is within Epsilon of
// the item's best price. All groups inside the tolerance are co-winners.
func (s *Session) IsWinning(itemID string, group GroupKey) bool {
	for _, g := range s.winningGroups(itemID) {
		if g == group {
			return true
		}
	}
	return false
}

func (s *Session) winningGroups(itemID string) []GroupKey {
	best, ok := s.BestPrice(itemID)
	if !ok {
		return nil
	}
	var winners []GroupKey
	for group := range s.prices[itemID] {
		if !s.active[group] {
			continue
		}
		price, ok := s.priceFor(itemID, group)
		if !ok || !validPrice(price) {
			continue
		}
		if math.Abs(price-best) <= Epsilon {
			winners = append(winners, group)
		}
	}
	if s.policy == PromotionsPreferred {
		winners = demoteTiedRegulars(winners, func(g GroupKey) float64 {
			p, _ := s.priceFor(itemID, g)
			return p
		})
	}
	sort.Slice(winners, func(i, j int) bool {
		if winners[i].SupplierID != winners[j].SupplierID {
			return winners[i].SupplierID < winners[j].SupplierID
		}
		return winners[i].PromotionID < winners[j].PromotionID
	})
	return winners
}

// demoteTiedRegulars drops a supplier's regular list from the winner set
// when its own promotion ties it within Epsilon.
func demoteTiedRegulars(winners []GroupKey, priceOf func(GroupKey) float64) []GroupKey {
	promoPrice := make(map[int64]float64)
	for _, g := range winners {
		if g.IsPromotion() {
			promoPrice[g.SupplierID] = priceOf(g)
		}
	}
	if len(promoPrice) == 0 {
		return winners
	}
	kept := winners[:0]
	for _, g := range winners {
		if !g.IsPromotion() {
			if pp, ok := promoPrice[g.SupplierID]; ok && math.Abs(priceOf(g)-pp) <= Epsilon {
				continue
			}
		}
		kept = append(kept, g)
	}
	return kept
}

// DeltaPercent returns the signed percentage above the best price, rounded
// to two decimals. It is 0 when either operand is absent or zero, never
// NaN or Inf.
func (s *Session) DeltaPercent(itemID string, group GroupKey) float64 {
	best, ok := s.BestPrice(itemID)
	if !ok || best == 0 {
		return 0
	}
	price, ok := s.priceFor(itemID, group)
	if !ok || !validPrice(price) {
		return 0
	}
	return round2((price - best) / best * 100)
}

// FormatDelta renders a delta with an explicit sign and two decimals.
func FormatDelta(delta float64) string {
	return fmt.Sprintf("%+.2f%%", delta)
}

// EffectiveQty returns the user-edited quantity when present, else the
// requested quantity.
func (s *Session) EffectiveQty(itemID string) float64 {
	if qty, ok := s.qtyOverride[itemID]; ok {
		return qty
	}
	return s.requestedQty[itemID]
}

// Result assembles the comparison outcome for one item.
func (s *Session) Result(itemID string) (Result, bool) {
	groups, ok := s.prices[itemID]
	if !ok {
		return Result{}, false
	}
	best, hasBest := s.BestPrice(itemID)
	res := Result{
		ItemID:        itemID,
		BestPrice:     best,
		HasBest:       hasBest,
		WinningGroups: s.winningGroups(itemID),
		PerGroupPrice: make(map[GroupKey]float64, len(groups)),
		DeltaPercent:  make(map[GroupKey]float64, len(groups)),
	}
	for group := range groups {
		if !s.active[group] {
			continue
		}
		price, ok := s.priceFor(itemID, group)
		if !ok || !validPrice(price) {
			continue
		}
		res.PerGroupPrice[group] = price
		res.DeltaPercent[group] = s.DeltaPercent(itemID, group)
	}
	return res, true
}

// Results returns the comparison outcome for every item, keyed by item id.
func (s *Session) Results() map[string]Result {
	out := make(map[string]Result, len(s.prices))
	for itemID := range s.prices {
		if res, ok := s.Result(itemID); ok {
			out[itemID] = res
		}
	}
	return out
}

// ItemIDs lists the session's items in inquiry row order.
func (s *Session) ItemIDs() []string {
	ids := make([]string, 0, len(s.prices))
	for id := range s.prices {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ri, rj := s.rowIndex[ids[i]], s.rowIndex[ids[j]]
		if ri != rj {
			return ri < rj
		}
		return ids[i] < ids[j]
	})
	return ids
}

// Groups lists every known group with its active flag.
func (s *Session) Groups() map[GroupKey]bool {
	out := make(map[GroupKey]bool, len(s.active))
	for g, active := range s.active {
		out[g] = active
	}
	return out
}

// Summarize reports one group's totals: items it quotes, items it wins, and
// the order value of those wins at effective quantities.
func (s *Session) Summarize(group GroupKey) GroupSummary {
	var sum GroupSummary
	for itemID := range s.prices {
		price, ok := s.priceFor(itemID, group)
		if !ok || !validPrice(price) {
			continue
		}
		sum.TotalItems++
		if s.IsWinning(itemID, group) {
			sum.WinningItems++
			sum.TotalValue += price * s.EffectiveQty(itemID)
		}
	}
	sum.TotalValue = round2(sum.TotalValue)
	return sum
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsNaN(p) && !math.IsInf(p, 0)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
