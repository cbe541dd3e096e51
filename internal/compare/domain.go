package compare

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Epsilon is the winner tolerance in currency units. It absorbs floating
// rounding; genuinely near prices within it are co-winners.
const Epsilon = 0.01

// PromotionPolicy controls how a promotion group competes against the same
// supplier's regular list at an equal price.
type PromotionPolicy string

const (
	// PromotionsCompete treats a promotion as an independent group; equal
	// prices are co-winners.
	PromotionsCompete PromotionPolicy = "compete"
	// PromotionsPreferred breaks an exact tie between a supplier's promotion
	// and its regular list in favour of the promotion.
	PromotionsPreferred PromotionPolicy = "preferred"
)

// GroupKey identifies a pricing source: a supplier's regular list, or one of
// its promotions when PromotionID is set.
type GroupKey struct {
	SupplierID  int64
	PromotionID int64
}

// IsPromotion reports whether the group is a promotion price list.
func (g GroupKey) IsPromotion() bool {
	return g.PromotionID != 0
}

// String renders the key as "supplier" or "supplier:promotion", the form
// used in session payloads and API requests.
func (g GroupKey) String() string {
	if g.PromotionID == 0 {
		return strconv.FormatInt(g.SupplierID, 10)
	}
	return fmt.Sprintf("%d:%d", g.SupplierID, g.PromotionID)
}

// ParseGroupKey parses the String form back into a GroupKey.
func ParseGroupKey(s string) (GroupKey, error) {
	supplier, promotion, found := strings.Cut(s, ":")
	sid, err := strconv.ParseInt(supplier, 10, 64)
	if err != nil || sid == 0 {
		return GroupKey{}, fmt.Errorf("%w: %q", ErrBadGroupKey, s)
	}
	g := GroupKey{SupplierID: sid}
	if found {
		pid, err := strconv.ParseInt(promotion, 10, 64)
		if err != nil || pid == 0 {
			return GroupKey{}, fmt.Errorf("%w: %q", ErrBadGroupKey, s)
		}
		g.PromotionID = pid
	}
	return g, nil
}

// Result is the per-item outcome of a comparison. Recomputed on demand,
// never persisted beyond the session.
type Result struct {
	ItemID        string
	BestPrice     float64
	HasBest       bool
	WinningGroups []GroupKey
	PerGroupPrice map[GroupKey]float64
	DeltaPercent  map[GroupKey]float64
}

// GroupSummary aggregates one group's standing across all items.
type GroupSummary struct {
	TotalItems   int
	WinningItems int
	TotalValue   float64
}

var (
	// ErrBadGroupKey reports an unparseable group key.
	ErrBadGroupKey = errors.New("compare: bad group key")
	// ErrUnknownItem reports an edit against an item the session never loaded.
	ErrUnknownItem = errors.New("compare: unknown item")
)
