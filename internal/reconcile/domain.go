package reconcile

import (
	"errors"
	"time"
)

// Kind classifies a supplier line against the inquiry's item list.
type Kind string

const (
	KindMatched     Kind = "matched"
	KindExtra       Kind = "extra"
	KindMissing     Kind = "missing"
	KindReplacement Kind = "replacement"
	KindPromotion   Kind = "promotion"
)

// InquiryItem is one requested line of an inquiry. ExcelRowIndex preserves
// the row order of the uploaded sheet and defines stable display ordering.
type InquiryItem struct {
	InquiryItemID int64
	ItemID        string
	RequestedQty  float64
	ExcelRowIndex int
	RetailPrice   float64
}

// SupplierResponseLine is one supplier's quote for one item on one date.
type SupplierResponseLine struct {
	SupplierID    int64
	ItemID        string
	PriceQuoted   float64
	ResponseDate  time.Time
	Status        string
	IsPromotion   bool
	PromotionID   int64
	PromotionName string
	Notes         string
}

// PromotionItem is a time-bounded special price from a supplier's promotion
// list. Zero Start/End mean an open bound.
type PromotionItem struct {
	PromotionID    int64
	PromotionName  string
	SupplierID     int64
	ItemID         string
	PromotionPrice float64
	StartDate      time.Time
	EndDate        time.Time
	IsActive       bool
}

// ActiveAt reports whether the promotion applies at the given instant.
func (p PromotionItem) ActiveAt(now time.Time) bool {
	if !p.IsActive {
		return false
	}
	if !p.StartDate.IsZero() && now.Before(p.StartDate) {
		return false
	}
	if !p.EndDate.IsZero() && now.After(p.EndDate) {
		return false
	}
	return true
}

// ClassifiedResponse is the normalizer's output record. Derived, never stored.
type ClassifiedResponse struct {
	ItemID              string
	SupplierID          int64
	ResponseDate        time.Time
	Kind                Kind
	EffectiveItemID     string
	ReplacementTargetID string
	Price               float64
	IsPromotion         bool
	PromotionID         int64
	PromotionName       string
}

// Diagnostic reports a line that was skipped or collapsed during
// normalization. Normalization never aborts on a bad record.
type Diagnostic struct {
	SupplierID int64
	ItemID     string
	Date       time.Time
	Reason     string
}

// SupplierDateSummary aggregates one supplier's submission for one date.
type SupplierDateSummary struct {
	SupplierID       int64
	SupplierName     string
	Date             time.Time
	TotalCount       int
	ExtraCount       int
	ReplacementCount int
	MissingCount     int
	MatchedItems     []string
	ExtraItems       []string
	MissingItems     []string
	ReplacementItems []string
}

var (
	// ErrInvalidPrice marks a line whose quoted price is unusable.
	ErrInvalidPrice = errors.New("reconcile: invalid price")
	// ErrMissingSupplier marks a line without a supplier.
	ErrMissingSupplier = errors.New("reconcile: missing supplier")
	// ErrMissingItem marks a line without an item id.
	ErrMissingItem = errors.New("reconcile: missing item id")
	// ErrDuplicateLine marks a line collapsed by deduplication.
	ErrDuplicateLine = errors.New("reconcile: duplicate line dropped")
)
