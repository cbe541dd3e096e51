package refchain

import (
	"errors"
	"time"
)

// Source identifies who recorded a reference change.
type Source string

const (
	SourceSupplier    Source = "supplier"
	SourceUser        Source = "user"
	SourceInquiryItem Source = "inquiry_item"
)

// ReferenceChangeEvent records that one item id has been superseded by another.
// The log is append-only; the index derives the active edge per item from it.
type ReferenceChangeEvent struct {
	OriginalItemID string
	NewReferenceID string
	ChangeDate     time.Time
	Source         Source
	SupplierID     int64
	Notes          string
}

// Diagnostic describes an event that was dropped while building the index.
type Diagnostic struct {
	OriginalItemID string
	Reason         string
}

var (
	// ErrSelfReference indicates an event pointing an item at itself.
	ErrSelfReference = errors.New("refchain: item references itself")
	// ErrEmptyID indicates an event with a missing item id.
	ErrEmptyID = errors.New("refchain: empty item id")
)
