package inquiry

import (
	"errors"
	"time"
)

// Inquiry lifecycle statuses.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// Inquiry is a buyer's request for quotation.
type Inquiry struct {
	ID        int64
	Number    string
	Status    Status
	Note      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Item is a catalog record. Items are never deleted while an inquiry or a
// reference-change event still points at them.
type Item struct {
	ItemID       string
	Name         string
	Stock        float64
	Sales        float64
	RetailPrice  float64
	ImportMarkup float64
}

var (
	// ErrNotFound indicates a missing inquiry or item.
	ErrNotFound = errors.New("inquiry: not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("inquiry: invalid input")
	// ErrDuplicateEvent indicates an already-recorded reference change.
	ErrDuplicateEvent = errors.New("inquiry: duplicate reference change")
	// ErrSelfReference indicates a reference change pointing an item at itself.
	ErrSelfReference = errors.New("inquiry: item cannot reference itself")
)
