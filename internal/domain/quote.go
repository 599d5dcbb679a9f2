package domain

import "time"

// QuoteItem is one priced line of a quote breakdown. Amounts are in minor currency units.
type QuoteItem struct {
	Label       string
	Description string
	Amount      int64
}

// Quote is an immutable priced offer attached to an order.
type Quote struct {
	ID          string
	Items       []QuoteItem
	Total       int64
	Discount    int64
	FinalAmount int64
	Currency    string
	Notes       string
	ValidUntil  time.Time
	CreatedAt   time.Time
	CreatedBy   Actor

	// Set only on entries archived in Order.QuoteHistory.
	ArchivedAt    *time.Time
	ArchiveReason string
}

const (
	QuoteArchiveReplaced  = "replaced"
	QuoteArchiveWithdrawn = "withdrawn"
)

// Expired reports whether the quote validity window has passed at now.
func (q Quote) Expired(now time.Time) bool {
	return !q.ValidUntil.IsZero() && now.After(q.ValidUntil)
}

// Archived returns a copy of the quote marked as superseded.
func (q Quote) Archived(reason string, at time.Time) Quote {
	archived := q
	archived.Items = append([]QuoteItem(nil), q.Items...)
	ts := at
	archived.ArchivedAt = &ts
	archived.ArchiveReason = reason
	return archived
}
