package services

import (
	"fmt"
	"slices"
	"strings"
	"time"

	domain "github.com/eventdesk/api/internal/domain"
)

var orderTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:   {domain.OrderStatusQuoted, domain.OrderStatusConfirmed, domain.OrderStatusCancelled},
	domain.OrderStatusQuoted:    {domain.OrderStatusConfirmed, domain.OrderStatusCancelled, domain.OrderStatusPending},
	domain.OrderStatusConfirmed: {domain.OrderStatusCompleted, domain.OrderStatusCancelled},
}

// CanTransition reports whether from -> to is in the transition table. Self transitions and
// transitions out of terminal states are never allowed.
func CanTransition(from, to domain.OrderStatus) bool {
	return slices.Contains(orderTransitions[from], to)
}

// AllowedTransitions returns the statuses reachable from the given status.
func AllowedTransitions(from domain.OrderStatus) []domain.OrderStatus {
	return slices.Clone(orderTransitions[from])
}

// ApplyTransition moves order to target and appends the matching history entry. On failure the
// order is left untouched.
//
// Reverting quoted -> pending withdraws the current quote: it is archived to QuoteHistory and the
// payment ledger is cleared. The withdrawal is refused once payments were recorded against it.
func ApplyTransition(order *domain.Order, target domain.OrderStatus, actor domain.Actor, notes string, now time.Time) error {
	if order == nil {
		return fmt.Errorf("%w: order is required", ErrOrderInvalidInput)
	}
	if !target.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, target)
	}
	if !CanTransition(order.Status, target) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, target)
	}
	withdraw := order.Status == domain.OrderStatusQuoted && target == domain.OrderStatusPending
	if withdraw && order.Payment != nil && len(order.Payment.Transactions) > 0 {
		return fmt.Errorf("%w: quote has recorded payments", ErrInvalidTransition)
	}

	notes = strings.TrimSpace(notes)
	if notes == "" {
		notes = fmt.Sprintf("status changed to %s", target)
	}
	if withdraw && order.Quote != nil {
		order.QuoteHistory = append(order.QuoteHistory, order.Quote.Archived(domain.QuoteArchiveWithdrawn, now))
		order.Quote = nil
		order.Payment = nil
	}
	order.Status = target
	order.StatusHistory = append(order.StatusHistory, domain.StatusChange{
		Status:    target,
		ActorID:   actor.ID,
		ActorName: actor.DisplayName,
		ChangedAt: now,
		Notes:     notes,
	})
	order.UpdatedAt = now
	return nil
}
