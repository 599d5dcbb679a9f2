package services

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/eventdesk/api/internal/domain"
)

func TestCanTransitionTable(t *testing.T) {
	allowed := map[[2]domain.OrderStatus]bool{
		{domain.OrderStatusPending, domain.OrderStatusQuoted}:      true,
		{domain.OrderStatusPending, domain.OrderStatusConfirmed}:   true,
		{domain.OrderStatusPending, domain.OrderStatusCancelled}:   true,
		{domain.OrderStatusQuoted, domain.OrderStatusConfirmed}:    true,
		{domain.OrderStatusQuoted, domain.OrderStatusCancelled}:    true,
		{domain.OrderStatusQuoted, domain.OrderStatusPending}:      true,
		{domain.OrderStatusConfirmed, domain.OrderStatusCompleted}: true,
		{domain.OrderStatusConfirmed, domain.OrderStatusCancelled}: true,
	}
	for _, from := range domain.OrderStatuses {
		for _, to := range domain.OrderStatuses {
			t.Run(fmt.Sprintf("%s->%s", from, to), func(t *testing.T) {
				assert.Equal(t, allowed[[2]domain.OrderStatus{from, to}], CanTransition(from, to))
			})
		}
	}
}

func TestTerminalStatusesHaveNoTransitions(t *testing.T) {
	for _, status := range domain.OrderStatuses {
		if status.Terminal() {
			assert.Empty(t, AllowedTransitions(status), status)
		}
	}
}

func TestAllowedTransitionsReturnsCopy(t *testing.T) {
	got := AllowedTransitions(domain.OrderStatusPending)
	got[0] = domain.OrderStatusCompleted
	assert.True(t, CanTransition(domain.OrderStatusPending, domain.OrderStatusQuoted))
	assert.False(t, CanTransition(domain.OrderStatusPending, domain.OrderStatusCompleted))
}

func TestApplyTransitionAppendsHistory(t *testing.T) {
	created := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	now := created.Add(time.Hour)
	order := newPendingOrder(t, created)
	actor := domain.Actor{ID: "admin-2", DisplayName: "Huda"}

	require.NoError(t, ApplyTransition(&order, domain.OrderStatusConfirmed, actor, "", now))

	assert.Equal(t, domain.OrderStatusConfirmed, order.Status)
	require.Len(t, order.StatusHistory, 2)
	last, ok := order.LastStatusChange()
	require.True(t, ok)
	assert.Equal(t, domain.StatusChange{
		Status:    domain.OrderStatusConfirmed,
		ActorID:   "admin-2",
		ActorName: "Huda",
		ChangedAt: now,
		Notes:     "status changed to confirmed",
	}, last)
	assert.Equal(t, now, order.UpdatedAt)
}

func TestApplyTransitionRejectsWithoutMutation(t *testing.T) {
	created := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	cases := []struct {
		name   string
		from   domain.OrderStatus
		target domain.OrderStatus
	}{
		{name: "completed is terminal", from: domain.OrderStatusCompleted, target: domain.OrderStatusPending},
		{name: "cancelled is terminal", from: domain.OrderStatusCancelled, target: domain.OrderStatusQuoted},
		{name: "self transition", from: domain.OrderStatusPending, target: domain.OrderStatusPending},
		{name: "skip confirmation", from: domain.OrderStatusPending, target: domain.OrderStatusCompleted},
		{name: "unknown target", from: domain.OrderStatusPending, target: domain.OrderStatus("archived")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := newPendingOrder(t, created)
			order.Status = tc.from
			before := len(order.StatusHistory)

			err := ApplyTransition(&order, tc.target, domain.Actor{ID: "admin"}, "", created.Add(time.Minute))

			require.ErrorIs(t, err, ErrInvalidTransition)
			assert.True(t, IsStateError(err))
			assert.Equal(t, tc.from, order.Status)
			assert.Len(t, order.StatusHistory, before)
			assert.Equal(t, created, order.UpdatedAt)
		})
	}
}

func TestApplyTransitionWithdrawsQuote(t *testing.T) {
	created := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	now := created.Add(2 * time.Hour)
	order := newQuotedOrder(t, created, 5000)

	require.NoError(t, ApplyTransition(&order, domain.OrderStatusPending, domain.Actor{ID: "admin"}, "client asked for changes", now))

	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Nil(t, order.Quote)
	assert.Nil(t, order.Payment)
	require.Len(t, order.QuoteHistory, 1)
	assert.Equal(t, domain.QuoteArchiveWithdrawn, order.QuoteHistory[0].ArchiveReason)
	require.NotNil(t, order.QuoteHistory[0].ArchivedAt)
	assert.Equal(t, now, *order.QuoteHistory[0].ArchivedAt)
}

func TestApplyTransitionRefusesWithdrawalAfterPayment(t *testing.T) {
	created := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	order := newQuotedOrder(t, created, 5000)
	_, err := ApplyPayment(&order, PaymentInput{Amount: 1000, Method: domain.PaymentMethodCash}, "1", domain.Actor{ID: "admin"}, created)
	require.NoError(t, err)

	err = ApplyTransition(&order, domain.OrderStatusPending, domain.Actor{ID: "admin"}, "", created.Add(time.Hour))

	require.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Equal(t, domain.OrderStatusQuoted, order.Status)
	assert.NotNil(t, order.Quote)
}

func newPendingOrder(t *testing.T, now time.Time) domain.Order {
	t.Helper()
	order, err := domain.NewOrder("ord_test", domain.ClientRef{Name: "Mariam", Email: "mariam@example.com"}, &domain.EventDetails{
		EventType:  domain.EventTypeWedding,
		EventDate:  now.AddDate(0, 2, 0),
		GuestCount: 150,
		Venue:      domain.Venue{Name: "Grand Hall", City: "Dubai"},
	}, domain.Actor{ID: "client-1", DisplayName: "Mariam"}, now)
	require.NoError(t, err)
	order.OrderNumber = "EVT-0001"
	return order
}

func newQuotedOrder(t *testing.T, now time.Time, amount int64) domain.Order {
	t.Helper()
	order := newPendingOrder(t, now)
	engine := NewQuoteEngine(QuoteEngineDeps{IDGenerator: func() string { return "q1" }})
	quote, err := engine.BuildQuote(QuoteInput{Items: []domain.QuoteItem{{Label: "Package", Amount: amount}}}, domain.Actor{ID: "admin"}, now)
	require.NoError(t, err)
	_, err = AttachQuote(&order, quote, domain.Actor{ID: "admin"}, now)
	require.NoError(t, err)
	return order
}
