package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/eventdesk/api/internal/domain"
	"github.com/eventdesk/api/internal/repositories"
)

func repoErrorOf(t *testing.T, err error) repositories.RepositoryError {
	t.Helper()
	var repoErr repositories.RepositoryError
	require.True(t, errors.As(err, &repoErr), "expected repository error, got %v", err)
	return repoErr
}

func TestOrderRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	registry := newTestRegistry(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	order := sampleOrder(t, "ord_1", "EVT-0001", now)
	require.NoError(t, registry.Orders().Create(ctx, order))

	loaded, err := registry.Orders().Get(ctx, "ord_1")
	require.NoError(t, err)
	assert.Equal(t, "EVT-0001", loaded.OrderNumber)
	assert.Equal(t, domain.OrderTypeEvent, loaded.Type)
	assert.Equal(t, domain.OrderStatusPending, loaded.Status)
	require.NotNil(t, loaded.Event)
	assert.Equal(t, 120, loaded.Event.GuestCount)
	require.Len(t, loaded.StatusHistory, 1)

	byNumber, err := registry.Orders().FindByNumber(ctx, "EVT-0001")
	require.NoError(t, err)
	assert.Equal(t, "ord_1", byNumber.ID)

	_, err = registry.Orders().Get(ctx, "ord_missing")
	assert.True(t, repoErrorOf(t, err).IsNotFound())
	_, err = registry.Orders().FindByNumber(ctx, "EVT-9999")
	assert.True(t, repoErrorOf(t, err).IsNotFound())
}

func TestOrderRepositoryRejectsDuplicateNumber(t *testing.T) {
	ctx := context.Background()
	registry := newTestRegistry(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, registry.Orders().Create(ctx, sampleOrder(t, "ord_1", "EVT-0001", now)))
	err := registry.Orders().Create(ctx, sampleOrder(t, "ord_2", "EVT-0001", now))
	require.Error(t, err)
	assert.True(t, repoErrorOf(t, err).IsConflict())
}

func TestOrderRepositoryUpdateIfVersionMatches(t *testing.T) {
	ctx := context.Background()
	registry := newTestRegistry(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, registry.Orders().Create(ctx, sampleOrder(t, "ord_1", "EVT-0001", now)))

	first, err := registry.Orders().Get(ctx, "ord_1")
	require.NoError(t, err)
	second := first

	first.AdminNotes = "call the venue"
	saved, err := registry.Orders().UpdateIfVersionMatches(ctx, first, first.Version)
	require.NoError(t, err)
	assert.Equal(t, first.Version+1, saved.Version)

	second.AdminNotes = "stale edit"
	_, err = registry.Orders().UpdateIfVersionMatches(ctx, second, second.Version)
	require.Error(t, err)
	assert.True(t, repoErrorOf(t, err).IsConflict())

	current, err := registry.Orders().Get(ctx, "ord_1")
	require.NoError(t, err)
	assert.Equal(t, "call the venue", current.AdminNotes)
	assert.Equal(t, saved.Version, current.Version)

	missing := first
	missing.ID = "ord_missing"
	_, err = registry.Orders().UpdateIfVersionMatches(ctx, missing, 0)
	assert.True(t, repoErrorOf(t, err).IsNotFound())
}

func TestOrderRepositoryQueryFilters(t *testing.T) {
	ctx := context.Background()
	registry := newTestRegistry(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"ord_a", "ord_b", "ord_c"} {
		order := sampleOrder(t, id, "EVT-000"+string(rune('1'+i)), base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, registry.Orders().Create(ctx, order))
	}
	confirmed, err := registry.Orders().Get(ctx, "ord_b")
	require.NoError(t, err)
	confirmed.Status = domain.OrderStatusConfirmed
	confirmed.StatusHistory = append(confirmed.StatusHistory, domain.StatusChange{Status: domain.OrderStatusConfirmed, ActorID: "admin-1", ChangedAt: base.Add(2 * time.Hour)})
	_, err = registry.Orders().UpdateIfVersionMatches(ctx, confirmed, confirmed.Version)
	require.NoError(t, err)

	all, err := registry.Orders().Query(ctx, repositories.OrderQueryFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "ord_c", all[0].ID, "newest first")

	onlyConfirmed, err := registry.Orders().Query(ctx, repositories.OrderQueryFilter{Statuses: []domain.OrderStatus{domain.OrderStatusConfirmed}})
	require.NoError(t, err)
	require.Len(t, onlyConfirmed, 1)
	assert.Equal(t, "ord_b", onlyConfirmed[0].ID)

	from := base.Add(30 * time.Minute)
	to := base.Add(time.Hour)
	ranged, err := registry.Orders().Query(ctx, repositories.OrderQueryFilter{CreatedFrom: &from, CreatedTo: &to})
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, "ord_b", ranged[0].ID)

	limited, err := registry.Orders().Query(ctx, repositories.OrderQueryFilter{
		Types: []domain.OrderType{domain.OrderTypeEvent, domain.OrderTypeStaff},
		Limit: 2,
	})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}
