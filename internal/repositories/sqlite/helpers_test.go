package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/eventdesk/api/internal/domain"
	"github.com/eventdesk/api/internal/platform/sqldb"
)

func newTestDB(t *testing.T) *sqldb.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate",
		filepath.Join(t.TempDir(), "orders.db"))
	db, err := sqldb.Open(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	registry, err := NewRegistry(newTestDB(t), nil)
	require.NoError(t, err)
	return registry
}

func sampleOrder(t *testing.T, id, number string, createdAt time.Time) domain.Order {
	t.Helper()
	order, err := domain.NewOrder(id, domain.ClientRef{Name: "Sara Haddad", Email: "sara@example.com"}, &domain.EventDetails{
		EventType:  domain.EventTypeWedding,
		EventDate:  createdAt.AddDate(0, 2, 0),
		EventTime:  "18:00",
		Venue:      domain.Venue{Name: "Palm Hall", City: "Dubai"},
		GuestCount: 120,
	}, domain.Actor{ID: "admin-1", DisplayName: "Admin"}, createdAt)
	require.NoError(t, err)
	order.OrderNumber = number
	return order
}
