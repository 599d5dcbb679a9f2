package sqlite

import (
	"context"
	"errors"

	"github.com/eventdesk/api/internal/platform/sqldb"
	"github.com/eventdesk/api/internal/repositories"
)

// Registry wires the SQLite repositories around one database handle.
type Registry struct {
	db       *sqldb.DB
	orders   *OrderRepository
	messages *OrderMessageRepository
	counters *CounterRepository
	audit    *AuditLogRepository
	health   repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds every SQLite repository. health may be nil.
func NewRegistry(db *sqldb.DB, health repositories.HealthRepository) (*Registry, error) {
	if db == nil {
		return nil, errors.New("sqlite registry: db is required")
	}
	orders, err := NewOrderRepository(db)
	if err != nil {
		return nil, err
	}
	messages, err := NewOrderMessageRepository(db)
	if err != nil {
		return nil, err
	}
	counters, err := NewCounterRepository(db)
	if err != nil {
		return nil, err
	}
	audit, err := NewAuditLogRepository(db)
	if err != nil {
		return nil, err
	}
	return &Registry{
		db:       db,
		orders:   orders,
		messages: messages,
		counters: counters,
		audit:    audit,
		health:   health,
	}, nil
}

func (r *Registry) Orders() repositories.OrderRepository               { return r.orders }
func (r *Registry) OrderMessages() repositories.OrderMessageRepository { return r.messages }
func (r *Registry) Counters() repositories.CounterRepository           { return r.counters }
func (r *Registry) AuditLogs() repositories.AuditLogRepository         { return r.audit }
func (r *Registry) Health() repositories.HealthRepository              { return r.health }

func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.RunInTx(ctx, fn)
}

func (r *Registry) Close(ctx context.Context) error {
	return r.db.Close()
}
