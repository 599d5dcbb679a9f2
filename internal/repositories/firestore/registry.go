package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/eventdesk/api/internal/platform/firestore"
	"github.com/eventdesk/api/internal/repositories"
)

// Registry wires the Firestore repositories around one provider.
type Registry struct {
	provider *pfirestore.Provider
	orders   *OrderRepository
	messages *OrderMessageRepository
	counters *CounterRepository
	audit    *AuditLogRepository
	health   repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds every Firestore repository. health may be nil.
func NewRegistry(provider *pfirestore.Provider, health repositories.HealthRepository) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry: provider is required")
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	messages, err := NewOrderMessageRepository(provider)
	if err != nil {
		return nil, err
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, err
	}
	audit, err := NewAuditLogRepository(provider)
	if err != nil {
		return nil, err
	}
	return &Registry{
		provider: provider,
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

// RunInTx opens a single-attempt transaction. Repositories called with the context passed to
// fn join it, so all their writes commit together.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		return fn(ctx)
	}, pfirestore.WithTxAttempts(1))
}

// Close releases the Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	return r.provider.Close(ctx)
}
