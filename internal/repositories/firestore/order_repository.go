package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/eventdesk/api/internal/domain"
	pfirestore "github.com/eventdesk/api/internal/platform/firestore"
	"github.com/eventdesk/api/internal/repositories"
	"github.com/eventdesk/api/internal/repositories/orderdoc"
)

const ordersCollection = "orders"

// firestore "in" filters accept at most 30 values.
const maxInFilterValues = 30

// OrderRepository stores orders as documents keyed by order ID.
type OrderRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[orderdoc.Order]
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository: firestore provider is required")
	}
	return &OrderRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[orderdoc.Order](provider, ordersCollection, nil, nil),
	}, nil
}

func (r *OrderRepository) Get(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.ToOrder(), nil
}

func (r *OrderRepository) FindByNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	number := strings.TrimSpace(orderNumber)
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderNumber", "==", number).Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, pfirestore.NewNotFoundError("orders.find_by_number", fmt.Sprintf("order %s not found", number))
	}
	return docs[0].Data.ToOrder(), nil
}

func (r *OrderRepository) Create(ctx context.Context, order domain.Order) error {
	return r.base.Create(ctx, order.ID, orderdoc.FromOrder(order))
}

// UpdateIfVersionMatches runs a single-attempt transaction: the read, the version comparison
// and the write either all happen against the same snapshot or the call fails.
func (r *OrderRepository) UpdateIfVersionMatches(ctx context.Context, order domain.Order, expectedVersion int64) (domain.Order, error) {
	var saved domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		current, err := r.base.Get(ctx, order.ID)
		if err != nil {
			return err
		}
		if current.Data.Version != expectedVersion {
			return pfirestore.NewConflictError("orders.update",
				fmt.Sprintf("order %s is at version %d, expected %d", order.ID, current.Data.Version, expectedVersion))
		}
		next := order
		next.Version = expectedVersion + 1
		if err := r.base.Set(ctx, order.ID, orderdoc.FromOrder(next)); err != nil {
			return err
		}
		saved = next
		return nil
	}, pfirestore.WithTxAttempts(1))
	if err != nil {
		return domain.Order{}, err
	}
	return saved, nil
}

func (r *OrderRepository) Query(ctx context.Context, filter repositories.OrderQueryFilter) ([]domain.Order, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if types := stringValues(filter.Types); len(types) > 0 && len(types) <= maxInFilterValues {
			q = q.Where("type", "in", types)
		}
		if statuses := stringValues(filter.Statuses); len(statuses) > 0 && len(statuses) <= maxInFilterValues {
			q = q.Where("status", "in", statuses)
		}
		if filter.CreatedFrom != nil {
			q = q.Where("createdAt", ">=", filter.CreatedFrom.UTC())
		}
		if filter.CreatedTo != nil {
			q = q.Where("createdAt", "<=", filter.CreatedTo.UTC())
		}
		q = q.OrderBy("createdAt", firestore.Desc)
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, doc.Data.ToOrder())
	}
	return orders, nil
}

func stringValues[T ~string](values []T) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(string(v)); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
