package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	domain "github.com/eventdesk/api/internal/domain"
	"github.com/eventdesk/api/internal/repositories"
)

type fakeRepoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e fakeRepoError) Error() string {
	switch {
	case e.notFound:
		return "not found"
	case e.conflict:
		return "conflict"
	default:
		return "unavailable"
	}
}

func (e fakeRepoError) IsNotFound() bool    { return e.notFound }
func (e fakeRepoError) IsConflict() bool    { return e.conflict }
func (e fakeRepoError) IsUnavailable() bool { return e.unavailable }

// memoryOrderRepository keeps orders in a map and enforces the version check. Hooks override
// individual calls when set.
type memoryOrderRepository struct {
	mu     sync.Mutex
	orders map[string]domain.Order

	createFn func(ctx context.Context, order domain.Order) error
	updateFn func(ctx context.Context, order domain.Order, expectedVersion int64) (domain.Order, error)
	queryFn  func(ctx context.Context, filter repositories.OrderQueryFilter) ([]domain.Order, error)

	updates int
	queries []repositories.OrderQueryFilter
}

func newMemoryOrderRepository(orders ...domain.Order) *memoryOrderRepository {
	repo := &memoryOrderRepository{orders: make(map[string]domain.Order)}
	for _, order := range orders {
		repo.orders[order.ID] = order
	}
	return repo
}

func (r *memoryOrderRepository) Get(_ context.Context, orderID string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, fakeRepoError{notFound: true}
	}
	return order, nil
}

func (r *memoryOrderRepository) FindByNumber(_ context.Context, orderNumber string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, order := range r.orders {
		if order.OrderNumber == orderNumber {
			return order, nil
		}
	}
	return domain.Order{}, fakeRepoError{notFound: true}
}

func (r *memoryOrderRepository) Create(ctx context.Context, order domain.Order) error {
	if r.createFn != nil {
		return r.createFn(ctx, order)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.orders[order.ID]; exists {
		return fakeRepoError{conflict: true}
	}
	for _, existing := range r.orders {
		if existing.OrderNumber == order.OrderNumber {
			return fakeRepoError{conflict: true}
		}
	}
	r.orders[order.ID] = order
	return nil
}

func (r *memoryOrderRepository) UpdateIfVersionMatches(ctx context.Context, order domain.Order, expectedVersion int64) (domain.Order, error) {
	if r.updateFn != nil {
		return r.updateFn(ctx, order, expectedVersion)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.orders[order.ID]
	if !ok {
		return domain.Order{}, fakeRepoError{notFound: true}
	}
	if current.Version != expectedVersion {
		return domain.Order{}, fakeRepoError{conflict: true}
	}
	order.Version = expectedVersion + 1
	r.orders[order.ID] = order
	r.updates++
	return order, nil
}

func (r *memoryOrderRepository) Query(ctx context.Context, filter repositories.OrderQueryFilter) ([]domain.Order, error) {
	r.mu.Lock()
	r.queries = append(r.queries, filter)
	r.mu.Unlock()
	if r.queryFn != nil {
		return r.queryFn(ctx, filter)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Order, 0, len(r.orders))
	for _, order := range r.orders {
		if len(filter.Types) > 0 && !slices.Contains(filter.Types, order.Type) {
			continue
		}
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, order.Status) {
			continue
		}
		out = append(out, order)
	}
	return out, nil
}

func (r *memoryOrderRepository) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}

// memoryCounterRepository issues values under a mutex. When it runs inside memoryUnitOfWork a
// rolled back transaction returns its values.
type memoryCounterRepository struct {
	mu      sync.Mutex
	values  map[string]int64
	max     map[string]int64
	nextErr error
}

func newMemoryCounterRepository() *memoryCounterRepository {
	return &memoryCounterRepository{values: map[string]int64{}, max: map[string]int64{}}
}

func (r *memoryCounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	if r.nextErr != nil {
		return 0, r.nextErr
	}
	if step <= 0 {
		step = 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	next := r.values[counterID] + step
	if limit, ok := r.max[counterID]; ok && next > limit {
		return 0, repositories.NewCounterError(repositories.CounterErrorExhausted, "exhausted", nil)
	}
	r.values[counterID] = next
	if tx, ok := ctx.Value(memoryTxKey{}).(*memoryTx); ok {
		tx.onRollback(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.values[counterID] -= step
		})
	}
	return next, nil
}

func (r *memoryCounterRepository) Configure(_ context.Context, counterID string, cfg repositories.CounterConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cfg.MaxValue != nil {
		r.max[counterID] = *cfg.MaxValue
	}
	if cfg.InitialValue != nil {
		r.values[counterID] = *cfg.InitialValue
	}
	return nil
}

type memoryTxKey struct{}

type memoryTx struct {
	undo []func()
}

func (t *memoryTx) onRollback(fn func()) {
	t.undo = append(t.undo, fn)
}

// memoryUnitOfWork serialises transactions and runs registered undo hooks on failure.
type memoryUnitOfWork struct {
	mu    sync.Mutex
	calls int
}

func (u *memoryUnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls++
	tx := &memoryTx{}
	if err := fn(context.WithValue(ctx, memoryTxKey{}, tx)); err != nil {
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		return err
	}
	return nil
}

type memoryMessageRepository struct {
	mu       sync.Mutex
	messages []domain.OrderMessage
	listErr  error
}

func (r *memoryMessageRepository) Append(_ context.Context, message domain.OrderMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
	return nil
}

func (r *memoryMessageRepository) List(_ context.Context, orderID string) ([]domain.OrderMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []domain.OrderMessage
	for _, msg := range r.messages {
		if msg.OrderID == orderID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (r *memoryMessageRepository) Get(_ context.Context, orderID, messageID string) (domain.OrderMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range r.messages {
		if msg.OrderID == orderID && msg.ID == messageID {
			return msg, nil
		}
	}
	return domain.OrderMessage{}, fakeRepoError{notFound: true}
}

func (r *memoryMessageRepository) MarkSeen(_ context.Context, orderID string, messageIDs []string, userID string, seenAt time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	changed := 0
	for i := range r.messages {
		msg := &r.messages[i]
		if msg.OrderID != orderID || !slices.Contains(messageIDs, msg.ID) {
			continue
		}
		if msg.MarkSeen(userID, seenAt) {
			changed++
		}
	}
	return changed, nil
}

func (r *memoryMessageRepository) SoftDelete(_ context.Context, orderID, messageID, deletedBy string, deletedAt time.Time) (domain.OrderMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.messages {
		msg := &r.messages[i]
		if msg.OrderID != orderID || msg.ID != messageID {
			continue
		}
		if !msg.IsDeleted {
			at := deletedAt
			msg.IsDeleted = true
			msg.DeletedAt = &at
			msg.DeletedBy = deletedBy
		}
		return *msg, nil
	}
	return domain.OrderMessage{}, fakeRepoError{notFound: true}
}

type captureEventPublisher struct {
	mu     sync.Mutex
	events []OrderEvent
	err    error
}

func (p *captureEventPublisher) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *captureEventPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

var errBoom = errors.New("boom")

func sequenceIDs(prefix string) func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s%03d", prefix, n)
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
