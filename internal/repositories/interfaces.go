package repositories

import (
	"context"
	"time"

	domain "github.com/eventdesk/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	OrderMessages() OrderMessageRepository
	Counters() CounterRepository
	AuditLogs() AuditLogRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository operations in one transaction. Repositories called with the
// context handed to fn join that transaction.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository persists orders. Every mutation after Create goes through
// UpdateIfVersionMatches so concurrent editors cannot silently overwrite each other.
type OrderRepository interface {
	Get(ctx context.Context, orderID string) (domain.Order, error)
	FindByNumber(ctx context.Context, orderNumber string) (domain.Order, error)
	Create(ctx context.Context, order domain.Order) error
	// UpdateIfVersionMatches stores order with Version expectedVersion+1 when the persisted
	// version equals expectedVersion, and returns a conflict error otherwise.
	UpdateIfVersionMatches(ctx context.Context, order domain.Order, expectedVersion int64) (domain.Order, error)
	Query(ctx context.Context, filter OrderQueryFilter) ([]domain.Order, error)
}

// OrderQueryFilter narrows the snapshot read by Query. Zero values match everything.
type OrderQueryFilter struct {
	Types       []domain.OrderType
	Statuses    []domain.OrderStatus
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
}

// OrderMessageRepository stores the per-order conversation thread.
type OrderMessageRepository interface {
	Append(ctx context.Context, message domain.OrderMessage) error
	List(ctx context.Context, orderID string) ([]domain.OrderMessage, error)
	Get(ctx context.Context, orderID, messageID string) (domain.OrderMessage, error)
	// MarkSeen adds a receipt for userID to each listed message that lacks one and returns the
	// number of messages changed.
	MarkSeen(ctx context.Context, orderID string, messageIDs []string, userID string, seenAt time.Time) (int, error)
	SoftDelete(ctx context.Context, orderID, messageID, deletedBy string, deletedAt time.Time) (domain.OrderMessage, error)
}

// AuditLogRepository persists immutable audit trail entries.
type AuditLogRepository interface {
	Append(ctx context.Context, entry domain.AuditLogEntry) error
	List(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[domain.AuditLogEntry], error)
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// AuditLogFilter narrows audit log listings.
type AuditLogFilter struct {
	TargetRef  string
	Actor      string
	Action     string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}
