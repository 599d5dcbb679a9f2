package services

import (
	"context"
	"time"

	domain "github.com/eventdesk/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	Order              = domain.Order
	OrderMessage       = domain.OrderMessage
	Quote              = domain.Quote
	Payment            = domain.Payment
	PaymentTransaction = domain.PaymentTransaction
	SystemHealthReport = domain.SystemHealthReport
	AuditLogEntry      = domain.AuditLogEntry
)

// OrderService orchestrates every order mutation. Each mutation reads the order, applies a pure
// domain operation and writes it back conditionally on the version it read.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	TransitionStatus(ctx context.Context, cmd TransitionOrderCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	SendQuote(ctx context.Context, cmd SendQuoteCommand) (Order, error)
	RecordPayment(ctx context.Context, cmd RecordPaymentCommand) (Order, error)
	AddTimelineMilestone(ctx context.Context, cmd AddMilestoneCommand) (Order, error)
	UpdateAdminNotes(ctx context.Context, cmd UpdateAdminNotesCommand) (Order, error)
	AssignAdmins(ctx context.Context, cmd AssignAdminsCommand) (Order, error)
}

// OrderNumberService issues and interprets human-readable order numbers.
type OrderNumberService interface {
	Next(ctx context.Context) (int64, string, error)
	Format(n int64) string
	Parse(orderNumber string) (int64, error)
}

// OrderMessageService manages the per-order conversation thread.
type OrderMessageService interface {
	SendMessage(ctx context.Context, cmd SendOrderMessageCommand) (OrderMessage, error)
	ListMessages(ctx context.Context, orderID string) ([]OrderMessage, error)
	MarkSeen(ctx context.Context, cmd MarkMessagesSeenCommand) (int, error)
	UnreadCount(ctx context.Context, orderID, userID string) (int, error)
	DeleteMessage(ctx context.Context, cmd DeleteOrderMessageCommand) (OrderMessage, error)
}

// OrderQueryService serves list, lookup and analytics reads over order snapshots.
type OrderQueryService interface {
	List(ctx context.Context, query OrderListQuery) (domain.CursorPage[Order], error)
	Analytics(ctx context.Context, query OrderListQuery) (OrderAnalytics, error)
	FindByNumber(ctx context.Context, orderNumber string) (Order, error)
}

// SystemService aggregates utility endpoints (health checks, audit logs).
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
	ListAuditLogs(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[AuditLogEntry], error)
}

// AuditLogService centralizes immutable audit log persistence and retrieval.
type AuditLogService interface {
	Record(ctx context.Context, record AuditLogRecord)
	List(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[AuditLogEntry], error)
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	OrderNumber    string
	OrderType      domain.OrderType
	PreviousStatus domain.OrderStatus
	CurrentStatus  domain.OrderStatus
	ActorID        string
	OccurredAt     time.Time
	Metadata       map[string]any
}

type CreateOrderCommand struct {
	Actor          domain.Actor
	Client         domain.ClientRef
	Details        domain.OrderDetails
	AdminNotes     string
	AssignedAdmins []string
}

type TransitionOrderCommand struct {
	OrderID         string
	Target          domain.OrderStatus
	Actor           domain.Actor
	Notes           string
	ExpectedVersion *int64
}

type CancelOrderCommand struct {
	OrderID         string
	Actor           domain.Actor
	Reason          string
	RefundAmount    *int64
	ExpectedVersion *int64
}

type SendQuoteCommand struct {
	OrderID         string
	Actor           domain.Actor
	Quote           QuoteInput
	ExpectedVersion *int64
}

type RecordPaymentCommand struct {
	OrderID         string
	Actor           domain.Actor
	Payment         PaymentInput
	ExpectedVersion *int64
}

type AddMilestoneCommand struct {
	OrderID         string
	Actor           domain.Actor
	Title           string
	Notes           string
	Date            time.Time
	Completed       bool
	ExpectedVersion *int64
}

type UpdateAdminNotesCommand struct {
	OrderID         string
	Actor           domain.Actor
	Notes           string
	ExpectedVersion *int64
}

type AssignAdminsCommand struct {
	OrderID         string
	Actor           domain.Actor
	AdminIDs        []string
	ExpectedVersion *int64
}

type SendOrderMessageCommand struct {
	OrderID     string
	Sender      domain.Actor
	SenderRole  string
	Text        string
	Attachments []domain.Attachment
	IsSystem    bool
}

type MarkMessagesSeenCommand struct {
	OrderID    string
	MessageIDs []string
	UserID     string
}

type DeleteOrderMessageCommand struct {
	OrderID   string
	MessageID string
	Actor     domain.Actor
}

// OrderListQuery combines search, filters, sort and pagination for list and analytics reads.
// Type and Status accept the sentinel "all".
type OrderListQuery struct {
	Search     string
	Type       string
	Status     string
	DateRange  domain.RangeQuery[time.Time]
	Sort       OrderSort
	Pagination Pagination
}

// AuditLogRecord defines the payload accepted by the audit writer service.
type AuditLogRecord struct {
	Actor                 string
	ActorName             string
	Action                string
	TargetRef             string
	Severity              string
	RequestID             string
	OccurredAt            time.Time
	Metadata              map[string]any
	Diff                  map[string]AuditLogDiff
	SensitiveMetadataKeys []string
}

// AuditLogDiff captures before/after values for tracked fields.
type AuditLogDiff struct {
	Before any
	After  any
}

type AuditLogFilter struct {
	TargetRef  string
	Actor      string
	Action     string
	DateRange  domain.RangeQuery[time.Time]
	Pagination Pagination
}
