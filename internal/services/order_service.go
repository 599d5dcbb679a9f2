package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/eventdesk/api/internal/domain"
	"github.com/eventdesk/api/internal/repositories"
)

const (
	orderEventCreated         = "order.created"
	orderEventQuoted          = "order.quoted"
	orderEventStatusChanged   = "order.status_changed"
	orderEventPaymentReceived = "order.payment_received"
	orderEventMessageCreated  = "order.message.created"

	orderIDPrefix     = "ord_"
	milestoneIDPrefix = "mil_"

	auditActionQuoteReplaced   = "order.quote.replaced"
	auditActionQuoteWithdrawn  = "order.quote.withdrawn"
	auditActionCancelled       = "order.cancelled"
	auditActionPaymentRecorded = "order.payment.recorded"
	auditActionMessageDeleted  = "order.message.deleted"
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Numbers     OrderNumberService
	Quotes      *QuoteEngine
	UnitOfWork  repositories.UnitOfWork
	Audit       AuditLogService
	Events      OrderEventPublisher
	Metrics     *OrderMetrics
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	numbers    OrderNumberService
	quotes     *QuoteEngine
	unitOfWork repositories.UnitOfWork
	audit      AuditLogService
	events     OrderEventPublisher
	metrics    *OrderMetrics
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Numbers == nil {
		return nil, errors.New("order service: order number service is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	quotes := deps.Quotes
	if quotes == nil {
		quotes = NewQuoteEngine(QuoteEngineDeps{IDGenerator: idGen})
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:     deps.Orders,
		numbers:    deps.Numbers,
		quotes:     quotes,
		unitOfWork: unit,
		audit:      deps.Audit,
		events:     deps.Events,
		metrics:    deps.Metrics,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// CreateOrder issues the order number and inserts the order in one unit of work, so a failed
// insert never consumes a number and no order is stored without one.
func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	actor, err := requireActor(cmd.Actor)
	if err != nil {
		return Order{}, err
	}
	client := domain.ClientRef{
		UserID: strings.TrimSpace(cmd.Client.UserID),
		Name:   strings.TrimSpace(cmd.Client.Name),
		Email:  strings.TrimSpace(cmd.Client.Email),
		Phone:  strings.TrimSpace(cmd.Client.Phone),
	}
	if client.Name == "" {
		return Order{}, fmt.Errorf("%w: client name is required", ErrOrderInvalidInput)
	}

	now := s.now()
	order, err := domain.NewOrder(orderIDPrefix+s.newID(), client, cmd.Details, actor, now)
	if err != nil {
		return Order{}, fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
	}
	order.AdminNotes = strings.TrimSpace(cmd.AdminNotes)
	order.AssignedAdmins = normalizeAdminIDs(cmd.AssignedAdmins)
	order.Version = 1

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		_, number, err := s.numbers.Next(txCtx)
		if err != nil {
			return err
		}
		order.OrderNumber = number
		if err := s.orders.Create(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNumberingFailed) || errors.Is(err, ErrOrderUnavailable) {
			return Order{}, err
		}
		if errors.Is(err, ErrConcurrentModification) {
			return Order{}, fmt.Errorf("%w: %v", ErrNumberingFailed, err)
		}
		return Order{}, s.mapRepositoryError(err)
	}

	s.metrics.orderCreated(ctx, order.Type)
	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		OrderType:     order.Type,
		CurrentStatus: order.Status,
		ActorID:       actor.ID,
		OccurredAt:    now,
		Metadata:      map[string]any{"summary": order.Summary()},
	})
	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) TransitionStatus(ctx context.Context, cmd TransitionOrderCommand) (Order, error) {
	actor, err := requireActor(cmd.Actor)
	if err != nil {
		return Order{}, err
	}
	target := domain.OrderStatus(strings.TrimSpace(string(cmd.Target)))
	if target == "" {
		return Order{}, fmt.Errorf("%w: target status is required", ErrOrderInvalidInput)
	}

	before, order, err := s.mutate(ctx, cmd.OrderID, cmd.ExpectedVersion, func(order *Order, now time.Time) error {
		// quoted is reached through SendQuote; a bare transition must not produce a quoted order
		// without a quote.
		if target == domain.OrderStatusQuoted && order.Quote == nil && CanTransition(order.Status, target) {
			return fmt.Errorf("%w: send a quote instead", ErrNoQuote)
		}
		if err := ApplyTransition(order, target, actor, cmd.Notes, now); err != nil {
			return err
		}
		if target == domain.OrderStatusCancelled {
			order.Cancellation = &domain.Cancellation{
				Reason:      strings.TrimSpace(cmd.Notes),
				CancelledAt: now,
				CancelledBy: actor.ID,
			}
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	if before.Quote != nil && order.Quote == nil {
		s.recordAudit(ctx, AuditLogRecord{
			Actor:     actor.ID,
			ActorName: actor.DisplayName,
			Action:    auditActionQuoteWithdrawn,
			TargetRef: orderTargetRef(order.ID),
			Metadata:  map[string]any{"quoteId": before.Quote.ID, "finalAmount": before.Quote.FinalAmount},
		})
	}
	if target == domain.OrderStatusCancelled {
		s.recordCancellation(ctx, actor, order)
	}
	s.publishStatusChanged(ctx, before, order, actor, cmd.Notes)
	return order, nil
}

// Cancel moves the order to cancelled with a reason and an optional refund bounded by the
// amount paid.
func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	actor, err := requireActor(cmd.Actor)
	if err != nil {
		return Order{}, err
	}
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		return Order{}, fmt.Errorf("%w: cancellation reason is required", ErrOrderInvalidInput)
	}

	before, order, err := s.mutate(ctx, cmd.OrderID, cmd.ExpectedVersion, func(order *Order, now time.Time) error {
		if cmd.RefundAmount != nil {
			var paid int64
			if order.Payment != nil {
				paid = order.Payment.AmountPaid
			}
			if *cmd.RefundAmount < 0 || *cmd.RefundAmount > paid {
				return fmt.Errorf("%w: refund %d must be between 0 and the amount paid %d", ErrOrderInvalidInput, *cmd.RefundAmount, paid)
			}
		}
		if err := ApplyTransition(order, domain.OrderStatusCancelled, actor, reason, now); err != nil {
			return err
		}
		cancellation := &domain.Cancellation{Reason: reason, CancelledAt: now, CancelledBy: actor.ID}
		if cmd.RefundAmount != nil {
			refund := *cmd.RefundAmount
			cancellation.RefundAmount = &refund
		}
		order.Cancellation = cancellation
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.recordCancellation(ctx, actor, order)
	s.publishStatusChanged(ctx, before, order, actor, reason)
	return order, nil
}

// SendQuote builds a quote, attaches it and moves a pending order to quoted in one conditional
// write.
func (s *orderService) SendQuote(ctx context.Context, cmd SendQuoteCommand) (Order, error) {
	actor, err := requireActor(cmd.Actor)
	if err != nil {
		return Order{}, err
	}

	var replaced *domain.Quote
	before, order, err := s.mutate(ctx, cmd.OrderID, cmd.ExpectedVersion, func(order *Order, now time.Time) error {
		if !CanSendQuote(*order) {
			return fmt.Errorf("%w: status %s", ErrQuoteNotAllowed, order.Status)
		}
		quote, err := s.quotes.BuildQuote(cmd.Quote, actor, now)
		if err != nil {
			return err
		}
		replaced, err = AttachQuote(order, quote, actor, now)
		return err
	})
	if err != nil {
		return Order{}, err
	}

	if replaced != nil {
		s.recordAudit(ctx, AuditLogRecord{
			Actor:     actor.ID,
			ActorName: actor.DisplayName,
			Action:    auditActionQuoteReplaced,
			TargetRef: orderTargetRef(order.ID),
			Metadata:  map[string]any{"previousQuoteId": replaced.ID, "quoteId": order.Quote.ID},
			Diff: map[string]AuditLogDiff{
				"finalAmount": {Before: replaced.FinalAmount, After: order.Quote.FinalAmount},
				"discount":    {Before: replaced.Discount, After: order.Quote.Discount},
			},
		})
	}

	s.metrics.quoteSent(ctx, order.Type, replaced != nil)
	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventQuoted,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		OrderType:      order.Type,
		PreviousStatus: before.Status,
		CurrentStatus:  order.Status,
		ActorID:        actor.ID,
		OccurredAt:     order.UpdatedAt,
		Metadata: map[string]any{
			"quoteId":     order.Quote.ID,
			"total":       order.Quote.Total,
			"discount":    order.Quote.Discount,
			"finalAmount": order.Quote.FinalAmount,
			"currency":    order.Quote.Currency,
			"requote":     replaced != nil,
		},
	})
	if before.Status != order.Status {
		s.publishStatusChanged(ctx, before, order, actor, "quote sent")
	}
	return order, nil
}

func (s *orderService) RecordPayment(ctx context.Context, cmd RecordPaymentCommand) (Order, error) {
	actor, err := requireActor(cmd.Actor)
	if err != nil {
		return Order{}, err
	}

	var tx domain.PaymentTransaction
	_, order, err := s.mutate(ctx, cmd.OrderID, cmd.ExpectedVersion, func(order *Order, now time.Time) error {
		var err error
		tx, err = ApplyPayment(order, cmd.Payment, s.newID(), actor, now)
		return err
	})
	if err != nil {
		return Order{}, err
	}

	s.recordAudit(ctx, AuditLogRecord{
		Actor:     actor.ID,
		ActorName: actor.DisplayName,
		Action:    auditActionPaymentRecorded,
		TargetRef: orderTargetRef(order.ID),
		Metadata: map[string]any{
			"transactionId": tx.ID,
			"amount":        tx.Amount,
			"method":        string(tx.Method),
			"reference":     tx.Reference,
			"amountDue":     order.Payment.AmountDue,
		},
		SensitiveMetadataKeys: []string{"reference"},
	})
	s.metrics.paymentRecorded(ctx, order.Type, tx)
	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventPaymentReceived,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		OrderType:     order.Type,
		CurrentStatus: order.Status,
		ActorID:       actor.ID,
		OccurredAt:    tx.RecordedAt,
		Metadata: map[string]any{
			"transactionId": tx.ID,
			"amount":        tx.Amount,
			"method":        string(tx.Method),
			"amountPaid":    order.Payment.AmountPaid,
			"amountDue":     order.Payment.AmountDue,
			"paymentStatus": string(order.Payment.Status),
		},
	})
	return order, nil
}

func (s *orderService) AddTimelineMilestone(ctx context.Context, cmd AddMilestoneCommand) (Order, error) {
	actor, err := requireActor(cmd.Actor)
	if err != nil {
		return Order{}, err
	}
	title := strings.TrimSpace(cmd.Title)
	if title == "" {
		return Order{}, fmt.Errorf("%w: milestone title is required", ErrOrderInvalidInput)
	}

	_, order, err := s.mutate(ctx, cmd.OrderID, cmd.ExpectedVersion, func(order *Order, now time.Time) error {
		date := cmd.Date.UTC()
		if cmd.Date.IsZero() {
			date = now
		}
		timeline := append(slices.Clone(order.Timeline), domain.TimelineMilestone{
			ID:        milestoneIDPrefix + s.newID(),
			Title:     title,
			Notes:     strings.TrimSpace(cmd.Notes),
			Date:      date,
			Completed: cmd.Completed,
			CreatedAt: now,
			CreatedBy: actor.ID,
		})
		slices.SortStableFunc(timeline, func(a, b domain.TimelineMilestone) int {
			return a.Date.Compare(b.Date)
		})
		order.Timeline = timeline
		order.UpdatedAt = now
		return nil
	})
	return order, err
}

func (s *orderService) UpdateAdminNotes(ctx context.Context, cmd UpdateAdminNotesCommand) (Order, error) {
	if _, err := requireActor(cmd.Actor); err != nil {
		return Order{}, err
	}
	_, order, err := s.mutate(ctx, cmd.OrderID, cmd.ExpectedVersion, func(order *Order, now time.Time) error {
		order.AdminNotes = strings.TrimSpace(cmd.Notes)
		order.UpdatedAt = now
		return nil
	})
	return order, err
}

func (s *orderService) AssignAdmins(ctx context.Context, cmd AssignAdminsCommand) (Order, error) {
	if _, err := requireActor(cmd.Actor); err != nil {
		return Order{}, err
	}
	admins := normalizeAdminIDs(cmd.AdminIDs)
	_, order, err := s.mutate(ctx, cmd.OrderID, cmd.ExpectedVersion, func(order *Order, now time.Time) error {
		order.AssignedAdmins = admins
		order.UpdatedAt = now
		return nil
	})
	return order, err
}

// mutate loads the order, applies fn and writes the result conditionally on the version read.
// A version mismatch is reported as ErrConcurrentModification; nothing is retried or merged.
func (s *orderService) mutate(ctx context.Context, orderID string, expectedVersion *int64, fn func(order *Order, now time.Time) error) (Order, Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	current, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return Order{}, Order{}, s.mapRepositoryError(err)
	}
	if expectedVersion != nil && *expectedVersion != current.Version {
		return Order{}, Order{}, fmt.Errorf("%w: order %s is at version %d, expected %d", ErrConcurrentModification, orderID, current.Version, *expectedVersion)
	}

	next := current
	if err := fn(&next, s.now()); err != nil {
		return Order{}, Order{}, err
	}
	saved, err := s.orders.UpdateIfVersionMatches(ctx, next, current.Version)
	if err != nil {
		return Order{}, Order{}, s.mapRepositoryError(err)
	}
	return current, saved, nil
}

func (s *orderService) recordCancellation(ctx context.Context, actor domain.Actor, order Order) {
	metadata := map[string]any{}
	if order.Cancellation != nil {
		metadata["reason"] = order.Cancellation.Reason
		if order.Cancellation.RefundAmount != nil {
			metadata["refundAmount"] = *order.Cancellation.RefundAmount
		}
	}
	if order.Payment != nil {
		metadata["amountPaid"] = order.Payment.AmountPaid
	}
	s.recordAudit(ctx, AuditLogRecord{
		Actor:     actor.ID,
		ActorName: actor.DisplayName,
		Action:    auditActionCancelled,
		TargetRef: orderTargetRef(order.ID),
		Severity:  "warn",
		Metadata:  metadata,
	})
}

func (s *orderService) publishStatusChanged(ctx context.Context, before, after Order, actor domain.Actor, notes string) {
	metadata := map[string]any{}
	if last, ok := after.LastStatusChange(); ok {
		metadata["notes"] = last.Notes
	} else if notes = strings.TrimSpace(notes); notes != "" {
		metadata["notes"] = notes
	}
	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        after.ID,
		OrderNumber:    after.OrderNumber,
		OrderType:      after.Type,
		PreviousStatus: before.Status,
		CurrentStatus:  after.Status,
		ActorID:        actor.ID,
		OccurredAt:     after.UpdatedAt,
		Metadata:       metadata,
	})
}

func (s *orderService) recordAudit(ctx context.Context, record AuditLogRecord) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, record)
}

func (s *orderService) mapRepositoryError(err error) error {
	return mapOrderRepositoryError(err)
}

func mapOrderRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrConcurrentModification, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
		}
	}

	return err
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": string(event.CurrentStatus),
		})
	}
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func requireActor(actor domain.Actor) (domain.Actor, error) {
	actor.ID = strings.TrimSpace(actor.ID)
	actor.DisplayName = strings.TrimSpace(actor.DisplayName)
	if actor.IsZero() {
		return domain.Actor{}, fmt.Errorf("%w: actor id is required", ErrOrderInvalidInput)
	}
	return actor, nil
}

func normalizeAdminIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || slices.Contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func orderTargetRef(orderID string) string {
	return "/orders/" + orderID
}
