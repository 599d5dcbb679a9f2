package services

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	domain "github.com/eventdesk/api/internal/domain"
)

const orderMetricNamespace = "github.com/eventdesk/api/internal/services"

// OrderMetrics records order lifecycle counters. A nil *OrderMetrics records nothing.
type OrderMetrics struct {
	created  metric.Int64Counter
	quotes   metric.Int64Counter
	payments metric.Int64Counter
	received metric.Int64Counter
}

// NewOrderMetrics registers the order instruments on meter, or on the global meter provider
// when meter is nil. Instruments that fail to register are skipped.
func NewOrderMetrics(meter metric.Meter, logger *zap.Logger) *OrderMetrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(orderMetricNamespace)
	}

	m := &OrderMetrics{}
	var err error
	if m.created, err = meter.Int64Counter("orders.created", metric.WithDescription("Orders created")); err != nil {
		logger.Warn("orders: unable to register created metric", zap.Error(err))
		m.created = nil
	}
	if m.quotes, err = meter.Int64Counter("orders.quotes.sent", metric.WithDescription("Quotes sent, including re-quotes")); err != nil {
		logger.Warn("orders: unable to register quote metric", zap.Error(err))
		m.quotes = nil
	}
	if m.payments, err = meter.Int64Counter("orders.payments.recorded", metric.WithDescription("Payment transactions recorded")); err != nil {
		logger.Warn("orders: unable to register payment metric", zap.Error(err))
		m.payments = nil
	}
	if m.received, err = meter.Int64Counter("orders.payments.amount",
		metric.WithUnit("{minor_unit}"),
		metric.WithDescription("Sum of recorded payment amounts in minor currency units"),
	); err != nil {
		logger.Warn("orders: unable to register payment amount metric", zap.Error(err))
		m.received = nil
	}
	return m
}

func (m *OrderMetrics) orderCreated(ctx context.Context, orderType domain.OrderType) {
	if m == nil || m.created == nil {
		return
	}
	m.created.Add(ctx, 1, metric.WithAttributes(attribute.String("order.type", string(orderType))))
}

func (m *OrderMetrics) quoteSent(ctx context.Context, orderType domain.OrderType, requote bool) {
	if m == nil || m.quotes == nil {
		return
	}
	m.quotes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("order.type", string(orderType)),
		attribute.Bool("requote", requote),
	))
}

func (m *OrderMetrics) paymentRecorded(ctx context.Context, orderType domain.OrderType, tx domain.PaymentTransaction) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("order.type", string(orderType)),
		attribute.String("payment.method", string(tx.Method)),
	)
	if m.payments != nil {
		m.payments.Add(ctx, 1, attrs)
	}
	if m.received != nil {
		m.received.Add(ctx, tx.Amount, attrs)
	}
}
