package services

import (
	"fmt"
	"strings"
	"time"

	domain "github.com/eventdesk/api/internal/domain"
)

const paymentTransactionIDPrefix = "pay_"

// PaymentInput is one received payment.
type PaymentInput struct {
	Amount    int64
	Method    domain.PaymentMethod
	Reference string
	Notes     string
}

// CanAddPayment reports whether the order status accepts payments.
func CanAddPayment(order domain.Order) bool {
	return order.Quote != nil && (order.Status == domain.OrderStatusQuoted || order.Status == domain.OrderStatusConfirmed)
}

// PaymentProgress is the rounded paid percentage, clamped to [0,100].
func PaymentProgress(payment *domain.Payment) int {
	if payment == nil {
		return 0
	}
	return payment.Progress()
}

// ApplyPayment records a transaction against the current quote and re-derives the ledger. The
// order is untouched on failure.
func ApplyPayment(order *domain.Order, input PaymentInput, transactionID string, actor domain.Actor, now time.Time) (domain.PaymentTransaction, error) {
	if order == nil {
		return domain.PaymentTransaction{}, fmt.Errorf("%w: order is required", ErrOrderInvalidInput)
	}
	if order.Quote == nil {
		return domain.PaymentTransaction{}, ErrNoQuote
	}
	if input.Amount <= 0 {
		return domain.PaymentTransaction{}, fmt.Errorf("%w: got %d", ErrInvalidAmount, input.Amount)
	}
	if !CanAddPayment(*order) {
		return domain.PaymentTransaction{}, fmt.Errorf("%w: status %s", ErrOrderNotPayable, order.Status)
	}
	method := domain.PaymentMethod(strings.TrimSpace(string(input.Method)))
	if method == "" {
		method = domain.PaymentMethodOther
	}
	if !method.Valid() {
		return domain.PaymentTransaction{}, fmt.Errorf("%w: unknown payment method %q", ErrOrderInvalidInput, input.Method)
	}

	var existing []domain.PaymentTransaction
	if order.Payment != nil {
		existing = order.Payment.Transactions
	}
	current := domain.DerivePayment(order.Quote.ID, order.Quote.FinalAmount, existing)
	if input.Amount > current.AmountDue {
		return domain.PaymentTransaction{}, fmt.Errorf("%w: amount %d, due %d", ErrPaymentExceedsBalance, input.Amount, current.AmountDue)
	}

	tx := domain.PaymentTransaction{
		ID:         paymentTransactionIDPrefix + transactionID,
		Amount:     input.Amount,
		Method:     method,
		Reference:  strings.TrimSpace(input.Reference),
		Notes:      strings.TrimSpace(input.Notes),
		RecordedAt: now,
		RecordedBy: actor,
	}
	transactions := append(append([]domain.PaymentTransaction(nil), existing...), tx)
	payment := domain.DerivePayment(order.Quote.ID, order.Quote.FinalAmount, transactions)
	order.Payment = &payment
	order.UpdatedAt = now
	return tx, nil
}
