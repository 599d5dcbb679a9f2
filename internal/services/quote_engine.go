package services

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/eventdesk/api/internal/domain"
)

const (
	quoteIDPrefix = "quo_"

	defaultQuoteValidityDays = 14
	defaultQuoteCurrency     = "AED"
)

// QuoteInput is the admin-entered breakdown. Amounts are minor currency units and the discount
// is a flat amount.
type QuoteInput struct {
	Items        []domain.QuoteItem
	Discount     int64
	ValidityDays int
	Currency     string
	Notes        string
}

// QuoteEngineDeps configures defaults for built quotes.
type QuoteEngineDeps struct {
	ValidityDays int
	Currency     string
	IDGenerator  func() string
}

// QuoteEngine builds immutable quotes.
type QuoteEngine struct {
	validityDays int
	currency     string
	newID        func() string
}

// NewQuoteEngine constructs a quote engine with the supplied defaults.
func NewQuoteEngine(deps QuoteEngineDeps) *QuoteEngine {
	days := deps.ValidityDays
	if days <= 0 {
		days = defaultQuoteValidityDays
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = defaultQuoteCurrency
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &QuoteEngine{validityDays: days, currency: currency, newID: idGen}
}

// BuildQuote validates the breakdown and computes total and final amount.
func (e *QuoteEngine) BuildQuote(input QuoteInput, actor domain.Actor, now time.Time) (domain.Quote, error) {
	if len(input.Items) == 0 {
		return domain.Quote{}, ErrEmptyBreakdown
	}
	items := make([]domain.QuoteItem, 0, len(input.Items))
	var total int64
	for i, item := range input.Items {
		label := strings.TrimSpace(item.Label)
		if label == "" {
			return domain.Quote{}, fmt.Errorf("%w: item %d has a blank label", ErrInvalidBreakdownItem, i)
		}
		if item.Amount < 0 {
			return domain.Quote{}, fmt.Errorf("%w: item %q has a negative amount", ErrInvalidBreakdownItem, label)
		}
		if total > math.MaxInt64-item.Amount {
			return domain.Quote{}, fmt.Errorf("%w: total overflows", ErrInvalidBreakdownItem)
		}
		total += item.Amount
		items = append(items, domain.QuoteItem{
			Label:       label,
			Description: strings.TrimSpace(item.Description),
			Amount:      item.Amount,
		})
	}
	if input.Discount < 0 {
		return domain.Quote{}, fmt.Errorf("%w: discount must not be negative", ErrInvalidBreakdownItem)
	}
	final := total - input.Discount
	if final < 0 {
		return domain.Quote{}, fmt.Errorf("%w: discount %d, total %d", ErrDiscountExceedsTotal, input.Discount, total)
	}

	days := input.ValidityDays
	if days <= 0 {
		days = e.validityDays
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = e.currency
	}

	return domain.Quote{
		ID:          quoteIDPrefix + e.newID(),
		Items:       items,
		Total:       total,
		Discount:    input.Discount,
		FinalAmount: final,
		Currency:    currency,
		Notes:       strings.TrimSpace(input.Notes),
		ValidUntil:  now.AddDate(0, 0, days),
		CreatedAt:   now,
		CreatedBy:   actor,
	}, nil
}

// CanSendQuote reports whether the order accepts a new or replacement quote.
func CanSendQuote(order domain.Order) bool {
	return order.Status == domain.OrderStatusPending || order.Status == domain.OrderStatusQuoted
}

// AttachQuote replaces the order's quote and moves a pending order to quoted. A replaced quote
// is archived and the existing transactions carry over to the new ledger, which fails when they
// already exceed the new final amount. The order is untouched on failure.
func AttachQuote(order *domain.Order, quote domain.Quote, actor domain.Actor, now time.Time) (replaced *domain.Quote, err error) {
	if order == nil {
		return nil, errors.New("quote: order is required")
	}
	if !CanSendQuote(*order) {
		return nil, fmt.Errorf("%w: status %s", ErrQuoteNotAllowed, order.Status)
	}

	var transactions []domain.PaymentTransaction
	if order.Payment != nil {
		transactions = order.Payment.Transactions
	}
	payment := domain.DerivePayment(quote.ID, quote.FinalAmount, transactions)
	if payment.AmountPaid > quote.FinalAmount {
		return nil, fmt.Errorf("%w: %d already paid, new final amount %d", ErrPaymentExceedsBalance, payment.AmountPaid, quote.FinalAmount)
	}

	next := *order
	if next.Quote != nil {
		previous := *next.Quote
		replaced = &previous
		next.QuoteHistory = append(append([]domain.Quote(nil), next.QuoteHistory...), previous.Archived(domain.QuoteArchiveReplaced, now))
	}
	next.Quote = &quote
	next.Payment = &payment
	next.UpdatedAt = now
	if next.Status == domain.OrderStatusPending {
		if err := ApplyTransition(&next, domain.OrderStatusQuoted, actor, "quote sent", now); err != nil {
			return nil, err
		}
	}
	*order = next
	return replaced, nil
}
