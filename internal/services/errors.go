package services

import "errors"

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderUnavailable indicates the persistence backend could not serve the request.
	ErrOrderUnavailable = errors.New("order: repository unavailable")

	// ErrInvalidTransition is returned for any status change outside the transition table.
	ErrInvalidTransition = errors.New("order: invalid status transition")
	// ErrConcurrentModification is returned when the order changed since it was read.
	ErrConcurrentModification = errors.New("order: concurrent modification")

	// ErrNumberingFailed is returned when an order number could not be issued.
	ErrNumberingFailed = errors.New("order number: issuance failed")
	// ErrMalformedOrderNumber is returned by ParseOrderNumber for non-canonical input.
	ErrMalformedOrderNumber = errors.New("order number: malformed")

	ErrEmptyBreakdown       = errors.New("quote: breakdown is empty")
	ErrInvalidBreakdownItem = errors.New("quote: invalid breakdown item")
	ErrDiscountExceedsTotal = errors.New("quote: discount exceeds total")
	// ErrQuoteNotAllowed is returned when a quote is sent to an order outside pending or quoted.
	ErrQuoteNotAllowed = errors.New("quote: order cannot be quoted in its current status")

	ErrNoQuote               = errors.New("payment: order has no quote")
	ErrInvalidAmount         = errors.New("payment: amount must be positive")
	ErrOrderNotPayable       = errors.New("payment: order is not payable in its current status")
	ErrPaymentExceedsBalance = errors.New("payment: amount exceeds balance due")

	ErrEmptyMessage    = errors.New("order message: text or attachment required")
	ErrMessageNotFound = errors.New("order message: not found")
)

// IsValidationError reports whether err is a caller-input problem.
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrOrderInvalidInput, ErrEmptyBreakdown, ErrInvalidBreakdownItem, ErrDiscountExceedsTotal,
		ErrInvalidAmount, ErrEmptyMessage, ErrMalformedOrderNumber,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsStateError reports whether err violates an order precondition.
func IsStateError(err error) bool {
	for _, target := range []error{
		ErrInvalidTransition, ErrOrderNotPayable, ErrNoQuote, ErrPaymentExceedsBalance, ErrQuoteNotAllowed,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsConcurrencyError reports whether err is transient and worth retrying after a re-read.
func IsConcurrencyError(err error) bool {
	return errors.Is(err, ErrConcurrentModification) || errors.Is(err, ErrNumberingFailed)
}
