package domain

import (
	"slices"
	"time"
)

// PaymentStatus is derived from the amount paid against the quote total.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusPartial   PaymentStatus = "partial"
	PaymentStatusCompleted PaymentStatus = "completed"
)

// PaymentMethod records how a payment was received.
type PaymentMethod string

const (
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodCheque       PaymentMethod = "cheque"
	PaymentMethodOnline       PaymentMethod = "online"
	PaymentMethodOther        PaymentMethod = "other"
)

// PaymentMethods lists accepted payment methods.
var PaymentMethods = []PaymentMethod{
	PaymentMethodBankTransfer,
	PaymentMethodCash,
	PaymentMethodCard,
	PaymentMethodCheque,
	PaymentMethodOnline,
	PaymentMethodOther,
}

// Valid reports whether m is an accepted payment method.
func (m PaymentMethod) Valid() bool {
	return slices.Contains(PaymentMethods, m)
}

// PaymentTransaction is a single recorded receipt.
type PaymentTransaction struct {
	ID         string
	Amount     int64
	Method     PaymentMethod
	Reference  string
	Notes      string
	RecordedAt time.Time
	RecordedBy Actor
}

// Payment is the running ledger for the current quote. Only Transactions and QuoteID are
// stored facts; every other field is derived by DerivePayment.
type Payment struct {
	QuoteID      string
	Total        int64
	AmountPaid   int64
	AmountDue    int64
	Status       PaymentStatus
	Transactions []PaymentTransaction
}

// DerivePayment recomputes the ledger totals from its transactions.
func DerivePayment(quoteID string, total int64, transactions []PaymentTransaction) Payment {
	var paid int64
	for _, tx := range transactions {
		paid += tx.Amount
	}
	due := total - paid
	if due < 0 {
		due = 0
	}
	return Payment{
		QuoteID:      quoteID,
		Total:        total,
		AmountPaid:   paid,
		AmountDue:    due,
		Status:       PaymentStatusFor(paid, total),
		Transactions: append([]PaymentTransaction(nil), transactions...),
	}
}

// PaymentStatusFor maps an amount paid against a total. A zero total owes nothing and is
// therefore completed.
func PaymentStatusFor(paid, total int64) PaymentStatus {
	switch {
	case paid >= total:
		return PaymentStatusCompleted
	case paid <= 0:
		return PaymentStatusPending
	default:
		return PaymentStatusPartial
	}
}

// Progress returns the percentage paid, rounded half up and clamped to [0,100].
func (p Payment) Progress() int {
	total := p.AmountPaid + p.AmountDue
	if total <= 0 {
		return 0
	}
	paid := p.AmountPaid
	if paid <= 0 {
		return 0
	}
	if paid >= total {
		return 100
	}
	return int((paid*100 + total/2) / total)
}
