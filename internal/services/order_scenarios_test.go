package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	domain "github.com/eventdesk/api/internal/domain"
)

// TestOrderLifecycle walks one event order from creation through full payment and checks each
// stage against the amounts an admin would see.
func TestOrderLifecycle(t *testing.T) {
	f := newOrderServiceFixture(t)
	ctx := context.Background()

	order, err := f.svc.CreateOrder(ctx, weddingCommand())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !CanSendQuote(order) {
		t.Fatalf("new order should accept a quote")
	}
	if CanAddPayment(order) {
		t.Fatalf("new order should refuse payments")
	}

	order, err = f.svc.SendQuote(ctx, SendQuoteCommand{
		OrderID: order.ID,
		Actor:   testAdmin,
		Quote: QuoteInput{
			Items: []domain.QuoteItem{
				{Label: "Venue", Amount: 500000},
				{Label: "Photography", Amount: 200000},
			},
			Discount: 50000,
		},
	})
	if err != nil {
		t.Fatalf("send quote: %v", err)
	}
	if order.Quote.Total != 700000 || order.Quote.FinalAmount != 650000 {
		t.Fatalf("unexpected quote totals %d/%d", order.Quote.Total, order.Quote.FinalAmount)
	}
	if order.Status != domain.OrderStatusQuoted {
		t.Fatalf("expected quoted, got %s", order.Status)
	}

	order, err = f.svc.RecordPayment(ctx, RecordPaymentCommand{
		OrderID: order.ID,
		Actor:   testAdmin,
		Payment: PaymentInput{Amount: 300000, Method: domain.PaymentMethodBankTransfer, Reference: "TXN1"},
	})
	if err != nil {
		t.Fatalf("first payment: %v", err)
	}
	if order.Payment.AmountPaid != 300000 || order.Payment.AmountDue != 350000 || order.Payment.Status != domain.PaymentStatusPartial {
		t.Fatalf("unexpected ledger after first payment %+v", order.Payment)
	}

	order, err = f.svc.RecordPayment(ctx, RecordPaymentCommand{
		OrderID: order.ID,
		Actor:   testAdmin,
		Payment: PaymentInput{Amount: 350000, Method: domain.PaymentMethodBankTransfer, Reference: "TXN2"},
	})
	if err != nil {
		t.Fatalf("second payment: %v", err)
	}
	if order.Payment.AmountDue != 0 || order.Payment.Status != domain.PaymentStatusCompleted {
		t.Fatalf("unexpected ledger after second payment %+v", order.Payment)
	}
	if PaymentProgress(order.Payment) != 100 {
		t.Fatalf("expected full progress")
	}

	_, err = f.svc.RecordPayment(ctx, RecordPaymentCommand{
		OrderID: order.ID,
		Actor:   testAdmin,
		Payment: PaymentInput{Amount: 1, Method: domain.PaymentMethodCash},
	})
	if !errors.Is(err, ErrPaymentExceedsBalance) {
		t.Fatalf("expected overpayment to fail, got %v", err)
	}
	stored, _ := f.orders.Get(ctx, order.ID)
	if len(stored.Payment.Transactions) != 2 {
		t.Fatalf("rejected payment must not be stored")
	}
}

func TestCompletingPendingOrderIsRejected(t *testing.T) {
	f := newOrderServiceFixture(t)
	ctx := context.Background()
	order, err := f.svc.CreateOrder(ctx, weddingCommand())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = f.svc.TransitionStatus(ctx, TransitionOrderCommand{OrderID: order.ID, Target: domain.OrderStatusCompleted, Actor: testAdmin})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestConcurrentOrderCreationIssuesDistinctNumbers(t *testing.T) {
	f := newOrderServiceFixture(t)
	ctx := context.Background()

	const workers = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers []string
		errs    []error
	)
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			order, err := f.svc.CreateOrder(ctx, weddingCommand())
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			numbers = append(numbers, order.OrderNumber)
		}()
	}
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	sort.Strings(numbers)
	for i, number := range numbers {
		if want := FormatOrderNumber("EVT", 4, int64(i+1)); number != want {
			t.Fatalf("expected gap-free sequence, position %d has %s want %s", i, number, want)
		}
	}
	if f.orders.count() != workers {
		t.Fatalf("expected %d orders, got %d", workers, f.orders.count())
	}
}

func TestConcurrentCounterIncrementsAreUnique(t *testing.T) {
	counters := newMemoryCounterRepository()
	svc, err := NewOrderNumberService(OrderNumberServiceDeps{Counters: counters})
	if err != nil {
		t.Fatalf("numbers: %v", err)
	}

	const workers = 50
	results := make(chan int64, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			n, _, err := svc.Next(context.Background())
			if err != nil {
				t.Errorf("next: %v", err)
				return
			}
			results <- n
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int64]bool, workers)
	for n := range results {
		if seen[n] {
			t.Fatalf("value %d issued twice", n)
		}
		seen[n] = true
	}
	for i := int64(1); i <= workers; i++ {
		if !seen[i] {
			t.Fatalf("sequence has a gap at %d", i)
		}
	}
}
