package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/eventdesk/api/internal/repositories"
)

const (
	// OrderCounterID names the counter document holding the last issued order number.
	OrderCounterID = "orders"

	defaultOrderNumberPrefix = "EVT"
	defaultOrderNumberWidth  = 4
)

// FormatOrderNumber renders n as PREFIX-000n, zero padded to width digits. Values wider than
// width are printed in full.
func FormatOrderNumber(prefix string, width int, n int64) string {
	return fmt.Sprintf("%s-%0*d", prefix, width, n)
}

// ParseOrderNumber is the inverse of FormatOrderNumber. Only canonical strings parse, so
// formatting the result reproduces the input exactly.
func ParseOrderNumber(prefix string, width int, orderNumber string) (int64, error) {
	digits, ok := strings.CutPrefix(orderNumber, prefix+"-")
	if !ok {
		return 0, fmt.Errorf("%w: %q does not start with %s-", ErrMalformedOrderNumber, orderNumber, prefix)
	}
	if len(digits) < width {
		return 0, fmt.Errorf("%w: %q has fewer than %d digits", ErrMalformedOrderNumber, orderNumber, width)
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%w: %q contains non-digit characters", ErrMalformedOrderNumber, orderNumber)
		}
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q is out of range", ErrMalformedOrderNumber, orderNumber)
	}
	if FormatOrderNumber(prefix, width, n) != orderNumber {
		return 0, fmt.Errorf("%w: %q is not canonical", ErrMalformedOrderNumber, orderNumber)
	}
	return n, nil
}

// OrderNumberServiceDeps bundles collaborators required to construct the numbering service.
type OrderNumberServiceDeps struct {
	Counters repositories.CounterRepository
	Prefix   string
	Width    int
	// MaxValue optionally caps the sequence.
	MaxValue *int64
}

type orderNumberService struct {
	counters repositories.CounterRepository
	prefix   string
	width    int
	maxValue *int64

	configureOnce sync.Once
	configureErr  error
}

// NewOrderNumberService constructs a service issuing order numbers from the shared counter.
func NewOrderNumberService(deps OrderNumberServiceDeps) (OrderNumberService, error) {
	if deps.Counters == nil {
		return nil, errors.New("order number service: counter repository is required")
	}
	prefix := strings.TrimSpace(deps.Prefix)
	if prefix == "" {
		prefix = defaultOrderNumberPrefix
	}
	if strings.Contains(prefix, "-") {
		return nil, fmt.Errorf("order number service: prefix %q must not contain '-'", prefix)
	}
	width := deps.Width
	if width <= 0 {
		width = defaultOrderNumberWidth
	}
	return &orderNumberService{
		counters: deps.Counters,
		prefix:   prefix,
		width:    width,
		maxValue: deps.MaxValue,
	}, nil
}

// Next issues the next number. Run it with the context of the unit of work that persists the
// order so a failed insert rolls the increment back. Failures are never retried here: a retry
// after an ambiguous commit could skip a number.
func (s *orderNumberService) Next(ctx context.Context) (int64, string, error) {
	if err := s.ensureConfiguration(ctx); err != nil {
		return 0, "", fmt.Errorf("%w: %v", ErrNumberingFailed, err)
	}
	value, err := s.counters.Next(ctx, OrderCounterID, 1)
	if err != nil {
		return 0, "", fmt.Errorf("%w: %w", ErrNumberingFailed, err)
	}
	return value, FormatOrderNumber(s.prefix, s.width, value), nil
}

func (s *orderNumberService) Format(n int64) string {
	return FormatOrderNumber(s.prefix, s.width, n)
}

func (s *orderNumberService) Parse(orderNumber string) (int64, error) {
	return ParseOrderNumber(s.prefix, s.width, strings.TrimSpace(orderNumber))
}

func (s *orderNumberService) ensureConfiguration(ctx context.Context) error {
	if s.maxValue == nil {
		return nil
	}
	s.configureOnce.Do(func() {
		s.configureErr = s.counters.Configure(ctx, OrderCounterID, repositories.CounterConfig{Step: 1, MaxValue: s.maxValue})
	})
	return s.configureErr
}
