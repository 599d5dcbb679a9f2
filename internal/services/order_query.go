package services

import (
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"

	domain "github.com/eventdesk/api/internal/domain"
	"github.com/eventdesk/api/internal/platform/pagination"
	"github.com/eventdesk/api/internal/repositories"
)

// OrderFilterAll disables a type or status filter.
const OrderFilterAll = "all"

const defaultAnalyticsTTL = time.Minute

// OrderSort selects the list ordering.
type OrderSort string

const (
	OrderSortNewest     OrderSort = "newest"
	OrderSortOldest     OrderSort = "oldest"
	OrderSortAmountDesc OrderSort = "amount_desc"
	OrderSortAmountAsc  OrderSort = "amount_asc"
	OrderSortStatus     OrderSort = "status"
)

// OrderSorts lists the accepted sort keys.
var OrderSorts = []OrderSort{OrderSortNewest, OrderSortOldest, OrderSortAmountDesc, OrderSortAmountAsc, OrderSortStatus}

// OrderAnalytics aggregates an order snapshot.
type OrderAnalytics struct {
	Total             int                        `json:"total"`
	ByStatus          map[domain.OrderStatus]int `json:"byStatus"`
	ByType            map[domain.OrderType]int   `json:"byType"`
	TotalRevenue      int64                      `json:"totalRevenue"`
	AverageOrderValue int64                      `json:"averageOrderValue"`
	ConversionRate    int                        `json:"conversionRate"`
	GeneratedAt       time.Time                  `json:"generatedAt"`
}

// SearchOrders keeps orders whose number, client name or client email contains query, compared
// under Unicode case folding. An empty query returns the input unchanged.
func SearchOrders(orders []Order, query string) []Order {
	query = strings.TrimSpace(query)
	if query == "" {
		return orders
	}
	folder := cases.Fold()
	needle := folder.String(query)
	out := make([]Order, 0, len(orders))
	for _, order := range orders {
		for _, field := range []string{order.OrderNumber, order.Client.Name, order.Client.Email} {
			if field != "" && strings.Contains(folder.String(field), needle) {
				out = append(out, order)
				break
			}
		}
	}
	return out
}

// FilterOrdersByType keeps orders of the given type. Empty or "all" passes everything through.
func FilterOrdersByType(orders []Order, orderType domain.OrderType) []Order {
	if orderType == "" || orderType == OrderFilterAll {
		return orders
	}
	return slices.DeleteFunc(slices.Clone(orders), func(o Order) bool { return o.Type != orderType })
}

// FilterOrdersByStatus keeps orders in the given status. Empty or "all" passes everything through.
func FilterOrdersByStatus(orders []Order, status domain.OrderStatus) []Order {
	if status == "" || status == OrderFilterAll {
		return orders
	}
	return slices.DeleteFunc(slices.Clone(orders), func(o Order) bool { return o.Status != status })
}

// FilterOrdersByDateRange keeps orders created within the inclusive range. Nil bounds are open.
func FilterOrdersByDateRange(orders []Order, r domain.RangeQuery[time.Time]) []Order {
	if r.IsZero() {
		return orders
	}
	return slices.DeleteFunc(slices.Clone(orders), func(o Order) bool {
		if r.From != nil && o.CreatedAt.Before(*r.From) {
			return true
		}
		if r.To != nil && o.CreatedAt.After(*r.To) {
			return true
		}
		return false
	})
}

// SortOrders returns a sorted copy. Orders without a quote count as amount 0. The sort is stable.
func SortOrders(orders []Order, sort OrderSort) []Order {
	out := slices.Clone(orders)
	switch sort {
	case OrderSortOldest:
		slices.SortStableFunc(out, func(a, b Order) int { return a.CreatedAt.Compare(b.CreatedAt) })
	case OrderSortAmountDesc:
		slices.SortStableFunc(out, func(a, b Order) int { return cmp.Compare(quotedAmount(b), quotedAmount(a)) })
	case OrderSortAmountAsc:
		slices.SortStableFunc(out, func(a, b Order) int { return cmp.Compare(quotedAmount(a), quotedAmount(b)) })
	case OrderSortStatus:
		slices.SortStableFunc(out, func(a, b Order) int { return cmp.Compare(a.Status.Priority(), b.Status.Priority()) })
	default:
		slices.SortStableFunc(out, func(a, b Order) int { return b.CreatedAt.Compare(a.CreatedAt) })
	}
	return out
}

// ComputeOrderAnalytics aggregates counts, revenue, average quoted value and conversion rate.
func ComputeOrderAnalytics(orders []Order) OrderAnalytics {
	result := OrderAnalytics{
		Total:    len(orders),
		ByStatus: make(map[domain.OrderStatus]int, len(domain.OrderStatuses)),
		ByType:   make(map[domain.OrderType]int, len(domain.OrderTypes)),
	}
	for _, status := range domain.OrderStatuses {
		result.ByStatus[status] = 0
	}
	for _, orderType := range domain.OrderTypes {
		result.ByType[orderType] = 0
	}

	var quotedSum, quotedCount int64
	for _, order := range orders {
		result.ByStatus[order.Status]++
		result.ByType[order.Type]++
		if order.Payment != nil && order.Payment.Status == domain.PaymentStatusCompleted {
			result.TotalRevenue += order.Payment.AmountPaid
		}
		if order.Quote != nil {
			quotedSum += order.Quote.FinalAmount
			quotedCount++
		}
	}
	if quotedCount > 0 {
		result.AverageOrderValue = (quotedSum + quotedCount/2) / quotedCount
	}
	if result.Total > 0 {
		completed := result.ByStatus[domain.OrderStatusCompleted]
		result.ConversionRate = (completed*100 + result.Total/2) / result.Total
	}
	return result
}

func quotedAmount(order Order) int64 {
	if order.Quote == nil {
		return 0
	}
	return order.Quote.FinalAmount
}

// AnalyticsCache stores computed analytics keyed by the normalized query.
type AnalyticsCache interface {
	GetAnalytics(ctx context.Context, key string) (OrderAnalytics, bool, error)
	SetAnalytics(ctx context.Context, key string, value OrderAnalytics, ttl time.Duration) error
}

// OrderQueryServiceDeps bundles collaborators required to construct the query service.
type OrderQueryServiceDeps struct {
	Orders   repositories.OrderRepository
	Numbers  OrderNumberService
	Cache    AnalyticsCache
	CacheTTL time.Duration
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type orderQueryService struct {
	orders   repositories.OrderRepository
	numbers  OrderNumberService
	cache    AnalyticsCache
	cacheTTL time.Duration
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewOrderQueryService constructs the read side over order snapshots.
func NewOrderQueryService(deps OrderQueryServiceDeps) (OrderQueryService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order query service: order repository is required")
	}
	if deps.Numbers == nil {
		return nil, errors.New("order query service: order number service is required")
	}
	ttl := deps.CacheTTL
	if ttl <= 0 {
		ttl = defaultAnalyticsTTL
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &orderQueryService{
		orders:   deps.Orders,
		numbers:  deps.Numbers,
		cache:    deps.Cache,
		cacheTTL: ttl,
		clock:    func() time.Time { return clock().UTC() },
		logger:   logger,
	}, nil
}

func (s *orderQueryService) List(ctx context.Context, query OrderListQuery) (domain.CursorPage[Order], error) {
	orders, err := s.snapshot(ctx, query)
	if err != nil {
		return domain.CursorPage[Order]{}, err
	}
	sort := query.Sort
	if sort == "" {
		sort = OrderSortNewest
	}
	if !slices.Contains(OrderSorts, sort) {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: unknown sort %q", ErrOrderInvalidInput, query.Sort)
	}
	cursor, err := pagination.DecodeToken(query.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
	}
	items, next := pagination.Window(SortOrders(orders, sort), cursor, query.Pagination.PageSize)
	return domain.CursorPage[Order]{Items: items, NextPageToken: next}, nil
}

// Analytics aggregates the filtered snapshot. Results are cached for the configured TTL; any
// cache failure is logged and bypassed.
func (s *orderQueryService) Analytics(ctx context.Context, query OrderListQuery) (OrderAnalytics, error) {
	key := analyticsCacheKey(query)
	if s.cache != nil {
		cached, ok, err := s.cache.GetAnalytics(ctx, key)
		switch {
		case err != nil:
			s.logger(ctx, "orders.analytics.cache.get_failed", map[string]any{"error": err.Error()})
		case ok:
			return cached, nil
		}
	}

	orders, err := s.snapshot(ctx, query)
	if err != nil {
		return OrderAnalytics{}, err
	}
	result := ComputeOrderAnalytics(orders)
	result.GeneratedAt = s.clock()

	if s.cache != nil {
		if err := s.cache.SetAnalytics(ctx, key, result, s.cacheTTL); err != nil {
			s.logger(ctx, "orders.analytics.cache.set_failed", map[string]any{"error": err.Error()})
		}
	}
	return result, nil
}

func (s *orderQueryService) FindByNumber(ctx context.Context, orderNumber string) (Order, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if _, err := s.numbers.Parse(orderNumber); err != nil {
		return Order{}, err
	}
	order, err := s.orders.FindByNumber(ctx, orderNumber)
	if err != nil {
		return Order{}, mapOrderRepositoryError(err)
	}
	return order, nil
}

// snapshot reads the orders matching the query. Type, status and date filters are pushed down to
// the repository and applied again in memory so every backend yields the same result.
func (s *orderQueryService) snapshot(ctx context.Context, query OrderListQuery) ([]Order, error) {
	orderType, status, err := parseListFilters(query)
	if err != nil {
		return nil, err
	}
	filter := repositories.OrderQueryFilter{CreatedFrom: query.DateRange.From, CreatedTo: query.DateRange.To}
	if orderType != "" {
		filter.Types = []domain.OrderType{orderType}
	}
	if status != "" {
		filter.Statuses = []domain.OrderStatus{status}
	}
	orders, err := s.orders.Query(ctx, filter)
	if err != nil {
		return nil, mapOrderRepositoryError(err)
	}
	orders = FilterOrdersByType(orders, orderType)
	orders = FilterOrdersByStatus(orders, status)
	orders = FilterOrdersByDateRange(orders, query.DateRange)
	return SearchOrders(orders, query.Search), nil
}

func parseListFilters(query OrderListQuery) (domain.OrderType, domain.OrderStatus, error) {
	var (
		orderType domain.OrderType
		status    domain.OrderStatus
	)
	if v := strings.ToLower(strings.TrimSpace(query.Type)); v != "" && v != OrderFilterAll {
		orderType = domain.OrderType(v)
		if !orderType.Valid() {
			return "", "", fmt.Errorf("%w: unknown order type %q", ErrOrderInvalidInput, query.Type)
		}
	}
	if v := strings.ToLower(strings.TrimSpace(query.Status)); v != "" && v != OrderFilterAll {
		status = domain.OrderStatus(v)
		if !status.Valid() {
			return "", "", fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, query.Status)
		}
	}
	if r := query.DateRange; r.From != nil && r.To != nil && r.From.After(*r.To) {
		return "", "", fmt.Errorf("%w: date range start is after its end", ErrOrderInvalidInput)
	}
	return orderType, status, nil
}

func analyticsCacheKey(query OrderListQuery) string {
	var from, to string
	if query.DateRange.From != nil {
		from = query.DateRange.From.UTC().Format(time.RFC3339Nano)
	}
	if query.DateRange.To != nil {
		to = query.DateRange.To.UTC().Format(time.RFC3339Nano)
	}
	raw := strings.Join([]string{
		cases.Fold().String(strings.TrimSpace(query.Search)),
		strings.ToLower(strings.TrimSpace(query.Type)),
		strings.ToLower(strings.TrimSpace(query.Status)),
		from,
		to,
	}, "|")
	sum := sha256.Sum256([]byte(raw))
	return "orders:analytics:" + hex.EncodeToString(sum[:16])
}
