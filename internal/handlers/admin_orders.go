package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/eventdesk/api/internal/domain"
	"github.com/eventdesk/api/internal/platform/auth"
	"github.com/eventdesk/api/internal/platform/httpx"
	"github.com/eventdesk/api/internal/platform/observability"
	"github.com/eventdesk/api/internal/services"
)

const (
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
	maxOrderBodySize     = 32 * 1024
)

// AdminOrderHandlers exposes the staff-facing order lifecycle endpoints.
type AdminOrderHandlers struct {
	authn       *auth.Authenticator
	orders      services.OrderService
	queries     services.OrderQueryService
	idempotency func(http.Handler) http.Handler
	now         func() time.Time
}

// AdminOrderOption customises AdminOrderHandlers.
type AdminOrderOption func(*AdminOrderHandlers)

// WithOrderIdempotency guards order creation, quoting and payments with mw.
func WithOrderIdempotency(mw func(http.Handler) http.Handler) AdminOrderOption {
	return func(h *AdminOrderHandlers) {
		h.idempotency = mw
	}
}

// WithOrderClock overrides the clock used to report quote expiry.
func WithOrderClock(now func() time.Time) AdminOrderOption {
	return func(h *AdminOrderHandlers) {
		if now != nil {
			h.now = now
		}
	}
}

// NewAdminOrderHandlers constructs the admin order handlers. authn may be nil in tests, in which
// case the caller is responsible for placing an actor on the request context.
func NewAdminOrderHandlers(authn *auth.Authenticator, orders services.OrderService, queries services.OrderQueryService, opts ...AdminOrderOption) *AdminOrderHandlers {
	h := &AdminOrderHandlers{
		authn:   authn,
		orders:  orders,
		queries: queries,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints on the admin router.
func (h *AdminOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(g chi.Router) {
		if h.authn != nil {
			g.Use(h.authn.RequireRoles(auth.RoleAdmin, auth.RoleManager, auth.RoleStaff))
			g.Use(observability.ActorCapture)
		}

		g.Get("/orders", h.listOrders)
		g.Get("/orders/analytics", h.orderAnalytics)
		g.Get("/orders/by-number/{orderNumber}", h.getOrderByNumber)
		g.Get("/orders/{orderID}", h.getOrder)

		g.Group(func(m chi.Router) {
			m.Use(requireAnyRole(auth.RoleAdmin, auth.RoleManager))
			idem := func(next http.HandlerFunc) http.Handler {
				if h.idempotency == nil {
					return next
				}
				return h.idempotency(next)
			}
			m.Method(http.MethodPost, "/orders", idem(h.createOrder))
			m.Method(http.MethodPost, "/orders/{orderID}/quote", idem(h.sendQuote))
			m.Method(http.MethodPost, "/orders/{orderID}/payments", idem(h.recordPayment))
			m.Post("/orders/{orderID}:transition", h.transitionOrder)
			m.Post("/orders/{orderID}:cancel", h.cancelOrder)
			m.Post("/orders/{orderID}/milestones", h.addMilestone)
			m.Put("/orders/{orderID}/notes", h.updateAdminNotes)
			m.Put("/orders/{orderID}/admins", h.assignAdmins)
		})
	})
}

// requireAnyRole narrows a group to identities holding one of roles. Requests without an
// identity pass through, which only happens when no authenticator is configured.
func requireAnyRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := auth.IdentityFromContext(r.Context())
			if ok && identity != nil && !slices.ContainsFunc(roles, identity.HasRole) {
				httpx.WriteError(r.Context(), w, httpx.NewError("insufficient_role", "insufficient role", http.StatusForbidden))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (h *AdminOrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.queries == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	query, err := parseOrderListQuery(r, true)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.queries.List(ctx, query)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderSummaryPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderSummary(order))
	}
	httpx.WriteJSON(w, http.StatusOK, orderListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

type orderAnalyticsResponse struct {
	Total             int            `json:"total"`
	ByStatus          map[string]int `json:"by_status"`
	ByType            map[string]int `json:"by_type"`
	TotalRevenue      int64          `json:"total_revenue"`
	AverageOrderValue int64          `json:"average_order_value"`
	ConversionRate    int            `json:"conversion_rate"`
	GeneratedAt       string         `json:"generated_at"`
}

func (h *AdminOrderHandlers) orderAnalytics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.queries == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	query, err := parseOrderListQuery(r, false)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	analytics, err := h.queries.Analytics(ctx, query)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	resp := orderAnalyticsResponse{
		Total:             analytics.Total,
		ByStatus:          make(map[string]int, len(analytics.ByStatus)),
		ByType:            make(map[string]int, len(analytics.ByType)),
		TotalRevenue:      analytics.TotalRevenue,
		AverageOrderValue: analytics.AverageOrderValue,
		ConversionRate:    analytics.ConversionRate,
		GeneratedAt:       formatTime(analytics.GeneratedAt),
	}
	for status, n := range analytics.ByStatus {
		resp.ByStatus[string(status)] = n
	}
	for t, n := range analytics.ByType {
		resp.ByType[string(t)] = n
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *AdminOrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	h.writeOrder(w, http.StatusOK, order)
}

func (h *AdminOrderHandlers) getOrderByNumber(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.queries == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	number := strings.TrimSpace(chi.URLParam(r, "orderNumber"))
	if number == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order number is required", http.StatusBadRequest))
		return
	}
	order, err := h.queries.FindByNumber(ctx, number)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	h.writeOrder(w, http.StatusOK, order)
}

func (h *AdminOrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	actor, ok := requireActor(ctx, w)
	if !ok {
		return
	}
	var req createOrderRequest
	if !decodeJSONBody(w, r, maxOrderBodySize, false, &req) {
		return
	}
	details, err := req.details()
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	order, err := h.orders.CreateOrder(ctx, services.CreateOrderCommand{
		Actor: actor,
		Client: domain.ClientRef{
			UserID: strings.TrimSpace(req.Client.UserID),
			Name:   strings.TrimSpace(req.Client.Name),
			Email:  strings.TrimSpace(req.Client.Email),
			Phone:  strings.TrimSpace(req.Client.Phone),
		},
		Details:        details,
		AdminNotes:     strings.TrimSpace(req.AdminNotes),
		AssignedAdmins: trimStrings(req.AssignedAdmins),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	w.Header().Set("Location", "/orders/"+order.ID)
	h.writeOrder(w, http.StatusCreated, order)
}

func (h *AdminOrderHandlers) transitionOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, orderID, ok := h.mutationPreamble(w, r)
	if !ok {
		return
	}
	var req transitionRequest
	if !decodeJSONBody(w, r, maxOrderBodySize, false, &req) {
		return
	}
	target := domain.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if !target.Valid() {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a valid order status", http.StatusBadRequest))
		return
	}
	version, ok := versionFromRequest(w, r, req.ExpectedVersion)
	if !ok {
		return
	}

	order, err := h.orders.TransitionStatus(ctx, services.TransitionOrderCommand{
		OrderID:         orderID,
		Target:          target,
		Actor:           actor,
		Notes:           strings.TrimSpace(req.Notes),
		ExpectedVersion: version,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	h.writeOrder(w, http.StatusOK, order)
}

func (h *AdminOrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, orderID, ok := h.mutationPreamble(w, r)
	if !ok {
		return
	}
	var req cancelRequest
	if !decodeJSONBody(w, r, maxOrderBodySize, true, &req) {
		return
	}
	if req.RefundAmount != nil && *req.RefundAmount < 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "refund_amount must not be negative", http.StatusBadRequest))
		return
	}
	version, ok := versionFromRequest(w, r, req.ExpectedVersion)
	if !ok {
		return
	}

	order, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		OrderID:         orderID,
		Actor:           actor,
		Reason:          strings.TrimSpace(req.Reason),
		RefundAmount:    req.RefundAmount,
		ExpectedVersion: version,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	h.writeOrder(w, http.StatusOK, order)
}

func (h *AdminOrderHandlers) sendQuote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, orderID, ok := h.mutationPreamble(w, r)
	if !ok {
		return
	}
	var req sendQuoteRequest
	if !decodeJSONBody(w, r, maxOrderBodySize, false, &req) {
		return
	}
	input, err := req.quoteInput()
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	version, ok := versionFromRequest(w, r, req.ExpectedVersion)
	if !ok {
		return
	}

	order, err := h.orders.SendQuote(ctx, services.SendQuoteCommand{
		OrderID:         orderID,
		Actor:           actor,
		Quote:           input,
		ExpectedVersion: version,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	h.writeOrder(w, http.StatusOK, order)
}

func (h *AdminOrderHandlers) recordPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, orderID, ok := h.mutationPreamble(w, r)
	if !ok {
		return
	}
	var req recordPaymentRequest
	if !decodeJSONBody(w, r, maxOrderBodySize, false, &req) {
		return
	}
	method := domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.Method)))
	if method == "" {
		method = domain.PaymentMethodOther
	}
	if !method.Valid() {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "method must be a supported payment method", http.StatusBadRequest))
		return
	}
	version, ok := versionFromRequest(w, r, req.ExpectedVersion)
	if !ok {
		return
	}

	order, err := h.orders.RecordPayment(ctx, services.RecordPaymentCommand{
		OrderID: orderID,
		Actor:   actor,
		Payment: services.PaymentInput{
			Amount:    req.Amount,
			Method:    method,
			Reference: strings.TrimSpace(req.Reference),
			Notes:     strings.TrimSpace(req.Notes),
		},
		ExpectedVersion: version,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	h.writeOrder(w, http.StatusOK, order)
}

func (h *AdminOrderHandlers) addMilestone(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, orderID, ok := h.mutationPreamble(w, r)
	if !ok {
		return
	}
	var req milestoneRequest
	if !decodeJSONBody(w, r, maxOrderBodySize, false, &req) {
		return
	}
	var date time.Time
	if strings.TrimSpace(req.Date) != "" {
		parsed, err := parseTimeParam(req.Date)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "date "+err.Error(), http.StatusBadRequest))
			return
		}
		date = parsed
	}
	version, ok := versionFromRequest(w, r, req.ExpectedVersion)
	if !ok {
		return
	}

	order, err := h.orders.AddTimelineMilestone(ctx, services.AddMilestoneCommand{
		OrderID:         orderID,
		Actor:           actor,
		Title:           strings.TrimSpace(req.Title),
		Notes:           strings.TrimSpace(req.Notes),
		Date:            date,
		Completed:       req.Completed,
		ExpectedVersion: version,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	h.writeOrder(w, http.StatusOK, order)
}

func (h *AdminOrderHandlers) updateAdminNotes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, orderID, ok := h.mutationPreamble(w, r)
	if !ok {
		return
	}
	var req adminNotesRequest
	if !decodeJSONBody(w, r, maxOrderBodySize, false, &req) {
		return
	}
	version, ok := versionFromRequest(w, r, req.ExpectedVersion)
	if !ok {
		return
	}

	order, err := h.orders.UpdateAdminNotes(ctx, services.UpdateAdminNotesCommand{
		OrderID:         orderID,
		Actor:           actor,
		Notes:           req.Notes,
		ExpectedVersion: version,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	h.writeOrder(w, http.StatusOK, order)
}

func (h *AdminOrderHandlers) assignAdmins(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, orderID, ok := h.mutationPreamble(w, r)
	if !ok {
		return
	}
	var req assignAdminsRequest
	if !decodeJSONBody(w, r, maxOrderBodySize, false, &req) {
		return
	}
	version, ok := versionFromRequest(w, r, req.ExpectedVersion)
	if !ok {
		return
	}

	order, err := h.orders.AssignAdmins(ctx, services.AssignAdminsCommand{
		OrderID:         orderID,
		Actor:           actor,
		AdminIDs:        trimStrings(req.AdminIDs),
		ExpectedVersion: version,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	h.writeOrder(w, http.StatusOK, order)
}

func (h *AdminOrderHandlers) mutationPreamble(w http.ResponseWriter, r *http.Request) (domain.Actor, string, bool) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return domain.Actor{}, "", false
	}
	actor, ok := requireActor(ctx, w)
	if !ok {
		return domain.Actor{}, "", false
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return domain.Actor{}, "", false
	}
	return actor, orderID, true
}

func orderIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return "", false
	}
	return orderID, true
}

func versionFromRequest(w http.ResponseWriter, r *http.Request, fromBody *int64) (*int64, bool) {
	version, err := expectedVersion(r, fromBody)
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return nil, false
	}
	return version, true
}

// writeOrder renders the full order and exposes its version as the ETag for If-Match.
func (h *AdminOrderHandlers) writeOrder(w http.ResponseWriter, status int, order services.Order) {
	w.Header().Set("ETag", fmt.Sprintf("%q", strconv.FormatInt(order.Version, 10)))
	httpx.WriteJSON(w, status, orderResponse{Order: buildOrderPayload(order, h.now().UTC())})
}

// parseOrderListQuery reads search, filter and sort parameters. Pagination is only read for
// list requests.
func parseOrderListQuery(r *http.Request, paginate bool) (services.OrderListQuery, error) {
	values := r.URL.Query()
	query := services.OrderListQuery{
		Search: strings.TrimSpace(firstNonEmpty(values.Get("q"), values.Get("search"))),
		Type:   services.OrderFilterAll,
		Status: services.OrderFilterAll,
	}

	if raw := strings.ToLower(strings.TrimSpace(values.Get("type"))); raw != "" && raw != services.OrderFilterAll {
		if !domain.OrderType(raw).Valid() {
			return services.OrderListQuery{}, errors.New("type must be a valid order type or all")
		}
		query.Type = raw
	}
	if raw := strings.ToLower(strings.TrimSpace(values.Get("status"))); raw != "" && raw != services.OrderFilterAll {
		if !domain.OrderStatus(raw).Valid() {
			return services.OrderListQuery{}, errors.New("status must be a valid order status or all")
		}
		query.Status = raw
	}

	from, err := parseOptionalTime(firstNonEmpty(values.Get("from"), values.Get("created_after")))
	if err != nil {
		return services.OrderListQuery{}, fmt.Errorf("from %w", err)
	}
	to, err := parseOptionalTime(firstNonEmpty(values.Get("to"), values.Get("created_before")))
	if err != nil {
		return services.OrderListQuery{}, fmt.Errorf("to %w", err)
	}
	if from != nil && to != nil && to.Before(*from) {
		return services.OrderListQuery{}, errors.New("to must not be before from")
	}
	query.DateRange = domain.RangeQuery[time.Time]{From: from, To: to}

	if !paginate {
		return query, nil
	}

	if raw := strings.ToLower(strings.TrimSpace(values.Get("sort"))); raw != "" {
		sort := services.OrderSort(raw)
		if !slices.Contains(services.OrderSorts, sort) {
			return services.OrderListQuery{}, errors.New("sort must be one of newest, oldest, amount_desc, amount_asc or status")
		}
		query.Sort = sort
	}

	pageSize := defaultOrderPageSize
	if raw := strings.TrimSpace(values.Get("page_size")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil {
			return services.OrderListQuery{}, errors.New("page_size must be an integer")
		}
		switch {
		case size <= 0:
			pageSize = defaultOrderPageSize
		case size > maxOrderPageSize:
			pageSize = maxOrderPageSize
		default:
			pageSize = size
		}
	}
	query.Pagination = services.Pagination{
		PageSize:  pageSize,
		PageToken: strings.TrimSpace(values.Get("page_token")),
	}
	return query, nil
}

// orderErrorCodes names the sentinel behind a failure. The status comes from orderErrorStatus.
var orderErrorCodes = []struct {
	target error
	code   string
}{
	{services.ErrOrderNotFound, "order_not_found"},
	{services.ErrMessageNotFound, "message_not_found"},
	{services.ErrConcurrentModification, "order_conflict"},
	{services.ErrInvalidTransition, "invalid_transition"},
	{services.ErrQuoteNotAllowed, "quote_not_allowed"},
	{services.ErrNoQuote, "quote_required"},
	{services.ErrOrderNotPayable, "order_not_payable"},
	{services.ErrPaymentExceedsBalance, "payment_exceeds_balance"},
	{services.ErrNumberingFailed, "order_number_unavailable"},
	{services.ErrOrderUnavailable, "order_service_unavailable"},
	{services.ErrEmptyBreakdown, "quote_items_required"},
	{services.ErrInvalidBreakdownItem, "invalid_quote_item"},
	{services.ErrDiscountExceedsTotal, "discount_exceeds_total"},
	{services.ErrInvalidAmount, "invalid_amount"},
	{services.ErrEmptyMessage, "message_empty"},
	{services.ErrMalformedOrderNumber, "invalid_order_number"},
}

func orderErrorStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrOrderNotFound), errors.Is(err, services.ErrMessageNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrOrderUnavailable), errors.Is(err, services.ErrNumberingFailed):
		return http.StatusServiceUnavailable
	case services.IsConcurrencyError(err), services.IsStateError(err):
		return http.StatusConflict
	case services.IsValidationError(err),
		errors.Is(err, domain.ErrUnknownOrderType),
		errors.Is(err, domain.ErrOrderPayloadMismatch):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	status := orderErrorStatus(err)
	if status == http.StatusInternalServerError {
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", status))
		return
	}
	code := "order_error"
	if status == http.StatusBadRequest {
		code = "invalid_request"
	}
	for _, c := range orderErrorCodes {
		if errors.Is(err, c.target) {
			code = c.code
			break
		}
	}
	message := err.Error()
	if status == http.StatusNotFound || status == http.StatusServiceUnavailable {
		message = strings.ReplaceAll(code, "_", " ")
	}
	if errors.Is(err, services.ErrConcurrentModification) {
		w.Header().Set("Retry-After", "1")
	}
	httpx.WriteError(ctx, w, httpx.NewError(code, message, status))
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
