package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/eventdesk/api/internal/domain"
	"github.com/eventdesk/api/internal/platform/auth"
	"github.com/eventdesk/api/internal/platform/idempotency"
	"github.com/eventdesk/api/internal/platform/requestctx"
	"github.com/eventdesk/api/internal/services"
)

type stubOrderService struct {
	createFn     func(context.Context, services.CreateOrderCommand) (services.Order, error)
	getFn        func(context.Context, string) (services.Order, error)
	transitionFn func(context.Context, services.TransitionOrderCommand) (services.Order, error)
	cancelFn     func(context.Context, services.CancelOrderCommand) (services.Order, error)
	quoteFn      func(context.Context, services.SendQuoteCommand) (services.Order, error)
	paymentFn    func(context.Context, services.RecordPaymentCommand) (services.Order, error)
	milestoneFn  func(context.Context, services.AddMilestoneCommand) (services.Order, error)
	notesFn      func(context.Context, services.UpdateAdminNotesCommand) (services.Order, error)
	assignFn     func(context.Context, services.AssignAdminsCommand) (services.Order, error)
}

var errNotStubbed = errors.New("not stubbed")

func (s *stubOrderService) CreateOrder(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Order{}, errNotStubbed
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string) (services.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, orderID)
	}
	return services.Order{}, errNotStubbed
}

func (s *stubOrderService) TransitionStatus(ctx context.Context, cmd services.TransitionOrderCommand) (services.Order, error) {
	if s.transitionFn != nil {
		return s.transitionFn(ctx, cmd)
	}
	return services.Order{}, errNotStubbed
}

func (s *stubOrderService) Cancel(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, cmd)
	}
	return services.Order{}, errNotStubbed
}

func (s *stubOrderService) SendQuote(ctx context.Context, cmd services.SendQuoteCommand) (services.Order, error) {
	if s.quoteFn != nil {
		return s.quoteFn(ctx, cmd)
	}
	return services.Order{}, errNotStubbed
}

func (s *stubOrderService) RecordPayment(ctx context.Context, cmd services.RecordPaymentCommand) (services.Order, error) {
	if s.paymentFn != nil {
		return s.paymentFn(ctx, cmd)
	}
	return services.Order{}, errNotStubbed
}

func (s *stubOrderService) AddTimelineMilestone(ctx context.Context, cmd services.AddMilestoneCommand) (services.Order, error) {
	if s.milestoneFn != nil {
		return s.milestoneFn(ctx, cmd)
	}
	return services.Order{}, errNotStubbed
}

func (s *stubOrderService) UpdateAdminNotes(ctx context.Context, cmd services.UpdateAdminNotesCommand) (services.Order, error) {
	if s.notesFn != nil {
		return s.notesFn(ctx, cmd)
	}
	return services.Order{}, errNotStubbed
}

func (s *stubOrderService) AssignAdmins(ctx context.Context, cmd services.AssignAdminsCommand) (services.Order, error) {
	if s.assignFn != nil {
		return s.assignFn(ctx, cmd)
	}
	return services.Order{}, errNotStubbed
}

type stubOrderQueryService struct {
	listFn      func(context.Context, services.OrderListQuery) (domain.CursorPage[services.Order], error)
	analyticsFn func(context.Context, services.OrderListQuery) (services.OrderAnalytics, error)
	findFn      func(context.Context, string) (services.Order, error)
}

func (s *stubOrderQueryService) List(ctx context.Context, q services.OrderListQuery) (domain.CursorPage[services.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, q)
	}
	return domain.CursorPage[services.Order]{}, nil
}

func (s *stubOrderQueryService) Analytics(ctx context.Context, q services.OrderListQuery) (services.OrderAnalytics, error) {
	if s.analyticsFn != nil {
		return s.analyticsFn(ctx, q)
	}
	return services.OrderAnalytics{}, nil
}

func (s *stubOrderQueryService) FindByNumber(ctx context.Context, number string) (services.Order, error) {
	if s.findFn != nil {
		return s.findFn(ctx, number)
	}
	return services.Order{}, errNotStubbed
}

var (
	_ services.OrderService      = (*stubOrderService)(nil)
	_ services.OrderQueryService = (*stubOrderQueryService)(nil)
)

var testActor = domain.Actor{ID: "admin-1", DisplayName: "Dana Admin"}

// withIdentity stands in for the authenticator: it places an identity and actor on the context.
func withIdentity(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := auth.WithIdentity(r.Context(), &auth.Identity{UID: testActor.ID, Name: testActor.DisplayName, Roles: roles})
			ctx = requestctx.WithActor(ctx, testActor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func newOrderRouter(orders services.OrderService, queries services.OrderQueryService, roles []string, opts ...AdminOrderOption) chi.Router {
	r := chi.NewRouter()
	if roles != nil {
		r.Use(withIdentity(roles...))
	}
	NewAdminOrderHandlers(nil, orders, queries, opts...).Routes(r)
	return r
}

func sampleOrder() services.Order {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	eventDate := time.Date(2026, 6, 20, 0, 0, 0, 0, time.UTC)
	return services.Order{
		ID:          "ord_1",
		OrderNumber: "EVT-0001",
		Type:        domain.OrderTypeEvent,
		Client:      domain.ClientRef{UserID: "client-1", Name: "Sam Client", Email: "sam@example.com"},
		Status:      domain.OrderStatusPending,
		StatusHistory: []domain.StatusChange{
			{Status: domain.OrderStatusPending, ActorID: testActor.ID, ChangedAt: now, Notes: "order created"},
		},
		Event: &domain.EventDetails{
			EventType:  domain.EventTypeWedding,
			EventDate:  eventDate,
			Venue:      domain.Venue{Name: "Hall", City: "Lisbon"},
			GuestCount: 120,
		},
		Version:   3,
		CreatedBy: testActor.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func doRequest(router http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
	return body
}

func TestAdminOrderHandlers_CreateEventOrder(t *testing.T) {
	var captured services.CreateOrderCommand
	orders := &stubOrderService{
		createFn: func(_ context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
			captured = cmd
			return sampleOrder(), nil
		},
	}
	router := newOrderRouter(orders, nil, []string{auth.RoleAdmin})

	body := `{
		"type": "event",
		"client": {"user_id": "client-1", "name": " Sam Client ", "email": "sam@example.com"},
		"event": {"event_type": "Wedding", "event_date": "2026-06-20", "venue_name": "Hall", "venue_city": "Lisbon", "guest_count": 120, "budget_min": 5000, "budget_max": 9000},
		"assigned_admins": ["admin-2", " "]
	}`
	rr := doRequest(router, http.MethodPost, "/orders", body, nil)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if loc := rr.Header().Get("Location"); loc != "/orders/ord_1" {
		t.Fatalf("unexpected location %q", loc)
	}
	if etag := rr.Header().Get("ETag"); etag != `"3"` {
		t.Fatalf("unexpected etag %q", etag)
	}
	if captured.Actor != testActor {
		t.Fatalf("expected actor from context, got %+v", captured.Actor)
	}
	if captured.Client.Name != "Sam Client" {
		t.Fatalf("expected trimmed client name, got %q", captured.Client.Name)
	}
	event, ok := captured.Details.(*domain.EventDetails)
	if !ok {
		t.Fatalf("expected event details, got %T", captured.Details)
	}
	if event.EventType != domain.EventTypeWedding || event.GuestCount != 120 || event.Budget == nil || event.Budget.Max != 9000 {
		t.Fatalf("unexpected event details %+v", event)
	}
	if len(captured.AssignedAdmins) != 1 || captured.AssignedAdmins[0] != "admin-2" {
		t.Fatalf("unexpected assigned admins %v", captured.AssignedAdmins)
	}

	order := decodeBody(t, rr)["order"].(map[string]any)
	if order["order_number"] != "EVT-0001" || order["type"] != "event" || order["version"] != float64(3) {
		t.Fatalf("unexpected order payload %v", order)
	}
	details := order["details"].(map[string]any)
	if details["venue_city"] != "Lisbon" {
		t.Fatalf("expected event details in payload, got %v", details)
	}
}

func TestAdminOrderHandlers_CreateRejectsForeignPayload(t *testing.T) {
	router := newOrderRouter(&stubOrderService{}, nil, []string{auth.RoleAdmin})

	cases := map[string]string{
		"unknown type":   `{"type":"banquet","client":{"name":"x"}}`,
		"missing detail": `{"type":"staff","client":{"name":"x"}}`,
		"two payloads":   `{"type":"offer","offer":{"redemption_date":"2026-01-01"},"staff":{"booking_date":"2026-01-01"}}`,
		"bad date":       `{"type":"offer","offer":{"redemption_date":"next week"}}`,
		"invalid json":   `{"type":`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rr := doRequest(router, http.MethodPost, "/orders", body, nil)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
			}
		})
	}
}

func TestAdminOrderHandlers_SendQuoteNormalisesPercentDiscount(t *testing.T) {
	var captured services.SendQuoteCommand
	orders := &stubOrderService{
		quoteFn: func(_ context.Context, cmd services.SendQuoteCommand) (services.Order, error) {
			captured = cmd
			order := sampleOrder()
			order.Status = domain.OrderStatusQuoted
			return order, nil
		},
	}
	router := newOrderRouter(orders, nil, []string{auth.RoleManager})

	body := `{"items":[{"label":"Venue","amount":1000},{"label":"Catering","amount":505}],"discount_percent":10,"currency":"EUR","expected_version":3}`
	rr := doRequest(router, http.MethodPost, "/orders/ord_1/quote", body, nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Quote.Discount != 151 {
		t.Fatalf("expected 10%% of 1505 rounded to 151, got %d", captured.Quote.Discount)
	}
	if len(captured.Quote.Items) != 2 || captured.Quote.Currency != "EUR" {
		t.Fatalf("unexpected quote input %+v", captured.Quote)
	}
	if captured.ExpectedVersion == nil || *captured.ExpectedVersion != 3 {
		t.Fatalf("expected version 3, got %v", captured.ExpectedVersion)
	}
}

func TestAdminOrderHandlers_SendQuoteRejectsAmbiguousDiscount(t *testing.T) {
	router := newOrderRouter(&stubOrderService{}, nil, []string{auth.RoleAdmin})

	for _, body := range []string{
		`{"items":[{"label":"Venue","amount":1000}],"discount":10,"discount_percent":5}`,
		`{"items":[{"label":"Venue","amount":1000}],"discount_percent":120}`,
	} {
		rr := doRequest(router, http.MethodPost, "/orders/ord_1/quote", body, nil)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %s, got %d", body, rr.Code)
		}
	}
}

func TestAdminOrderHandlers_TransitionReadsIfMatch(t *testing.T) {
	var captured services.TransitionOrderCommand
	orders := &stubOrderService{
		transitionFn: func(_ context.Context, cmd services.TransitionOrderCommand) (services.Order, error) {
			captured = cmd
			return sampleOrder(), nil
		},
	}
	router := newOrderRouter(orders, nil, []string{auth.RoleAdmin})

	rr := doRequest(router, http.MethodPost, "/orders/ord_1:transition", `{"status":"Confirmed","notes":"deposit in"}`, map[string]string{"If-Match": `"7"`})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_1" || captured.Target != domain.OrderStatusConfirmed || captured.Notes != "deposit in" {
		t.Fatalf("unexpected command %+v", captured)
	}
	if captured.ExpectedVersion == nil || *captured.ExpectedVersion != 7 {
		t.Fatalf("expected version 7 from If-Match, got %v", captured.ExpectedVersion)
	}

	rr = doRequest(router, http.MethodPost, "/orders/ord_1:transition", `{"status":"shipped"}`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rr.Code)
	}
	rr = doRequest(router, http.MethodPost, "/orders/ord_1:transition", `{"status":"confirmed"}`, map[string]string{"If-Match": "*"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-numeric If-Match, got %d", rr.Code)
	}
}

func TestAdminOrderHandlers_ErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: completed -> pending", services.ErrInvalidTransition), http.StatusConflict, "invalid_transition"},
		{services.ErrConcurrentModification, http.StatusConflict, "order_conflict"},
		{services.ErrOrderNotFound, http.StatusNotFound, "order_not_found"},
		{services.ErrPaymentExceedsBalance, http.StatusConflict, "payment_exceeds_balance"},
		{services.ErrNoQuote, http.StatusConflict, "quote_required"},
		{services.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
		{services.ErrOrderUnavailable, http.StatusServiceUnavailable, "order_service_unavailable"},
		{errors.Join(errors.New("ledger closed"), services.ErrOrderNotPayable), http.StatusConflict, "order_not_payable"},
		{fmt.Errorf("%w: method is required", services.ErrOrderInvalidInput), http.StatusBadRequest, "invalid_request"},
		{fmt.Errorf("decode: %w", domain.ErrUnknownOrderType), http.StatusBadRequest, "invalid_request"},
		{fmt.Errorf("counter: %w", services.ErrNumberingFailed), http.StatusServiceUnavailable, "order_number_unavailable"},
		{errors.New("disk on fire"), http.StatusInternalServerError, "order_error"},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			orders := &stubOrderService{
				paymentFn: func(context.Context, services.RecordPaymentCommand) (services.Order, error) {
					return services.Order{}, tc.err
				},
			}
			router := newOrderRouter(orders, nil, []string{auth.RoleAdmin})
			rr := doRequest(router, http.MethodPost, "/orders/ord_1/payments", `{"amount":500,"method":"cash"}`, nil)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			if body := decodeBody(t, rr); body["error"] != tc.code {
				t.Fatalf("expected code %s, got %v", tc.code, body["error"])
			}
			retry := rr.Header().Get("Retry-After")
			if services.IsConcurrencyError(tc.err) && tc.status == http.StatusConflict && retry != "1" {
				t.Fatalf("expected Retry-After on conflicts, got %q", retry)
			}
			if !services.IsConcurrencyError(tc.err) && retry != "" {
				t.Fatalf("unexpected Retry-After %q", retry)
			}
		})
	}
}

func TestAdminOrderHandlers_GetExposesAvailableActions(t *testing.T) {
	now := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)
	quoted := sampleOrder()
	quoted.Status = domain.OrderStatusQuoted
	quoted.Quote = &domain.Quote{
		ID:          "quo_1",
		Items:       []domain.QuoteItem{{Label: "Venue", Amount: 1000}},
		Total:       1000,
		FinalAmount: 1000,
		Currency:    "EUR",
		ValidUntil:  now.Add(-time.Hour),
		CreatedAt:   now.AddDate(0, 0, -14),
		CreatedBy:   testActor,
	}
	cancelled := sampleOrder()
	cancelled.ID = "ord_2"
	cancelled.Status = domain.OrderStatusCancelled

	orders := &stubOrderService{
		getFn: func(_ context.Context, id string) (services.Order, error) {
			if id == cancelled.ID {
				return cancelled, nil
			}
			return quoted, nil
		},
	}
	router := newOrderRouter(orders, nil, []string{auth.RoleStaff}, WithOrderClock(func() time.Time { return now }))

	rr := doRequest(router, http.MethodGet, "/orders/ord_1", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	order := decodeBody(t, rr)["order"].(map[string]any)
	allowed := order["allowed_transitions"].([]any)
	want := services.AllowedTransitions(domain.OrderStatusQuoted)
	if len(allowed) != len(want) {
		t.Fatalf("expected transitions %v, got %v", want, allowed)
	}
	for i, status := range want {
		if allowed[i] != string(status) {
			t.Fatalf("expected transitions %v, got %v", want, allowed)
		}
	}
	if order["can_send_quote"] != true || order["can_add_payment"] != true {
		t.Fatalf("expected quote and payment actions on a quoted order, got %v", order)
	}
	if quote := order["quote"].(map[string]any); quote["expired"] != true {
		t.Fatalf("expected expired quote, got %v", quote)
	}

	rr = doRequest(router, http.MethodGet, "/orders/ord_2", "", nil)
	order = decodeBody(t, rr)["order"].(map[string]any)
	if allowed := order["allowed_transitions"].([]any); len(allowed) != 0 {
		t.Fatalf("cancelled orders are terminal, got %v", allowed)
	}
	if order["can_send_quote"] != false || order["can_add_payment"] != false {
		t.Fatalf("expected no actions on a cancelled order, got %v", order)
	}
}

func TestAdminOrderHandlers_RecordPaymentValidatesMethod(t *testing.T) {
	var captured services.RecordPaymentCommand
	orders := &stubOrderService{
		paymentFn: func(_ context.Context, cmd services.RecordPaymentCommand) (services.Order, error) {
			captured = cmd
			return sampleOrder(), nil
		},
	}
	router := newOrderRouter(orders, nil, []string{auth.RoleAdmin})

	rr := doRequest(router, http.MethodPost, "/orders/ord_1/payments", `{"amount":500,"method":"barter"}`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	rr = doRequest(router, http.MethodPost, "/orders/ord_1/payments", `{"amount":500}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Payment.Method != domain.PaymentMethodOther || captured.Payment.Amount != 500 {
		t.Fatalf("unexpected payment input %+v", captured.Payment)
	}
}

func TestAdminOrderHandlers_StaffCannotMutate(t *testing.T) {
	called := false
	orders := &stubOrderService{
		cancelFn: func(context.Context, services.CancelOrderCommand) (services.Order, error) {
			called = true
			return sampleOrder(), nil
		},
		getFn: func(context.Context, string) (services.Order, error) { return sampleOrder(), nil },
	}
	router := newOrderRouter(orders, nil, []string{auth.RoleStaff})

	rr := doRequest(router, http.MethodPost, "/orders/ord_1:cancel", `{"reason":"client request"}`, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	if called {
		t.Fatalf("cancel must not reach the service")
	}

	rr = doRequest(router, http.MethodGet, "/orders/ord_1", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("staff should read orders, got %d", rr.Code)
	}
}

func TestAdminOrderHandlers_MutationRequiresActor(t *testing.T) {
	router := newOrderRouter(&stubOrderService{}, nil, nil)

	rr := doRequest(router, http.MethodPut, "/orders/ord_1/notes", `{"notes":"call back"}`, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestAdminOrderHandlers_CancelAcceptsEmptyBody(t *testing.T) {
	var captured services.CancelOrderCommand
	orders := &stubOrderService{
		cancelFn: func(_ context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
			captured = cmd
			order := sampleOrder()
			order.Status = domain.OrderStatusCancelled
			return order, nil
		},
	}
	router := newOrderRouter(orders, nil, []string{auth.RoleAdmin})

	rr := doRequest(router, http.MethodPost, "/orders/ord_1:cancel", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_1" || captured.RefundAmount != nil {
		t.Fatalf("unexpected command %+v", captured)
	}

	rr = doRequest(router, http.MethodPost, "/orders/ord_1:cancel", `{"refund_amount":-5}`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative refund, got %d", rr.Code)
	}
}

func TestAdminOrderHandlers_ListParsesQuery(t *testing.T) {
	var captured services.OrderListQuery
	queries := &stubOrderQueryService{
		listFn: func(_ context.Context, q services.OrderListQuery) (domain.CursorPage[services.Order], error) {
			captured = q
			return domain.CursorPage[services.Order]{Items: []services.Order{sampleOrder()}, NextPageToken: "next"}, nil
		},
	}
	router := newOrderRouter(nil, queries, []string{auth.RoleStaff})

	rr := doRequest(router, http.MethodGet, "/orders?q=sam&type=all&status=Quoted&sort=amount_desc&page_size=500&from=2026-01-01", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Search != "sam" || captured.Type != services.OrderFilterAll || captured.Status != "quoted" {
		t.Fatalf("unexpected filters %+v", captured)
	}
	if captured.Sort != services.OrderSortAmountDesc || captured.Pagination.PageSize != maxOrderPageSize {
		t.Fatalf("unexpected sort or page size %+v", captured)
	}
	if captured.DateRange.From == nil || !captured.DateRange.From.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected date range %+v", captured.DateRange)
	}

	body := decodeBody(t, rr)
	items := body["items"].([]any)
	if len(items) != 1 || body["next_page_token"] != "next" {
		t.Fatalf("unexpected list body %v", body)
	}
	if summary := items[0].(map[string]any)["summary"]; summary == "" {
		t.Fatalf("expected summary in list item")
	}

	for _, bad := range []string{"/orders?sort=cheapest", "/orders?status=shipped", "/orders?page_size=abc", "/orders?from=2026-02-01&to=2026-01-01"} {
		rr := doRequest(router, http.MethodGet, bad, "", nil)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %s, got %d", bad, rr.Code)
		}
	}
}

func TestAdminOrderHandlers_Analytics(t *testing.T) {
	queries := &stubOrderQueryService{
		analyticsFn: func(_ context.Context, q services.OrderListQuery) (services.OrderAnalytics, error) {
			if q.Type != string(domain.OrderTypeEvent) {
				t.Fatalf("expected type filter, got %q", q.Type)
			}
			return services.OrderAnalytics{
				Total:          4,
				ByStatus:       map[domain.OrderStatus]int{domain.OrderStatusCompleted: 1, domain.OrderStatusPending: 3},
				ByType:         map[domain.OrderType]int{domain.OrderTypeEvent: 4},
				TotalRevenue:   1200,
				ConversionRate: 25,
			}, nil
		},
	}
	router := newOrderRouter(nil, queries, []string{auth.RoleAdmin})

	rr := doRequest(router, http.MethodGet, "/orders/analytics?type=event", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["total"] != float64(4) || body["conversion_rate"] != float64(25) {
		t.Fatalf("unexpected analytics %v", body)
	}
	if byStatus := body["by_status"].(map[string]any); byStatus["pending"] != float64(3) {
		t.Fatalf("unexpected by_status %v", byStatus)
	}
}

func TestAdminOrderHandlers_FindByNumber(t *testing.T) {
	queries := &stubOrderQueryService{
		findFn: func(_ context.Context, number string) (services.Order, error) {
			if number != "EVT-0001" {
				return services.Order{}, fmt.Errorf("%w: %s", services.ErrMalformedOrderNumber, number)
			}
			return sampleOrder(), nil
		},
	}
	router := newOrderRouter(nil, queries, []string{auth.RoleStaff})

	rr := doRequest(router, http.MethodGet, "/orders/by-number/EVT-0001", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	rr = doRequest(router, http.MethodGet, "/orders/by-number/EVT-1", "", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed number, got %d", rr.Code)
	}
}

func TestAdminOrderHandlers_IdempotentCreate(t *testing.T) {
	calls := 0
	orders := &stubOrderService{
		createFn: func(context.Context, services.CreateOrderCommand) (services.Order, error) {
			calls++
			return sampleOrder(), nil
		},
	}
	store := idempotency.NewMemoryStore()
	router := newOrderRouter(orders, nil, []string{auth.RoleAdmin}, WithOrderIdempotency(idempotency.Middleware(store)))

	body := `{"type":"service","client":{"name":"Sam"},"service":{"service_id":"svc-1","service_name":"DJ"}}`
	headers := map[string]string{"Idempotency-Key": "create-1"}

	first := doRequest(router, http.MethodPost, "/orders", body, headers)
	second := doRequest(router, http.MethodPost, "/orders", body, headers)

	if first.Code != http.StatusCreated || second.Code != http.StatusCreated {
		t.Fatalf("expected both 201, got %d and %d", first.Code, second.Code)
	}
	if calls != 1 {
		t.Fatalf("expected one create call, got %d", calls)
	}
	if second.Header().Get("X-Idempotent-Replay") == "" {
		t.Fatalf("expected replay header on second response")
	}
}
