package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/eventdesk/api/internal/domain"
	"github.com/eventdesk/api/internal/services"
)

func TestAdminAuditHandlers_ListAuditLogs(t *testing.T) {
	var captured services.AuditLogFilter
	created := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	system := &stubSystemService{
		auditFn: func(_ context.Context, filter services.AuditLogFilter) (domain.CursorPage[domain.AuditLogEntry], error) {
			captured = filter
			return domain.CursorPage[domain.AuditLogEntry]{
				Items: []domain.AuditLogEntry{{
					ID:        "aud_1",
					Actor:     "admin-1",
					Action:    "order.cancelled",
					TargetRef: "/orders/ord_1",
					Metadata:  map[string]any{"reason": "client request"},
					CreatedAt: created,
				}},
				NextPageToken: "tok",
			}, nil
		},
	}
	r := chi.NewRouter()
	NewAdminAuditHandlers(nil, system).Routes(r)

	rr := doRequest(r, http.MethodGet, "/audit-logs?order_id=ord_1&action=order.cancelled&page_size=1000&from=2026-03-01", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.TargetRef != "/orders/ord_1" || captured.Action != "order.cancelled" {
		t.Fatalf("unexpected filter %+v", captured)
	}
	if captured.Pagination.PageSize != maxAuditPageSize {
		t.Fatalf("expected page size capped at %d, got %d", maxAuditPageSize, captured.Pagination.PageSize)
	}
	if captured.DateRange.From == nil {
		t.Fatalf("expected from bound")
	}
	body := decodeBody(t, rr)
	items := body["items"].([]any)
	if len(items) != 1 || body["next_page_token"] != "tok" {
		t.Fatalf("unexpected body %v", body)
	}
	if items[0].(map[string]any)["created_at"] != "2026-03-02T08:00:00Z" {
		t.Fatalf("unexpected created_at %v", items[0])
	}
}

func TestAdminAuditHandlers_Errors(t *testing.T) {
	r := chi.NewRouter()
	NewAdminAuditHandlers(nil, &stubSystemService{
		auditFn: func(context.Context, services.AuditLogFilter) (domain.CursorPage[domain.AuditLogEntry], error) {
			return domain.CursorPage[domain.AuditLogEntry]{}, errors.New("backend down")
		},
	}).Routes(r)

	if rr := doRequest(r, http.MethodGet, "/audit-logs?from=yesterday", "", nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad from, got %d", rr.Code)
	}
	if rr := doRequest(r, http.MethodGet, "/audit-logs", "", nil); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when listing fails, got %d", rr.Code)
	}
}
