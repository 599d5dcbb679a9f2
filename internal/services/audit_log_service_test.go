package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	domain "github.com/eventdesk/api/internal/domain"
	"github.com/eventdesk/api/internal/repositories"
)

type stubAuditRepo struct {
	entries    []domain.AuditLogEntry
	appendErr  error
	listFilter repositories.AuditLogFilter
	listResp   domain.CursorPage[domain.AuditLogEntry]
	listErr    error
}

func (s *stubAuditRepo) Append(_ context.Context, entry domain.AuditLogEntry) error {
	s.entries = append(s.entries, entry)
	return s.appendErr
}

func (s *stubAuditRepo) List(_ context.Context, filter repositories.AuditLogFilter) (domain.CursorPage[domain.AuditLogEntry], error) {
	s.listFilter = filter
	return s.listResp, s.listErr
}

type captureLogger struct {
	events []string
	fields []map[string]any
}

func (c *captureLogger) log(_ context.Context, event string, fields map[string]any) {
	c.events = append(c.events, event)
	c.fields = append(c.fields, fields)
}

func TestAuditLogServiceRecordSanitizesAndHashes(t *testing.T) {
	repo := &stubAuditRepo{}
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.FixedZone("GST", 4*3600))
	svc, err := NewAuditLogService(AuditLogServiceDeps{
		Repository:  repo,
		Clock:       func() time.Time { return now },
		IDGenerator: func() string { return "01HX" },
		HashSalt:    "pepper",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	svc.Record(context.Background(), AuditLogRecord{
		Actor:     "  admin-1 ",
		ActorName: "Sara\x00 Admin",
		Action:    "order.payment.recorded",
		TargetRef: "/orders/ord_1",
		Severity:  "WARNING",
		Metadata: map[string]any{
			"amount":    int64(2500),
			"reference": "TXN-991",
			"method":    "bank_transfer",
			"empty":     "",
		},
		SensitiveMetadataKeys: []string{"Reference", "empty"},
		Diff: map[string]AuditLogDiff{
			"status": {Before: "quoted", After: "confirmed"},
		},
	})

	if len(repo.entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(repo.entries))
	}
	entry := repo.entries[0]
	if entry.ID != "aud_01HX" {
		t.Fatalf("unexpected id %q", entry.ID)
	}
	if entry.Actor != "admin-1" {
		t.Fatalf("expected trimmed actor, got %q", entry.Actor)
	}
	if entry.ActorName != "Sara Admin" {
		t.Fatalf("expected control characters removed, got %q", entry.ActorName)
	}
	if entry.Severity != "warn" {
		t.Fatalf("expected warn severity, got %q", entry.Severity)
	}
	if !entry.CreatedAt.Equal(now) || entry.CreatedAt.Location() != time.UTC {
		t.Fatalf("expected UTC timestamp, got %v", entry.CreatedAt)
	}
	ref, _ := entry.Metadata["reference"].(string)
	if !strings.HasPrefix(ref, "sha256:") || strings.Contains(ref, "TXN-991") {
		t.Fatalf("expected hashed reference, got %q", ref)
	}
	if _, ok := entry.Metadata["empty"]; ok {
		t.Fatalf("expected empty sensitive value to be dropped")
	}
	if entry.Metadata["amount"] != int64(2500) {
		t.Fatalf("expected amount retained, got %v", entry.Metadata["amount"])
	}
	status, ok := entry.Diff["status"].(map[string]any)
	if !ok || status["before"] != "quoted" || status["after"] != "confirmed" {
		t.Fatalf("unexpected diff %#v", entry.Diff)
	}
}

func TestAuditLogServiceRecordUsesRequestIDFromContext(t *testing.T) {
	repo := &stubAuditRepo{}
	svc, err := NewAuditLogService(AuditLogServiceDeps{Repository: repo})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-42")
	svc.Record(ctx, AuditLogRecord{Actor: "admin", Action: "order.cancelled", TargetRef: "/orders/ord_1"})

	if got := repo.entries[0].RequestID; got != "req-42" {
		t.Fatalf("expected request id from context, got %q", got)
	}
	if got := repo.entries[0].Severity; got != "info" {
		t.Fatalf("expected default severity, got %q", got)
	}
}

func TestAuditLogServiceRecordLogsOnFailure(t *testing.T) {
	repo := &stubAuditRepo{appendErr: errors.New("boom")}
	logger := &captureLogger{}
	svc, err := NewAuditLogService(AuditLogServiceDeps{Repository: repo, Logger: logger.log})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	svc.Record(context.Background(), AuditLogRecord{Actor: "admin", Action: "order.cancelled", TargetRef: "/orders/ord_1"})

	if len(logger.events) != 1 || logger.events[0] != "audit.append.failed" {
		t.Fatalf("expected failure to be logged, got %v", logger.events)
	}
	if logger.fields[0]["error"] != "boom" {
		t.Fatalf("expected error field, got %v", logger.fields[0])
	}
}

func TestAuditLogServiceListDelegates(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := &stubAuditRepo{
		listResp: domain.CursorPage[domain.AuditLogEntry]{
			Items:         []domain.AuditLogEntry{{ID: "aud_1"}},
			NextPageToken: "next",
		},
	}
	svc, err := NewAuditLogService(AuditLogServiceDeps{Repository: repo})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	page, err := svc.List(context.Background(), AuditLogFilter{
		TargetRef:  " /orders/ord_1 ",
		Action:     "order.cancelled",
		DateRange:  domain.RangeQuery[time.Time]{From: &from},
		Pagination: Pagination{PageSize: 5, PageToken: "tok"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Items) != 1 || page.NextPageToken != "next" {
		t.Fatalf("unexpected page %#v", page)
	}
	if repo.listFilter.TargetRef != "/orders/ord_1" {
		t.Fatalf("expected trimmed target ref, got %q", repo.listFilter.TargetRef)
	}
	if repo.listFilter.Pagination.PageSize != 5 || repo.listFilter.Pagination.PageToken != "tok" {
		t.Fatalf("pagination not forwarded: %#v", repo.listFilter.Pagination)
	}
	if repo.listFilter.DateRange.From == nil || !repo.listFilter.DateRange.From.Equal(from) {
		t.Fatalf("date range not forwarded")
	}

	repo.listErr = errors.New("unavailable")
	if _, err := svc.List(context.Background(), AuditLogFilter{}); err == nil {
		t.Fatalf("expected repository error")
	}
}

func TestAuditLogServiceHashAnyProducesStableHashes(t *testing.T) {
	svc := &auditLogService{hashSalt: "salt"}
	first := svc.hashAny("value")
	second := svc.hashAny("  value ")
	if first != second {
		t.Fatalf("expected trimmed strings to hash equally")
	}
	if svc.hashAny(map[string]int{"a": 1}) == first {
		t.Fatalf("expected different values to produce different hashes")
	}
}

func TestNewAuditLogServiceRequiresRepository(t *testing.T) {
	if _, err := NewAuditLogService(AuditLogServiceDeps{}); err == nil {
		t.Fatalf("expected error without repository")
	}
}
