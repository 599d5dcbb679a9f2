package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/eventdesk/api/internal/domain"
)

type stubHealthRepository struct {
	report domain.SystemHealthReport
	err    error
	calls  int
}

func (s *stubHealthRepository) Collect(ctx context.Context) (domain.SystemHealthReport, error) {
	s.calls++
	return s.report, s.err
}

type stubAuditService struct {
	records []AuditLogRecord
	filter  AuditLogFilter
	result  domain.CursorPage[domain.AuditLogEntry]
	err     error
}

func (s *stubAuditService) Record(_ context.Context, record AuditLogRecord) {
	s.records = append(s.records, record)
}

func (s *stubAuditService) List(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[domain.AuditLogEntry], error) {
	s.filter = filter
	return s.result, s.err
}

func (s *stubAuditService) actions() []string {
	out := make([]string, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.Action)
	}
	return out
}

func TestSystemServiceHealthReportEnrichesMetadata(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 5, 0, 0, time.UTC)
	repo := &stubHealthRepository{
		report: domain.SystemHealthReport{
			Checks: map[string]domain.DependencyHealth{
				"sqlite": {Status: domain.HealthStatusOK},
			},
		},
	}
	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: repo,
		Clock:            func() time.Time { return now },
		Environment:      " staging ",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Environment != "staging" {
		t.Fatalf("expected environment staging, got %q", report.Environment)
	}
	if !report.GeneratedAt.Equal(now) {
		t.Fatalf("expected generated at %v, got %v", now, report.GeneratedAt)
	}
	if report.Status != domain.HealthStatusOK {
		t.Fatalf("expected ok status, got %q", report.Status)
	}
	if repo.calls != 1 {
		t.Fatalf("expected repository to be called once")
	}
}

func TestSystemServiceHealthReportErrors(t *testing.T) {
	repo := &stubHealthRepository{err: errors.New("down")}
	svc, err := NewSystemService(SystemServiceDeps{HealthRepository: repo})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.HealthReport(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestNewSystemServiceRequiresRepository(t *testing.T) {
	if _, err := NewSystemService(SystemServiceDeps{}); err == nil {
		t.Fatalf("expected error without health repository")
	}
}

func TestSystemServiceDerivesStatusWhenMissing(t *testing.T) {
	cases := []struct {
		name   string
		checks map[string]domain.DependencyHealth
		want   string
	}{
		{name: "empty", checks: nil, want: domain.HealthStatusOK},
		{name: "degraded", checks: map[string]domain.DependencyHealth{
			"sqlite": {Status: domain.HealthStatusOK},
			"redis":  {Status: domain.HealthStatusDegraded},
		}, want: domain.HealthStatusDegraded},
		{name: "error wins", checks: map[string]domain.DependencyHealth{
			"redis":  {Status: domain.HealthStatusDegraded},
			"sqlite": {Status: domain.HealthStatusError},
		}, want: domain.HealthStatusError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, err := NewSystemService(SystemServiceDeps{
				HealthRepository: &stubHealthRepository{report: domain.SystemHealthReport{Checks: tc.checks}},
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			report, err := svc.HealthReport(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if report.Status != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, report.Status)
			}
		})
	}
}

func TestSystemServiceListAuditLogsDelegates(t *testing.T) {
	audit := &stubAuditService{result: domain.CursorPage[domain.AuditLogEntry]{Items: []domain.AuditLogEntry{{ID: "aud_1"}}}}
	svc, err := NewSystemService(SystemServiceDeps{HealthRepository: &stubHealthRepository{}, Audit: audit})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	page, err := svc.ListAuditLogs(context.Background(), AuditLogFilter{TargetRef: "/orders/ord_1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Items) != 1 || audit.filter.TargetRef != "/orders/ord_1" {
		t.Fatalf("expected delegation, got %#v / %#v", page, audit.filter)
	}
}

func TestSystemServiceListAuditLogsMissing(t *testing.T) {
	svc, err := NewSystemService(SystemServiceDeps{HealthRepository: &stubHealthRepository{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.ListAuditLogs(context.Background(), AuditLogFilter{}); err == nil {
		t.Fatalf("expected error when audit service missing")
	}
}
