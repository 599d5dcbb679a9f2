package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/eventdesk/api/internal/domain"
)

func TestProbeHealthRepositoryAllHealthy(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	repo, err := NewProbeHealthRepository([]DependencyProbe{
		{Name: "storage", Probe: func(context.Context) error { return nil }},
		{Name: "redis", Probe: func(context.Context) error { return nil }},
	}, WithHealthClock(func() time.Time { return now }), WithEnvironment("local"))
	if err != nil {
		t.Fatalf("NewProbeHealthRepository: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Status != domain.HealthStatusOK {
		t.Fatalf("expected ok, got %s", report.Status)
	}
	if len(report.Checks) != 2 {
		t.Fatalf("expected 2 checks, got %d", len(report.Checks))
	}
	if report.Environment != "local" {
		t.Fatalf("expected environment local, got %q", report.Environment)
	}
	if !report.GeneratedAt.Equal(now) {
		t.Fatalf("expected generatedAt %s, got %s", now, report.GeneratedAt)
	}
}

func TestProbeHealthRepositoryDegradedAndTimeout(t *testing.T) {
	repo, err := NewProbeHealthRepository([]DependencyProbe{
		{Name: "events", Probe: func(context.Context) error { return errors.New("broker down") }},
		{Name: "storage", Timeout: 5 * time.Millisecond, Probe: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}},
	})
	if err != nil {
		t.Fatalf("NewProbeHealthRepository: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Checks["events"].Status != domain.HealthStatusDegraded {
		t.Fatalf("expected events degraded, got %s", report.Checks["events"].Status)
	}
	if report.Checks["storage"].Detail != "timeout" {
		t.Fatalf("expected storage timeout, got %q", report.Checks["storage"].Detail)
	}
	if report.Status != domain.HealthStatusError {
		t.Fatalf("expected overall error, got %s", report.Status)
	}
}

func TestNewProbeHealthRepositoryValidates(t *testing.T) {
	if _, err := NewProbeHealthRepository(nil); err == nil {
		t.Fatalf("expected error for empty probes")
	}
	if _, err := NewProbeHealthRepository([]DependencyProbe{{Name: "x"}}); err == nil {
		t.Fatalf("expected error for missing probe func")
	}
}
