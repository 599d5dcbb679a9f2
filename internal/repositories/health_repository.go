package repositories

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/eventdesk/api/internal/domain"
)

const defaultProbeTimeout = 1500 * time.Millisecond

// DependencyProbe names a readiness check against one backing service.
type DependencyProbe struct {
	Name    string
	Timeout time.Duration
	Probe   func(context.Context) error
}

// HealthOption customises the probe-backed health repository.
type HealthOption func(*probeHealthRepository)

// WithProbeTimeout overrides the timeout used by probes that do not set their own.
func WithProbeTimeout(timeout time.Duration) HealthOption {
	return func(r *probeHealthRepository) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// WithHealthClock injects a custom clock.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(r *probeHealthRepository) {
		if clock != nil {
			r.now = clock
		}
	}
}

// WithEnvironment labels reports with the deployment environment.
func WithEnvironment(env string) HealthOption {
	return func(r *probeHealthRepository) {
		r.environment = strings.TrimSpace(env)
	}
}

type probeHealthRepository struct {
	probes      []DependencyProbe
	timeout     time.Duration
	now         func() time.Time
	environment string
}

var _ HealthRepository = (*probeHealthRepository)(nil)

// NewProbeHealthRepository builds a HealthRepository that runs every probe concurrently.
func NewProbeHealthRepository(probes []DependencyProbe, opts ...HealthOption) (HealthRepository, error) {
	if len(probes) == 0 {
		return nil, errors.New("health repository: at least one probe is required")
	}
	for _, p := range probes {
		if strings.TrimSpace(p.Name) == "" {
			return nil, errors.New("health repository: probe name is required")
		}
		if p.Probe == nil {
			return nil, errors.New("health repository: probe " + p.Name + " has no check function")
		}
	}
	repo := &probeHealthRepository{
		probes:  append([]DependencyProbe(nil), probes...),
		timeout: defaultProbeTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo, nil
}

type probeOutcome struct {
	name   string
	result domain.DependencyHealth
}

func (r *probeHealthRepository) Collect(ctx context.Context) (domain.SystemHealthReport, error) {
	outcomes := make(chan probeOutcome, len(r.probes))
	for _, p := range r.probes {
		go func(p DependencyProbe) {
			outcomes <- probeOutcome{name: p.Name, result: r.run(ctx, p)}
		}(p)
	}

	report := domain.SystemHealthReport{
		Status:      domain.HealthStatusOK,
		Checks:      make(map[string]domain.DependencyHealth, len(r.probes)),
		Environment: r.environment,
	}
	for range r.probes {
		outcome := <-outcomes
		report.Checks[outcome.name] = outcome.result
		report.Status = worseStatus(report.Status, outcome.result.Status)
	}
	report.GeneratedAt = r.now()
	return report, nil
}

func (r *probeHealthRepository) run(ctx context.Context, p DependencyProbe) domain.DependencyHealth {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := r.now()
	err := p.Probe(probeCtx)
	end := r.now()

	result := domain.DependencyHealth{
		Status:    domain.HealthStatusOK,
		Detail:    "ok",
		Latency:   end.Sub(start),
		CheckedAt: end,
	}
	if err == nil && probeCtx.Err() != nil {
		err = probeCtx.Err()
	}
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		result.Status = domain.HealthStatusError
		result.Detail = "timeout"
	case errors.Is(err, context.Canceled):
		result.Status = domain.HealthStatusError
		result.Detail = "cancelled"
	default:
		result.Status = domain.HealthStatusDegraded
		result.Detail = err.Error()
	}
	return result
}

func worseStatus(current, next string) string {
	rank := func(s string) int {
		switch s {
		case domain.HealthStatusError:
			return 2
		case domain.HealthStatusDegraded:
			return 1
		default:
			return 0
		}
	}
	if rank(next) > rank(current) {
		return next
	}
	return current
}
