package domain

import "time"

// Pagination captures cursor based pagination inputs.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery expresses an optional inclusive range. Nil bounds are open.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// IsZero reports whether neither bound is set.
func (r RangeQuery[T]) IsZero() bool {
	return r.From == nil && r.To == nil
}

// CursorPage is a page of results plus the token for the next page.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// Actor identifies the person performing a mutation. It is always supplied by the identity
// collaborator; the order core never synthesises one.
type Actor struct {
	ID          string
	DisplayName string
}

// IsZero reports whether the actor carries no identifier.
func (a Actor) IsZero() bool {
	return a.ID == ""
}

// AuditLogEntry is an immutable audit trail record.
type AuditLogEntry struct {
	ID        string
	Actor     string
	ActorName string
	Action    string
	TargetRef string
	Severity  string
	RequestID string
	Metadata  map[string]any
	Diff      map[string]any
	CreatedAt time.Time
}

const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
	HealthStatusError    = "error"
)

// DependencyHealth is the outcome of one readiness probe.
type DependencyHealth struct {
	Status    string
	Detail    string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency probes for the readiness endpoint.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]DependencyHealth
	Environment string
	GeneratedAt time.Time
}
