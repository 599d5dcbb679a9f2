package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/oklog/ulid/v2"

	domain "github.com/eventdesk/api/internal/domain"
	"github.com/eventdesk/api/internal/repositories"
)

const (
	auditIDPrefix        = "aud_"
	defaultAuditSeverity = "info"
	defaultHasherPrefix  = "sha256:"
)

type auditLogService struct {
	repo     repositories.AuditLogRepository
	clock    func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
	hashSalt string
}

// AuditLogServiceDeps bundles constructor inputs for the audit writer service.
type AuditLogServiceDeps struct {
	Repository  repositories.AuditLogRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
	HashSalt    string
}

// NewAuditLogService creates an audit log writer backed by the supplied repository.
func NewAuditLogService(deps AuditLogServiceDeps) (AuditLogService, error) {
	if deps.Repository == nil {
		return nil, fmt.Errorf("audit log service: repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &auditLogService{
		repo:     deps.Repository,
		clock:    func() time.Time { return clock().UTC() },
		newID:    idGen,
		logger:   logger,
		hashSalt: deps.HashSalt,
	}, nil
}

// Record persists an audit log entry after sanitising sensitive fields. Repository failures are
// logged but do not bubble up to callers to avoid interrupting the primary mutation flow.
func (s *auditLogService) Record(ctx context.Context, record AuditLogRecord) {
	entry := s.buildEntry(ctx, record)
	if err := s.repo.Append(ctx, entry); err != nil {
		s.logger(ctx, "audit.append.failed", map[string]any{
			"action": entry.Action,
			"target": entry.TargetRef,
			"error":  err.Error(),
		})
	}
}

// List delegates to the repository to retrieve paginated audit logs.
func (s *auditLogService) List(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[AuditLogEntry], error) {
	page, err := s.repo.List(ctx, repositories.AuditLogFilter{
		TargetRef:  strings.TrimSpace(filter.TargetRef),
		Actor:      strings.TrimSpace(filter.Actor),
		Action:     strings.TrimSpace(filter.Action),
		DateRange:  filter.DateRange,
		Pagination: domain.Pagination{PageSize: filter.Pagination.PageSize, PageToken: filter.Pagination.PageToken},
	})
	if err != nil {
		return domain.CursorPage[AuditLogEntry]{}, err
	}
	return page, nil
}

func (s *auditLogService) buildEntry(ctx context.Context, record AuditLogRecord) domain.AuditLogEntry {
	occurred := record.OccurredAt
	if occurred.IsZero() {
		occurred = s.clock()
	}
	requestID := record.RequestID
	if strings.TrimSpace(requestID) == "" {
		requestID = middleware.GetReqID(ctx)
	}

	entry := domain.AuditLogEntry{
		ID:        auditIDPrefix + s.newID(),
		Actor:     sanitizeText(record.Actor, 160),
		ActorName: sanitizeText(record.ActorName, 160),
		Action:    sanitizeText(record.Action, 120),
		TargetRef: sanitizeText(record.TargetRef, 200),
		Severity:  normalizeSeverity(record.Severity),
		RequestID: sanitizeText(requestID, 128),
		CreatedAt: occurred.UTC(),
	}
	if meta := s.prepareMetadata(record.Metadata, record.SensitiveMetadataKeys); len(meta) > 0 {
		entry.Metadata = meta
	}
	if diff := prepareDiff(record.Diff); len(diff) > 0 {
		entry.Diff = diff
	}
	return entry
}

func (s *auditLogService) prepareMetadata(metadata map[string]any, sensitiveKeys []string) map[string]any {
	if len(metadata) == 0 {
		return nil
	}
	sensitive := make([]string, 0, len(sensitiveKeys))
	for _, key := range sensitiveKeys {
		sensitive = append(sensitive, strings.ToLower(strings.TrimSpace(key)))
	}
	result := make(map[string]any, len(metadata))
	for key, value := range metadata {
		key = sanitizeText(key, 80)
		if key == "" {
			continue
		}
		if slices.Contains(sensitive, strings.ToLower(key)) {
			if str, ok := value.(string); ok && strings.TrimSpace(str) == "" {
				continue
			}
			result[key] = defaultHasherPrefix + s.hashAny(value)
			continue
		}
		result[key] = sanitizeValue(value)
	}
	return result
}

func prepareDiff(diff map[string]AuditLogDiff) map[string]any {
	if len(diff) == 0 {
		return nil
	}
	result := make(map[string]any, len(diff))
	for key, change := range diff {
		key = sanitizeText(key, 80)
		if key == "" {
			continue
		}
		result[key] = map[string]any{
			"before": sanitizeValue(change.Before),
			"after":  sanitizeValue(change.After),
		}
	}
	return result
}

func (s *auditLogService) hashAny(value any) string {
	var raw string
	switch v := value.(type) {
	case string:
		raw = strings.TrimSpace(v)
	case fmt.Stringer:
		raw = v.String()
	default:
		if b, err := json.Marshal(v); err == nil {
			raw = string(b)
		} else {
			raw = fmt.Sprintf("%v", v)
		}
	}
	sum := sha256.Sum256([]byte(s.hashSalt + raw))
	return hex.EncodeToString(sum[:])
}

func normalizeSeverity(severity string) string {
	switch strings.ToLower(strings.TrimSpace(severity)) {
	case "warn", "warning":
		return "warn"
	case "error":
		return "error"
	default:
		return defaultAuditSeverity
	}
}

func sanitizeValue(value any) any {
	switch v := value.(type) {
	case string:
		return sanitizeText(v, 512)
	case fmt.Stringer:
		return sanitizeText(v.String(), 512)
	default:
		return v
	}
}

// sanitizeText trims input, drops control characters other than whitespace and caps the length
// in bytes.
func sanitizeText(input string, limit int) string {
	if limit <= 0 {
		limit = 256
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return ""
	}
	var builder strings.Builder
	for _, r := range input {
		if r < 32 && r != '\n' && r != '\r' && r != '\t' {
			continue
		}
		builder.WriteRune(r)
		if builder.Len() >= limit {
			break
		}
	}
	return builder.String()
}
