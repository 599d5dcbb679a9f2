package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/eventdesk/api/internal/domain"
	pfirestore "github.com/eventdesk/api/internal/platform/firestore"
	"github.com/eventdesk/api/internal/platform/pagination"
	"github.com/eventdesk/api/internal/repositories"
)

const auditLogsCollection = "auditLogs"

type auditLogDocument struct {
	Actor     string         `firestore:"actor"`
	ActorName string         `firestore:"actorName,omitempty"`
	Action    string         `firestore:"action"`
	TargetRef string         `firestore:"targetRef"`
	Severity  string         `firestore:"severity"`
	RequestID string         `firestore:"requestId,omitempty"`
	Metadata  map[string]any `firestore:"metadata,omitempty"`
	Diff      map[string]any `firestore:"diff,omitempty"`
	CreatedAt time.Time      `firestore:"createdAt"`
}

// AuditLogRepository appends audit entries to the auditLogs collection.
type AuditLogRepository struct {
	base *pfirestore.BaseRepository[auditLogDocument]
}

var _ repositories.AuditLogRepository = (*AuditLogRepository)(nil)

// NewAuditLogRepository constructs the Firestore audit log repository.
func NewAuditLogRepository(provider *pfirestore.Provider) (*AuditLogRepository, error) {
	if provider == nil {
		return nil, errors.New("audit log repository: firestore provider is required")
	}
	return &AuditLogRepository{
		base: pfirestore.NewBaseRepository[auditLogDocument](provider, auditLogsCollection, nil, nil),
	}, nil
}

func (r *AuditLogRepository) Append(ctx context.Context, entry domain.AuditLogEntry) error {
	return r.base.Create(ctx, entry.ID, auditLogDocument{
		Actor:     entry.Actor,
		ActorName: entry.ActorName,
		Action:    entry.Action,
		TargetRef: entry.TargetRef,
		Severity:  entry.Severity,
		RequestID: entry.RequestID,
		Metadata:  entry.Metadata,
		Diff:      entry.Diff,
		CreatedAt: entry.CreatedAt.UTC(),
	})
}

func (r *AuditLogRepository) List(ctx context.Context, filter repositories.AuditLogFilter) (domain.CursorPage[domain.AuditLogEntry], error) {
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.AuditLogEntry]{}, err
	}
	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if v := strings.TrimSpace(filter.TargetRef); v != "" {
			q = q.Where("targetRef", "==", v)
		}
		if v := strings.TrimSpace(filter.Actor); v != "" {
			q = q.Where("actor", "==", v)
		}
		if v := strings.TrimSpace(filter.Action); v != "" {
			q = q.Where("action", "==", v)
		}
		if filter.DateRange.From != nil {
			q = q.Where("createdAt", ">=", filter.DateRange.From.UTC())
		}
		if filter.DateRange.To != nil {
			q = q.Where("createdAt", "<=", filter.DateRange.To.UTC())
		}
		return q.OrderBy("createdAt", firestore.Desc).Offset(cursor.Offset).Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.AuditLogEntry]{}, err
	}

	page := domain.CursorPage[domain.AuditLogEntry]{}
	for i, doc := range docs {
		if i == pageSize {
			page.NextPageToken = pagination.EncodeToken(pagination.Cursor{Offset: cursor.Offset + pageSize})
			break
		}
		page.Items = append(page.Items, domain.AuditLogEntry{
			ID:        doc.ID,
			Actor:     doc.Data.Actor,
			ActorName: doc.Data.ActorName,
			Action:    doc.Data.Action,
			TargetRef: doc.Data.TargetRef,
			Severity:  doc.Data.Severity,
			RequestID: doc.Data.RequestID,
			Metadata:  doc.Data.Metadata,
			Diff:      doc.Data.Diff,
			CreatedAt: doc.Data.CreatedAt.UTC(),
		})
	}
	return page, nil
}
