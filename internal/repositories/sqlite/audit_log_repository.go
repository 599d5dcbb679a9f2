package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/eventdesk/api/internal/domain"
	"github.com/eventdesk/api/internal/platform/pagination"
	"github.com/eventdesk/api/internal/platform/sqldb"
	"github.com/eventdesk/api/internal/repositories"
)

type auditLogDocument struct {
	ActorName string         `json:"actorName,omitempty"`
	Severity  string         `json:"severity"`
	RequestID string         `json:"requestId,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Diff      map[string]any `json:"diff,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

type auditLogRow struct {
	ID        string `db:"id"`
	Actor     string `db:"actor"`
	Action    string `db:"action"`
	TargetRef string `db:"target_ref"`
	Doc       string `db:"doc"`
}

// AuditLogRepository appends audit entries to the audit_logs table.
type AuditLogRepository struct {
	db *sqldb.DB
}

var _ repositories.AuditLogRepository = (*AuditLogRepository)(nil)

// NewAuditLogRepository constructs the SQLite audit log repository.
func NewAuditLogRepository(db *sqldb.DB) (*AuditLogRepository, error) {
	if db == nil {
		return nil, errors.New("audit log repository: sqlite db is required")
	}
	return &AuditLogRepository{db: db}, nil
}

func (r *AuditLogRepository) Append(ctx context.Context, entry domain.AuditLogEntry) error {
	payload, err := json.Marshal(auditLogDocument{
		ActorName: entry.ActorName,
		Severity:  entry.Severity,
		RequestID: entry.RequestID,
		Metadata:  entry.Metadata,
		Diff:      entry.Diff,
		CreatedAt: entry.CreatedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("sqlite: encode audit entry: %w", err)
	}
	_, err = r.db.Conn(ctx).ExecContext(ctx,
		`INSERT INTO audit_logs (id, actor, action, target_ref, created_at, doc) VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Actor, entry.Action, entry.TargetRef, sqldb.FormatTime(entry.CreatedAt), string(payload),
	)
	return sqldb.WrapError("audit_logs.append", err)
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

	var (
		clauses []string
		args    []interface{}
	)
	if v := strings.TrimSpace(filter.TargetRef); v != "" {
		clauses = append(clauses, "target_ref = ?")
		args = append(args, v)
	}
	if v := strings.TrimSpace(filter.Actor); v != "" {
		clauses = append(clauses, "actor = ?")
		args = append(args, v)
	}
	if v := strings.TrimSpace(filter.Action); v != "" {
		clauses = append(clauses, "action = ?")
		args = append(args, v)
	}
	if filter.DateRange.From != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, sqldb.FormatTime(*filter.DateRange.From))
	}
	if filter.DateRange.To != nil {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, sqldb.FormatTime(*filter.DateRange.To))
	}
	query := `SELECT id, actor, action, target_ref, doc FROM audit_logs`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, pageSize+1, cursor.Offset)

	var rows []auditLogRow
	if err := r.db.Conn(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		return domain.CursorPage[domain.AuditLogEntry]{}, sqldb.WrapError("audit_logs.list", err)
	}

	page := domain.CursorPage[domain.AuditLogEntry]{}
	for i, row := range rows {
		if i == pageSize {
			page.NextPageToken = pagination.EncodeToken(pagination.Cursor{Offset: cursor.Offset + pageSize})
			break
		}
		var doc auditLogDocument
		if err := json.Unmarshal([]byte(row.Doc), &doc); err != nil {
			return domain.CursorPage[domain.AuditLogEntry]{}, fmt.Errorf("sqlite: decode audit entry %s: %w", row.ID, err)
		}
		page.Items = append(page.Items, domain.AuditLogEntry{
			ID:        row.ID,
			Actor:     row.Actor,
			ActorName: doc.ActorName,
			Action:    row.Action,
			TargetRef: row.TargetRef,
			Severity:  doc.Severity,
			RequestID: doc.RequestID,
			Metadata:  doc.Metadata,
			Diff:      doc.Diff,
			CreatedAt: doc.CreatedAt.UTC(),
		})
	}
	return page, nil
}
