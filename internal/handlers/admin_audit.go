package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/eventdesk/api/internal/domain"
	"github.com/eventdesk/api/internal/platform/auth"
	"github.com/eventdesk/api/internal/platform/httpx"
	"github.com/eventdesk/api/internal/platform/observability"
	"github.com/eventdesk/api/internal/services"
)

const (
	defaultAuditPageSize = 50
	maxAuditPageSize     = 200
)

// AdminAuditHandlers lists the audit trail. Only admins may read it.
type AdminAuditHandlers struct {
	authn  *auth.Authenticator
	system services.SystemService
}

func NewAdminAuditHandlers(authn *auth.Authenticator, system services.SystemService) *AdminAuditHandlers {
	return &AdminAuditHandlers{authn: authn, system: system}
}

// Routes registers GET /audit-logs.
func (h *AdminAuditHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(g chi.Router) {
		if h.authn != nil {
			g.Use(h.authn.RequireRoles(auth.RoleAdmin))
			g.Use(observability.ActorCapture)
		}
		g.Get("/audit-logs", h.listAuditLogs)
	})
}

type auditLogPayload struct {
	ID        string         `json:"id"`
	Actor     string         `json:"actor"`
	ActorName string         `json:"actor_name,omitempty"`
	Action    string         `json:"action"`
	TargetRef string         `json:"target_ref"`
	Severity  string         `json:"severity,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Diff      map[string]any `json:"diff,omitempty"`
	CreatedAt string         `json:"created_at"`
}

type auditLogListResponse struct {
	Items         []auditLogPayload `json:"items"`
	NextPageToken string            `json:"next_page_token,omitempty"`
}

func (h *AdminAuditHandlers) listAuditLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.system == nil {
		httpx.WriteError(ctx, w, httpx.NewError("audit_unavailable", "audit log service unavailable", http.StatusServiceUnavailable))
		return
	}
	values := r.URL.Query()

	filter := services.AuditLogFilter{
		TargetRef: strings.TrimSpace(values.Get("target")),
		Actor:     strings.TrimSpace(values.Get("actor")),
		Action:    strings.TrimSpace(values.Get("action")),
		Pagination: services.Pagination{
			PageSize:  defaultAuditPageSize,
			PageToken: strings.TrimSpace(values.Get("page_token")),
		},
	}
	if orderID := strings.TrimSpace(values.Get("order_id")); orderID != "" && filter.TargetRef == "" {
		filter.TargetRef = "/orders/" + orderID
	}

	from, err := parseOptionalTime(values.Get("from"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "from "+err.Error(), http.StatusBadRequest))
		return
	}
	to, err := parseOptionalTime(values.Get("to"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "to "+err.Error(), http.StatusBadRequest))
		return
	}
	filter.DateRange = domain.RangeQuery[time.Time]{From: from, To: to}

	if raw := strings.TrimSpace(values.Get("page_size")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page_size must be an integer", http.StatusBadRequest))
			return
		}
		if size > 0 {
			filter.Pagination.PageSize = min(size, maxAuditPageSize)
		}
	}

	page, err := h.system.ListAuditLogs(ctx, filter)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("audit_unavailable", "failed to list audit logs", http.StatusServiceUnavailable))
		return
	}

	resp := auditLogListResponse{
		Items:         make([]auditLogPayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, entry := range page.Items {
		resp.Items = append(resp.Items, auditLogPayload{
			ID:        entry.ID,
			Actor:     entry.Actor,
			ActorName: entry.ActorName,
			Action:    entry.Action,
			TargetRef: entry.TargetRef,
			Severity:  entry.Severity,
			RequestID: entry.RequestID,
			Metadata:  entry.Metadata,
			Diff:      entry.Diff,
			CreatedAt: formatTime(entry.CreatedAt),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}
