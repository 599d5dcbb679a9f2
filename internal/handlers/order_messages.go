package handlers

import (
	"net/http"
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
	maxMessageBodySize    = 16 * 1024
	maxMessageAttachments = 10
)

// OrderMessageHandlers exposes the per-order conversation thread to staff.
type OrderMessageHandlers struct {
	authn    *auth.Authenticator
	messages services.OrderMessageService
	limiter  rateLimiter
}

// OrderMessageOption customises OrderMessageHandlers.
type OrderMessageOption func(*OrderMessageHandlers)

// WithMessageRateLimit caps how many messages one sender may post to one order per window.
func WithMessageRateLimit(limit int, window time.Duration, clock func() time.Time) OrderMessageOption {
	return func(h *OrderMessageHandlers) {
		h.limiter = newWindowLimiter(limit, window, clock)
	}
}

// NewOrderMessageHandlers constructs the message handlers.
func NewOrderMessageHandlers(authn *auth.Authenticator, messages services.OrderMessageService, opts ...OrderMessageOption) *OrderMessageHandlers {
	h := &OrderMessageHandlers{authn: authn, messages: messages}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the message endpoints nested under /orders/{orderID}.
func (h *OrderMessageHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(g chi.Router) {
		if h.authn != nil {
			g.Use(h.authn.RequireRoles(auth.RoleAdmin, auth.RoleManager, auth.RoleStaff))
			g.Use(observability.ActorCapture)
		}
		g.Get("/orders/{orderID}/messages", h.listMessages)
		g.Get("/orders/{orderID}/messages/unread", h.unreadCount)
		g.Post("/orders/{orderID}/messages", h.sendMessage)
		g.Post("/orders/{orderID}/messages:seen", h.markSeen)
		g.With(requireAnyRole(auth.RoleAdmin, auth.RoleManager)).Delete("/orders/{orderID}/messages/{messageID}", h.deleteMessage)
	})
}

type attachmentPayload struct {
	URL         string `json:"url"`
	Name        string `json:"name,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

type sendMessageRequest struct {
	Text        string              `json:"text"`
	Attachments []attachmentPayload `json:"attachments"`
}

type markSeenRequest struct {
	MessageIDs []string `json:"message_ids"`
}

type seenReceiptPayload struct {
	UserID string `json:"user_id"`
	SeenAt string `json:"seen_at"`
}

type messagePayload struct {
	ID          string               `json:"id"`
	OrderID     string               `json:"order_id"`
	SenderID    string               `json:"sender_id"`
	SenderName  string               `json:"sender_name,omitempty"`
	SenderRole  string               `json:"sender_role"`
	Text        string               `json:"text,omitempty"`
	Attachments []attachmentPayload  `json:"attachments,omitempty"`
	IsSystem    bool                 `json:"is_system"`
	SeenBy      []seenReceiptPayload `json:"seen_by,omitempty"`
	IsDeleted   bool                 `json:"is_deleted"`
	DeletedAt   string               `json:"deleted_at,omitempty"`
	CreatedAt   string               `json:"created_at"`
}

type messageListResponse struct {
	Items  []messagePayload `json:"items"`
	Unread int              `json:"unread"`
}

func (h *OrderMessageHandlers) listMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.messages == nil {
		httpx.WriteError(ctx, w, httpx.NewError("message_service_unavailable", "message service unavailable", http.StatusServiceUnavailable))
		return
	}
	actor, ok := requireActor(ctx, w)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	messages, err := h.messages.ListMessages(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	resp := messageListResponse{Items: make([]messagePayload, 0, len(messages))}
	for _, msg := range messages {
		resp.Items = append(resp.Items, buildMessagePayload(msg))
		if msg.UnreadBy(actor.ID) {
			resp.Unread++
		}
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *OrderMessageHandlers) unreadCount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.messages == nil {
		httpx.WriteError(ctx, w, httpx.NewError("message_service_unavailable", "message service unavailable", http.StatusServiceUnavailable))
		return
	}
	actor, ok := requireActor(ctx, w)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	count, err := h.messages.UnreadCount(ctx, orderID, actor.ID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]int{"unread": count})
}

func (h *OrderMessageHandlers) sendMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.messages == nil {
		httpx.WriteError(ctx, w, httpx.NewError("message_service_unavailable", "message service unavailable", http.StatusServiceUnavailable))
		return
	}
	actor, ok := requireActor(ctx, w)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	if h.limiter != nil && !h.limiter.Allow(orderID+"|"+actor.ID) {
		w.Header().Set("Retry-After", "60")
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many messages, try again later", http.StatusTooManyRequests))
		return
	}
	var req sendMessageRequest
	if !decodeJSONBody(w, r, maxMessageBodySize, false, &req) {
		return
	}
	if len(req.Attachments) > maxMessageAttachments {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "too many attachments", http.StatusBadRequest))
		return
	}
	attachments := make([]domain.Attachment, 0, len(req.Attachments))
	for _, a := range req.Attachments {
		url := strings.TrimSpace(a.URL)
		if url == "" {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "attachment url is required", http.StatusBadRequest))
			return
		}
		attachments = append(attachments, domain.Attachment{
			URL:         url,
			Name:        strings.TrimSpace(a.Name),
			ContentType: strings.TrimSpace(a.ContentType),
		})
	}

	msg, err := h.messages.SendMessage(ctx, services.SendOrderMessageCommand{
		OrderID:     orderID,
		Sender:      actor,
		SenderRole:  domain.MessageSenderAdmin,
		Text:        req.Text,
		Attachments: attachments,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]messagePayload{"message": buildMessagePayload(msg)})
}

func (h *OrderMessageHandlers) markSeen(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.messages == nil {
		httpx.WriteError(ctx, w, httpx.NewError("message_service_unavailable", "message service unavailable", http.StatusServiceUnavailable))
		return
	}
	actor, ok := requireActor(ctx, w)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	var req markSeenRequest
	if !decodeJSONBody(w, r, maxMessageBodySize, true, &req) {
		return
	}

	updated, err := h.messages.MarkSeen(ctx, services.MarkMessagesSeenCommand{
		OrderID:    orderID,
		MessageIDs: trimStrings(req.MessageIDs),
		UserID:     actor.ID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]int{"updated": updated})
}

func (h *OrderMessageHandlers) deleteMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.messages == nil {
		httpx.WriteError(ctx, w, httpx.NewError("message_service_unavailable", "message service unavailable", http.StatusServiceUnavailable))
		return
	}
	actor, ok := requireActor(ctx, w)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	messageID := strings.TrimSpace(chi.URLParam(r, "messageID"))
	if messageID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "message id is required", http.StatusBadRequest))
		return
	}

	msg, err := h.messages.DeleteMessage(ctx, services.DeleteOrderMessageCommand{
		OrderID:   orderID,
		MessageID: messageID,
		Actor:     actor,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]messagePayload{"message": buildMessagePayload(msg)})
}

// buildMessagePayload hides the body of deleted messages.
func buildMessagePayload(msg services.OrderMessage) messagePayload {
	payload := messagePayload{
		ID:         msg.ID,
		OrderID:    msg.OrderID,
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		SenderRole: msg.SenderRole,
		IsSystem:   msg.IsSystem,
		IsDeleted:  msg.IsDeleted,
		DeletedAt:  formatTimePtr(msg.DeletedAt),
		CreatedAt:  formatTime(msg.CreatedAt),
	}
	if !msg.IsDeleted {
		payload.Text = msg.Text
		for _, a := range msg.Attachments {
			payload.Attachments = append(payload.Attachments, attachmentPayload{URL: a.URL, Name: a.Name, ContentType: a.ContentType})
		}
	}
	for _, receipt := range msg.SeenBy {
		payload.SeenBy = append(payload.SeenBy, seenReceiptPayload{UserID: receipt.UserID, SeenAt: formatTime(receipt.SeenAt)})
	}
	return payload
}
