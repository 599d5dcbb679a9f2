package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/eventdesk/api/internal/domain"
	"github.com/eventdesk/api/internal/repositories"
)

const (
	messageIDPrefix       = "msg_"
	maxMessageLength      = 4000
	maxMessageAttachments = 10
)

// OrderMessageServiceDeps bundles collaborators required to construct the message service.
type OrderMessageServiceDeps struct {
	Orders      repositories.OrderRepository
	Messages    repositories.OrderMessageRepository
	Audit       AuditLogService
	Events      OrderEventPublisher
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderMessageService struct {
	orders   repositories.OrderRepository
	messages repositories.OrderMessageRepository
	audit    AuditLogService
	events   OrderEventPublisher
	clock    func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
	policy   *bluemonday.Policy
}

// NewOrderMessageService constructs the per-order messaging service.
func NewOrderMessageService(deps OrderMessageServiceDeps) (OrderMessageService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order message service: order repository is required")
	}
	if deps.Messages == nil {
		return nil, errors.New("order message service: message repository is required")
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
	return &orderMessageService{
		orders:   deps.Orders,
		messages: deps.Messages,
		audit:    deps.Audit,
		events:   deps.Events,
		clock:    func() time.Time { return clock().UTC() },
		newID:    idGen,
		logger:   logger,
		policy:   bluemonday.StrictPolicy().AllowElementsContent("script", "style"),
	}, nil
}

func (s *orderMessageService) SendMessage(ctx context.Context, cmd SendOrderMessageCommand) (OrderMessage, error) {
	sender, err := requireActor(cmd.Sender)
	if err != nil {
		return OrderMessage{}, err
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return OrderMessage{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	role, err := normalizeSenderRole(cmd.SenderRole, cmd.IsSystem)
	if err != nil {
		return OrderMessage{}, err
	}
	attachments, err := normalizeAttachments(cmd.Attachments)
	if err != nil {
		return OrderMessage{}, err
	}
	text := s.sanitize(cmd.Text)
	if text == "" && len(attachments) == 0 {
		return OrderMessage{}, ErrEmptyMessage
	}
	if len([]rune(text)) > maxMessageLength {
		return OrderMessage{}, fmt.Errorf("%w: message exceeds %d characters", ErrOrderInvalidInput, maxMessageLength)
	}

	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return OrderMessage{}, mapOrderRepositoryError(err)
	}

	now := s.clock()
	message := OrderMessage{
		ID:          messageIDPrefix + s.newID(),
		OrderID:     order.ID,
		SenderID:    sender.ID,
		SenderName:  sender.DisplayName,
		SenderRole:  role,
		Text:        text,
		Attachments: attachments,
		IsSystem:    cmd.IsSystem,
		CreatedAt:   now,
	}
	if err := s.messages.Append(ctx, message); err != nil {
		return OrderMessage{}, mapOrderRepositoryError(err)
	}

	if s.events != nil {
		event := OrderEvent{
			Type:          orderEventMessageCreated,
			OrderID:       order.ID,
			OrderNumber:   order.OrderNumber,
			OrderType:     order.Type,
			CurrentStatus: order.Status,
			ActorID:       sender.ID,
			OccurredAt:    now,
			Metadata: map[string]any{
				"messageId":   message.ID,
				"senderRole":  role,
				"isSystem":    message.IsSystem,
				"attachments": len(attachments),
			},
		}
		if err := s.events.PublishOrderEvent(ctx, event); err != nil {
			s.logger(ctx, "order.event.publish.failed", map[string]any{
				"type":  event.Type,
				"order": order.ID,
				"error": err.Error(),
			})
		}
	}
	return message, nil
}

func (s *orderMessageService) ListMessages(ctx context.Context, orderID string) ([]OrderMessage, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	messages, err := s.messages.List(ctx, orderID)
	if err != nil {
		return nil, mapOrderRepositoryError(err)
	}
	return messages, nil
}

// MarkSeen adds a receipt for the user to each listed message. Messages already seen by the user
// keep their original receipt.
func (s *orderMessageService) MarkSeen(ctx context.Context, cmd MarkMessagesSeenCommand) (int, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	userID := strings.TrimSpace(cmd.UserID)
	if orderID == "" {
		return 0, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if userID == "" {
		return 0, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	if len(cmd.MessageIDs) == 0 {
		return 0, nil
	}
	changed, err := s.messages.MarkSeen(ctx, orderID, cmd.MessageIDs, userID, s.clock())
	if err != nil {
		return 0, mapOrderRepositoryError(err)
	}
	return changed, nil
}

func (s *orderMessageService) UnreadCount(ctx context.Context, orderID, userID string) (int, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	messages, err := s.ListMessages(ctx, orderID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, message := range messages {
		if message.UnreadBy(userID) {
			count++
		}
	}
	return count, nil
}

// DeleteMessage flags the message as deleted. Its content is kept for the audit trail.
func (s *orderMessageService) DeleteMessage(ctx context.Context, cmd DeleteOrderMessageCommand) (OrderMessage, error) {
	actor, err := requireActor(cmd.Actor)
	if err != nil {
		return OrderMessage{}, err
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	messageID := strings.TrimSpace(cmd.MessageID)
	if orderID == "" || messageID == "" {
		return OrderMessage{}, fmt.Errorf("%w: order id and message id are required", ErrOrderInvalidInput)
	}

	message, err := s.messages.SoftDelete(ctx, orderID, messageID, actor.ID, s.clock())
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return OrderMessage{}, fmt.Errorf("%w: %s", ErrMessageNotFound, messageID)
		}
		return OrderMessage{}, mapOrderRepositoryError(err)
	}

	if s.audit != nil {
		s.audit.Record(ctx, AuditLogRecord{
			Actor:     actor.ID,
			ActorName: actor.DisplayName,
			Action:    auditActionMessageDeleted,
			TargetRef: orderTargetRef(orderID) + "/messages/" + messageID,
			Severity:  "warn",
			Metadata:  map[string]any{"senderId": message.SenderID},
		})
	}
	return message, nil
}

// sanitize strips tags and returns HTML-escaped text. Entities in the input stay
// encoded so stored text never turns back into markup.
func (s *orderMessageService) sanitize(text string) string {
	return strings.TrimSpace(s.policy.Sanitize(text))
}

func normalizeSenderRole(role string, system bool) (string, error) {
	if system {
		return domain.MessageSenderSystem, nil
	}
	switch r := strings.ToLower(strings.TrimSpace(role)); r {
	case "":
		return domain.MessageSenderAdmin, nil
	case domain.MessageSenderAdmin, domain.MessageSenderClient, domain.MessageSenderSystem:
		return r, nil
	default:
		return "", fmt.Errorf("%w: unknown sender role %q", ErrOrderInvalidInput, role)
	}
}

func normalizeAttachments(in []domain.Attachment) ([]domain.Attachment, error) {
	if len(in) > maxMessageAttachments {
		return nil, fmt.Errorf("%w: at most %d attachments", ErrOrderInvalidInput, maxMessageAttachments)
	}
	out := make([]domain.Attachment, 0, len(in))
	for _, a := range in {
		raw := strings.TrimSpace(a.URL)
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			return nil, fmt.Errorf("%w: attachment url %q must be an absolute http(s) url", ErrOrderInvalidInput, raw)
		}
		out = append(out, domain.Attachment{
			URL:         u.String(),
			Name:        strings.TrimSpace(a.Name),
			ContentType: strings.TrimSpace(a.ContentType),
		})
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}
