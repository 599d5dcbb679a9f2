package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/eventdesk/api/internal/domain"
)

type messageFixture struct {
	svc      OrderMessageService
	orders   *memoryOrderRepository
	messages *memoryMessageRepository
	audit    *stubAuditService
	events   *captureEventPublisher
	order    domain.Order
	clock    *time.Time
}

func newMessageFixture(t *testing.T) *messageFixture {
	t.Helper()
	now := time.Date(2026, 5, 12, 14, 0, 0, 0, time.UTC)
	order := newPendingOrder(t, now)
	f := &messageFixture{
		orders:   newMemoryOrderRepository(order),
		messages: &memoryMessageRepository{},
		audit:    &stubAuditService{},
		events:   &captureEventPublisher{},
		order:    order,
		clock:    &now,
	}
	svc, err := NewOrderMessageService(OrderMessageServiceDeps{
		Orders:      f.orders,
		Messages:    f.messages,
		Audit:       f.audit,
		Events:      f.events,
		Clock:       func() time.Time { return *f.clock },
		IDGenerator: sequenceIDs("m"),
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *messageFixture) advance(d time.Duration) {
	*f.clock = f.clock.Add(d)
}

func TestOrderMessageServiceSendSanitises(t *testing.T) {
	f := newMessageFixture(t)

	msg, err := f.svc.SendMessage(context.Background(), SendOrderMessageCommand{
		OrderID:    f.order.ID,
		Sender:     domain.Actor{ID: "client-1", DisplayName: "Mariam"},
		SenderRole: "Client",
		Text:       "  <b>Can we</b> add <script>alert(1)</script>flowers &amp; candles? ",
	})
	require.NoError(t, err)

	assert.Equal(t, "msg_m001", msg.ID)
	assert.Equal(t, domain.MessageSenderClient, msg.SenderRole)
	assert.Equal(t, "Can we add alert(1)flowers &amp; candles?", msg.Text)
	assert.Equal(t, []string{orderEventMessageCreated}, f.events.types())
	assert.Equal(t, f.order.OrderNumber, f.events.events[0].OrderNumber)

	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "encoded markup stays encoded", in: "&lt;script&gt;alert(1)&lt;/script&gt;", want: "&lt;script&gt;alert(1)&lt;/script&gt;"},
		{name: "script text kept", in: "<script>alert(1)</script>", want: "alert(1)"},
		{name: "bold text kept", in: "<b>x</b>", want: "x"},
		{name: "bare ampersand escaped", in: "tea & cake", want: "tea &amp; cake"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := f.svc.SendMessage(context.Background(), SendOrderMessageCommand{
				OrderID: f.order.ID,
				Sender:  domain.Actor{ID: "admin-1"},
				Text:    tc.in,
			})
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.Text)
			assert.NotContains(t, got.Text, "<")
		})
	}
}

func TestOrderMessageServiceSendValidation(t *testing.T) {
	f := newMessageFixture(t)
	sender := domain.Actor{ID: "admin-1"}
	cases := []struct {
		name string
		cmd  SendOrderMessageCommand
		want error
	}{
		{name: "empty", cmd: SendOrderMessageCommand{OrderID: f.order.ID, Sender: sender, Text: " <p></p> "}, want: ErrEmptyMessage},
		{name: "no sender", cmd: SendOrderMessageCommand{OrderID: f.order.ID, Text: "hi"}, want: ErrOrderInvalidInput},
		{name: "bad role", cmd: SendOrderMessageCommand{OrderID: f.order.ID, Sender: sender, SenderRole: "vendor", Text: "hi"}, want: ErrOrderInvalidInput},
		{name: "relative attachment", cmd: SendOrderMessageCommand{OrderID: f.order.ID, Sender: sender, Attachments: []domain.Attachment{{URL: "/uploads/a.png"}}}, want: ErrOrderInvalidInput},
		{name: "too long", cmd: SendOrderMessageCommand{OrderID: f.order.ID, Sender: sender, Text: strings.Repeat("a", maxMessageLength+1)}, want: ErrOrderInvalidInput},
		{name: "unknown order", cmd: SendOrderMessageCommand{OrderID: "ord_missing", Sender: sender, Text: "hi"}, want: ErrOrderNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.SendMessage(context.Background(), tc.cmd)
			require.ErrorIs(t, err, tc.want)
		})
	}
	assert.Empty(t, f.messages.messages)
}

func TestOrderMessageServiceAttachmentOnly(t *testing.T) {
	f := newMessageFixture(t)
	msg, err := f.svc.SendMessage(context.Background(), SendOrderMessageCommand{
		OrderID:     f.order.ID,
		Sender:      domain.Actor{ID: "admin-1"},
		Attachments: []domain.Attachment{{URL: " https://cdn.example.com/floorplan.pdf ", Name: "floorplan.pdf"}},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.MessageSenderAdmin, msg.SenderRole)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "https://cdn.example.com/floorplan.pdf", msg.Attachments[0].URL)
}

func TestOrderMessageServiceSystemMessage(t *testing.T) {
	f := newMessageFixture(t)
	msg, err := f.svc.SendMessage(context.Background(), SendOrderMessageCommand{
		OrderID:    f.order.ID,
		Sender:     domain.Actor{ID: "system"},
		SenderRole: "client",
		Text:       "Quote sent",
		IsSystem:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.MessageSenderSystem, msg.SenderRole)
	assert.True(t, msg.IsSystem)
}

func TestOrderMessageServiceSeenAndUnread(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()
	client := domain.Actor{ID: "client-1"}
	admin := domain.Actor{ID: "admin-1"}

	first, err := f.svc.SendMessage(ctx, SendOrderMessageCommand{OrderID: f.order.ID, Sender: client, SenderRole: "client", Text: "hello"})
	require.NoError(t, err)
	f.advance(time.Minute)
	second, err := f.svc.SendMessage(ctx, SendOrderMessageCommand{OrderID: f.order.ID, Sender: client, SenderRole: "client", Text: "are you there?"})
	require.NoError(t, err)
	f.advance(time.Minute)
	_, err = f.svc.SendMessage(ctx, SendOrderMessageCommand{OrderID: f.order.ID, Sender: admin, Text: "yes"})
	require.NoError(t, err)

	unread, err := f.svc.UnreadCount(ctx, f.order.ID, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, unread)

	seenAt := *f.clock
	changed, err := f.svc.MarkSeen(ctx, MarkMessagesSeenCommand{OrderID: f.order.ID, UserID: admin.ID, MessageIDs: []string{first.ID, second.ID}})
	require.NoError(t, err)
	assert.Equal(t, 2, changed)

	f.advance(time.Hour)
	changed, err = f.svc.MarkSeen(ctx, MarkMessagesSeenCommand{OrderID: f.order.ID, UserID: admin.ID, MessageIDs: []string{first.ID}})
	require.NoError(t, err)
	assert.Zero(t, changed)

	messages, err := f.svc.ListMessages(ctx, f.order.ID)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	require.Len(t, messages[0].SeenBy, 1)
	assert.Equal(t, seenAt, messages[0].SeenBy[0].SeenAt)

	unread, err = f.svc.UnreadCount(ctx, f.order.ID, admin.ID)
	require.NoError(t, err)
	assert.Zero(t, unread)
	unread, err = f.svc.UnreadCount(ctx, f.order.ID, client.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	_, err = f.svc.MarkSeen(ctx, MarkMessagesSeenCommand{OrderID: f.order.ID, MessageIDs: []string{first.ID}})
	require.ErrorIs(t, err, ErrOrderInvalidInput)
}

func TestOrderMessageServiceDelete(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()
	msg, err := f.svc.SendMessage(ctx, SendOrderMessageCommand{OrderID: f.order.ID, Sender: domain.Actor{ID: "client-1"}, SenderRole: "client", Text: "wrong thread"})
	require.NoError(t, err)

	deleted, err := f.svc.DeleteMessage(ctx, DeleteOrderMessageCommand{OrderID: f.order.ID, MessageID: msg.ID, Actor: testAdmin})
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted)
	assert.Equal(t, "wrong thread", deleted.Text)
	assert.Equal(t, testAdmin.ID, deleted.DeletedBy)
	assert.Equal(t, []string{auditActionMessageDeleted}, f.audit.actions())

	unread, err := f.svc.UnreadCount(ctx, f.order.ID, testAdmin.ID)
	require.NoError(t, err)
	assert.Zero(t, unread)

	_, err = f.svc.DeleteMessage(ctx, DeleteOrderMessageCommand{OrderID: f.order.ID, MessageID: "msg_missing", Actor: testAdmin})
	require.True(t, errors.Is(err, ErrMessageNotFound))
}
