package domain

import (
	"slices"
	"time"
)

// Sender roles for order messages.
const (
	MessageSenderAdmin  = "admin"
	MessageSenderClient = "client"
	MessageSenderSystem = "system"
)

// Attachment is an opaque reference to uploaded media.
type Attachment struct {
	URL         string
	Name        string
	ContentType string
}

// SeenReceipt records when a user first saw a message.
type SeenReceipt struct {
	UserID string
	SeenAt time.Time
}

// OrderMessage is one entry of an order's conversation thread.
type OrderMessage struct {
	ID          string
	OrderID     string
	SenderID    string
	SenderName  string
	SenderRole  string
	Text        string
	Attachments []Attachment
	IsSystem    bool
	SeenBy      []SeenReceipt
	IsDeleted   bool
	DeletedAt   *time.Time
	DeletedBy   string
	CreatedAt   time.Time
}

// SeenByUser reports whether userID holds a receipt for the message.
func (m OrderMessage) SeenByUser(userID string) bool {
	return slices.ContainsFunc(m.SeenBy, func(r SeenReceipt) bool { return r.UserID == userID })
}

// MarkSeen adds a receipt for userID unless one exists. It reports whether the message changed.
func (m *OrderMessage) MarkSeen(userID string, at time.Time) bool {
	if userID == "" || m.SeenByUser(userID) {
		return false
	}
	m.SeenBy = append(m.SeenBy, SeenReceipt{UserID: userID, SeenAt: at})
	return true
}

// UnreadBy reports whether the message counts as unread for userID.
func (m OrderMessage) UnreadBy(userID string) bool {
	if m.IsDeleted || m.SenderID == userID {
		return false
	}
	return !m.SeenByUser(userID)
}
