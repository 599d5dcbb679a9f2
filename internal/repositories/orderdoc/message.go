package orderdoc

import (
	"time"

	domain "github.com/eventdesk/api/internal/domain"
)

// Message is the stored order message.
type Message struct {
	ID          string        `firestore:"id" json:"id"`
	OrderID     string        `firestore:"orderId" json:"orderId"`
	SenderID    string        `firestore:"senderId" json:"senderId"`
	SenderName  string        `firestore:"senderName,omitempty" json:"senderName,omitempty"`
	SenderRole  string        `firestore:"senderRole" json:"senderRole"`
	Text        string        `firestore:"text" json:"text"`
	Attachments []Attachment  `firestore:"attachments,omitempty" json:"attachments,omitempty"`
	IsSystem    bool          `firestore:"isSystem" json:"isSystem"`
	SeenBy      []SeenReceipt `firestore:"seenBy" json:"seenBy"`
	IsDeleted   bool          `firestore:"isDeleted" json:"isDeleted"`
	DeletedAt   *time.Time    `firestore:"deletedAt,omitempty" json:"deletedAt,omitempty"`
	DeletedBy   string        `firestore:"deletedBy,omitempty" json:"deletedBy,omitempty"`
	CreatedAt   time.Time     `firestore:"createdAt" json:"createdAt"`
}

type Attachment struct {
	URL         string `firestore:"url" json:"url"`
	Name        string `firestore:"name,omitempty" json:"name,omitempty"`
	ContentType string `firestore:"contentType,omitempty" json:"contentType,omitempty"`
}

type SeenReceipt struct {
	UserID string    `firestore:"userId" json:"userId"`
	SeenAt time.Time `firestore:"seenAt" json:"seenAt"`
}

// FromMessage converts a domain message to its stored form.
func FromMessage(m domain.OrderMessage) Message {
	doc := Message{
		ID:         m.ID,
		OrderID:    m.OrderID,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		SenderRole: m.SenderRole,
		Text:       m.Text,
		IsSystem:   m.IsSystem,
		IsDeleted:  m.IsDeleted,
		DeletedAt:  m.DeletedAt,
		DeletedBy:  m.DeletedBy,
		CreatedAt:  m.CreatedAt,
		SeenBy:     []SeenReceipt{},
	}
	for _, a := range m.Attachments {
		doc.Attachments = append(doc.Attachments, Attachment{URL: a.URL, Name: a.Name, ContentType: a.ContentType})
	}
	for _, r := range m.SeenBy {
		doc.SeenBy = append(doc.SeenBy, SeenReceipt{UserID: r.UserID, SeenAt: r.SeenAt})
	}
	return doc
}

// ToMessage converts the stored form back to a domain message.
func (d Message) ToMessage() domain.OrderMessage {
	m := domain.OrderMessage{
		ID:         d.ID,
		OrderID:    d.OrderID,
		SenderID:   d.SenderID,
		SenderName: d.SenderName,
		SenderRole: d.SenderRole,
		Text:       d.Text,
		IsSystem:   d.IsSystem,
		IsDeleted:  d.IsDeleted,
		DeletedBy:  d.DeletedBy,
		CreatedAt:  d.CreatedAt.UTC(),
	}
	if d.DeletedAt != nil {
		at := d.DeletedAt.UTC()
		m.DeletedAt = &at
	}
	for _, a := range d.Attachments {
		m.Attachments = append(m.Attachments, domain.Attachment{URL: a.URL, Name: a.Name, ContentType: a.ContentType})
	}
	for _, r := range d.SeenBy {
		m.SeenBy = append(m.SeenBy, domain.SeenReceipt{UserID: r.UserID, SeenAt: r.SeenAt.UTC()})
	}
	return m
}
